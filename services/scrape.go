package services

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"cart-hand/config"
	"cart-hand/extract"
	"cart-hand/models"
	"cart-hand/storage"
)

// ScrapeRequest ist der Input eines Seiten-Laufs: Suchwort oder komplette
// Such-URL, Zielanzahl (0 = unbegrenzt) und optionale Geolocation.
type ScrapeRequest struct {
	Keyword     string `json:"keyword"`
	URLOverride string `json:"url"`
	Target      int    `json:"target"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
}

// ScrapeService kümmert sich um die Orchestrierung eines kompletten Laufs:
// Session aufbauen, Waterfall ausführen, Batch persistieren, Diagnose-
// Snapshots bei leerem oder fehlgeschlagenem Ergebnis.
type ScrapeService struct {
	Config     *config.Config
	DB         *gorm.DB
	S3Client   *s3.Client
	Logger     *zap.Logger
	Sessions   SessionFactory
	Aggregator *Aggregator
}

// NewScrapeService verdrahtet Scanner, Prober und Aggregator aus der
// Konfiguration.
func NewScrapeService(cfg *config.Config, db *gorm.DB, s3Client *s3.Client, logger *zap.Logger, sessions SessionFactory) *ScrapeService {
	norm := extract.NewNormalizer(cfg.SiteBaseURL, cfg.ProductPathTemplate)
	scanner := extract.NewScanner(norm)
	scanner.MaxDepth = cfg.ScanMaxDepth
	scanner.SampleSize = cfg.ScoreSampleSize
	scanner.Threshold = cfg.ArrayScoreThreshold

	prober := &Prober{
		Scanner:     scanner,
		Logger:      logger,
		MaxRequests: cfg.ProbeMaxRequests,
		DefaultStep: cfg.ProbeDefaultStep,
		MinYield:    cfg.ProbeMinYield,
	}

	return &ScrapeService{
		Config:   cfg,
		DB:       db,
		S3Client: s3Client,
		Logger:   logger,
		Sessions: sessions,
		Aggregator: &Aggregator{
			Scanner:            scanner,
			Prober:             prober,
			Logger:             logger,
			ScrollMaxRounds:    cfg.ScrollMaxRounds,
			ScrollStableRounds: cfg.ScrollStableRounds,
			ScrollSettle:       time.Duration(cfg.ScrollSettleMs) * time.Millisecond,
		},
	}
}

// Run führt einen kompletten Lauf für eine Anfrage aus und gibt die Zahl der
// neu gespeicherten Produkte zurück. Ungültiger Input schlägt fehl, bevor
// irgendeine Session startet.
func (s *ScrapeService) Run(ctx context.Context, req ScrapeRequest) (int, error) {
	keyword, seedURL, err := s.resolveSeed(&req)
	if err != nil {
		return 0, err
	}
	log := s.Logger.With(zap.String("keyword", keyword), zap.String("seed_url", seedURL))
	log.Info("Starte Scrape-Lauf", zap.Int("target", req.Target))

	run := models.ScrapeRun{
		Keyword:   keyword,
		SourceURL: seedURL,
		Target:    req.Target,
		Status:    models.RunStatusRunning,
	}
	s.DB.Create(&run)

	count, runErr := s.execute(ctx, log, &run, keyword, seedURL, req)

	switch {
	case runErr != nil:
		run.Status = models.RunStatusFailed
		run.Error = runErr.Error()
	case count == 0:
		run.Status = models.RunStatusEmpty
	default:
		run.Status = models.RunStatusCompleted
	}
	run.ProductCount = count
	s.DB.Save(&run)

	return count, runErr
}

// execute baut die Session, navigiert und treibt den Waterfall.
func (s *ScrapeService) execute(ctx context.Context, log *zap.Logger, run *models.ScrapeRun, keyword, seedURL string, req ScrapeRequest) (int, error) {
	pageCtx, cancel := context.WithTimeout(ctx, time.Duration(s.Config.PageTimeoutSec)*time.Second)
	defer cancel()

	session, closeSession, err := s.Sessions.NewSession(pageCtx, SessionOptions{
		ProxyURL: s.Config.ProxyURL,
		Lat:      req.Lat,
		Lon:      req.Lon,
	})
	if err != nil {
		return 0, fmt.Errorf("session-aufbau fehlgeschlagen: %w", err)
	}
	defer closeSession()

	if err := session.Navigate(pageCtx, seedURL); err != nil {
		s.snapshotDiagnostics(pageCtx, log, run, session)
		return 0, fmt.Errorf("navigation fehlgeschlagen: %w", err)
	}

	st := s.Aggregator.Collect(pageCtx, session, req.Target)

	if st.Count() == 0 {
		// Terminal für die Seite, nicht fatal für den Lauf: Diagnose
		// persistieren, nichts emittieren.
		s.snapshotDiagnostics(pageCtx, log, run, session)
		log.Warn("Lauf ohne Produkte abgeschlossen")
		return 0, nil
	}

	saved := s.persist(log, st, keyword, seedURL)
	log.Info("Scrape-Lauf abgeschlossen", zap.Int("products", saved))
	return saved, nil
}

// persist schreibt den deduplizierten Batch append-only in die Sink. Der
// zusammengesetzte Unique-Index fängt laufübergreifende Duplikate ab.
func (s *ScrapeService) persist(log *zap.Logger, st *RunState, keyword, seedURL string) int {
	capturedAt := time.Now().UTC()
	rows := make([]models.Product, 0, len(st.Items))
	for _, item := range st.Items {
		p := item.Product
		rows = append(rows, models.Product{
			Keyword:        keyword,
			SourceURL:      seedURL,
			Source:         item.Source,
			CapturedAt:     capturedAt,
			Name:           p.Name,
			Price:          p.Price,
			OriginalPrice:  p.OriginalPrice,
			DiscountLabel:  p.DiscountLabel,
			ImageURL:       p.ImageURL,
			Availability:   p.Availability,
			DeliveryLabel:  p.DeliveryLabel,
			ProductURL:     p.ProductURL,
			ProductID:      p.ProductID,
			SkuID:          p.SkuID,
			Brand:          p.Brand,
			Quantity:       p.Quantity,
			Unit:           p.Unit,
			Rating:         p.Rating,
			RatingsCount:   p.RatingsCount,
			InventoryCount: p.InventoryCount,
		})
	}

	res := s.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows)
	if res.Error != nil {
		log.Error("Persistieren des Batches fehlgeschlagen", zap.Error(res.Error))
		return 0
	}
	// Laufübergreifende Duplikate werden vom Unique-Index verschluckt und
	// zählen nicht als neue Produkte.
	return int(res.RowsAffected)
}

// RunAllKeywords führt einen Lauf für jedes gespeicherte Suchwort aus.
func (s *ScrapeService) RunAllKeywords(ctx context.Context) (int, error) {
	var keywords []models.SearchKeyword
	if err := s.DB.Find(&keywords).Error; err != nil {
		s.Logger.Error("Fehler beim Abrufen der Suchwörter", zap.Error(err))
		return 0, err
	}

	total := 0
	for _, kw := range keywords {
		count, err := s.Run(ctx, ScrapeRequest{Keyword: kw.Keyword, Target: kw.Target})
		if err != nil {
			s.Logger.Error("Fehler beim Verarbeiten des Suchworts", zap.String("keyword", kw.Keyword), zap.Error(err))
			continue
		}
		total += count
	}
	return total, nil
}

// resolveSeed validiert den Input und leitet Keyword und Seed-URL ab. Eine
// URL-Override liefert Keyword und Geolocation aus ihren Query-Parametern.
func (s *ScrapeService) resolveSeed(req *ScrapeRequest) (string, string, error) {
	if req.URLOverride != "" {
		u, err := url.Parse(req.URLOverride)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return "", "", fmt.Errorf("ungültige such-url: %q", req.URLOverride)
		}
		q := u.Query()
		keyword := req.Keyword
		if kw := q.Get("q"); kw != "" {
			keyword = kw
		}
		if lat := q.Get("lat"); lat != "" {
			req.Lat = lat
		}
		if lon := q.Get("lon"); lon != "" {
			req.Lon = lon
		}
		return keyword, req.URLOverride, nil
	}

	keyword := strings.TrimSpace(req.Keyword)
	if keyword == "" {
		return "", "", fmt.Errorf("keyword oder such-url erforderlich")
	}
	if req.Lat == "" {
		req.Lat = s.Config.DefaultLat
	}
	if req.Lon == "" {
		req.Lon = s.Config.DefaultLon
	}
	return keyword, s.Config.SearchURL(url.QueryEscape(keyword)), nil
}

// snapshotDiagnostics persistiert das gerenderte Markup und die beobachteten
// Response-URLs unter festen Keys. Best-effort: ein fehlgeschlagener
// Snapshot ist selbst nie fatal.
func (s *ScrapeService) snapshotDiagnostics(ctx context.Context, log *zap.Logger, run *models.ScrapeRun, session PageSession) {
	html, err := session.HTML(ctx)
	if err != nil {
		log.Warn("Markup für Diagnose-Snapshot nicht lesbar", zap.Error(err))
	}

	urls := make([]string, 0, len(session.Responses()))
	for _, resp := range session.Responses() {
		urls = append(urls, resp.URL)
	}

	key, err := storage.UploadSnapshot(s.S3Client, s.Config, run.ID, html, urls)
	if err != nil {
		log.Warn("Diagnose-Snapshot fehlgeschlagen", zap.Error(err))
		return
	}
	run.SnapshotKey = key
	log.Info("Diagnose-Snapshot gespeichert", zap.String("key", key))
}
