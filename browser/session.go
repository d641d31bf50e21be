// Package browser implementiert die Browser-Session für einen Seiten-Lauf:
// Navigation, passiver Netzwerk-Mitschnitt, In-Page-Auswertung des
// Client-States und session-gebundene Fetches für das Pagination-Probing.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"go.uber.org/zap"

	"cart-hand/config"
	"cart-hand/extract"
	"cart-hand/services"
)

// Launcher erstellt Browser-Sessions; implementiert services.SessionFactory.
type Launcher struct {
	Config *config.Config
	Logger *zap.Logger
}

// NewLauncher erstellt eine neue Session-Factory.
func NewLauncher(cfg *config.Config, logger *zap.Logger) *Launcher {
	return &Launcher{Config: cfg, Logger: logger}
}

// NewSession startet einen Browser mit Stealth-Page, optionalem Proxy und
// Geolocation-Override und hängt den passiven Response-Listener an.
func (l *Launcher) NewSession(ctx context.Context, opts services.SessionOptions) (services.PageSession, func(), error) {
	lc := launcher.New().
		Headless(l.Config.Headless).
		NoSandbox(true).
		Leakless(false)
	if l.Config.ChromePath != "" {
		lc = lc.Bin(l.Config.ChromePath)
	}
	if opts.ProxyURL != "" {
		lc = lc.Proxy(opts.ProxyURL)
	}

	controlURL, err := lc.Launch()
	if err != nil {
		return nil, nil, fmt.Errorf("browser-start fehlgeschlagen: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		lc.Cleanup()
		return nil, nil, fmt.Errorf("browser-verbindung fehlgeschlagen: %w", err)
	}

	page, err := stealth.Page(b)
	if err != nil {
		_ = b.Close()
		lc.Cleanup()
		return nil, nil, fmt.Errorf("stealth-page fehlgeschlagen: %w", err)
	}

	s := &Session{
		cfg:    l.Config,
		logger: l.Logger,
		norm:   extract.NewNormalizer(l.Config.SiteBaseURL, l.Config.ProductPathTemplate),
		page:   page,
	}

	if opts.Lat != "" && opts.Lon != "" {
		s.overrideGeolocation(opts.Lat, opts.Lon)
	}
	s.attachListener()

	cleanup := func() {
		_ = b.Close()
		lc.Cleanup()
	}
	return s, cleanup, nil
}

// Session ist eine aktive Browser-Seite. Der Response-Puffer ist append-only;
// Leser sehen früh erfasste Responses während des gesamten Laufs.
type Session struct {
	cfg    *config.Config
	logger *zap.Logger
	norm   *extract.Normalizer
	page   *rod.Page

	mu        sync.Mutex
	responses []services.CapturedResponse
}

// attachListener hängt den passiven CDP-Listener an: jede JSON-parsebare
// Response wird gepuffert, alles andere wird stillschweigend übersprungen.
func (s *Session) attachListener() {
	go s.page.EachEvent(func(e *proto.NetworkResponseReceived) {
		mime := strings.ToLower(e.Response.MIMEType)
		if !strings.Contains(mime, "json") {
			return
		}
		body, err := proto.NetworkGetResponseBody{RequestID: e.RequestID}.Call(s.page)
		if err != nil || body.Body == "" {
			return
		}
		var payload any
		if err := json.Unmarshal([]byte(body.Body), &payload); err != nil {
			return
		}
		s.mu.Lock()
		s.responses = append(s.responses, services.CapturedResponse{URL: e.Response.URL, Body: payload})
		s.mu.Unlock()
	})()
}

// Navigate lädt die Seed-URL und wartet auf das Load-Event.
func (s *Session) Navigate(ctx context.Context, url string) error {
	page := s.page.Context(ctx).Timeout(time.Duration(s.cfg.NavTimeoutSec) * time.Second)
	if err := page.Navigate(url); err != nil {
		return err
	}
	return page.WaitLoad()
}

// ClientState liest den Runtime-State der Seite aus den üblichen globalen
// Variablen des Shops.
func (s *Session) ClientState(ctx context.Context) (any, error) {
	res, err := s.page.Context(ctx).Eval(`() => {
		const names = ["__INITIAL_STATE__", "__PRELOADED_STATE__", "__APP_STATE__", "__STORE_STATE__"];
		for (const n of names) {
			const v = window[n];
			if (v && typeof v === "object") return v;
		}
		if (window.__NEXT_DATA__ && window.__NEXT_DATA__.props) return window.__NEXT_DATA__.props;
		return null;
	}`)
	if err != nil {
		return nil, err
	}
	state := res.Value.Val()
	if state == nil {
		return nil, fmt.Errorf("kein client-state auf der seite gefunden")
	}
	return state, nil
}

// HydrationPayload extrahiert das eingebettete Server-Hydration-JSON aus den
// Script-Tags der Seite.
func (s *Session) HydrationPayload(ctx context.Context) (any, error) {
	res, err := s.page.Context(ctx).Eval(`() => {
		const next = document.getElementById("__NEXT_DATA__");
		if (next && next.textContent) return next.textContent;
		for (const el of document.querySelectorAll('script[type="application/json"]')) {
			if (el.textContent && el.textContent.length > 2) return el.textContent;
		}
		return "";
	}`)
	if err != nil {
		return nil, err
	}
	raw := res.Value.Str()
	if raw == "" {
		return nil, fmt.Errorf("kein hydration-payload auf der seite gefunden")
	}
	var payload any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("hydration-payload nicht parsebar: %w", err)
	}
	return payload, nil
}

// ScrollBottom scrollt ans Seitenende und liefert die neue Seitenhöhe.
func (s *Session) ScrollBottom(ctx context.Context) (services.PageMetrics, error) {
	res, err := s.page.Context(ctx).Eval(`() => {
		window.scrollTo(0, document.body.scrollHeight);
		return document.body.scrollHeight;
	}`)
	if err != nil {
		return services.PageMetrics{}, err
	}
	return services.PageMetrics{Height: res.Value.Num()}, nil
}

// Responses liest den akkumulierten Puffer (Kopie, nie geleert).
func (s *Session) Responses() []services.CapturedResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]services.CapturedResponse, len(s.responses))
	copy(cp, s.responses)
	return cp
}

// FetchJSON führt einen In-Page-Fetch aus, damit Cookies und Header der
// aktiven Session mitfahren.
func (s *Session) FetchJSON(ctx context.Context, url string) (any, error) {
	res, err := s.page.Context(ctx).Eval(`async (url) => {
		const resp = await fetch(url, { credentials: "include" });
		return await resp.text();
	}`, url)
	if err != nil {
		return nil, err
	}
	var payload any
	if err := json.Unmarshal([]byte(res.Value.Str()), &payload); err != nil {
		return nil, fmt.Errorf("probe-response nicht parsebar: %w", err)
	}
	return payload, nil
}

// HTML liefert das aktuell gerenderte Markup.
func (s *Session) HTML(ctx context.Context) (string, error) {
	return s.page.Context(ctx).HTML()
}

// DOMProducts ist der selektor-basierte Last-Resort-Pfad: grobe Karten-
// Erkennung im DOM, danach dieselbe Normalisierung wie für JSON-Kandidaten.
func (s *Session) DOMProducts(ctx context.Context) ([]extract.Product, error) {
	res, err := s.page.Context(ctx).Eval(`() => {
		const cards = document.querySelectorAll('a[href*="/prid/"], [data-test-id*="product"], [data-testid*="product"]');
		const out = [];
		for (const card of cards) {
			const name = card.querySelector('[class*="name" i], [class*="title" i]');
			const price = card.querySelector('[class*="price" i]');
			if (!name || !price) continue;
			const img = card.querySelector("img");
			out.push({
				name: name.textContent.trim(),
				price: price.textContent.trim(),
				image_url: img ? img.src : "",
				product_url: card.href || "",
			});
		}
		return out;
	}`)
	if err != nil {
		return nil, err
	}

	var raw []map[string]any
	data, err := json.Marshal(res.Value.Val())
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	var out []extract.Product
	for _, obj := range raw {
		if p, ok := s.norm.Normalize(obj); ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// overrideGeolocation setzt die Geolocation der Session (best-effort).
func (s *Session) overrideGeolocation(lat, lon string) {
	latF, err1 := strconv.ParseFloat(lat, 64)
	lonF, err2 := strconv.ParseFloat(lon, 64)
	if err1 != nil || err2 != nil {
		s.logger.Warn("Ungültige Geolocation, Override übersprungen",
			zap.String("lat", lat), zap.String("lon", lon))
		return
	}
	accuracy := float64(100)
	err := proto.EmulationSetGeolocationOverride{
		Latitude:  &latF,
		Longitude: &lonF,
		Accuracy:  &accuracy,
	}.Call(s.page)
	if err != nil {
		s.logger.Warn("Geolocation-Override fehlgeschlagen", zap.Error(err))
	}
}
