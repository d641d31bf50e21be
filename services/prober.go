package services

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"cart-hand/extract"
)

// Erkannte Pagination-Parameter in fester Präferenz-Reihenfolge; der erste
// in der Basis-URL vorhandene gewinnt (auch wenn mehrere gleichzeitig
// vorkommen).
var paginationParams = []string{"page", "offset", "from", "start", "skip"}

// Parameter, die eine bessere Schrittweite für offset-artige Inkremente
// liefern können.
var stepParams = []string{"limit", "size", "count"}

// Pfad-Hints für Listing-Endpoints.
var listingPathHints = []string{"search", "listing", "products", "catalog", "plp"}

// Prober konstruiert heuristisch "nächste Seite"-Requests gegen den einen
// Netzwerk-Endpoint, der am wahrscheinlichsten ein paginiertes Listing ist.
type Prober struct {
	Scanner *extract.Scanner
	Logger  *zap.Logger

	MaxRequests int
	DefaultStep int
	MinYield    int
}

// SelectBase wählt aus dem Response-Puffer die Basis-Response: roher
// Produkt-Yield über der Mindestschwelle, Bonus für einen erkannten
// Pagination-Parameter, Bonus für einen listing-artigen Pfad.
func (p *Prober) SelectBase(responses []CapturedResponse) (string, bool) {
	bestScore, bestURL := 0, ""
	for _, resp := range responses {
		yield := p.Scanner.RawYield(resp.Body)
		if yield < p.MinYield {
			continue
		}
		score := yield
		if param, _, ok := detectPaginationParam(resp.URL); ok && param != "" {
			score += 5
		}
		if hasListingPath(resp.URL) {
			score += 3
		}
		if score > bestScore {
			bestScore, bestURL = score, resp.URL
		}
	}
	return bestURL, bestURL != ""
}

// NextPageURL inkrementiert den erkannten Pagination-Parameter der URL.
// Ohne erkennbaren Parameter ist Probing unmöglich (false). page-artige
// Parameter zählen um 1 hoch; offset-artige um limit/size/count, sonst um
// die Default-Schrittweite.
func (p *Prober) NextPageURL(raw string) (string, bool) {
	param, u, ok := detectPaginationParam(raw)
	if !ok {
		return "", false
	}

	q := u.Query()
	current, _ := strconv.Atoi(q.Get(param))

	step := 1
	if param != "page" {
		step = p.DefaultStep
		for _, sp := range stepParams {
			if v := q.Get(sp); v != "" {
				if n, err := strconv.Atoi(v); err == nil && n > 0 {
					step = n
					break
				}
			}
		}
	}

	q.Set(param, strconv.Itoa(current+step))
	u.RawQuery = q.Encode()
	return u.String(), true
}

// Probe feuert Folge-Requests mit den Credentials der Session ab, bis das
// Ziel erreicht ist, die maximale Probe-Zahl erreicht ist, eine Probe null
// Produkte liefert oder null neue Unique-Records hinzukommen. Jede
// No-Progress-Bedingung stoppt das Probing endgültig für diesen Lauf.
func (p *Prober) Probe(ctx context.Context, session PageSession, st *RunState, baseURL string) {
	log := p.Logger.With(zap.String("base_url", baseURL))
	current := baseURL

	for i := 0; i < p.MaxRequests && !st.TargetMet(); i++ {
		next, ok := p.NextPageURL(current)
		if !ok {
			log.Debug("Kein Pagination-Parameter in der Basis-URL, Probing unmöglich")
			return
		}

		body, err := session.FetchJSON(ctx, next)
		if err != nil {
			log.Warn("Probe-Request fehlgeschlagen, Probing beendet", zap.Error(err))
			return
		}

		batch := p.Scanner.Products(body)
		if len(batch) == 0 {
			log.Debug("Probe lieferte null Produkte, Probing beendet", zap.String("url", next))
			return
		}
		if st.Add(batch, SourcePagination) == 0 {
			log.Debug("Probe lieferte keine neuen Unique-Records, Probing beendet", zap.String("url", next))
			return
		}
		current = next
	}
}

func detectPaginationParam(raw string) (string, *url.URL, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", nil, false
	}
	q := u.Query()
	for _, param := range paginationParams {
		if q.Has(param) {
			return param, u, true
		}
	}
	return "", nil, false
}

func hasListingPath(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	path := strings.ToLower(u.Path)
	for _, hint := range listingPathHints {
		if strings.Contains(path, hint) {
			return true
		}
	}
	return false
}
