package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"cart-hand/extract"
)

// Quell-Labels der einzelnen Waterfall-Stufen.
const (
	SourceClientState = "client_state"
	SourceHydration   = "hydration"
	SourceNetwork     = "network"
	SourcePagination  = "pagination"
	SourceDOM         = "dom"
)

// Collected ist ein emittierter Datensatz samt Quell-Label seiner Stufe.
type Collected struct {
	Product extract.Product
	Source  string
}

// RunState ist der einzige veränderliche Zustand eines Laufs: das globale
// Dedup-Set und der laufende Zähler. Er gehört dem Aggregator und wird
// ausschließlich aus dem sequenziellen Kontrollfluss mutiert; mehrere
// unabhängige Läufe können deshalb im selben Prozess koexistieren.
type RunState struct {
	Target int
	Items  []Collected
	seen   map[string]struct{}
}

// NewRunState erstellt den Lauf-Zustand für eine Zielanzahl (0 = unbegrenzt).
func NewRunState(target int) *RunState {
	return &RunState{
		Target: target,
		seen:   make(map[string]struct{}),
	}
}

// Add dedupliziert einen Quell-Batch gegen sich selbst und das globale Set,
// prüft die Emissions-Invariante erneut und zählt höchstens bis zum Ziel.
// Rückgabe ist die Zahl der neuen Unique-Records.
func (st *RunState) Add(batch []extract.Product, source string) int {
	added := 0
	for _, p := range batch {
		if st.TargetMet() {
			break
		}
		if p.Name == "" || (p.Price == nil && p.OriginalPrice == nil) {
			continue
		}
		key := p.DedupKey()
		if _, dup := st.seen[key]; dup {
			continue
		}
		st.seen[key] = struct{}{}
		st.Items = append(st.Items, Collected{Product: p, Source: source})
		added++
	}
	return added
}

// Count liefert die Gesamtzahl emittierter Datensätze.
func (st *RunState) Count() int {
	return len(st.Items)
}

// TargetMet meldet, ob ein endliches Ziel erreicht ist.
func (st *RunState) TargetMet() bool {
	return st.Target > 0 && len(st.Items) >= st.Target
}

// Satisfied ist die Abbruchbedingung des Waterfalls: endliches Ziel erreicht,
// oder bei unbegrenztem Ziel die erste Stufe mit mindestens einem
// Unique-Record ("nimm alles, was eine erfolgreiche Quelle hergibt" — nicht
// "merge alle Quellen").
func (st *RunState) Satisfied() bool {
	if st.Target == 0 {
		return len(st.Items) > 0
	}
	return st.TargetMet()
}

// Aggregator treibt einen Seiten-Lauf durch die Prioritäts-Stufen:
// Client-State, Hydration-Payload, Nachlade-Schleife mit Response-Puffer,
// finaler Re-Check, Pagination-Probing, DOM-Fallback. Jede Stufe wird nur
// versucht, solange das Ziel unerreicht ist; Stufen-Fehler werden lokal
// gefangen und als leere Stufe behandelt.
type Aggregator struct {
	Scanner *extract.Scanner
	Prober  *Prober
	Logger  *zap.Logger

	ScrollMaxRounds    int
	ScrollStableRounds int
	ScrollSettle       time.Duration
}

// Collect führt den gesamten Waterfall für eine Seite aus.
func (a *Aggregator) Collect(ctx context.Context, session PageSession, target int) *RunState {
	st := NewRunState(target)
	log := a.Logger.With(zap.Int("target", target))

	type stage struct {
		name string
		run  func()
	}
	stages := []stage{
		{SourceClientState, func() { a.collectClientState(ctx, session, st) }},
		{SourceHydration, func() { a.collectHydration(ctx, session, st) }},
		{"scroll", func() { a.scrollAndCollect(ctx, session, st) }},
		{"final_recheck", func() { a.finalRecheck(ctx, session, st) }},
		{SourcePagination, func() { a.probe(ctx, session, st) }},
		{SourceDOM, func() { a.domFallback(ctx, session, st) }},
	}

	for _, s := range stages {
		if st.Satisfied() {
			log.Info("Ziel erreicht, Waterfall beendet", zap.Int("products", st.Count()))
			return st
		}
		before := st.Count()
		s.run()
		log.Debug("Stufe abgeschlossen",
			zap.String("stage", s.name),
			zap.Int("new_unique", st.Count()-before),
			zap.Int("total", st.Count()))
	}

	if st.Count() == 0 {
		log.Warn("Alle Stufen erschöpft, keine Produkte gefunden")
	}
	return st
}

// Stufe 1: Client-Runtime-State, nur wenn ein erkennbarer Produkt-Container
// vorhanden ist.
func (a *Aggregator) collectClientState(ctx context.Context, session PageSession, st *RunState) {
	state, err := session.ClientState(ctx)
	if err != nil {
		a.Logger.Warn("Client-State nicht lesbar, Stufe leer", zap.Error(err))
		return
	}
	if !a.Scanner.HasProductContainer(state) {
		return
	}
	st.Add(a.Scanner.Products(state), SourceClientState)
}

// Stufe 2: eingebettetes Server-Hydration-Payload, kompletter Baum-Scan.
func (a *Aggregator) collectHydration(ctx context.Context, session PageSession, st *RunState) {
	payload, err := session.HydrationPayload(ctx)
	if err != nil {
		a.Logger.Warn("Hydration-Payload nicht lesbar, Stufe leer", zap.Error(err))
		return
	}
	st.Add(a.Scanner.Products(payload), SourceHydration)
}

// Stufe 3: wiederholtes Scroll-to-Bottom, während der Listener Responses
// puffert. Nach jedem Inkrement werden Snapshot und Puffer erneut geprüft.
// Abbruch bei erreichtem endlichen Ziel, maximaler Rundenzahl oder wenn
// Seitenhöhe, Snapshot-Produktzahl und Distinct-Response-Zahl über die
// konfigurierte Rundenzahl hinweg nicht mehr wachsen (Stabilitätsregel).
// Ein unbegrenztes Ziel bricht die Stufe nie vorzeitig ab: sie läuft bis zur
// Stabilität und nimmt alles mit, was sie bis dahin akkumuliert.
func (a *Aggregator) scrollAndCollect(ctx context.Context, session PageSession, st *RunState) {
	var lastHeight float64 = -1
	lastSnapshot, lastResponses := -1, -1
	stable := 0

	for round := 0; round < a.ScrollMaxRounds && !st.TargetMet(); round++ {
		metrics, err := session.ScrollBottom(ctx)
		if err != nil {
			a.Logger.Warn("Scroll fehlgeschlagen, Nachlade-Schleife beendet", zap.Error(err))
			return
		}

		select {
		case <-time.After(a.ScrollSettle):
		case <-ctx.Done():
			return
		}

		snapshotYield := a.recheckClientState(ctx, session, st)
		a.drainBuffer(session, st)
		responseCount := len(session.Responses())

		grew := metrics.Height > lastHeight ||
			snapshotYield > lastSnapshot ||
			responseCount > lastResponses
		if grew {
			stable = 0
		} else {
			stable++
			if stable >= a.ScrollStableRounds {
				return
			}
		}
		lastHeight = metrics.Height
		lastSnapshot = snapshotYield
		lastResponses = responseCount
	}
}

// Stufe 4: finaler Re-Check von State-Snapshot und akkumuliertem Puffer,
// nachdem das Nachladen gestoppt hat.
func (a *Aggregator) finalRecheck(ctx context.Context, session PageSession, st *RunState) {
	a.recheckClientState(ctx, session, st)
	a.drainBuffer(session, st)
}

// Stufe 5: Pagination-Probing gegen die wahrscheinlichste Listing-Response,
// nur bei endlichem, unerreichtem Ziel.
func (a *Aggregator) probe(ctx context.Context, session PageSession, st *RunState) {
	if st.Target == 0 || st.TargetMet() {
		return
	}
	base, ok := a.Prober.SelectBase(session.Responses())
	if !ok {
		return
	}
	a.Prober.Probe(ctx, session, st, base)
}

// Stufe 6: selektor-basierter DOM-Fallback, nur wenn keine strukturierte
// Quelle irgendetwas geliefert hat.
func (a *Aggregator) domFallback(ctx context.Context, session PageSession, st *RunState) {
	if st.Count() > 0 {
		return
	}
	batch, err := session.DOMProducts(ctx)
	if err != nil {
		a.Logger.Warn("DOM-Fallback fehlgeschlagen", zap.Error(err))
		return
	}
	st.Add(batch, SourceDOM)
}

// recheckClientState extrahiert erneut aus dem State-Snapshot und liefert
// dessen rohe Produktzahl (Wachstumsmetrik der Stabilitätsregel).
func (a *Aggregator) recheckClientState(ctx context.Context, session PageSession, st *RunState) int {
	state, err := session.ClientState(ctx)
	if err != nil {
		return 0
	}
	batch := a.Scanner.Products(state)
	st.Add(batch, SourceClientState)
	return len(batch)
}

// drainBuffer liest den gesamten akkumulierten Puffer (non-destruktiv) und
// dedupliziert jede Response in den Lauf-Zustand. Die Abbruchbedingung eines
// unbegrenzten Ziels greift erst zwischen den Stufen, nie mitten im Puffer:
// eine erfolgreiche Stufe wird vollständig geleert.
func (a *Aggregator) drainBuffer(session PageSession, st *RunState) {
	for _, resp := range session.Responses() {
		if st.TargetMet() {
			return
		}
		st.Add(a.Scanner.Products(resp.Body), SourceNetwork)
	}
}
