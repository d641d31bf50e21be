package services

import (
	"context"

	"cart-hand/extract"
)

// CapturedResponse ist eine passiv mitgeschnittene JSON-Network-Response.
// Nicht-JSON-Bodies werden schon beim Capture verworfen.
type CapturedResponse struct {
	URL  string
	Body any
}

// PageMetrics sind die Beobachtungen nach einem Scroll-Inkrement.
type PageMetrics struct {
	Height float64
}

// PageSession ist die Schnittstelle zum ausgelagerten Browser-Kollaborateur.
// Alle Stufen des Waterfalls laufen strikt sequenziell über genau eine
// Session; nur der Response-Listener schreibt nebenläufig (append-only) in
// den Puffer, den Responses() liest, aber nie leert.
type PageSession interface {
	// Navigate lädt die Seed-URL mit dem konfigurierten Timeout.
	Navigate(ctx context.Context, url string) error
	// ClientState liest den Client-Runtime-State aus der Seite.
	ClientState(ctx context.Context) (any, error)
	// HydrationPayload liefert das eingebettete Server-Hydration-JSON.
	HydrationPayload(ctx context.Context) (any, error)
	// ScrollBottom scrollt ans Seitenende und meldet die neuen Metriken.
	ScrollBottom(ctx context.Context) (PageMetrics, error)
	// Responses liest den akkumulierten Response-Puffer (liest, leert nie).
	Responses() []CapturedResponse
	// FetchJSON führt einen Fetch mit den Credentials der Session aus.
	FetchJSON(ctx context.Context, url string) (any, error)
	// HTML liefert das gerenderte Markup (Diagnose-Snapshot, DOM-Fallback).
	HTML(ctx context.Context) (string, error)
	// DOMProducts ist der selektor-basierte Last-Resort-Pfad.
	DOMProducts(ctx context.Context) ([]extract.Product, error)
}

// SessionOptions parametrisieren eine neue Browser-Session.
type SessionOptions struct {
	ProxyURL string
	Lat      string
	Lon      string
}

// SessionFactory erstellt Sessions; die Rückgabe-Funktion räumt die Session auf.
type SessionFactory interface {
	NewSession(ctx context.Context, opts SessionOptions) (PageSession, func(), error)
}
