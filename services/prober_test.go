package services

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cart-hand/extract"
)

func newTestProber() *Prober {
	return &Prober{
		Scanner:     extract.NewScanner(extract.NewNormalizer("https://shop.example", "/prn/%s/prid/%s")),
		Logger:      zap.NewNop(),
		MaxRequests: 5,
		DefaultStep: 24,
		MinYield:    2,
	}
}

func queryOf(t *testing.T, raw string) url.Values {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u.Query()
}

func TestNextPageURLIncrementsPage(t *testing.T) {
	next, ok := newTestProber().NextPageURL("https://shop.example/api/search?q=milk&page=2")
	require.True(t, ok)
	q := queryOf(t, next)
	assert.Equal(t, "3", q.Get("page"))
	assert.Equal(t, "milk", q.Get("q"))
}

func TestNextPageURLPagePreferredOverOffset(t *testing.T) {
	next, ok := newTestProber().NextPageURL("https://shop.example/api/search?offset=40&page=2")
	require.True(t, ok)
	q := queryOf(t, next)
	assert.Equal(t, "3", q.Get("page"))
	assert.Equal(t, "40", q.Get("offset"))
}

func TestNextPageURLOffsetUsesLimitAsStep(t *testing.T) {
	next, ok := newTestProber().NextPageURL("https://shop.example/api/search?offset=0&limit=20")
	require.True(t, ok)
	assert.Equal(t, "20", queryOf(t, next).Get("offset"))
}

func TestNextPageURLOffsetFallsBackToDefaultStep(t *testing.T) {
	next, ok := newTestProber().NextPageURL("https://shop.example/api/search?offset=0")
	require.True(t, ok)
	assert.Equal(t, "24", queryOf(t, next).Get("offset"))
}

func TestNextPageURLWithoutParam(t *testing.T) {
	_, ok := newTestProber().NextPageURL("https://shop.example/api/search?q=milk")
	assert.False(t, ok)
}

func TestSelectBasePrefersListingWithParam(t *testing.T) {
	p := newTestProber()
	responses := []CapturedResponse{
		{URL: "https://shop.example/api/user/profile", Body: parsePayload(t, `{"user": {"name": "x"}}`)},
		{URL: "https://shop.example/api/recommendations", Body: productList(t, "A", "B")},
		{URL: "https://shop.example/api/search?q=milk&page=1", Body: productList(t, "C", "D")},
	}

	base, ok := p.SelectBase(responses)
	require.True(t, ok)
	assert.Equal(t, "https://shop.example/api/search?q=milk&page=1", base)
}

func TestSelectBaseSkipsLowYield(t *testing.T) {
	p := newTestProber()
	responses := []CapturedResponse{
		{URL: "https://shop.example/api/search?q=milk&page=1", Body: productList(t, "A")},
	}

	_, ok := p.SelectBase(responses)
	assert.False(t, ok)
}

func TestProbeStopsOnZeroProducts(t *testing.T) {
	session := &fakeSession{
		fetchFn: func(string) (any, error) {
			return parsePayload(t, `{"products": []}`), nil
		},
	}
	st := NewRunState(10)

	newTestProber().Probe(context.Background(), session, st, "https://shop.example/api/search?q=milk&page=1")

	assert.Len(t, session.fetchCalls, 1)
	assert.Equal(t, 0, st.Count())
}

func TestProbeStopsWhenNothingNewArrives(t *testing.T) {
	session := &fakeSession{
		fetchFn: func(string) (any, error) {
			return productList(t, "A", "B"), nil
		},
	}
	st := NewRunState(10)

	newTestProber().Probe(context.Background(), session, st, "https://shop.example/api/search?q=milk&page=1")

	// Seite 2 liefert neue Records, Seite 3 nur noch Duplikate.
	assert.Len(t, session.fetchCalls, 2)
	assert.Equal(t, 2, st.Count())
}

func TestProbeStopsAtMaxRequests(t *testing.T) {
	i := 0
	session := &fakeSession{
		fetchFn: func(string) (any, error) {
			i++
			return productList(t, "P"+string(rune('0'+i))), nil
		},
	}
	st := NewRunState(100)

	newTestProber().Probe(context.Background(), session, st, "https://shop.example/api/search?q=milk&page=1")

	assert.Len(t, session.fetchCalls, 5)
	assert.Equal(t, 5, st.Count())
}

func TestProbeStopsAtTarget(t *testing.T) {
	i := 0
	session := &fakeSession{
		fetchFn: func(string) (any, error) {
			i++
			return productList(t, "P"+string(rune('0'+i))), nil
		},
	}
	st := NewRunState(2)

	newTestProber().Probe(context.Background(), session, st, "https://shop.example/api/search?q=milk&page=1")

	assert.Len(t, session.fetchCalls, 2)
	assert.True(t, st.TargetMet())
}
