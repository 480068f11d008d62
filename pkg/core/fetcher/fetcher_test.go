package fetcher

import (
	"context"
	"testing"
)

func TestFallbackAdapter_ServesBundledSeries(t *testing.T) {
	a := NewFallbackAdapter()
	if !a.CanHandle("sdl:fallback/gdp_growth_it") {
		t.Fatal("expected fallback adapter to handle sdl:fallback scheme")
	}
	points, err := a.Fetch(context.Background(), AdapterConfig{SourceURL: "sdl:fallback/gdp_growth_it"})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(points) != 10 {
		t.Fatalf("expected 10 bundled points, got %d", len(points))
	}
	if points[0].Source != "fallback:gdp_growth_it" {
		t.Errorf("unexpected source tag: %q", points[0].Source)
	}
}

func TestFallbackAdapter_MatchesEurostatURLPattern(t *testing.T) {
	a := NewFallbackAdapter()
	url := "https://ec.europa.eu/eurostat/api/dissemination/statistics/1.0/data/nama_10_gdp?geo=IT"
	if !a.CanHandle(url) {
		t.Fatal("expected fallback adapter to recognize a bundled eurostat dataset pattern")
	}
	points, err := a.Fetch(context.Background(), AdapterConfig{SourceURL: url})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(points) == 0 {
		t.Fatal("expected bundled points for recognized eurostat dataset")
	}
}

func TestEurostatAdapter_CanHandle(t *testing.T) {
	a := NewEurostatAdapter()
	if !a.CanHandle("https://ec.europa.eu/eurostat/databrowser/view/nrg_bal_s") {
		t.Error("expected eurostat adapter to claim a ec.europa.eu/eurostat URL")
	}
	if a.CanHandle("https://api.worldbank.org/v2/country/ITA/indicator/NY.GDP.MKTP.CD") {
		t.Error("eurostat adapter should not claim a worldbank URL")
	}
}

func TestWorldBankAdapter_CanHandle(t *testing.T) {
	a := NewWorldBankAdapter()
	if !a.CanHandle("https://api.worldbank.org/v2/country/ITA/indicator/NY.GDP.MKTP.CD") {
		t.Error("expected worldbank adapter to claim a worldbank.org URL")
	}
	if a.CanHandle("https://ec.europa.eu/eurostat/x") {
		t.Error("worldbank adapter should not claim a eurostat URL")
	}
}

func TestRegistry_FallsThroughOnEmptyResult(t *testing.T) {
	empty := stubAdapter{name: "empty", handles: true, points: nil}
	fallback := NewFallbackAdapter()
	reg := NewRegistry(empty, fallback)

	res := reg.Fetch(context.Background(), AdapterConfig{
		SourceURL: "sdl:fallback/population_it",
		TargetID:  "pop",
	})
	if res.Err != nil {
		t.Fatalf("expected fallthrough to fallback adapter to succeed, got %v", res.Err)
	}
	if res.Adapter != "fallback" {
		t.Errorf("expected fallback adapter to serve the target, got %q", res.Adapter)
	}
}

func TestRegistry_RecordsErrorWhenNoAdapterMatches(t *testing.T) {
	reg := NewRegistry(NewEurostatAdapter(), NewWorldBankAdapter())
	res := reg.Fetch(context.Background(), AdapterConfig{SourceURL: "https://example.com/unknown"})
	if res.Err == nil {
		t.Fatal("expected an error when no adapter can handle the URL")
	}
}

type stubAdapter struct {
	name    string
	handles bool
	points  []ObservedPoint
}

func (s stubAdapter) Name() string             { return s.name }
func (s stubAdapter) CanHandle(_ string) bool  { return s.handles }
func (s stubAdapter) Fetch(_ context.Context, _ AdapterConfig) ([]ObservedPoint, error) {
	return s.points, nil
}
