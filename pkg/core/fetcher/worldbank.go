package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
)

// worldBankIndicatorRe extracts "indicator/<code>" from a bind URL.
var worldBankIndicatorRe = regexp.MustCompile(`indicator/([A-Za-z0-9.]+)`)

// WorldBankAdapter fetches a single indicator/country series from the
// World Bank v2 API.
type WorldBankAdapter struct {
	Client *http.Client
}

func NewWorldBankAdapter() *WorldBankAdapter {
	return &WorldBankAdapter{Client: &http.Client{}}
}

func (a *WorldBankAdapter) Name() string { return "worldbank" }

func (a *WorldBankAdapter) CanHandle(url string) bool {
	return strings.Contains(url, "worldbank.org")
}

func (a *WorldBankAdapter) Fetch(ctx context.Context, cfg AdapterConfig) ([]ObservedPoint, error) {
	m := worldBankIndicatorRe.FindStringSubmatch(cfg.SourceURL)
	if m == nil {
		return nil, fmt.Errorf("could not extract indicator code from %q", cfg.SourceURL)
	}
	indicator := m[1]
	country := "ITA"

	endpoint := fmt.Sprintf(
		"https://api.worldbank.org/v2/country/%s/indicator/%s?format=json&date=2000:2025",
		country, indicator,
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	// The World Bank API has been known to emit trailing commas and
	// stray control characters on error pages; repair before decoding
	// rather than failing the whole target outright.
	repaired, err := jsonrepair.RepairJSON(string(body))
	if err != nil {
		repaired = string(body)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(repaired), &raw); err != nil {
		return nil, fmt.Errorf("decoding world bank response: %w", err)
	}
	if len(raw) < 2 {
		return nil, fmt.Errorf("unexpected world bank response shape")
	}

	var entries []worldBankEntry
	if err := json.Unmarshal(raw[1], &entries); err != nil {
		return nil, fmt.Errorf("decoding world bank series: %w", err)
	}

	var points []ObservedPoint
	for _, e := range entries {
		if e.Value == nil {
			continue
		}
		year, err := strconv.Atoi(e.Date)
		if err != nil {
			continue
		}
		points = append(points, ObservedPoint{
			Date:   time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
			Value:  *e.Value,
			Source: "worldbank:" + indicator,
		})
	}
	return points, nil
}

type worldBankEntry struct {
	Date  string   `json:"date"`
	Value *float64 `json:"value"`
}
