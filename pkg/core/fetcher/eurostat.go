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
)

// datasetCodeRe extracts a Eurostat dataset code from a bind URL, e.g.
// ".../eurostat/api/dissemination/statistics/1.0/data/nrg_bal_s?..." -> nrg_bal_s.
var datasetCodeRe = regexp.MustCompile(`/(?:data|datasets)/([a-zA-Z0-9_]+)`)

// eurostatDatasetParams hard-codes the age/sex/freq/indicator selectors
// each bundled dataset code requires, per spec.md §4.7.
var eurostatDatasetParams = map[string]map[string]string{
	"nrg_bal_s":  {"freq": "A", "nrg_bal": "PPRD", "siec": "TOTAL", "unit": "KTOE"},
	"nama_10_gdp": {"freq": "A", "unit": "CP_MEUR", "na_item": "B1GQ"},
	"demo_pjan":  {"freq": "A", "sex": "T", "age": "TOTAL"},
}

// EurostatAdapter fetches a single series from the Eurostat JSON-stat API.
type EurostatAdapter struct {
	Client *http.Client
}

func NewEurostatAdapter() *EurostatAdapter {
	return &EurostatAdapter{Client: &http.Client{}}
}

func (a *EurostatAdapter) Name() string { return "eurostat" }

func (a *EurostatAdapter) CanHandle(url string) bool {
	return strings.Contains(url, "ec.europa.eu/eurostat") || strings.Contains(strings.ToLower(url), "eurostat")
}

func (a *EurostatAdapter) Fetch(ctx context.Context, cfg AdapterConfig) ([]ObservedPoint, error) {
	m := datasetCodeRe.FindStringSubmatch(cfg.SourceURL)
	if m == nil {
		return nil, fmt.Errorf("could not extract dataset code from %q", cfg.SourceURL)
	}
	dataset := m[1]
	params := eurostatDatasetParams[dataset]
	geo := "IT"

	endpoint := fmt.Sprintf(
		"https://ec.europa.eu/eurostat/api/dissemination/statistics/1.0/data/%s?format=JSON&geo=%s",
		dataset, geo,
	)
	for k, v := range params {
		endpoint += "&" + k + "=" + v
	}

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

	var stat jsonStatDoc
	if err := json.Unmarshal(body, &stat); err != nil {
		return nil, fmt.Errorf("decoding eurostat json-stat response: %w", err)
	}

	points := stat.toObservedPoints("eurostat:" + dataset)
	if strings.Contains(strings.ToLower(cfg.Field), "mtoe") {
		for i := range points {
			points[i].Value = ktoeToMtoe(points[i].Value)
		}
	}
	return points, nil
}

func ktoeToMtoe(ktoe float64) float64 { return ktoe / 1000 }

// jsonStatDoc is the minimal subset of the JSON-stat 2.0 shape the bundled
// adapters rely on: a flat value map keyed by dimension-index offset, and
// a time dimension whose category.index maps year labels to offsets.
type jsonStatDoc struct {
	Value     map[string]float64 `json:"value"`
	Dimension struct {
		Time struct {
			Category struct {
				Index map[string]int `json:"index"`
			} `json:"category"`
		} `json:"time"`
	} `json:"dimension"`
}

func (d jsonStatDoc) toObservedPoints(source string) []ObservedPoint {
	var points []ObservedPoint
	for label, idx := range d.Dimension.Time.Category.Index {
		v, ok := d.Value[strconv.Itoa(idx)]
		if !ok {
			continue
		}
		year, err := strconv.Atoi(label)
		if err != nil {
			continue
		}
		points = append(points, ObservedPoint{
			Date:   time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
			Value:  v,
			Source: source,
		})
	}
	return points
}
