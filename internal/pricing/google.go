package pricing

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"

	"github.com/example/ride-negotiation/internal/models"
)

const googleDistanceMatrixURL = "https://maps.googleapis.com/maps/api/distancematrix/json"

// GoogleRouter uses the Distance Matrix API for a single element.
type GoogleRouter struct {
	Endpoint string
	APIKey   string
	Client   *http.Client
}

func NewGoogleRouter(apiKey string) *GoogleRouter {
	return &GoogleRouter{Endpoint: googleDistanceMatrixURL, APIKey: apiKey, Client: &http.Client{Timeout: 2 * time.Second}}
}

func (g *GoogleRouter) Route(ctx context.Context, from, to models.Coord) (Route, error) {
	q := url.Values{}
	q.Set("origins", fmt.Sprintf("%.6f,%.6f", from.Lat, from.Lon))
	q.Set("destinations", fmt.Sprintf("%.6f,%.6f", to.Lat, to.Lon))
	q.Set("mode", "driving")
	q.Set("key", g.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.Endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return Route{}, err
	}
	resp, err := g.Client.Do(req)
	if err != nil {
		return Route{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Route{}, fmt.Errorf("distance matrix status %d", resp.StatusCode)
	}
	var out struct {
		Status string `json:"status"`
		Rows   []struct {
			Elements []struct {
				Status   string `json:"status"`
				Distance struct {
					Value float64 `json:"value"`
				} `json:"distance"`
				Duration struct {
					Value float64 `json:"value"`
				} `json:"duration"`
			} `json:"elements"`
		} `json:"rows"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Route{}, err
	}
	if out.Status != "OK" || len(out.Rows) == 0 || len(out.Rows[0].Elements) == 0 {
		return Route{}, fmt.Errorf("distance matrix: %s", out.Status)
	}
	el := out.Rows[0].Elements[0]
	if el.Status != "OK" {
		return Route{}, fmt.Errorf("distance matrix element: %s", el.Status)
	}
	return Route{DistanceKm: el.Distance.Value / 1000, DurationSeconds: el.Duration.Value}, nil
}
