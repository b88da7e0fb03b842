package provider

import (
	"context"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/communehq/commune/internal/commune/domain"
)

const nominatimURL = "https://nominatim.openstreetmap.org/search"

// Geocoder guesses a home city from the free-form location string an
// external profile carries. Results are best effort, callers must treat
// an empty key as "unknown".
type Geocoder struct {
	client *resty.Client
}

func NewGeocoder() *Geocoder {
	return &Geocoder{
		client: resty.New().
			SetTimeout(5 * time.Second).
			SetHeader("User-Agent", "commune/1.0"),
	}
}

type nominatimResult struct {
	DisplayName string `json:"display_name"`
}

// GuessCity resolves location to one of the known city keys, or "" when
// no match is found. A direct substring match avoids the network call.
func (g *Geocoder) GuessCity(ctx context.Context, location string) string {
	if location == "" {
		return ""
	}

	lower := strings.ToLower(location)
	for _, c := range domain.Cities {
		if strings.Contains(lower, c.Key) || strings.Contains(lower, strings.ToLower(c.Name)) {
			return c.Key
		}
	}

	var results []nominatimResult
	resp, err := g.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":      location,
			"format": "json",
			"limit":  "1",
		}).
		SetResult(&results).
		Get(nominatimURL)
	if err != nil || resp.IsError() || len(results) == 0 {
		return ""
	}

	display := strings.ToLower(results[0].DisplayName)
	for _, c := range domain.Cities {
		if strings.Contains(display, strings.ToLower(c.Name)) {
			return c.Key
		}
	}
	return ""
}
