package maps

import (
	"context"
	"fmt"
	"time"

	"googlemaps.github.io/maps"
)

// ETAService wraps the Google Maps Directions API for courier travel estimates.
type ETAService struct {
	client *maps.Client
}

// NewETAService creates an ETAService with the given API key.
func NewETAService(apiKey string) (*ETAService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &ETAService{client: client}, nil
}

// Estimate returns the driving duration and human-readable distance from
// origin to destination.
func (s *ETAService) Estimate(ctx context.Context, origin, destination string) (time.Duration, string, error) {
	r := &maps.DirectionsRequest{
		Origin:      origin,
		Destination: destination,
		Mode:        maps.TravelModeDriving,
	}

	routes, _, err := s.client.Directions(ctx, r)
	if err != nil {
		return 0, "", fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return 0, "", fmt.Errorf("no route found")
	}

	leg := routes[0].Legs[0]
	return leg.Duration, leg.Distance.HumanReadable, nil
}
