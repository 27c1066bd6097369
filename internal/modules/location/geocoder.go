// README: Zip geocoding through the Google Maps Geocoding API with the static table as fallback.
package location

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"googlemaps.github.io/maps"

	"potluck/internal/logger"
	"potluck/internal/types"
)

// Geocoder resolves a postal code to a centroid. ok=false means the zip is unknown.
type Geocoder interface {
	GeocodeZip(ctx context.Context, zip string) (place Place, ok bool, err error)
}

type MapsGeocoder struct {
	client *maps.Client
}

func NewMapsGeocoder(apiKey string) (*MapsGeocoder, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &MapsGeocoder{client: client}, nil
}

func (g *MapsGeocoder) GeocodeZip(ctx context.Context, zip string) (Place, bool, error) {
	resp, err := g.client.Geocode(ctx, &maps.GeocodingRequest{
		Components: map[maps.Component]string{maps.ComponentPostalCode: NormalizeZip(zip)},
	})
	if err != nil {
		return Place{}, false, fmt.Errorf("geocoding api error: %w", err)
	}
	if len(resp) == 0 {
		return Place{}, false, nil
	}
	r := resp[0]
	place := Place{Centre: types.Point{Lat: r.Geometry.Location.Lat, Lng: r.Geometry.Location.Lng}}
	for _, c := range r.AddressComponents {
		for _, t := range c.Types {
			switch t {
			case "locality":
				place.City = c.LongName
			case "administrative_area_level_1":
				place.State = c.ShortName
			}
		}
	}
	return place, true, nil
}

// FallbackGeocoder tries each geocoder in order. Errors are logged and the next one is tried.
type FallbackGeocoder struct {
	chain []Geocoder
	log   *zap.Logger
}

func NewFallbackGeocoder(log *zap.Logger, chain ...Geocoder) *FallbackGeocoder {
	log = logger.OrNop(log)
	return &FallbackGeocoder{chain: chain, log: log.Named("location.geocoder")}
}

func (g *FallbackGeocoder) GeocodeZip(ctx context.Context, zip string) (Place, bool, error) {
	for _, gc := range g.chain {
		place, ok, err := gc.GeocodeZip(ctx, zip)
		if err != nil {
			g.log.Warn("geocoder failed, trying next", zap.String("zip", zip), zap.Error(err))
			continue
		}
		if ok {
			return place, true, nil
		}
	}
	return Place{}, false, nil
}
