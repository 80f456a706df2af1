package processor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go-scooterscan/geocode"
	"go-scooterscan/types"
)

// Target is a named region to discover.
type Target struct {
	ID     string       `json:"id"`
	Region types.Region `json:"region"`
}

// PlaceResolver turns a free-form place name into a region.
type PlaceResolver interface {
	ResolvePlace(ctx context.Context, name string) (types.Region, error)
}

// ResolveTarget understands three forms: "minLon,minLat,maxLon,maxLat"
// (named custom_<unix time>), "place:<name>" (geocoded), and anything else
// as a feature id in the cities file.
func ResolveTarget(ctx context.Context, raw, citiesFile string, places PlaceResolver) (Target, error) {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return Target{}, fmt.Errorf("empty target")
	case strings.Count(raw, ",") == 3:
		b, err := types.ParseBBox(raw)
		if err != nil {
			return Target{}, err
		}
		region, err := types.NewRegion(b, 0)
		if err != nil {
			return Target{}, err
		}
		return Target{ID: fmt.Sprintf("custom_%d", time.Now().Unix()), Region: region}, nil
	case strings.HasPrefix(raw, "place:"):
		if places == nil {
			return Target{}, fmt.Errorf("target %q needs geocoding, which is not configured", raw)
		}
		name := strings.TrimSpace(strings.TrimPrefix(raw, "place:"))
		region, err := places.ResolvePlace(ctx, name)
		if err != nil {
			return Target{}, err
		}
		return Target{ID: slug(name), Region: region}, nil
	default:
		region, err := geocode.LoadCity(citiesFile, raw)
		if err != nil {
			return Target{}, err
		}
		return Target{ID: raw, Region: region}, nil
	}
}

func slug(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r > 127:
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return strings.Trim(b.String(), "_")
}
