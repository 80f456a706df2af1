package discovery

import (
	"context"
	"errors"

	"go-scooterscan/geoquery"
	"go-scooterscan/types"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// Expander re-queries a shrinking box around large aggregates until the
// upstream resolves them into individuals or the zoom ceiling is reached.
type Expander struct {
	Querier geoquery.Querier

	// SizeThreshold is the member count at which a sub-aggregate is
	// expanded again rather than accepted.
	SizeThreshold int
	// ShrinkRadius is the half-width in degrees of the first shrink box.
	// Each deeper level halves it.
	ShrinkRadius float64
	ZoomStep     float64
	MaxZoom      float64

	Logger log.Logger
}

// Expand resolves agg, observed at zoom, into the records that replace it.
// Failures other than expired credentials or cancellation fall back to the
// aggregate itself. On fatal errors the records gathered so far are
// returned with the error.
func (e *Expander) Expand(ctx context.Context, agg types.Record, zoom float64) ([]types.Record, error) {
	if agg.Kind != types.Aggregate || agg.MemberCount < e.SizeThreshold {
		return []types.Record{agg}, nil
	}
	return e.expand(ctx, agg, zoom, e.ShrinkRadius, 0)
}

func (e *Expander) expand(ctx context.Context, agg types.Record, zoom, radius float64, depth int) ([]types.Record, error) {
	next := zoom + e.step()
	if next > e.MaxZoom || !(radius > 0) {
		return []types.Record{agg}, nil
	}

	region := ShrinkRegion(agg, radius, next)
	res, err := e.Querier.Query(ctx, region)
	if err != nil {
		if errors.Is(err, geoquery.ErrAuthExpired) || ctx.Err() != nil {
			return nil, err
		}
		level.Warn(e.logger()).Log("msg", "expansion failed, keeping aggregate", "id", agg.ID, "members", agg.MemberCount, "zoom", next, "err", err)
		return []types.Record{agg}, nil
	}
	if len(res.Records) == 0 {
		level.Debug(e.logger()).Log("msg", "expansion returned nothing, keeping aggregate", "id", agg.ID, "zoom", next)
		return []types.Record{agg}, nil
	}

	level.Debug(e.logger()).Log("msg", "expanded aggregate", "id", agg.ID, "members", agg.MemberCount, "zoom", next, "depth", depth, "records", len(res.Records))

	out := make([]types.Record, 0, len(res.Records))
	for _, rec := range res.Records {
		if rec.Kind == types.Aggregate && rec.MemberCount >= e.SizeThreshold {
			sub, err := e.expand(ctx, rec, next, radius/2, depth+1)
			out = append(out, sub...)
			if err != nil {
				return out, err
			}
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// ShrinkRegion is the box queried to expand agg one level past zoom.
func ShrinkRegion(agg types.Record, radius, zoom float64) types.Region {
	return types.ShrinkAround(agg.Point, radius, zoom)
}

func (e *Expander) step() float64 {
	if e.ZoomStep > 0 {
		return e.ZoomStep
	}
	return 1
}

func (e *Expander) logger() log.Logger {
	if e.Logger == nil {
		return log.NewNopLogger()
	}
	return e.Logger
}
