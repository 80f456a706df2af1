package export

import (
	"sort"
	"time"

	"go-scooterscan/types"

	"github.com/paulmach/orb/geojson"
)

// Meta describes where a collection came from.
type Meta struct {
	TargetID    string
	Source      string
	RunID       string
	GeneratedAt time.Time
}

// Stats summarises the records in a collection.
type Stats struct {
	Scooters        int `json:"scooters"`
	Clusters        int `json:"clusters"`
	EmptyClusters   int `json:"empty_clusters"`
	ClusterScooters int `json:"cluster_scooters"`
	TotalObjects    int `json:"total_objects"`
	TotalScooters   int `json:"total_scooters"`
}

func Summarize(records map[string]types.Record) Stats {
	var s Stats
	for _, r := range records {
		switch r.Kind {
		case types.Individual:
			s.Scooters++
		case types.Aggregate:
			s.Clusters++
			s.ClusterScooters += r.MemberCount
		case types.EmptyAggregate:
			s.EmptyClusters++
		}
	}
	s.TotalObjects = len(records)
	s.TotalScooters = s.Scooters + s.ClusterScooters
	return s
}

// FeatureCollection renders one Point feature per record, ordered by id,
// with the run metadata and stats as a top level "metadata" member.
func FeatureCollection(records map[string]types.Record, meta Meta) *geojson.FeatureCollection {
	ids := make([]string, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	fc := geojson.NewFeatureCollection()
	for _, id := range ids {
		fc.Append(Feature(records[id], meta.TargetID))
	}

	if meta.GeneratedAt.IsZero() {
		meta.GeneratedAt = time.Now()
	}
	stats := Summarize(records)
	metadata := map[string]any{
		"city_id":          meta.TargetID,
		"generated_at":     meta.GeneratedAt.Format(time.RFC3339),
		"source":           meta.Source,
		"total_objects":    stats.TotalObjects,
		"scooters":         stats.Scooters,
		"clusters":         stats.Clusters,
		"empty_clusters":   stats.EmptyClusters,
		"cluster_scooters": stats.ClusterScooters,
		"total_scooters":   stats.TotalScooters,
	}
	if meta.RunID != "" {
		metadata["run_id"] = meta.RunID
	}
	fc.ExtraMembers = geojson.Properties{"metadata": metadata}
	return fc
}

func Feature(r types.Record, targetID string) *geojson.Feature {
	f := geojson.NewFeature(r.Point)
	f.ID = r.ID
	for k, v := range r.Properties {
		f.Properties[k] = v
	}
	f.Properties["id"] = r.ID
	f.Properties["type"] = featureType(r)
	if targetID != "" {
		f.Properties["city_id"] = targetID
	}
	switch r.Kind {
	case types.Aggregate:
		f.Properties["objects_count"] = r.MemberCount
	case types.EmptyAggregate:
		f.Properties["is_empty"] = true
	}
	return f
}

func featureType(r types.Record) string {
	for _, key := range []string{"upstream_type", "category"} {
		if s, ok := r.Properties[key].(string); ok && s != "" {
			return s
		}
	}
	switch r.Kind {
	case types.Individual:
		return "scooter"
	case types.Aggregate:
		return "cluster"
	default:
		return "cluster_empty"
	}
}
