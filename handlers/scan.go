package handlers

import (
	"context"
	"errors"
	"net/http"

	"go-scooterscan/db"
	"go-scooterscan/export"
	"go-scooterscan/logging"
	"go-scooterscan/processor"
	"go-scooterscan/types"

	"cloud.google.com/go/firestore"
	"github.com/gin-gonic/gin"
	"github.com/go-kit/log/level"
)

// ScanRequest is the body of POST /api/scan. Zero overrides keep the
// configured values.
type ScanRequest struct {
	Target       string  `json:"target" binding:"required"`
	Provider     string  `json:"provider"`
	Resume       bool    `json:"resume"`
	CellSize     float64 `json:"cellSize"`
	MinCluster   int     `json:"minCluster"`
	ShrinkRadius float64 `json:"shrinkRadius"`
	MaxZoom      float64 `json:"maxZoom"`
}

// StartScan resolves the target, applies overrides and starts a background
// run, answering 202 with its id.
func StartScan(c *gin.Context, store *RunStore, scanner processor.Scanner, places processor.PlaceResolver) {
	var req ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	cfg := scanner.Config
	if req.Provider != "" {
		cfg.Provider = req.Provider
	}
	if req.CellSize != 0 {
		cfg.CellSize = req.CellSize
	}
	if req.MinCluster != 0 {
		cfg.SizeThreshold = req.MinCluster
	}
	if req.ShrinkRadius != 0 {
		cfg.ShrinkRadius = req.ShrinkRadius
	}
	if req.MaxZoom != 0 {
		cfg.MaxZoom = req.MaxZoom
	}
	if err := cfg.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid scan settings", "details": err.Error()})
		return
	}

	target, err := processor.ResolveTarget(c.Request.Context(), req.Target, cfg.CitiesFile, places)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown target", "details": err.Error()})
		return
	}

	scanner.Config = cfg
	entry, err := store.Start(target, cfg.Provider, req.Resume, scanner.Scan)
	if errors.Is(err, ErrRunInProgress) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "runId": entry.ID})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	level.Info(logging.FromContext(c.Request.Context())).Log("msg", "scan started", "run", entry.ID, "target", target.ID, "provider", cfg.Provider, "resume", req.Resume)
	c.JSON(http.StatusAccepted, gin.H{"runId": entry.ID, "target": target.ID, "provider": cfg.Provider})
}

func ListRuns(c *gin.Context, store *RunStore) {
	c.JSON(http.StatusOK, gin.H{"runs": store.List()})
}

// GetRun reports a run's progress. Runs not held in memory are looked up in
// Firestore when it is configured.
func GetRun(c *gin.Context, store *RunStore, fs *firestore.Client) {
	id := c.Param("id")
	if entry, ok := store.Get(id); ok {
		c.JSON(http.StatusOK, entry.Status())
		return
	}
	run, _, err := storedRun(c.Request.Context(), fs, id, false)
	if err != nil {
		notFoundOrError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"runId":    run.RunID,
		"target":   run.Target,
		"provider": run.Provider,
		"state":    run.State,
		"records":  run.RecordCount,
		"stats":    run.Stats,
		"degraded": len(run.Degraded),
		"started":  run.Started,
		"finished": run.Finished,
	})
}

// GetRunGeoJSON renders a run's records, live while it is still going.
func GetRunGeoJSON(c *gin.Context, store *RunStore, fs *firestore.Client) {
	id := c.Param("id")
	var (
		records map[string]types.Record
		meta    = export.Meta{RunID: id}
	)
	if entry, ok := store.Get(id); ok {
		records = entry.Records()
		meta.TargetID = entry.Target.ID
		meta.Source = entry.Provider + " discovery"
	} else {
		run, recs, err := storedRun(c.Request.Context(), fs, id, true)
		if err != nil {
			notFoundOrError(c, err)
			return
		}
		records = make(map[string]types.Record, len(recs))
		for _, r := range recs {
			records[r.ID] = r
		}
		meta.TargetID = run.Target
		meta.Source = run.Provider + " discovery"
		meta.GeneratedAt = run.Finished
	}

	fc := export.FeatureCollection(records, meta)
	data, err := fc.MarshalJSON()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to encode GeoJSON", "details": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/geo+json", data)
}

var errNoStore = errors.New("run not found")

func storedRun(ctx context.Context, fs *firestore.Client, id string, withRecords bool) (db.RunDoc, []types.Record, error) {
	if fs == nil {
		return db.RunDoc{}, nil, errNoStore
	}
	run, recs, err := db.GetRun(ctx, fs, id)
	if !withRecords {
		recs = nil
	}
	return run, recs, err
}

func notFoundOrError(c *gin.Context, err error) {
	if errors.Is(err, errNoStore) || errors.Is(err, db.ErrRunNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Run not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load run", "details": err.Error()})
}
