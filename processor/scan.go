package processor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go-scooterscan/checkpoint"
	"go-scooterscan/config"
	"go-scooterscan/credential"
	"go-scooterscan/db"
	"go-scooterscan/discovery"
	"go-scooterscan/export"
	"go-scooterscan/geoquery"
	"go-scooterscan/metrics"

	"cloud.google.com/go/firestore"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// Scanner runs discovery for a target end to end: credential lookup,
// querying, checkpointing, GeoJSON export and optional Firestore storage.
type Scanner struct {
	Config    config.Config
	Logger    log.Logger
	Metrics   *metrics.Collector
	Firestore *firestore.Client

	// Querier replaces the upstream client built from Config when set.
	Querier geoquery.Querier
}

type ScanOptions struct {
	RunID  string
	Resume bool
	// Started is called with the orchestrator before it runs so callers can
	// watch its progress.
	Started func(*discovery.Orchestrator)
}

// Outcome is a finished scan and where its output went.
type Outcome struct {
	Target     Target
	Result     discovery.Result
	OutputPath string
	Checkpoint string
}

func (s *Scanner) logger() log.Logger {
	if s.Logger == nil {
		return log.NewNopLogger()
	}
	return s.Logger
}

// NewQuerier builds the configured provider's client.
func (s *Scanner) NewQuerier() (geoquery.Querier, error) {
	if s.Querier != nil {
		return s.Querier, nil
	}
	cred, err := credential.Load(s.Config.Provider, s.Config.CredentialsFile)
	if err != nil {
		return nil, err
	}
	if cred.Token != "" {
		if info, err := credential.Inspect(cred.Token); err == nil {
			now := time.Now()
			lg := log.With(s.logger(), "provider", cred.Provider, "expires", info.ExpiresAt.Format(time.RFC3339))
			switch {
			case info.Expired(now):
				level.Warn(lg).Log("msg", "credential already expired")
			case info.ExpiringSoon(now):
				level.Warn(lg).Log("msg", "credential expires soon", "remaining", credential.FormatRemaining(info.Remaining(now)))
			}
		}
	}

	opts := []geoquery.Option{
		geoquery.WithMinInterval(s.Config.Delay),
		geoquery.WithLogger(s.logger()),
	}
	if s.Metrics != nil {
		opts = append(opts, geoquery.WithObserver(s.Metrics))
	}
	switch s.Config.Provider {
	case geoquery.UrentProvider:
		return geoquery.NewUrent(s.Config.UrentBaseURL, cred.Token, opts...), nil
	default:
		return geoquery.NewYandex(s.Config.YandexBaseURL, cred.Headers, opts...), nil
	}
}

// OutputPath is where the GeoJSON for targetID is written.
func (s *Scanner) OutputPath(targetID string) string {
	return filepath.Join(s.Config.OutputDir, "city_scooters", targetID+".geojson")
}

// CheckpointPath names checkpoints by provider and region so a custom bbox
// resumes under a new target id.
func (s *Scanner) CheckpointPath(target Target) string {
	return checkpoint.Path(s.Config.OutputDir, s.Config.Provider+"-"+db.HashString(target.Region.Key())[:16])
}

// Scan runs one discovery. An aborted run leaves a checkpoint behind and
// returns an error wrapping discovery.ErrIncomplete; a finished run writes
// the GeoJSON and clears the checkpoint.
func (s *Scanner) Scan(ctx context.Context, target Target, so ScanOptions) (Outcome, error) {
	out := Outcome{Target: target, Checkpoint: s.CheckpointPath(target)}
	lg := log.With(s.logger(), "target", target.ID, "provider", s.Config.Provider)

	q, err := s.NewQuerier()
	if err != nil {
		return out, err
	}

	var orchOpts []discovery.OrchestratorOption
	orchOpts = append(orchOpts, discovery.WithLogger(lg))
	if s.Metrics != nil {
		orchOpts = append(orchOpts, discovery.WithRecorder(s.Metrics))
	}
	if so.RunID != "" {
		orchOpts = append(orchOpts, discovery.WithRunID(so.RunID))
	}
	if so.Resume {
		cp, err := checkpoint.Load(out.Checkpoint)
		if err != nil {
			return out, err
		}
		saved := len(cp.Completed) + len(cp.Records) + len(cp.Cells) + len(cp.Pending)
		if saved > 0 && !cp.Matches(target.Region.Key(), s.Config.Provider) {
			level.Warn(lg).Log("msg", "ignoring checkpoint for a different region or provider", "path", out.Checkpoint)
		} else if saved > 0 {
			level.Info(lg).Log("msg", "resuming", "completed", len(cp.Completed), "records", len(cp.Records),
				"cells", len(cp.Cells), "pending", len(cp.Pending))
			orchOpts = append(orchOpts, discovery.WithCheckpoint(cp.Checkpoint))
		}
	}

	orch := discovery.New(q, s.Config.Options(), orchOpts...)
	if so.Started != nil {
		so.Started(orch)
	}
	res, runErr := orch.Run(ctx, target.Region)
	out.Result = res

	if res.State == discovery.StateAborted {
		if err := checkpoint.Save(out.Checkpoint, checkpoint.File{
			Target:     target.Region.Key(),
			Provider:   s.Config.Provider,
			RunID:      res.RunID,
			Checkpoint: res.Checkpoint(),
		}); err != nil {
			level.Error(lg).Log("msg", "saving checkpoint failed", "err", err)
		} else {
			level.Info(lg).Log("msg", "checkpoint saved, rerun with resume to continue", "path", out.Checkpoint)
		}
	}
	if runErr != nil {
		return out, runErr
	}

	out.OutputPath = s.OutputPath(target.ID)
	fc := export.FeatureCollection(res.Records, export.Meta{
		TargetID:    target.ID,
		Source:      fmt.Sprintf("%s discovery", s.Config.Provider),
		RunID:       res.RunID,
		GeneratedAt: res.Finished,
	})
	if err := export.WriteFile(out.OutputPath, fc); err != nil {
		return out, err
	}
	if err := checkpoint.Remove(out.Checkpoint); err != nil {
		level.Warn(lg).Log("msg", "removing checkpoint failed", "err", err)
	}

	if s.Firestore != nil {
		if err := db.SaveRun(ctx, s.Firestore, res, target.ID, s.Config.Provider); err != nil {
			level.Error(lg).Log("msg", "saving run to Firestore failed", "err", err)
		}
	}

	stats := export.Summarize(res.Records)
	level.Info(lg).Log("msg", "scan complete", "output", out.OutputPath,
		"scooters", stats.Scooters, "clusters", stats.Clusters, "total_scooters", stats.TotalScooters)
	return out, nil
}

// Aborted reports whether err came from a run stopped before completion.
func Aborted(err error) bool { return errors.Is(err, discovery.ErrIncomplete) }
