package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-scooterscan/discovery"
	"go-scooterscan/types"

	"cloud.google.com/go/firestore"
	"github.com/paulmach/orb"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	runsCollection    = "runs"
	recordsCollection = "records"
)

var ErrRunNotFound = errors.New("run not found")

// RunDoc is the runs/{id} document.
type RunDoc struct {
	RunID       string          `firestore:"runId"`
	Target      string          `firestore:"target"`
	Provider    string          `firestore:"provider"`
	State       string          `firestore:"state"`
	Started     time.Time       `firestore:"started"`
	Finished    time.Time       `firestore:"finished"`
	RecordCount int             `firestore:"recordCount"`
	Degraded    []string        `firestore:"degraded"`
	Stats       discovery.Stats `firestore:"stats"`
}

// RecordDoc is one document in runs/{id}/records.
type RecordDoc struct {
	ID          string                 `firestore:"id"`
	Kind        string                 `firestore:"kind"`
	Lon         float64                `firestore:"lon"`
	Lat         float64                `firestore:"lat"`
	MemberCount int                    `firestore:"memberCount"`
	Properties  map[string]interface{} `firestore:"properties"`
}

func NewRunDoc(res discovery.Result, target, provider string) RunDoc {
	return RunDoc{
		RunID:       res.RunID,
		Target:      target,
		Provider:    provider,
		State:       string(res.State),
		Started:     res.Started,
		Finished:    res.Finished,
		RecordCount: len(res.Records),
		Degraded:    res.Degraded,
		Stats:       res.Stats,
	}
}

func NewRecordDoc(r types.Record) RecordDoc {
	return RecordDoc{
		ID:          r.ID,
		Kind:        r.Kind.String(),
		Lon:         r.Point.Lon(),
		Lat:         r.Point.Lat(),
		MemberCount: r.MemberCount,
		Properties:  r.Properties,
	}
}

// Record converts the document back, re-checking the record invariants.
func (d RecordDoc) Record() (types.Record, error) {
	kind, err := types.ParseKind(d.Kind)
	if err != nil {
		return types.Record{}, err
	}
	p := orb.Point{d.Lon, d.Lat}
	switch kind {
	case types.Aggregate:
		return types.NewAggregate(d.ID, p, d.MemberCount, d.Properties)
	case types.EmptyAggregate:
		return types.NewEmptyAggregate(d.ID, p, d.Properties)
	default:
		return types.NewIndividual(d.ID, p, d.Properties)
	}
}

// SaveRun writes the run document and its records using BulkWriter. Write
// failures reported by the jobs after End are returned along with enqueue
// failures.
func SaveRun(ctx context.Context, client *firestore.Client, res discovery.Result, target, provider string) error {
	if res.RunID == "" {
		return errors.New("run has no id")
	}
	runRef := client.Collection(runsCollection).Doc(res.RunID)

	bw := client.BulkWriter(ctx)
	runJob, err := bw.Set(runRef, NewRunDoc(res, target, provider))
	if err != nil {
		bw.End()
		return fmt.Errorf("enqueue run %s: %w", res.RunID, err)
	}

	jobs := []pendingWrite{{name: "run " + res.RunID, job: runJob}}
	records := runRef.Collection(recordsCollection)
	var errs []error
	for id, r := range res.Records {
		job, err := bw.Set(records.Doc(HashString(id)), NewRecordDoc(r))
		if err != nil {
			errs = append(errs, fmt.Errorf("enqueue record %s: %w", id, err))
			continue
		}
		jobs = append(jobs, pendingWrite{name: "record " + id, job: job})
	}

	// End sends any remaining writes and waits for them to complete.
	bw.End()
	return errors.Join(append(errs, writeErrors(jobs)...)...)
}

// writeJob is the part of *firestore.BulkWriterJob SaveRun relies on.
type writeJob interface {
	Results() (*firestore.WriteResult, error)
}

type pendingWrite struct {
	name string
	job  writeJob
}

func writeErrors(jobs []pendingWrite) []error {
	var errs []error
	for _, w := range jobs {
		if _, err := w.job.Results(); err != nil {
			errs = append(errs, fmt.Errorf("write %s: %w", w.name, err))
		}
	}
	return errs
}

// GetRun loads a run document and all of its records.
func GetRun(ctx context.Context, client *firestore.Client, runID string) (RunDoc, []types.Record, error) {
	var run RunDoc
	runRef := client.Collection(runsCollection).Doc(runID)

	snap, err := runRef.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return run, nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return run, nil, fmt.Errorf("error getting run %s: %w", runID, err)
	}
	if err := snap.DataTo(&run); err != nil {
		return run, nil, fmt.Errorf("error converting run %s: %w", runID, err)
	}

	var records []types.Record
	iter := runRef.Collection(recordsCollection).Documents(ctx)
	defer iter.Stop()
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return run, records, fmt.Errorf("error iterating records of run %s: %w", runID, err)
		}
		var rd RecordDoc
		if err := doc.DataTo(&rd); err != nil {
			return run, records, fmt.Errorf("error converting record %s: %w", doc.Ref.ID, err)
		}
		rec, err := rd.Record()
		if err != nil {
			return run, records, fmt.Errorf("record %s: %w", doc.Ref.ID, err)
		}
		records = append(records, rec)
	}
	return run, records, nil
}
