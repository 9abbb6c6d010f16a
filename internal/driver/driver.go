// Package driver orchestrates a single analysis run: ingest ->
// normalize -> index -> tag match -> per-detection tracing -> report
// rendering. It is the only place in the repository that runs work
// concurrently (spec.md §5 explicitly permits parallelizing across
// detections over the shared immutable index).
package driver

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/google/uuid"

	provtraceerrors "provtrace/errors"
	"provtrace/internal/config"
	"provtrace/internal/eventindex"
	"provtrace/internal/ingest"
	"provtrace/internal/model"
	"provtrace/internal/noise"
	"provtrace/internal/normalize"
	"provtrace/internal/render"
	"provtrace/internal/startnode"
	"provtrace/internal/tagpool"
	"provtrace/internal/trace/backward"
	"provtrace/internal/trace/forward"
	"provtrace/logging"
)

// Result is the outcome of a single Run: the run's correlation id and
// the fully enriched detections.
type Result struct {
	RunID      string
	Detections []model.Detection
}

// Run executes the full pipeline against logReader, using cfg for
// hop bound, noise lists, and report destination, and pool as the
// suspicious-tag set. It returns ErrStreamEmpty if normalization
// yields zero events.
func Run(ctx context.Context, logReader io.Reader, pool *tagpool.Pool, cfg config.Config) (*Result, error) {
	runID := uuid.NewString()
	log := logging.WithRunID(logging.FromContext(ctx), runID)
	ctx = logging.ContextWithLogger(ctx, log)

	reader := ingest.NewReader(logReader)
	rawRecords := reader.ReadAll(ctx)

	var events []model.Event
	for _, rec := range rawRecords {
		events = append(events, normalize.Normalize(rec)...)
	}
	if len(events) == 0 {
		return nil, provtraceerrors.ErrStreamEmpty
	}

	idx := eventindex.New(events)
	noiseCfg := cfg.NoiseFilter()

	detections := tagpool.Detect(pool, events)
	logging.InfoContext(ctx, "tag match complete", "detections", len(detections))

	traceDetections(ctx, idx, noiseCfg, cfg.MaxHops, detections)

	if cfg.ReportDir != "" {
		if err := renderReports(runID, cfg.ReportDir, detections); err != nil {
			logging.ErrorContext(ctx, "report rendering failed", "error", err)
		}
	}

	return &Result{RunID: runID, Detections: detections}, nil
}

// traceDetections infers start nodes and runs both tracers for every
// detection, bounded by a worker pool sized off GOMAXPROCS. A
// detection whose start cannot be inferred records BacktrackError and
// is not traced (spec.md §7: non-fatal, per-detection).
func traceDetections(ctx context.Context, idx *eventindex.Index, noiseCfg noise.Config, maxHops int, detections []model.Detection) {
	workers := runtime.GOMAXPROCS(0)
	if workers > len(detections) {
		workers = len(detections)
	}
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan int, len(detections))
	for i := range detections {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				traceOne(ctx, idx, noiseCfg, maxHops, &detections[i])
			}
		}()
	}
	wg.Wait()
}

// traceOne mutates only fields of its own detection slot, so no
// synchronization is needed across goroutines: each index i is owned
// by exactly one worker for its lifetime.
func traceOne(ctx context.Context, idx *eventindex.Index, noiseCfg noise.Config, maxHops int, d *model.Detection) {
	backStart, ok := startnode.InferBackward(d.Event)
	if !ok {
		werr := provtraceerrors.WrapWithDetection(nil, provtraceerrors.ErrUnknownStart, "backtrack.InferBackward", d.Index)
		werr.Detail = provtraceerrors.ErrStartUnresolved.Detail
		d.BacktrackError = werr.Detail
		log := logging.WithDetection(logging.FromContext(ctx), d.Index)
		log.WarnContext(ctx, "unable to infer backward start", "error", werr)
		return
	}

	t := backward.BacktrackKey(idx, noiseCfg, backStart, maxHops)
	d.BacktrackStart = &backStart
	d.Trace = t

	fwdStart, ok := startnode.InferForward(d.Event, &backStart)
	if !ok {
		return
	}

	fwdTrace := forward.ForwardKey(idx, noiseCfg, fwdStart, d.Event.Timestamp, nil, maxHops)
	d.ForwardStart = &fwdStart
	d.ForwardTrace = fwdTrace
}

func renderReports(runID, baseDir string, detections []model.Detection) error {
	dir := filepath.Join(baseDir, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	for i := range detections {
		d := &detections[i]
		if d.Trace != nil {
			path, err := render.WriteDOT(dir, d.Index, "backward", *d.Trace)
			if err == nil {
				d.Reports.BackwardDOT = path
			}
		}
		if d.ForwardTrace != nil {
			path, err := render.WriteDOT(dir, d.Index, "forward", *d.ForwardTrace)
			if err == nil {
				d.Reports.ForwardDOT = path
			}
		}
	}

	f, err := os.Create(filepath.Join(dir, "detections.json"))
	if err != nil {
		return err
	}
	defer f.Close()

	return render.WriteJSON(f, detections)
}
