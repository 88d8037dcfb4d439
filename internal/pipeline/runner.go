package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/soundjacket/metapub/internal/catalog"
	"github.com/soundjacket/metapub/internal/metadata"
	"github.com/soundjacket/metapub/internal/metrics"
	"github.com/soundjacket/metapub/internal/models"
	"github.com/soundjacket/metapub/internal/publish"
	"github.com/soundjacket/metapub/internal/results"
	"github.com/soundjacket/metapub/internal/template"
	"github.com/soundjacket/metapub/internal/upload"
)

// State is a step of a run. A run moves through the states strictly in order.
type State string

const (
	StatePending                State = "pending"
	StateLocatingUploading      State = "locating_uploading"
	StateSynthesizingPersisting State = "synthesizing_persisting"
	StatePublishing             State = "publishing"
	StateIndexing               State = "indexing"
	StateDone                   State = "done"
	StateFailed                 State = "failed"
)

// ErrInvariant is returned when a stage produced the wrong number of items
var ErrInvariant = errors.New("pipeline invariant violated")

type Publisher interface {
	Publish(ctx context.Context, n int) (*publish.Result, error)
}

type Indexer interface {
	Index(ctx context.Context, root string, n int) (*catalog.IndexReport, error)
}

// Runner executes one pipeline run over EditionSize items
type Runner struct {
	RunID             string
	EditionSize       int
	Template          template.Template
	Locator           upload.Locator
	Uploader          upload.Uploader
	UploadConcurrency int
	Persister         *metadata.Persister
	Publisher         Publisher
	Indexer           Indexer
	Metrics           *metrics.Metrics
	MetricsTextfile   string
	ReportDir         string

	now       func() time.Time
	state     State
	enteredAt time.Time
	report    *results.Report
}

func (r *Runner) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now()
}

func (r *Runner) begin() {
	r.state = StatePending
	r.enteredAt = r.clock()
	r.report = results.NewReport(r.RunID, r.EditionSize, r.enteredAt)
	if r.Metrics == nil {
		r.Metrics = metrics.New()
	}
}

func (r *Runner) transition(next State) {
	now := r.clock()
	elapsed := now.Sub(r.enteredAt)
	if r.state != StatePending {
		r.report.AddStage(string(r.state), elapsed)
		r.Metrics.ObserveStage(string(r.state), elapsed)
	}
	slog.Info("Pipeline state", "run_id", r.RunID, "from", r.state, "to", next, "elapsed", elapsed.Round(time.Millisecond))
	r.state = next
	r.enteredAt = now
}

// Run executes every stage. Locate, upload, persist and publish failures
// abort the run. Indexing failures are collected; the run still reaches done
// and the aggregate error is returned alongside the report.
func (r *Runner) Run(ctx context.Context) (*results.Report, error) {
	r.begin()
	n := r.EditionSize
	slog.Info("Starting run", "run_id", r.RunID, "edition_size", n)

	r.transition(StateLocatingUploading)
	uploaded := func(result models.UploadResult) {
		r.Metrics.CountItems(models.StageUpload, metrics.OutcomeOK, 1)
	}
	uploads, err := upload.All(ctx, r.Locator, &countingUploader{next: r.Uploader, metrics: r.Metrics}, n, r.UploadConcurrency, uploaded)
	if err != nil {
		r.Metrics.CountItems(models.StageUpload, metrics.OutcomeFailed, 1)
		return r.fail(err)
	}
	if len(uploads) != n {
		return r.fail(fmt.Errorf("%w: %d upload results for %d items", ErrInvariant, len(uploads), n))
	}
	r.report.SetUploads(uploads)

	r.transition(StateSynthesizingPersisting)
	records := metadata.SynthesizeAll(r.Template, uploads)
	if err := r.Persister.WriteAll(records); err != nil {
		return r.fail(err)
	}
	r.Metrics.CountItems(models.StagePersist, metrics.OutcomeOK, len(records))

	r.transition(StatePublishing)
	published, err := r.Publisher.Publish(ctx, n)
	if err != nil {
		return r.fail(err)
	}
	if len(published.Paths) != n {
		return r.fail(fmt.Errorf("%w: %d published paths for %d items", ErrInvariant, len(published.Paths), n))
	}
	r.report.Root = published.Root
	r.Metrics.CountItems(models.StagePublish, metrics.OutcomeOK, n)

	indexErr := r.index(ctx, published.Root, n)
	r.report.MarkIndexed()
	return r.finish(indexErr)
}

// RunIndex runs only the indexing stage against an existing batch root
func (r *Runner) RunIndex(ctx context.Context, root string) (*results.Report, error) {
	r.begin()
	r.report.Root = root
	slog.Info("Starting index-only run", "run_id", r.RunID, "root", root, "edition_size", r.EditionSize)

	indexErr := r.index(ctx, root, r.EditionSize)
	return r.finish(indexErr)
}

func (r *Runner) index(ctx context.Context, root string, n int) error {
	r.transition(StateIndexing)
	report, err := r.Indexer.Index(ctx, root, n)
	if report != nil {
		for _, f := range report.Failures {
			r.report.AddFailure(f)
		}
		r.Metrics.CountItems(models.StageIndex, metrics.OutcomeOK, report.Saved)
		r.Metrics.CountItems(models.StageIndex, metrics.OutcomeFailed, len(report.Failures))
	}
	return err
}

func (r *Runner) finish(err error) (*results.Report, error) {
	r.transition(StateDone)
	r.report.Finish(string(StateDone), nil, r.clock())
	r.Metrics.Finish(err == nil, r.report.FinishedAt)
	r.writeMetrics()
	r.saveReport()
	if err != nil {
		slog.Warn("Run finished with failures", "run_id", r.RunID, "failures", len(r.report.Failures))
	} else {
		slog.Info("Run finished", "run_id", r.RunID, "root", r.report.Root)
	}
	return r.report, err
}

func (r *Runner) fail(err error) (*results.Report, error) {
	failed := r.state
	r.report.AddFailure(err)
	r.transition(StateFailed)
	r.report.Finish(string(StateFailed), fmt.Errorf("%s: %w", failed, err), r.clock())
	r.Metrics.Finish(false, r.report.FinishedAt)
	r.writeMetrics()
	r.saveReport()
	slog.Error("Run failed", "run_id", r.RunID, "state", failed, "err", err)
	return r.report, err
}

func (r *Runner) writeMetrics() {
	if r.MetricsTextfile == "" {
		return
	}
	if err := r.Metrics.WriteTextfile(r.MetricsTextfile); err != nil {
		slog.Warn("Failed to export metrics", "path", r.MetricsTextfile, "err", err)
	}
}

func (r *Runner) saveReport() {
	if r.ReportDir == "" {
		return
	}
	path, err := results.Save(r.ReportDir, r.report)
	if err != nil {
		slog.Warn("Failed to save run report", "err", err)
		return
	}
	slog.Info("Run report saved", "path", path)
}

type countingUploader struct {
	next    upload.Uploader
	metrics *metrics.Metrics
}

func (c *countingUploader) Upload(ctx context.Context, file models.AssetFile) (string, error) {
	c.metrics.AddUploadBytes(len(file.Data))
	return c.next.Upload(ctx, file)
}
