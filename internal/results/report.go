package results

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/soundjacket/metapub/internal/metadata"
	"github.com/soundjacket/metapub/internal/models"
)

// ReportFile is written next to the metadata files
const ReportFile = "_report.yaml"

// StageTiming is the wall time of one pipeline state
type StageTiming struct {
	State    string `yaml:"state"`
	Duration string `yaml:"duration"`
}

// Item is what the run produced for one index
type Item struct {
	Index    int    `yaml:"index"`
	ImageURI string `yaml:"imageuri"`
	AudioURI string `yaml:"audiouri"`
	Indexed  bool   `yaml:"indexed"`
}

// Failure is a flattened StageError
type Failure struct {
	Stage string `yaml:"stage"`
	Index int    `yaml:"index"`
	Error string `yaml:"error"`
}

// Report is the YAML summary of a run
type Report struct {
	RunID       string        `yaml:"runid"`
	StartedAt   time.Time     `yaml:"startedat"`
	FinishedAt  time.Time     `yaml:"finishedat"`
	EditionSize int           `yaml:"editionsize"`
	State       string        `yaml:"state"`
	Root        string        `yaml:"root,omitempty"`
	Stages      []StageTiming `yaml:"stages"`
	Items       []Item        `yaml:"items,omitempty"`
	Failures    []Failure     `yaml:"failures,omitempty"`
	Error       string        `yaml:"error,omitempty"`
}

// NewReport starts a report for a run
func NewReport(runID string, editionSize int, startedAt time.Time) *Report {
	return &Report{
		RunID:       runID,
		StartedAt:   startedAt,
		EditionSize: editionSize,
	}
}

func (r *Report) AddStage(state string, d time.Duration) {
	r.Stages = append(r.Stages, StageTiming{State: state, Duration: d.Round(time.Millisecond).String()})
}

// SetUploads records the uploaded URIs for every item
func (r *Report) SetUploads(uploads []models.UploadResult) {
	r.Items = make([]Item, len(uploads))
	for i, u := range uploads {
		r.Items[i] = Item{Index: u.Index, ImageURI: u.ImageURI, AudioURI: u.AudioURI}
	}
}

// AddFailure records err, flattening a StageError when present. Items
// with a failure in the index stage are marked not indexed.
func (r *Report) AddFailure(err error) {
	if err == nil {
		return
	}
	f := Failure{Index: -1, Error: err.Error()}
	if se, ok := models.AsStageError(err); ok {
		f.Stage = se.Stage
		f.Index = se.Index
		f.Error = se.Err.Error()
	}
	r.Failures = append(r.Failures, f)
}

// MarkIndexed sets Indexed on every item that has no index failure. A
// batch-level index failure leaves every item unindexed.
func (r *Report) MarkIndexed() {
	failed := make(map[int]bool)
	batchFailed := false
	for _, f := range r.Failures {
		if f.Stage != models.StageIndex {
			continue
		}
		if f.Index < 0 {
			batchFailed = true
		}
		failed[f.Index] = true
	}
	for i := range r.Items {
		r.Items[i].Indexed = !batchFailed && !failed[r.Items[i].Index]
	}
}

// Finish closes the report with the final state and error, if any
func (r *Report) Finish(state string, err error, at time.Time) {
	r.State = state
	r.FinishedAt = at
	if err != nil {
		r.Error = err.Error()
	}
}

// Save writes the report to dir/_report.yaml and returns its path
func Save(dir string, r *Report) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	data, err := yaml.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}

	path := filepath.Join(dir, ReportFile)
	if err := metadata.WriteFileAtomic(path, data); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}

// Load reads a report written by Save
func Load(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	var r Report
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &r, nil
}

// HasFailures is true when the run recorded any failure
func (r *Report) HasFailures() bool {
	return len(r.Failures) > 0 || r.Error != ""
}

