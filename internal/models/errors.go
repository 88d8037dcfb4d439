package models

import (
	"errors"
	"fmt"
)

var (
	ErrAssetNotFound = errors.New("asset not found")
	ErrUpload        = errors.New("upload failed")
	ErrPersist       = errors.New("persist failed")
	ErrPublish       = errors.New("publish failed")
	ErrIndexFetch    = errors.New("index fetch failed")
	ErrIndexWrite    = errors.New("index write failed")
)

// Stage names used in errors, logs and the run report.
const (
	StageLocate  = "locate"
	StageUpload  = "upload"
	StagePersist = "persist"
	StagePublish = "publish"
	StageIndex   = "index"
)

// StageError names the pipeline stage and item a failure belongs to.
// Index is -1 for failures that concern the whole batch.
type StageError struct {
	Stage string
	Index int
	Err   error
}

func (e *StageError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s item %d: %v", e.Stage, e.Index, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError wraps err with the stage and item index it occurred in
func NewStageError(stage string, index int, err error) *StageError {
	return &StageError{Stage: stage, Index: index, Err: err}
}

// AsStageError extracts the first StageError in err's chain
func AsStageError(err error) (*StageError, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
