package scrapers

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("no matching product found")
	ErrExtraction = errors.New("price extraction failed")
)

type Stage string

const (
	StagePacing   Stage = "pacing"
	StageSession  Stage = "session"
	StageSearch   Stage = "search"
	StageNavigate Stage = "navigate"
	StageWait     Stage = "wait"
	StageParse    Stage = "parse"
	StageAPI      Stage = "api"
)

// ExtractionFailure is the single error type a fetch returns. Callers drop
// the retailer from the run; it never aborts an aggregation.
type ExtractionFailure struct {
	Retailer string
	Stage    Stage
	Err      error
}

func (e *ExtractionFailure) Error() string {
	return fmt.Sprintf("%s: %s failed: %v", e.Retailer, e.Stage, e.Err)
}

func (e *ExtractionFailure) Unwrap() []error { return []error{ErrExtraction, e.Err} }

func fail(retailer string, stage Stage, err error) error {
	var ef *ExtractionFailure
	if errors.As(err, &ef) {
		return err
	}
	return &ExtractionFailure{Retailer: retailer, Stage: stage, Err: err}
}
