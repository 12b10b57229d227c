package backup

import (
	"errors"
	"fmt"
)

// ErrNoBackupFound is returned by restore when the backup root holds no
// archive for the configured format.
var ErrNoBackupFound = errors.New("no backup archive found")

// Step names one stage of an orchestration run.
type Step string

const (
	StepPrepare   Step = "prepare"
	StepSelect    Step = "select"
	StepEnumerate Step = "enumerate"
	StepArchive   Step = "archive"
	StepExtract   Step = "extract"
	StepState     Step = "registry"
)

// StepError records which stage of a run failed.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// FailedStep returns the stage recorded in err, or "" when err carries none.
func FailedStep(err error) Step {
	var se *StepError
	if errors.As(err, &se) {
		return se.Step
	}
	return ""
}
