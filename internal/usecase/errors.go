package usecase

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrStageFailed  = errors.New("pipeline stage failed")
)

// StageError is returned by the pipeline once a stage has used up its attempts.
type StageError struct {
	Stage         string
	CompetitionID int64
	Attempts      int
	Err           error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s competition_id=%d failed after %d attempt(s): %v", e.Stage, e.CompetitionID, e.Attempts, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func (e *StageError) Is(target error) bool {
	return target == ErrStageFailed
}
