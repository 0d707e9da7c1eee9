package usecase

import (
	"context"
	"fmt"
)

// Saga is a forward-only step runner. Once payment is confirmed this
// service never compensates; instead every step records its own completion
// flag, and a retried or resumed run skips what already committed. The
// failing step's name is surfaced so the caller can decide what the
// failure means for the record's state.

type SagaStep struct {
	Name string
	Done func() bool
	Run  func(context.Context) error
}

type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step '%s' failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

type Saga struct {
	steps []SagaStep
}

func NewSaga() *Saga {
	return &Saga{steps: []SagaStep{}}
}

func (s *Saga) AddStep(name string, done func() bool, run func(context.Context) error) {
	s.steps = append(s.steps, SagaStep{Name: name, Done: done, Run: run})
}

// Execute runs every not-yet-done step in order and stops at the first
// failure. Completed steps stay completed; the next Execute resumes after
// them.
func (s *Saga) Execute(ctx context.Context) error {
	for _, step := range s.steps {
		if step.Done != nil && step.Done() {
			continue
		}
		if err := step.Run(ctx); err != nil {
			return &StepError{Step: step.Name, Err: err}
		}
	}
	return nil
}
