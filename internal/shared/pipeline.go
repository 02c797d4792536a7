package shared

import (
	"context"
	"errors"
	"fmt"
)

// Step is one unit of a multi-write operation. Compensate undoes Run and is
// only invoked when the backing store cannot roll the whole operation back.
type Step struct {
	Name       string
	Run        func(ctx context.Context) error
	Compensate func(ctx context.Context) error
}

// Pipeline runs steps in order. When Atomic is false and a step fails, the
// steps that already completed are compensated in reverse order.
type Pipeline struct {
	Steps  []Step
	Atomic bool
}

// StepError reports which step failed.
type StepError struct {
	Step string
	Err  error
	// Compensation holds errors raised while undoing completed steps.
	Compensation error
}

func (e *StepError) Error() string {
	if e.Compensation != nil {
		return fmt.Sprintf("step %s: %v (compensation: %v)", e.Step, e.Err, e.Compensation)
	}
	return fmt.Sprintf("step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Run executes the pipeline.
func (p Pipeline) Run(ctx context.Context) error {
	for i, step := range p.Steps {
		if err := step.Run(ctx); err != nil {
			stepErr := &StepError{Step: step.Name, Err: err}
			if !p.Atomic {
				stepErr.Compensation = p.compensate(ctx, i)
			}
			return stepErr
		}
	}
	return nil
}

func (p Pipeline) compensate(ctx context.Context, failed int) error {
	var errs []error
	for i := failed - 1; i >= 0; i-- {
		undo := p.Steps[i].Compensate
		if undo == nil {
			continue
		}
		if err := undo(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Steps[i].Name, err))
		}
	}
	return errors.Join(errs...)
}
