package shared

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPipelineCompensatesInReverse(t *testing.T) {
	var trail []string
	step := func(name string, fail bool) Step {
		return Step{
			Name: name,
			Run: func(context.Context) error {
				if fail {
					return errors.New(name + " failed")
				}
				trail = append(trail, "run:"+name)
				return nil
			},
			Compensate: func(context.Context) error {
				trail = append(trail, "undo:"+name)
				return nil
			},
		}
	}
	p := Pipeline{Steps: []Step{step("claim", false), step("freeze", false), step("apply", true)}}

	err := p.Run(context.Background())
	require.Error(t, err)
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	require.Equal(t, "apply", stepErr.Step)
	require.NoError(t, stepErr.Compensation)
	require.Equal(t, []string{"run:claim", "run:freeze", "undo:freeze", "undo:claim"}, trail)
}

func TestPipelineAtomicSkipsCompensation(t *testing.T) {
	undone := false
	p := Pipeline{Atomic: true, Steps: []Step{
		{Name: "a", Run: func(context.Context) error { return nil }, Compensate: func(context.Context) error { undone = true; return nil }},
		{Name: "b", Run: func(context.Context) error { return ErrConcurrencyConflict }},
	}}
	err := p.Run(context.Background())
	require.ErrorIs(t, err, ErrConcurrencyConflict)
	require.False(t, undone)
}
