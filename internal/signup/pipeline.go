package signup

import (
	"context"
	"fmt"
)

// submission carries values between pipeline steps.
type submission struct {
	form      Form
	effects   Effects
	imageURL  string
	result    AuthResult
	navigated bool
}

type step struct {
	name string
	run  func(ctx context.Context, sub *submission) error
}

// StepError names the pipeline step that failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string { return fmt.Sprintf("%s: %v", e.Step, e.Err) }
func (e *StepError) Unwrap() error { return e.Err }

// runSteps executes steps in order and stops at the first failure.
func runSteps(ctx context.Context, sub *submission, steps ...step) error {
	for _, st := range steps {
		if err := st.run(ctx, sub); err != nil {
			return &StepError{Step: st.name, Err: err}
		}
	}
	return nil
}
