package capture

import "errors"

// teardown is a scope guard: each acquisition registers its release, and
// run releases everything in reverse order exactly once.
type teardown struct {
	steps []teardownStep
	done  bool
}

type teardownStep struct {
	name    string
	release func() error
}

// add registers release for the resource just acquired
func (t *teardown) add(name string, release func() error) {
	t.steps = append(t.steps, teardownStep{name: name, release: release})
}

// run releases in reverse acquisition order. Later calls return nil.
func (t *teardown) run() error {
	if t.done {
		return nil
	}
	t.done = true

	var errs []error
	for i := len(t.steps) - 1; i >= 0; i-- {
		step := t.steps[i]
		if err := step.release(); err != nil {
			errs = append(errs, &releaseError{resource: step.name, err: err})
		}
	}
	t.steps = nil
	return errors.Join(errs...)
}

// pending reports how many releases are still registered
func (t *teardown) pending() int {
	return len(t.steps)
}

type releaseError struct {
	resource string
	err      error
}

func (e *releaseError) Error() string {
	return "release " + e.resource + ": " + e.err.Error()
}

func (e *releaseError) Unwrap() error {
	return e.err
}
