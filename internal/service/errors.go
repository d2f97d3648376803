package service

import "fmt"

// Stage names the setup step that failed.
type Stage string

const (
	StageDiscovery    Stage = "discovery"
	StageClaim        Stage = "claim"
	StageFormat       Stage = "format"
	StageRegistration Stage = "registration"
	StageStart        Stage = "start"
)

// SetupError is a fatal setup fault. Setup is never retried.
type SetupError struct {
	Stage Stage
	Err   error
}

func setupErr(stage Stage, err error) *SetupError {
	return &SetupError{Stage: stage, Err: err}
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("setup failed at %s: %v", e.Stage, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }
