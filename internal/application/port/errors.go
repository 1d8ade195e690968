package port

import "errors"

var (
	// ErrStaleVersion is returned by RequestRepository.UpdateStatus when another
	// writer advanced the request first
	ErrStaleVersion = errors.New("request version is stale")

	// ErrStepAlreadyActed is returned by StepRepository.MarkActed when the step
	// left PENDING before the update ran
	ErrStepAlreadyActed = errors.New("approval step already acted on")
)
