package workflow

import "context"

// StateMachine tracks a request's status and validates transitions against the
// configured lifecycle.
type StateMachine interface {
	// State returns the current state
	State() State

	// CanFire reports whether the trigger would succeed, guards included
	CanFire(ctx context.Context, trigger Trigger) bool

	// Fire executes the trigger, moving to the target state if allowed
	Fire(ctx context.Context, trigger Trigger) error

	// PermittedTriggers returns the triggers configured for the current state
	PermittedTriggers() []Trigger
}
