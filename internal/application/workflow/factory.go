package workflow

import (
	domainwf "github.com/garyjia/purchase-approval/internal/domain/workflow"
)

// BuildRequestStateMachine creates a state machine configured for the purchase request lifecycle
func BuildRequestStateMachine(initialState domainwf.State) (domainwf.StateMachine, error) {
	builder := domainwf.NewBuilder()

	// PENDING state transitions
	builder.Configure(domainwf.StatePending).
		Permit(domainwf.TriggerSubmit, domainwf.StateInApproval).
		Permit(domainwf.TriggerCancel, domainwf.StateCancelled)

	// IN_APPROVAL state transitions; approve stays here until the chain is exhausted
	builder.Configure(domainwf.StateInApproval).
		PermitIf(domainwf.TriggerApprove, domainwf.StateInApproval, domainwf.HasRemainingSteps).
		PermitIf(domainwf.TriggerApprove, domainwf.StateApproved, domainwf.ChainExhausted).
		Permit(domainwf.TriggerReject, domainwf.StateRejected).
		Permit(domainwf.TriggerCancel, domainwf.StateCancelled)

	// APPROVED state transitions
	builder.Configure(domainwf.StateApproved).
		Permit(domainwf.TriggerStartPurchase, domainwf.StateInProgress).
		Permit(domainwf.TriggerCancel, domainwf.StateCancelled)

	// IN_PROGRESS state transitions
	builder.Configure(domainwf.StateInProgress).
		Permit(domainwf.TriggerComplete, domainwf.StateCompleted).
		Permit(domainwf.TriggerCancel, domainwf.StateCancelled)

	// REJECTED, COMPLETED and CANCELLED are terminal states - no outgoing transitions

	return builder.Build(initialState)
}
