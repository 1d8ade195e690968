package workflow

// Trigger represents an action that can cause a request status transition
type Trigger string

const (
	TriggerSubmit        Trigger = "SUBMIT"
	TriggerApprove       Trigger = "APPROVE"
	TriggerReject        Trigger = "REJECT"
	TriggerCancel        Trigger = "CANCEL"
	TriggerStartPurchase Trigger = "START_PURCHASE"
	TriggerComplete      Trigger = "COMPLETE"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
