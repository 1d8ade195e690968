package entity

// Status constants for PurchaseRequest
const (
	StatusPending    = "PENDING"
	StatusInApproval = "IN_APPROVAL"
	StatusApproved   = "APPROVED"
	StatusRejected   = "REJECTED"
	StatusInProgress = "IN_PROGRESS"
	StatusCompleted  = "COMPLETED"
	StatusCancelled  = "CANCELLED"
)

// Status constants for ApprovalStep
const (
	StepStatusPending  = "PENDING"
	StepStatusApproved = "APPROVED"
	StepStatusRejected = "REJECTED"
	StepStatusSkipped  = "SKIPPED"
)

// History action labels
const (
	ActionCreated         = "CREATED"
	ActionSubmitted       = "SUBMITTED"
	ActionStepApproved    = "STEP_APPROVED"
	ActionApproved        = "APPROVED"
	ActionRejected        = "REJECTED"
	ActionCancelled       = "CANCELLED"
	ActionPurchaseStarted = "PURCHASE_STARTED"
	ActionCompleted       = "COMPLETED"
)

// Role names used by the fallback chains and route guards
const (
	RoleTeacher        = "TEACHER"
	RoleDepartmentHead = "DEPARTMENT_HEAD"
	RoleCommitteeHead  = "COMMITTEE_HEAD"
	RoleSchoolDirector = "SCHOOL_DIRECTOR"
	RolePurchasing     = "PURCHASING"
	RoleGeneralManager = "GENERAL_MANAGER"
	RoleCEO            = "CEO"
	RoleAdmin          = "ADMIN"
)
