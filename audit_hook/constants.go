package audithook

// Action constants for audit events.
const (
	// User actions
	ActionUserRegistered = "user.registered"

	// Relationship actions
	ActionLinkRequested = "link.requested"
	ActionLinkAccepted  = "link.accepted"
	ActionLinkRemoved   = "link.removed"

	// Record actions
	ActionExpenseCreated     = "expense.created"
	ActionExpenseUpdated     = "expense.updated"
	ActionExpenseDeleted     = "expense.deleted"
	ActionSettlementRecorded = "settlement.recorded"
	ActionSettlementReversed = "settlement.reversed"

	// Balance actions
	ActionBalanceOverridden = "balance.overridden"
	ActionRefreshFailed     = "balance.refresh_failed"

	// Group actions
	ActionGroupCreated       = "group.created"
	ActionGroupMemberAdded   = "group.member_added"
	ActionGroupMemberRemoved = "group.member_removed"
)

// Resource constants for audit events.
const (
	ResourceUser         = "user"
	ResourceRelationship = "relationship"
	ResourceExpense      = "expense"
	ResourceSettlement   = "settlement"
	ResourceBalance      = "balance"
	ResourceGroup        = "group"
)

// Category constants for audit events.
const (
	CategoryAccount = "account"
	CategorySocial  = "social"
	CategoryRecord  = "record"
	CategoryPayment = "payment"
	CategoryBalance = "balance"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
