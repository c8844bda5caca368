package shared

// ArrivalSource identifies where external cash entering the vault came from
type ArrivalSource string

const (
	ArrivalSourceBankWithdrawal ArrivalSource = "BANK_WITHDRAWAL"
	ArrivalSourceOwnerInjection ArrivalSource = "OWNER_INJECTION"
	ArrivalSourceMachineDrop    ArrivalSource = "MACHINE_DROP"
)

// IsValid reports whether s is a known source
func (s ArrivalSource) IsValid() bool {
	switch s {
	case ArrivalSourceBankWithdrawal, ArrivalSourceOwnerInjection, ArrivalSourceMachineDrop:
		return true
	}
	return false
}

// FailureReason defines why a cash drop was routed to the dead letter queue
type FailureReason string

const (
	FailureReasonUnmarshalFailed     FailureReason = "UNMARSHAL_FAILED"
	FailureReasonInvalidRequest      FailureReason = "INVALID_REQUEST"
	FailureReasonVaultNotFound       FailureReason = "VAULT_NOT_FOUND"
	FailureReasonInvalidDenomination FailureReason = "INVALID_DENOMINATION"
	FailureReasonProcessingPanic     FailureReason = "PROCESSING_PANIC"
	FailureReasonUnknownError        FailureReason = "UNKNOWN_ERROR"
)

// OutboxStatus defines message publishing states
type OutboxStatus string

const (
	OutboxStatusPending         OutboxStatus = "PENDING"
	OutboxStatusProcessed       OutboxStatus = "PROCESSED"
	OutboxStatusFailedToPublish OutboxStatus = "FAILED_TO_PUBLISH"
)
