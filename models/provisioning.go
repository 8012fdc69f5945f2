package models

// ProvisioningStatus tracks where a customer stands in the TradingView access
// lifecycle. Only the provisioning package writes this value; it is stored on
// the Stripe customer metadata and never inferred from TradingView itself.
type ProvisioningStatus string

const (
	ProvisioningNone         ProvisioningStatus = "none"
	ProvisioningIncomplete   ProvisioningStatus = "incomplete"
	ProvisioningPending      ProvisioningStatus = "pending"
	ProvisioningComplete     ProvisioningStatus = "complete"
	ProvisioningFailed       ProvisioningStatus = "failed"
	ProvisioningRetryPending ProvisioningStatus = "retry_pending"
)

// ParseProvisioningStatus maps the stored metadata string to a status,
// defaulting to "none" for absent or unknown values.
func ParseProvisioningStatus(s string) ProvisioningStatus {
	switch ProvisioningStatus(s) {
	case ProvisioningIncomplete, ProvisioningPending, ProvisioningComplete,
		ProvisioningFailed, ProvisioningRetryPending:
		return ProvisioningStatus(s)
	default:
		return ProvisioningNone
	}
}
