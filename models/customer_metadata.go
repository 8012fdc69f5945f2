package models

import "strconv"

// Metadata keys stored on the Stripe customer. These names are already present
// on live customers, so they must stay stable.
const (
	MetaProduct              = "product"
	MetaPlanType             = "plan_type"
	MetaAccessDurationMonths = "access_duration_months"
	MetaBonusMonths          = "bonus_months"
	MetaTotalAccessMonths    = "total_access_months"
	MetaInternalProductID    = "internal_product_id"
	MetaTradingViewUsername  = "tradingview_username"
	// Older customers carry the username under a camelCase key. It is still
	// read, and still written alongside the canonical key.
	MetaTradingViewUsernameLegacy = "tradingViewUsername"
	MetaProvisioningStatus        = "provisioning_status"
	MetaLastError                 = "last_error"
)

// CustomerMetadata is the typed view over the flat string map Stripe stores on
// a customer. All reads and writes of that map go through this struct so the
// stringly-typed shape never leaks into the provisioning logic.
type CustomerMetadata struct {
	Product              string
	PlanType             string
	AccessDurationMonths int
	BonusMonths          int
	TotalAccessMonths    int
	InternalProductID    string
	TradingViewUsername  string
	ProvisioningStatus   ProvisioningStatus
	LastError            string
}

// CustomerMetadataFromMap decodes the Stripe metadata map. The username is
// reconciled from both historical spellings, canonical key winning when both
// are set.
func CustomerMetadataFromMap(m map[string]string) CustomerMetadata {
	username := m[MetaTradingViewUsername]
	if username == "" {
		username = m[MetaTradingViewUsernameLegacy]
	}

	return CustomerMetadata{
		Product:              m[MetaProduct],
		PlanType:             m[MetaPlanType],
		AccessDurationMonths: atoiOrZero(m[MetaAccessDurationMonths]),
		BonusMonths:          atoiOrZero(m[MetaBonusMonths]),
		TotalAccessMonths:    atoiOrZero(m[MetaTotalAccessMonths]),
		InternalProductID:    m[MetaInternalProductID],
		TradingViewUsername:  username,
		ProvisioningStatus:   ParseProvisioningStatus(m[MetaProvisioningStatus]),
		LastError:            m[MetaLastError],
	}
}

// PlanMetadataFields returns the plan snapshot fields to write back on the
// customer when provisioning runs against a resolved plan.
func PlanMetadataFields(plan Plan) map[string]string {
	return map[string]string{
		MetaPlanType:             plan.PlanType,
		MetaAccessDurationMonths: strconv.Itoa(plan.AccessDurationMonths),
		MetaBonusMonths:          strconv.Itoa(plan.BonusMonths),
		MetaTotalAccessMonths:    strconv.Itoa(plan.TotalAccessMonths),
		MetaInternalProductID:    plan.InternalProductID,
	}
}

// UsernameMetadataFields returns both spellings so old readers keep working.
func UsernameMetadataFields(username string) map[string]string {
	return map[string]string{
		MetaTradingViewUsername:       username,
		MetaTradingViewUsernameLegacy: username,
	}
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
