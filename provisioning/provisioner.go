package provisioning

import (
	"fmt"
	"strings"

	"github.com/om-ray/SNPaymentPortal/models"
	"github.com/om-ray/SNPaymentPortal/tradingview"
	"github.com/om-ray/SNPaymentPortal/utils"
)

// Reason identifies what triggered a provisioning run.
type Reason string

const (
	ReasonCheckoutCompleted Reason = "checkout_completed"
	ReasonRenewalInvoice    Reason = "renewal_invoice"
	ReasonPlanChange        Reason = "plan_change"
	ReasonRefresh           Reason = "refresh"
)

const defaultAccessMonths = 6

// AccessClient is the slice of the TradingView client the state machine needs.
type AccessClient interface {
	GrantAccess(username, duration string) ([]tradingview.GrantResult, error)
}

// PlanResolver resolves a billing price to a plan.
type PlanResolver interface {
	GetPlanByPriceID(priceID string) (models.Plan, bool)
}

// CustomerStore reads and writes the customer record that carries the
// provisioning state. Backed by the Stripe customer metadata in production.
type CustomerStore interface {
	GetCustomer(customerID string) (Customer, error)
	UpdateMetadata(customerID string, fields map[string]string) error
}

// SessionRefresher is the out-of-band escape hatch for an expired TradingView
// session. Fire-and-forget: the boolean outcome is logged, never propagated.
type SessionRefresher interface {
	TriggerRefresh(customerID string) bool
}

// Customer is the provisioning view of a billing customer.
type Customer struct {
	ID       string
	Email    string
	Metadata models.CustomerMetadata
}

// Request describes one provisioning run.
type Request struct {
	Reason Reason
	// PriceID is the billing price to resolve the duration from, when known.
	PriceID string
	// Plan short-circuits price resolution when the caller already has it.
	Plan *models.Plan
	// Manual marks a user-triggered refresh, which re-attempts the grant even
	// when the status is already complete.
	Manual bool
}

// Outcome is what a provisioning run decided and did.
type Outcome struct {
	Status             models.ProvisioningStatus `json:"provisioningStatus"`
	NeedsOnboarding    bool                      `json:"needsOnboarding,omitempty"`
	AlreadyProvisioned bool                      `json:"alreadyProvisioned,omitempty"`
	Username           string                    `json:"username,omitempty"`
	Duration           string                    `json:"duration,omitempty"`
	Results            []tradingview.GrantResult `json:"results,omitempty"`
	ErrorMessage       string                    `json:"error,omitempty"`
}

// Provisioner reconciles billing entitlement into TradingView grants. It is
// the only writer of the provisioning_status metadata field.
type Provisioner struct {
	Access    AccessClient
	Plans     PlanResolver
	Customers CustomerStore
	Refresher SessionRefresher
}

func NewProvisioner(access AccessClient, plans PlanResolver, customers CustomerStore, refresher SessionRefresher) *Provisioner {
	return &Provisioner{
		Access:    access,
		Plans:     plans,
		Customers: customers,
		Refresher: refresher,
	}
}

// Provision runs the grant decision for one customer.
//
// The status is moved to pending and persisted before the TradingView call so
// a crash mid-call leaves an observable non-terminal state. Success moves it
// to complete and clears last_error; failure moves it to failed, and to
// retry_pending when the error looks like an expired session, in which case
// the session refresh trigger fires as well.
func (p *Provisioner) Provision(customer Customer, req Request) Outcome {
	username := customer.Metadata.TradingViewUsername
	if username == "" {
		utils.LogInfo("Customer " + customer.ID + " has no TradingView username, needs onboarding")
		return Outcome{
			Status:          customer.Metadata.ProvisioningStatus,
			NeedsOnboarding: true,
		}
	}

	plan, months := p.resolveMonths(customer, req)

	// A non-manual refresh against an already-complete customer is a pure
	// status check: report and make no TradingView call.
	if req.Reason == ReasonRefresh && !req.Manual &&
		customer.Metadata.ProvisioningStatus == models.ProvisioningComplete {
		return Outcome{
			Status:             models.ProvisioningComplete,
			AlreadyProvisioned: true,
			Username:           username,
		}
	}

	pendingFields := map[string]string{
		models.MetaProvisioningStatus: string(models.ProvisioningPending),
	}
	if plan != nil {
		// Snapshot the plan on the customer so display and fallbacks survive a
		// later catalog lookup failure.
		for k, v := range models.PlanMetadataFields(*plan) {
			pendingFields[k] = v
		}
	}
	if err := p.Customers.UpdateMetadata(customer.ID, pendingFields); err != nil {
		utils.LogError(err, "Could not mark provisioning pending for customer "+customer.ID)
		return Outcome{
			Status:       customer.Metadata.ProvisioningStatus,
			Username:     username,
			ErrorMessage: err.Error(),
		}
	}

	duration := fmt.Sprintf("%dM", months)
	results, err := p.Access.GrantAccess(username, duration)

	if msg := grantError(results, err); msg != "" {
		return p.recordFailure(customer.ID, username, duration, results, msg)
	}

	if err := p.Customers.UpdateMetadata(customer.ID, map[string]string{
		models.MetaProvisioningStatus: string(models.ProvisioningComplete),
		models.MetaLastError:          "",
	}); err != nil {
		utils.LogError(err, "Could not mark provisioning complete for customer "+customer.ID)
	}

	utils.LogSuccess("Granted TradingView access to " + username + " for " + duration)
	return Outcome{
		Status:   models.ProvisioningComplete,
		Username: username,
		Duration: duration,
		Results:  results,
	}
}

// resolveMonths picks the applicable access duration: explicit plan, then
// price resolution, then the customer's last plan snapshot, then the default
// floor. Never below one month.
func (p *Provisioner) resolveMonths(customer Customer, req Request) (*models.Plan, int) {
	plan := req.Plan
	if plan == nil && req.PriceID != "" {
		if resolved, ok := p.Plans.GetPlanByPriceID(req.PriceID); ok {
			plan = &resolved
		}
	}

	months := 0
	if plan != nil {
		months = plan.TotalAccessMonths
	}
	if months == 0 {
		months = customer.Metadata.TotalAccessMonths
	}
	if months == 0 {
		months = defaultAccessMonths
	}
	if months < 1 {
		months = 1
	}
	return plan, months
}

func (p *Provisioner) recordFailure(customerID, username, duration string, results []tradingview.GrantResult, msg string) Outcome {
	utils.LogError(nil, "Failed to grant TradingView access to "+username+": "+msg)

	status := models.ProvisioningFailed
	if err := p.Customers.UpdateMetadata(customerID, map[string]string{
		models.MetaProvisioningStatus: string(status),
		models.MetaLastError:          msg,
	}); err != nil {
		utils.LogError(err, "Could not record provisioning failure for customer "+customerID)
	}

	if IsSessionError(msg) {
		utils.LogInfo("Session error detected, triggering session refresh for customer " + customerID)
		if p.Refresher != nil {
			if ok := p.Refresher.TriggerRefresh(customerID); !ok {
				utils.LogError(nil, "Session refresh trigger failed for customer "+customerID)
			}
		}

		status = models.ProvisioningRetryPending
		if err := p.Customers.UpdateMetadata(customerID, map[string]string{
			models.MetaProvisioningStatus: string(status),
			models.MetaLastError:          msg,
		}); err != nil {
			utils.LogError(err, "Could not record retry_pending for customer "+customerID)
		}
	}

	return Outcome{
		Status:       status,
		Username:     username,
		Duration:     duration,
		Results:      results,
		ErrorMessage: msg,
	}
}

// grantError reduces a grant attempt to a single failure message, empty when
// every indicator succeeded. Per-indicator failures do not roll back sibling
// successes; any failure still fails the operation as a whole.
func grantError(results []tradingview.GrantResult, err error) string {
	if err != nil {
		return err.Error()
	}
	for _, r := range results {
		if r.Status == tradingview.StatusFailure {
			if r.Error != "" {
				return r.Error
			}
			return "grant failed for pine " + r.PineID
		}
	}
	return ""
}

// IsSessionError reports whether a grant failure looks like an expired or
// rejected TradingView session.
func IsSessionError(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "session") ||
		strings.Contains(msg, "401") ||
		strings.Contains(msg, "403") ||
		strings.Contains(msg, "unauthorized")
}
