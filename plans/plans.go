package plans

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/price"

	"github.com/om-ray/SNPaymentPortal/models"
	"github.com/om-ray/SNPaymentPortal/utils"
)

const cacheTTL = 5 * time.Minute

// PriceFetcher retrieves one Stripe price with its product expanded. The
// Stripe-backed implementation is the only one outside tests.
type PriceFetcher interface {
	Get(priceID string) (*stripe.Price, error)
}

type stripePriceFetcher struct{}

func (stripePriceFetcher) Get(priceID string) (*stripe.Price, error) {
	stripe.Key = os.Getenv("STRIPE_SECRET_KEY")

	params := &stripe.PriceParams{}
	params.AddExpand("product")
	return price.Get(priceID, params)
}

// Catalog resolves billing prices to plans, read-through over the Stripe
// catalog with a 5-minute snapshot cache. The cache and its clock are owned by
// the catalog instance, not package state, so tests control time and never
// leak entries into each other.
type Catalog struct {
	fetcher  PriceFetcher
	priceIDs []string
	now      func() time.Time

	mu        sync.Mutex
	cached    []models.Plan
	fetchedAt time.Time
}

// NewCatalogFromEnv reads the configured price list from STRIPE_PRICE_IDS
// (comma-separated).
func NewCatalogFromEnv() *Catalog {
	var priceIDs []string
	for _, id := range strings.Split(os.Getenv("STRIPE_PRICE_IDS"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			priceIDs = append(priceIDs, id)
		}
	}
	return NewCatalog(stripePriceFetcher{}, priceIDs)
}

func NewCatalog(fetcher PriceFetcher, priceIDs []string) *Catalog {
	return &Catalog{
		fetcher:  fetcher,
		priceIDs: priceIDs,
		now:      time.Now,
	}
}

// GetPlans returns the plan list, refreshing the snapshot when the TTL has
// passed. A price that fails to fetch is logged and skipped; the rest of the
// catalog still resolves.
func (c *Catalog) GetPlans() []models.Plan {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cached != nil && c.now().Sub(c.fetchedAt) < cacheTTL {
		return c.cached
	}

	plans := make([]models.Plan, 0, len(c.priceIDs))
	for _, priceID := range c.priceIDs {
		p, err := c.fetcher.Get(priceID)
		if err != nil {
			utils.LogError(err, "Could not fetch plan "+priceID+" from Stripe")
			continue
		}
		plans = append(plans, buildPlan(priceID, p))
	}

	c.cached = plans
	c.fetchedAt = c.now()
	return plans
}

// GetPlanByPriceID resolves a plan by its Stripe price id. Unknown ids are not
// an error, the caller applies its own fallback.
func (c *Catalog) GetPlanByPriceID(priceID string) (models.Plan, bool) {
	for _, plan := range c.GetPlans() {
		if plan.PriceID == priceID {
			return plan, true
		}
	}
	return models.Plan{}, false
}

// GetPlanByPlanID resolves a plan by its internal plan id (product metadata).
func (c *Catalog) GetPlanByPlanID(id string) (models.Plan, bool) {
	for _, plan := range c.GetPlans() {
		if plan.ID == id {
			return plan, true
		}
	}
	return models.Plan{}, false
}

func buildPlan(priceID string, p *stripe.Price) models.Plan {
	var product *stripe.Product
	if p != nil {
		product = p.Product
	}

	metadata := map[string]string{}
	name := "Plan"
	description := ""
	if product != nil {
		if product.Metadata != nil {
			metadata = product.Metadata
		}
		if product.Name != "" {
			name = product.Name
		}
		description = product.Description
	}

	accessDurationMonths := atoiOrZero(metadata["access_duration_months"])
	bonusMonths := atoiOrZero(metadata["bonus_months"])

	// When the product metadata yields no duration at all, fall back to the
	// price's own recurring interval.
	if accessDurationMonths+bonusMonths == 0 {
		accessDurationMonths = monthsFromRecurring(p.Recurring)
	}

	var features []string
	if raw := metadata["features"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &features); err != nil {
			utils.LogError(err, "Invalid features metadata on plan "+priceID)
		}
	}

	id := metadata["plan_id"]
	if id == "" {
		id = priceID
	}

	var amount float64
	if p.UnitAmount != 0 {
		amount = float64(p.UnitAmount) / 100
	}

	return models.Plan{
		ID:                   id,
		PriceID:              priceID,
		Name:                 name,
		Description:          description,
		Price:                amount,
		Currency:             string(p.Currency),
		Interval:             intervalDisplay(p.Recurring),
		PlanType:             metadata["plan_type"],
		AccessDurationMonths: accessDurationMonths,
		BonusMonths:          bonusMonths,
		TotalAccessMonths:    accessDurationMonths + bonusMonths,
		InternalProductID:    metadata["internal_product_id"],
		Features:             features,
	}
}

// monthsFromRecurring derives an access duration from the billing interval
// when the product metadata does not define one.
func monthsFromRecurring(r *stripe.PriceRecurring) int {
	if r == nil {
		return 0
	}

	count := int(r.IntervalCount)
	if count < 1 {
		count = 1
	}

	switch r.Interval {
	case stripe.PriceRecurringIntervalYear:
		return 12 * count
	case stripe.PriceRecurringIntervalMonth:
		return count
	default:
		return 0
	}
}

func intervalDisplay(r *stripe.PriceRecurring) string {
	if r == nil {
		return "month"
	}
	if r.Interval == stripe.PriceRecurringIntervalYear {
		return "year"
	}
	if r.Interval == stripe.PriceRecurringIntervalMonth && r.IntervalCount == 6 {
		return "6 months"
	}
	return string(r.Interval)
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
