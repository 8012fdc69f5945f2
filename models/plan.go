package models

// Plan is a Stripe price joined with the product metadata that drives
// provisioning. It is derived from the Stripe catalog, never persisted here.
type Plan struct {
	ID                   string   `json:"id"`
	PriceID              string   `json:"priceId"`
	Name                 string   `json:"name"`
	Description          string   `json:"description"`
	Price                float64  `json:"price"`
	Currency             string   `json:"currency"`
	Interval             string   `json:"interval"`
	PlanType             string   `json:"planType"`
	AccessDurationMonths int      `json:"accessDurationMonths"`
	BonusMonths          int      `json:"bonusMonths"`
	TotalAccessMonths    int      `json:"totalAccessMonths"`
	InternalProductID    string   `json:"internalProductId"`
	Features             []string `json:"features"`
}
