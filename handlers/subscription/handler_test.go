package subscription

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	stripe "github.com/stripe/stripe-go/v82"

	"github.com/om-ray/SNPaymentPortal/models"
	"github.com/om-ray/SNPaymentPortal/plans"
	"github.com/om-ray/SNPaymentPortal/provisioning"
	"github.com/om-ray/SNPaymentPortal/testutils"
	"github.com/om-ray/SNPaymentPortal/tradingview"
)

func TestMain(m *testing.M) {
	testutils.InitTestMain()
	os.Exit(m.Run())
}

type fakeFetcher struct {
	prices map[string]*stripe.Price
}

func (f *fakeFetcher) Get(priceID string) (*stripe.Price, error) {
	p, ok := f.prices[priceID]
	if !ok {
		return nil, errors.New("no such price")
	}
	return p, nil
}

func annualPrice() *stripe.Price {
	return &stripe.Price{
		ID:         "price_annual",
		UnitAmount: 49900,
		Currency:   stripe.CurrencyUSD,
		Recurring:  &stripe.PriceRecurring{Interval: stripe.PriceRecurringIntervalYear, IntervalCount: 1},
		Product: &stripe.Product{
			Name: "SN Vision Annual",
			Metadata: map[string]string{
				"plan_id":                "annual",
				"plan_type":              "annual",
				"access_duration_months": "12",
				"bonus_months":           "6",
				"internal_product_id":    "sn_vision_annual",
			},
		},
	}
}

type fakeAccess struct {
	calls []string
}

func (f *fakeAccess) GrantAccess(username, duration string) ([]tradingview.GrantResult, error) {
	f.calls = append(f.calls, username+" "+duration)
	return []tradingview.GrantResult{{PineID: "PUB;1", Status: tradingview.StatusSuccess}}, nil
}

type fakeStore struct{}

func (fakeStore) GetCustomer(customerID string) (provisioning.Customer, error) {
	return provisioning.Customer{ID: customerID}, nil
}

func (fakeStore) UpdateMetadata(customerID string, fields map[string]string) error {
	return nil
}

func setupCatalog() {
	fetcher := &fakeFetcher{prices: map[string]*stripe.Price{"price_annual": annualPrice()}}
	Init(plans.NewCatalog(fetcher, []string{"price_annual"}), provisioner)
}

func setupProvisioner() *fakeAccess {
	access := &fakeAccess{}
	fetcher := &fakeFetcher{prices: map[string]*stripe.Price{"price_annual": annualPrice()}}
	c := plans.NewCatalog(fetcher, []string{"price_annual"})
	Init(c, provisioning.NewProvisioner(access, c, fakeStore{}, nil))
	return access
}

func authedRouter(userID string, method, path string, handler gin.HandlerFunc) *gin.Engine {
	r := testutils.SetupTestRouter()
	r.Handle(method, path, func(c *gin.Context) {
		if userID != "" {
			c.Set("user_id", userID)
		}
		handler(c)
	})
	return r
}

func stubCustomerByEmail(t *testing.T, cust *provisioning.Customer, err error) {
	orig := provisioning.GetCustomerByEmail
	provisioning.GetCustomerByEmail = func(email string) (*provisioning.Customer, error) {
		return cust, err
	}
	t.Cleanup(func() { provisioning.GetCustomerByEmail = orig })
}

func stubActiveSubscription(t *testing.T, sub *stripe.Subscription) {
	orig := provisioning.GetActiveSubscription
	provisioning.GetActiveSubscription = func(customerID string) (*stripe.Subscription, error) {
		return sub, nil
	}
	t.Cleanup(func() { provisioning.GetActiveSubscription = orig })
}

func expectUserByID(mock sqlmock.Sqlmock, email string) {
	mock.ExpectQuery(`SELECT \* FROM "users" WHERE id = \$1`).
		WithArgs("42", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email"}).AddRow(42, email))
}

func TestGetPlans(t *testing.T) {
	setupCatalog()

	r := testutils.SetupTestRouter()
	r.GET("/subscription/plans", GetPlans)

	req, _ := http.NewRequest(http.MethodGet, "/subscription/plans", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusOK, resp.Code)

	var body struct {
		Plans []models.Plan `json:"plans"`
	}
	assert.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Len(t, body.Plans, 1)
	assert.Equal(t, "annual", body.Plans[0].ID)
	assert.Equal(t, 18, body.Plans[0].TotalAccessMonths)
	assert.Equal(t, 499.0, body.Plans[0].Price)
}

func TestGetPrice(t *testing.T) {
	setupCatalog()

	r := testutils.SetupTestRouter()
	r.GET("/subscription/price", GetPrice)

	req, _ := http.NewRequest(http.MethodGet, "/subscription/price?priceId=price_annual", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusOK, resp.Code)

	var plan models.Plan
	assert.NoError(t, json.Unmarshal(resp.Body.Bytes(), &plan))
	assert.Equal(t, "price_annual", plan.PriceID)
}

func TestGetPrice_MissingParam(t *testing.T) {
	setupCatalog()

	r := testutils.SetupTestRouter()
	r.GET("/subscription/price", GetPrice)

	req, _ := http.NewRequest(http.MethodGet, "/subscription/price", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestGetPrice_UnknownPrice(t *testing.T) {
	setupCatalog()

	r := testutils.SetupTestRouter()
	r.GET("/subscription/price", GetPrice)

	req, _ := http.NewRequest(http.MethodGet, "/subscription/price?priceId=price_nope", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestRefreshAccess_Grants(t *testing.T) {
	_, mock, cleanup := testutils.SetupTestDB(t)
	defer cleanup()
	expectUserByID(mock, "trader@example.com")

	access := setupProvisioner()
	stubCustomerByEmail(t, &provisioning.Customer{
		ID: "cus_123",
		Metadata: models.CustomerMetadata{
			TradingViewUsername: "foobar",
			ProvisioningStatus:  models.ProvisioningComplete,
		},
	}, nil)
	stubActiveSubscription(t, &stripe.Subscription{
		ID: "sub_123",
		Items: &stripe.SubscriptionItemList{
			Data: []*stripe.SubscriptionItem{{Price: &stripe.Price{ID: "price_annual"}}},
		},
	})

	r := authedRouter("42", http.MethodPost, "/subscription/refresh-access", RefreshAccess)
	req, _ := http.NewRequest(http.MethodPost, "/subscription/refresh-access", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusOK, resp.Code)
	// Manual refresh re-grants even though the status is already complete
	assert.Equal(t, []string{"foobar 18M"}, access.calls)

	var body map[string]interface{}
	assert.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "complete", body["provisioningStatus"])
}

func TestRefreshAccess_NoCustomer(t *testing.T) {
	_, mock, cleanup := testutils.SetupTestDB(t)
	defer cleanup()
	expectUserByID(mock, "trader@example.com")

	setupProvisioner()
	stubCustomerByEmail(t, nil, nil)

	r := authedRouter("42", http.MethodPost, "/subscription/refresh-access", RefreshAccess)
	req, _ := http.NewRequest(http.MethodPost, "/subscription/refresh-access", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestRefreshAccess_NeedsOnboarding(t *testing.T) {
	_, mock, cleanup := testutils.SetupTestDB(t)
	defer cleanup()
	expectUserByID(mock, "trader@example.com")

	access := setupProvisioner()
	stubCustomerByEmail(t, &provisioning.Customer{ID: "cus_123"}, nil)

	r := authedRouter("42", http.MethodPost, "/subscription/refresh-access", RefreshAccess)
	req, _ := http.NewRequest(http.MethodPost, "/subscription/refresh-access", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Contains(t, resp.Body.String(), `"needsOnboarding":true`)
	assert.Empty(t, access.calls)
}

func TestRefreshAccess_NoActiveSubscription(t *testing.T) {
	_, mock, cleanup := testutils.SetupTestDB(t)
	defer cleanup()
	expectUserByID(mock, "trader@example.com")

	access := setupProvisioner()
	stubCustomerByEmail(t, &provisioning.Customer{
		ID:       "cus_123",
		Metadata: models.CustomerMetadata{TradingViewUsername: "foobar"},
	}, nil)
	stubActiveSubscription(t, nil)

	r := authedRouter("42", http.MethodPost, "/subscription/refresh-access", RefreshAccess)
	req, _ := http.NewRequest(http.MethodPost, "/subscription/refresh-access", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Contains(t, resp.Body.String(), `"shouldHaveAccess":false`)
	assert.Empty(t, access.calls)
}

func TestRefreshAccess_Unauthenticated(t *testing.T) {
	setupProvisioner()

	r := authedRouter("", http.MethodPost, "/subscription/refresh-access", RefreshAccess)
	req, _ := http.NewRequest(http.MethodPost, "/subscription/refresh-access", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}
