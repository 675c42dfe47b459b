package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dan9191/scheme-service/internal/catalog"
	"github.com/Dan9191/scheme-service/internal/config"
	"github.com/Dan9191/scheme-service/internal/eligibility"
	"github.com/Dan9191/scheme-service/internal/flow"
	"github.com/Dan9191/scheme-service/internal/handoff"
	"github.com/Dan9191/scheme-service/internal/integrations/backend"
	"github.com/Dan9191/scheme-service/internal/limits"
	"github.com/Dan9191/scheme-service/internal/middleware"
	"github.com/Dan9191/scheme-service/internal/models"
	"github.com/Dan9191/scheme-service/internal/payment"
	"github.com/Dan9191/scheme-service/internal/repository"
	"github.com/Dan9191/scheme-service/internal/service"
	"github.com/Dan9191/scheme-service/internal/utils"
)

type upstream struct {
	kyc     bool
	gateway string
}

func (u *upstream) FetchHome(ctx context.Context) (*models.HomeBundle, error) {
	return &models.HomeBundle{}, nil
}

func (u *upstream) FetchBranches(ctx context.Context) ([]models.Branch, error) {
	return []models.Branch{{ID: "b1", Name: "Chennai"}}, nil
}

func (u *upstream) FetchKYCStatus(ctx context.Context, userID string) (bool, error) {
	return u.kyc, nil
}

func (u *upstream) FetchLimits(ctx context.Context, schemeID string) ([]models.LimitRecord, error) {
	return []models.LimitRecord{{
		SchemeID: schemeID,
		Min:      decimal.NewNullDecimal(decimal.NewFromInt(10000)),
		Max:      decimal.NewNullDecimal(decimal.NewFromInt(20000)),
	}}, nil
}

func (u *upstream) CreateEnrollment(ctx context.Context, req backend.EnrollmentRequest) (*models.Enrollment, error) {
	return &models.Enrollment{AccountNo: "ACC1", InvestmentID: "INV1"}, nil
}

func (u *upstream) InitiatePayment(ctx context.Context, form url.Values) ([]byte, error) {
	return []byte(u.gateway), nil
}

type gold struct{}

func (gold) GetGoldRate(ctx context.Context) (float64, error) { return 5000, nil }

func newRouter(t *testing.T, up *upstream) *mux.Router {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	mem := repository.NewMemory()
	key, err := utils.ParseKey("a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6")
	require.NoError(t, err)

	cache := catalog.NewCache(catalog.FetcherFunc(func(ctx context.Context) ([]models.Scheme, error) {
		return []models.Scheme{{
			ID: "s1", Name: models.PlainText("Golden Eleven"), Active: true,
			Chits: []models.Chit{{ID: "c1", Frequency: "Monthly", Active: true}},
		}}, nil
	}), time.Minute, log)
	resolver := limits.NewResolver(up, cache, log)
	gate := eligibility.NewGate(up, 20*time.Millisecond, log)
	builder := payment.NewBuilder(2048)
	hs := handoff.NewStore(mem, key, builder, log)
	engine := flow.NewEngine(flow.Deps{
		Gate: gate, Limits: resolver, Enroller: up, Builder: builder,
		Initiator: payment.NewInitiator(up, log), Handoff: hs,
		DefaultMax: decimal.NewFromInt(100000), Log: log,
	})
	svc := service.NewService(service.Deps{
		Catalog: cache, Limits: resolver, Gate: gate, Upstream: up, Gold: gold{},
		Store: mem, Handoff: hs, Engine: engine,
	}, &config.Config{DefaultMaxAmount: 100000}, log)

	r := mux.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			user := models.User{ID: "u1", Name: "Asha", Email: "asha@example.com"}
			next.ServeHTTP(w, req.WithContext(middleware.WithUser(req.Context(), user)))
		})
	})
	NewHandler(svc, log).RegisterRoutes(r)
	return r
}

func do(t *testing.T, r http.Handler, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, target, &buf))
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

const primaryReply = `{"session":{"order_id":"ord-9","payment_links":{"web":"https://pay.example.com/ord-9"}}}`

func startFlow(t *testing.T, r http.Handler) string {
	t.Helper()
	rec := do(t, r, http.MethodPost, "/join", map[string]string{"scheme_id": "s1", "source": "quick_join"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var snap flow.Snapshot
	decodeBody(t, rec, &snap)
	return snap.ID
}

func TestTabsAndBucket(t *testing.T) {
	r := newRouter(t, &upstream{kyc: true})

	rec := do(t, r, http.MethodGet, "/schemes/tabs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var tabs service.TabsView
	decodeBody(t, rec, &tabs)
	assert.Equal(t, "Monthly", tabs.Active)

	rec = do(t, r, http.MethodPost, "/schemes/tabs/select", map[string]string{"tab": "Weekly"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, r, http.MethodGet, "/schemes/bucket?scheme_id=s1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var bucket service.BucketView
	decodeBody(t, rec, &bucket)
	require.Len(t, bucket.Entries, 1)
	require.NotNil(t, bucket.Highlight)
}

func TestLimitsEndpoint(t *testing.T) {
	r := newRouter(t, &upstream{kyc: true})
	rec := do(t, r, http.MethodGet, "/schemes/s1/limits", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var view service.LimitsView
	decodeBody(t, rec, &view)
	assert.Equal(t, limits.SourceEndpoint, view.Source)
	assert.True(t, view.Limit.Min.Decimal.Equal(decimal.NewFromInt(10000)))
}

func TestJoin_AmountValidationMessage(t *testing.T) {
	r := newRouter(t, &upstream{kyc: true, gateway: primaryReply})
	id := startFlow(t, r)

	rec := do(t, r, http.MethodPost, "/join/"+id+"/path", map[string]string{"path": "full", "chit_id": "c1"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, r, http.MethodPost, "/join/"+id+"/amount", map[string]interface{}{"amount": 5000})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp errorResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, "Minimum amount is ₹10,000", resp.Error)
	assert.Equal(t, "amount", resp.Field)

	rec = do(t, r, http.MethodPost, "/join/"+id+"/amount", map[string]interface{}{"amount": 25000})
	decodeBody(t, rec, &resp)
	assert.Equal(t, "Maximum amount is ₹20,000", resp.Error)
}

func TestJoin_FullFlowToRedirect(t *testing.T) {
	r := newRouter(t, &upstream{kyc: true, gateway: primaryReply})
	id := startFlow(t, r)

	require.Equal(t, http.StatusOK, do(t, r, http.MethodPost, "/join/"+id+"/path", map[string]string{"path": "quick", "chit_id": "c1"}).Code)
	require.Equal(t, http.StatusOK, do(t, r, http.MethodPost, "/join/"+id+"/amount", map[string]interface{}{"amount": "15000", "branch_id": "b1"}).Code)

	rec := do(t, r, http.MethodPost, "/join/"+id+"/initiate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var redirect models.RedirectInstruction
	decodeBody(t, rec, &redirect)
	assert.Equal(t, "https://pay.example.com/ord-9", redirect.URL)
	assert.Equal(t, "ord-9", redirect.OrderID)

	assert.Equal(t, http.StatusNoContent, do(t, r, http.MethodDelete, "/join/"+id, nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodGet, "/join/"+id, nil).Code)
}

func TestJoin_QuickPathBlocked(t *testing.T) {
	r := newRouter(t, &upstream{kyc: false})
	id := startFlow(t, r)

	rec := do(t, r, http.MethodPost, "/join/"+id+"/path", map[string]string{"path": "quick", "chit_id": "c1"})
	require.Equal(t, http.StatusConflict, rec.Code)
	var resp struct {
		Eligibility struct {
			State   string   `json:"state"`
			Options []string `json:"options"`
		} `json:"eligibility"`
	}
	decodeBody(t, rec, &resp)
	assert.Equal(t, "false", resp.Eligibility.State)
	assert.Equal(t, []string{"cancel", "complete_kyc"}, resp.Eligibility.Options)

	rec = do(t, r, http.MethodPost, "/join/"+id+"/kyc", map[string]string{"option": "cancel"})
	require.Equal(t, http.StatusOK, rec.Code)
	var snap flow.Snapshot
	decodeBody(t, rec, &snap)
	assert.Equal(t, flow.PhaseBrowsing, snap.Phase)
}

func TestJoin_GatewayWithoutURL(t *testing.T) {
	r := newRouter(t, &upstream{kyc: true, gateway: `{"status":"ok","data":null}`})
	id := startFlow(t, r)
	require.Equal(t, http.StatusOK, do(t, r, http.MethodPost, "/join/"+id+"/path", map[string]string{"path": "full", "chit_id": "c1"}).Code)
	require.Equal(t, http.StatusOK, do(t, r, http.MethodPost, "/join/"+id+"/amount", map[string]interface{}{"amount": 12000}).Code)

	rec := do(t, r, http.MethodPost, "/join/"+id+"/initiate", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	var resp errorResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, "Unable to start payment. Please try again.", resp.Error)
}

func TestBadRequests(t *testing.T) {
	r := newRouter(t, &upstream{kyc: true})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/join", bytes.NewBufferString("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodPost, "/join", map[string]string{}).Code)
	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodPost, "/join", map[string]string{"scheme_id": "zzz"}).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodGet, "/gold/weight?amount=abc", nil).Code)
}

func TestGoldWeight_NonFiniteAmount(t *testing.T) {
	r := newRouter(t, &upstream{kyc: true})

	for _, amount := range []string{"NaN", "Inf", "-Inf", "infinity"} {
		rec := do(t, r, http.MethodGet, "/gold/weight?amount="+amount, nil)
		require.Equal(t, http.StatusBadRequest, rec.Code, amount)
		require.NotZero(t, rec.Body.Len(), amount)
		var resp errorResponse
		decodeBody(t, rec, &resp)
		assert.Equal(t, "amount", resp.Field, amount)
	}
}

func TestWriteJSON_EncodeFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusOK, map[string]float64{"weight": math.Inf(1)})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var resp errorResponse
	decodeBody(t, rec, &resp)
	assert.NotEmpty(t, resp.Error)
}

func TestGoldWeightAndBanner(t *testing.T) {
	r := newRouter(t, &upstream{kyc: true})

	rec := do(t, r, http.MethodGet, "/gold/weight?amount=10000", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view service.GoldWeightView
	decodeBody(t, rec, &view)
	assert.InDelta(t, 2.0, view.Weight, 1e-9)

	assert.Equal(t, http.StatusNoContent, do(t, r, http.MethodPost, "/banner/seen", nil).Code)
	rec = do(t, r, http.MethodGet, "/banner/seen", nil)
	var seen map[string]bool
	decodeBody(t, rec, &seen)
	assert.True(t, seen["seen"])
}
