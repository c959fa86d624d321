package admin

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simodepertis/frontend-sub001/internal/models"
	"github.com/simodepertis/frontend-sub001/internal/schedule"
	"github.com/simodepertis/frontend-sub001/internal/service"
)

type fakeBumps struct {
	purchase   service.PurchaseRequest
	reschedule schedule.Template
	userID     int64
	err        error
}

func (f *fakeBumps) PurchaseBump(_ context.Context, req service.PurchaseRequest) (service.PurchaseResult, error) {
	f.purchase = req
	return service.PurchaseResult{PurchaseID: 9, WalletBalance: 7, Scheduled: 3, TimeSlot: "10:00-11:00"}, f.err
}

func (f *fakeBumps) RescheduleBump(_ context.Context, userID, _ int64, tpl schedule.Template) (service.RescheduleResult, error) {
	f.userID = userID
	f.reschedule = tpl
	return service.RescheduleResult{Scheduled: 2}, f.err
}

func (f *fakeBumps) Status(_ context.Context, userID, listingID int64) (service.BumpStatus, error) {
	f.userID = userID
	return service.BumpStatus{ListingID: listingID, MaxBumps: 3}, f.err
}

type fakeWallet struct{ granted int }

func (f *fakeWallet) Grant(_ context.Context, userID int64, amount int) (*models.User, error) {
	if userID == 404 {
		return nil, service.ErrUserNotFound
	}
	f.granted += amount
	return &models.User{ID: userID, Credits: f.granted}, nil
}

type fakeProducts struct {
	created service.CreateProductInput
	err     error
}

func (f *fakeProducts) List(context.Context) ([]models.PromotionProduct, error) {
	return []models.PromotionProduct{{ID: 1, Code: "DAY_7"}}, nil
}

func (f *fakeProducts) Create(_ context.Context, in service.CreateProductInput) (*models.PromotionProduct, error) {
	f.created = in
	if f.err != nil {
		return nil, f.err
	}
	return &models.PromotionProduct{ID: 2, Code: in.Code}, nil
}

func (f *fakeProducts) Update(_ context.Context, id int64, _ service.UpdateProductInput) (*models.PromotionProduct, error) {
	return &models.PromotionProduct{ID: id}, f.err
}

func (f *fakeProducts) Deactivate(context.Context, int64) error { return f.err }

type fakeIngestion struct {
	started chan service.RunRequest
}

func (f *fakeIngestion) Run(_ context.Context, req service.RunRequest) (service.RunResult, error) {
	f.started <- req
	return service.RunResult{}, nil
}

func (f *fakeIngestion) ListRuns(context.Context, int) ([]models.IngestionRun, error) {
	return nil, nil
}

type fakeTicker struct{}

func (fakeTicker) Tick(context.Context) (service.TickReport, error) {
	return service.TickReport{Candidates: 2, Bumped: 1}, nil
}

type fakeSweeper struct{}

func (fakeSweeper) Tick(context.Context) (service.SweepReport, error) {
	return service.SweepReport{ExpiredListings: 3}, nil
}

type testEnv struct {
	bumps     *fakeBumps
	products  *fakeProducts
	ingestion *fakeIngestion
	handler   http.Handler
}

func newEnv() *testEnv {
	env := &testEnv{
		bumps:     &fakeBumps{},
		products:  &fakeProducts{},
		ingestion: &fakeIngestion{started: make(chan service.RunRequest, 1)},
	}
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("listingd_up 1\n")) })
	srv := NewServer(":0", "admin", "secret", slog.New(slog.NewTextHandler(io.Discard, nil)), Deps{
		Bumps:     env.bumps,
		Wallet:    &fakeWallet{},
		Products:  env.products,
		Ingestion: env.ingestion,
		Executor:  fakeTicker{},
		Sweeper:   fakeSweeper{},
		Metrics:   metrics,
	})
	env.handler = srv.Handler()
	return env
}

func (e *testEnv) do(method, path, body string, prepare func(*http.Request)) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if prepare != nil {
		prepare(req)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func asUser(id string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set("X-User-ID", id) }
}

func asAdmin(r *http.Request) { r.SetBasicAuth("admin", "secret") }

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func TestHealthAndMetrics(t *testing.T) {
	env := newEnv()
	rec := env.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = env.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "listingd_up")
}

func TestPurchaseRequiresUser(t *testing.T) {
	env := newEnv()
	rec := env.do(http.MethodPost, "/api/bumps/purchase", `{"listing_id":1,"product_code":"DAY_7"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(http.MethodPost, "/api/bumps/purchase", `{"listing_id":1,"product_code":"DAY_7"}`, asUser("abc"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPurchasePassesTemplate(t *testing.T) {
	env := newEnv()
	rec := env.do(http.MethodPost, "/api/bumps/purchase",
		`{"listing_id":5,"product_code":" DAY_7 ","template":{"hours":[9,21],"per_day":{"2":[12]}}}`, asUser("42"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	assert.Equal(t, int64(42), env.bumps.purchase.UserID)
	assert.Equal(t, int64(5), env.bumps.purchase.ListingID)
	assert.Equal(t, "DAY_7", env.bumps.purchase.ProductCode)
	assert.Equal(t, []int{9, 21}, env.bumps.purchase.Template.Hours)
	assert.Equal(t, []int{12}, env.bumps.purchase.Template.PerDay[2])

	var res service.PurchaseResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, 7, res.WalletBalance)
}

func TestServiceErrorsMapToStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{service.ErrInsufficientCredits, http.StatusPaymentRequired},
		{service.ErrForbidden, http.StatusForbidden},
		{service.ErrListingNotFound, http.StatusNotFound},
		{service.ErrProductNotFound, http.StatusNotFound},
		{service.ErrNoActivePurchase, http.StatusNotFound},
		{service.ErrNotReschedulable, http.StatusConflict},
		{service.ErrPromotionActive, http.StatusConflict},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.want), func(t *testing.T) {
			env := newEnv()
			env.bumps.err = tc.err
			rec := env.do(http.MethodPost, "/api/bumps/reschedule", `{"listing_id":5,"template":{"hours":[23]}}`, asUser("42"))
			assert.Equal(t, tc.want, rec.Code)
			assert.NotEmpty(t, errorOf(t, rec))
		})
	}
}

func TestPurchaseValidatesBody(t *testing.T) {
	env := newEnv()
	rec := env.do(http.MethodPost, "/api/bumps/purchase", `{"listing_id":5}`, asUser("42"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, "/api/bumps/purchase", `not json`, asUser("42"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid json", errorOf(t, rec))
}

func TestAdminRequiresBasicAuth(t *testing.T) {
	env := newEnv()
	rec := env.do(http.MethodGet, "/admin/products", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, `Basic realm="listingd"`, rec.Header().Get("WWW-Authenticate"))

	rec = env.do(http.MethodGet, "/admin/products", "", func(r *http.Request) { r.SetBasicAuth("admin", "nope") })
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminProducts(t *testing.T) {
	env := newEnv()
	rec := env.do(http.MethodGet, "/admin/products", "", asAdmin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "DAY_7")

	rec = env.do(http.MethodPost, "/admin/products", `{"code":"NIGHT_3","label":"Notte","kind":"NIGHT","quantity_per_window":2,"duration_days":3,"credits_cost":4}`, asAdmin)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, models.ProductNight, env.products.created.Kind)
	assert.Equal(t, 2, env.products.created.QuantityPerWindow)

	rec = env.do(http.MethodPut, "/admin/products/abc", `{}`, asAdmin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodDelete, "/admin/products/3", "", asAdmin)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	env.products.err = service.ErrInvalidInput
	rec = env.do(http.MethodPost, "/admin/products", `{"code":"X"}`, asAdmin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminJobs(t *testing.T) {
	env := newEnv()
	rec := env.do(http.MethodPost, "/admin/jobs/bump-tick", "", asAdmin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"skipped":false,"candidates":2,"bumped":1,"out_of_slot":0,"failed":0}`, rec.Body.String())

	rec = env.do(http.MethodPost, "/admin/jobs/expiry-sweep", "", asAdmin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"skipped":false,"expired_purchases":0,"expired_listings":3}`, rec.Body.String())
}

func TestAdminIngestionRunStartsInBackground(t *testing.T) {
	env := newEnv()
	rec := env.do(http.MethodPost, "/admin/ingestion/run", `{"sources":["milano"],"limit":5}`, asAdmin)
	require.Equal(t, http.StatusAccepted, rec.Code)

	select {
	case req := <-env.ingestion.started:
		assert.Equal(t, []string{"milano"}, req.Sources)
		assert.Equal(t, 5, req.Limit)
	case <-time.After(2 * time.Second):
		t.Fatal("ingestion run was not started")
	}

	rec = env.do(http.MethodGet, "/admin/ingestion/runs?limit=5", "", asAdmin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestBumpStatusForOwner(t *testing.T) {
	env := newEnv()
	rec := env.do(http.MethodGet, "/api/bumps/12", "", asUser("42"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(42), env.bumps.userID)

	var status service.BumpStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, int64(12), status.ListingID)

	rec = env.do(http.MethodGet, "/api/bumps/x", "", asUser("42"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminGrantCredits(t *testing.T) {
	env := newEnv()
	rec := env.do(http.MethodPost, "/admin/users/42/credits", `{"amount":15}`, asAdmin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user_id":42,"credits":15}`, rec.Body.String())

	rec = env.do(http.MethodPost, "/admin/users/404/credits", `{"amount":15}`, asAdmin)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
