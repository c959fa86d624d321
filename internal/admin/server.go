package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/simodepertis/frontend-sub001/internal/models"
	"github.com/simodepertis/frontend-sub001/internal/schedule"
	"github.com/simodepertis/frontend-sub001/internal/service"
)

type Bumps interface {
	PurchaseBump(ctx context.Context, req service.PurchaseRequest) (service.PurchaseResult, error)
	RescheduleBump(ctx context.Context, userID, listingID int64, tpl schedule.Template) (service.RescheduleResult, error)
	Status(ctx context.Context, userID, listingID int64) (service.BumpStatus, error)
}

type Wallet interface {
	Grant(ctx context.Context, userID int64, amount int) (*models.User, error)
}

type Products interface {
	List(ctx context.Context) ([]models.PromotionProduct, error)
	Create(ctx context.Context, in service.CreateProductInput) (*models.PromotionProduct, error)
	Update(ctx context.Context, id int64, in service.UpdateProductInput) (*models.PromotionProduct, error)
	Deactivate(ctx context.Context, id int64) error
}

type Ingestion interface {
	Run(ctx context.Context, req service.RunRequest) (service.RunResult, error)
	ListRuns(ctx context.Context, limit int) ([]models.IngestionRun, error)
}

type BumpTicker interface {
	Tick(ctx context.Context) (service.TickReport, error)
}

type ExpirySweeper interface {
	Tick(ctx context.Context) (service.SweepReport, error)
}

// Deps groups the services exposed over HTTP.
type Deps struct {
	Bumps     Bumps
	Wallet    Wallet
	Products  Products
	Ingestion Ingestion
	Executor  BumpTicker
	Sweeper   ExpirySweeper
	Metrics   http.Handler
}

type Server struct {
	addr     string
	username string
	password string
	log      *slog.Logger
	deps     Deps
	router   *chi.Mux
}

func NewServer(addr, username, password string, log *slog.Logger, deps Deps) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s := &Server{
		addr:     addr,
		username: username,
		password: password,
		log:      log,
		deps:     deps,
		router:   r,
	}
	r.Get("/healthz", s.handleHealth)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}
	r.Route("/api/bumps", func(api chi.Router) {
		api.Use(userMiddleware)
		api.Post("/purchase", s.handlePurchase)
		api.Post("/reschedule", s.handleReschedule)
		api.Get("/{listingID}", s.handleBumpStatus)
	})
	r.Route("/admin", func(protected chi.Router) {
		protected.Use(s.basicAuthMiddleware())
		protected.Post("/ingestion/run", s.handleIngestionRun)
		protected.Get("/ingestion/runs", s.handleListRuns)
		protected.Post("/jobs/bump-tick", s.handleBumpTick)
		protected.Post("/jobs/expiry-sweep", s.handleExpirySweep)
		protected.Post("/users/{id}/credits", s.handleGrantCredits)
		protected.Route("/products", func(r chi.Router) {
			r.Get("/", s.handleListProducts)
			r.Post("/", s.handleCreateProduct)
			r.Put("/{id}", s.handleUpdateProduct)
			r.Delete("/{id}", s.handleDeactivateProduct)
		})
	})
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("http shutdown error", "err", err)
		}
	}()

	s.log.Info("http server listening", "addr", s.addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http listen: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type purchaseRequest struct {
	ListingID   int64             `json:"listing_id"`
	ProductCode string            `json:"product_code"`
	Template    schedule.Template `json:"template"`
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.ListingID <= 0 || strings.TrimSpace(req.ProductCode) == "" {
		s.writeError(w, http.StatusBadRequest, "listing_id and product_code required")
		return
	}
	res, err := s.deps.Bumps.PurchaseBump(r.Context(), service.PurchaseRequest{
		UserID:      userID(r.Context()),
		ListingID:   req.ListingID,
		ProductCode: strings.TrimSpace(req.ProductCode),
		Template:    req.Template,
	})
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, res)
}

type rescheduleRequest struct {
	ListingID int64             `json:"listing_id"`
	Template  schedule.Template `json:"template"`
}

func (s *Server) handleReschedule(w http.ResponseWriter, r *http.Request) {
	var req rescheduleRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.ListingID <= 0 {
		s.writeError(w, http.StatusBadRequest, "listing_id required")
		return
	}
	res, err := s.deps.Bumps.RescheduleBump(r.Context(), userID(r.Context()), req.ListingID, req.Template)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleBumpStatus(w http.ResponseWriter, r *http.Request) {
	listingID, err := parseID(chi.URLParam(r, "listingID"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid listing id")
		return
	}
	status, err := s.deps.Bumps.Status(r.Context(), userID(r.Context()), listingID)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

type creditsRequest struct {
	Amount int `json:"amount"`
}

func (s *Server) handleGrantCredits(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req creditsRequest
	if !s.decode(w, r, &req) {
		return
	}
	user, err := s.deps.Wallet.Grant(r.Context(), id, req.Amount)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"user_id": user.ID, "credits": user.Credits})
}

type ingestionRunRequest struct {
	Sources []string `json:"sources"`
	Limit   int      `json:"limit"`
	OwnerID *int64   `json:"owner_id"`
}

// handleIngestionRun starts a run in the background; its outcome lands in
// the ingestion runs list.
func (s *Server) handleIngestionRun(w http.ResponseWriter, r *http.Request) {
	var req ingestionRunRequest
	if r.ContentLength != 0 && !s.decode(w, r, &req) {
		return
	}
	ctx := context.WithoutCancel(r.Context())
	go func() {
		if _, err := s.deps.Ingestion.Run(ctx, service.RunRequest{Sources: req.Sources, Limit: req.Limit, OwnerID: req.OwnerID}); err != nil {
			s.log.Error("ingestion run", "err", err)
		}
	}()
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := s.deps.Ingestion.ListRuns(r.Context(), limit)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	if runs == nil {
		runs = []models.IngestionRun{}
	}
	s.writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleBumpTick(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.Executor.Tick(r.Context())
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleExpirySweep(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.Sweeper.Tick(r.Context())
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.deps.Products.List(r.Context())
	if err != nil {
		s.serviceError(w, err)
		return
	}
	if products == nil {
		products = []models.PromotionProduct{}
	}
	s.writeJSON(w, http.StatusOK, products)
}

type productRequest struct {
	Code              string             `json:"code"`
	Label             string             `json:"label"`
	Kind              models.ProductKind `json:"kind"`
	QuantityPerWindow int                `json:"quantity_per_window"`
	DurationDays      int                `json:"duration_days"`
	CreditsCost       int                `json:"credits_cost"`
	Active            *bool              `json:"active"`
}

type productUpdateRequest struct {
	Label             *string             `json:"label"`
	Kind              *models.ProductKind `json:"kind"`
	QuantityPerWindow *int                `json:"quantity_per_window"`
	DurationDays      *int                `json:"duration_days"`
	CreditsCost       *int                `json:"credits_cost"`
	Active            *bool               `json:"active"`
}

func (s *Server) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if !s.decode(w, r, &req) {
		return
	}
	product, err := s.deps.Products.Create(r.Context(), service.CreateProductInput{
		Code:              req.Code,
		Label:             req.Label,
		Kind:              req.Kind,
		QuantityPerWindow: req.QuantityPerWindow,
		DurationDays:      req.DurationDays,
		CreditsCost:       req.CreditsCost,
		Active:            req.Active,
	})
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, product)
}

func (s *Server) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req productUpdateRequest
	if !s.decode(w, r, &req) {
		return
	}
	product, err := s.deps.Products.Update(r.Context(), id, service.UpdateProductInput{
		Label:             req.Label,
		Kind:              req.Kind,
		QuantityPerWindow: req.QuantityPerWindow,
		DurationDays:      req.DurationDays,
		CreditsCost:       req.CreditsCost,
		Active:            req.Active,
	})
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, product)
}

func (s *Server) handleDeactivateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := s.deps.Products.Deactivate(r.Context(), id); err != nil {
		s.serviceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type ctxKey int

const userIDKey ctxKey = iota

// userMiddleware trusts the X-User-ID header set by the gateway in front of
// the service.
func userMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r.Header.Get("X-User-ID"))
		if err != nil || id <= 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "missing or invalid X-User-ID"})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, id)))
	})
}

func userID(ctx context.Context) int64 {
	id, _ := ctx.Value(userIDKey).(int64)
	return id
}

func (s *Server) basicAuthMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok || user != s.username || pass != s.password {
				w.Header().Set("WWW-Authenticate", `Basic realm="listingd"`)
				s.writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) serviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrInsufficientCredits):
		s.writeError(w, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, service.ErrForbidden):
		s.writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrListingNotFound),
		errors.Is(err, service.ErrProductNotFound),
		errors.Is(err, service.ErrNoActivePurchase),
		errors.Is(err, service.ErrUserNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrNotReschedulable),
		errors.Is(err, service.ErrPromotionActive),
		errors.Is(err, service.ErrRunInProgress):
		s.writeError(w, http.StatusConflict, err.Error())
	default:
		s.log.Error("http handler error", "err", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func parseID(value string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(value), 10, 64)
}
