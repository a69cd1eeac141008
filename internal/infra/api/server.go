package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"telegram-smm-shop/internal/domain"
	"telegram-smm-shop/internal/domain/model"
	"telegram-smm-shop/internal/infra/logging"
	"telegram-smm-shop/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type InvoiceService interface {
	ListByStatus(ctx context.Context, status model.InvoiceStatus, limit int) ([]*model.Invoice, error)
	Confirm(ctx context.Context, id string) (*usecase.ConfirmResult, error)
}

type PromoService interface {
	Upsert(ctx context.Context, rule *model.PromoRule) error
	List(ctx context.Context) ([]*model.PromoRule, error)
}

type OrderService interface {
	ListOrders(ctx context.Context, userID int64, limit int) ([]*model.Order, error)
}

type StatsService interface {
	Totals(ctx context.Context) (*usecase.ShopTotals, error)
	ExportOrdersCSV(ctx context.Context, w io.Writer) (int, error)
}

var (
	_ InvoiceService = (usecase.InvoiceUseCase)(nil)
	_ PromoService   = (usecase.PromoUseCase)(nil)
	_ OrderService   = (usecase.SettlementUseCase)(nil)
	_ StatsService   = (usecase.StatsUseCase)(nil)
)

// Deps groups what the admin API talks to.
type Deps struct {
	Invoices InvoiceService
	Promos   PromoService
	Orders   OrderService
	Stats    StatsService
	Auth     *AuthManager
	Storage  string
}

// Server exposes health, metrics and the JWT-guarded admin API.
type Server struct {
	deps      Deps
	log       *zerolog.Logger
	timeout   time.Duration
	startedAt time.Time
	srv       *http.Server
}

func NewServer(deps Deps, timeout time.Duration, logger *zerolog.Logger) *Server {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Server{deps: deps, log: logger, timeout: timeout, startedAt: time.Now()}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID(), RequestLog(s.log), Recover(s.log), Timeout(s.timeout))

	r.Get("/", s.handleHealth)
	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/token", s.handleToken)

		r.Group(func(r chi.Router) {
			r.Use(AdminOnly(s.deps.Auth))

			r.Get("/invoices", s.handleListInvoices)
			r.Post("/invoices/{id}/confirm", s.handleConfirmInvoice)
			r.Get("/promos", s.handleListPromos)
			r.Post("/promos", s.handleUpsertPromo)
			r.Get("/orders", s.handleListOrders)
			r.Get("/orders.csv", s.handleOrdersCSV)
			r.Get("/stats", s.handleStats)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, http.StatusText(http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
	})
	return r
}

// Start blocks until the listener fails or Shutdown is called.
func (s *Server) Start(port int) error {
	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.log.Info().Int("port", port).Msg("http server listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "smm-shop",
		"storage": s.deps.Storage,
		"uptime":  time.Since(s.startedAt).Truncate(time.Second).String(),
	})
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Secret string `json:"secret"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 4<<10)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if !s.deps.Auth.CheckSecret(body.Secret) {
		l := logging.With(r.Context(), s.log)
		l.Warn().Str("remote", r.RemoteAddr).Msg("admin token refused")
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	tok, exp, err := s.deps.Auth.Mint()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": tok, "expires_at": exp.UTC()})
}

type invoiceDTO struct {
	ID        string     `json:"id"`
	UserID    int64      `json:"user_id"`
	Amount    string     `json:"amount"`
	Note      string     `json:"note,omitempty"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	PaidAt    *time.Time `json:"paid_at,omitempty"`
}

func toInvoiceDTO(inv *model.Invoice) invoiceDTO {
	return invoiceDTO{
		ID:        inv.ID,
		UserID:    inv.UserID,
		Amount:    inv.Amount.StringFixed(2),
		Note:      inv.Note,
		Status:    string(inv.Status),
		CreatedAt: inv.CreatedAt,
		PaidAt:    inv.PaidAt,
	}
}

func (s *Server) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	status := model.InvoiceStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = model.InvoiceStatusPending
	}
	invs, err := s.deps.Invoices.ListByStatus(r.Context(), status, queryInt(r, "limit", 50))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]invoiceDTO, 0, len(invs))
	for _, inv := range invs {
		out = append(out, toInvoiceDTO(inv))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleConfirmInvoice(w http.ResponseWriter, r *http.Request) {
	ctx := logging.WithInvoiceID(r.Context(), chi.URLParam(r, "id"))
	res, err := s.deps.Invoices.Confirm(ctx, chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r.WithContext(ctx), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"invoice":           toInvoiceDTO(res.Invoice),
		"balance":           res.Balance.StringFixed(2),
		"already_processed": res.AlreadyProcessed,
	})
}

type promoDTO struct {
	Code       string          `json:"code"`
	Percent    decimal.Decimal `json:"percent"`
	MinTotal   decimal.Decimal `json:"min_total"`
	Active     *bool           `json:"active,omitempty"`
	Combinable bool            `json:"combinable"`
}

func (s *Server) handleListPromos(w http.ResponseWriter, r *http.Request) {
	rules, err := s.deps.Promos.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]promoDTO, 0, len(rules))
	for _, p := range rules {
		active := p.Active
		out = append(out, promoDTO{Code: p.Code, Percent: p.Percent, MinTotal: p.MinTotal, Active: &active, Combinable: p.Combinable})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUpsertPromo(w http.ResponseWriter, r *http.Request) {
	var body promoDTO
	if err := json.NewDecoder(io.LimitReader(r.Body, 16<<10)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	active := true
	if body.Active != nil {
		active = *body.Active
	}
	rule, err := model.NewPromoRule(body.Code, body.Percent, body.MinTotal, active, body.Combinable)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.deps.Promos.Upsert(r.Context(), rule); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, promoDTO{Code: rule.Code, Percent: rule.Percent, MinTotal: rule.MinTotal, Active: &rule.Active, Combinable: rule.Combinable})
}

type orderDTO struct {
	ID              string    `json:"id"`
	UserID          int64     `json:"user_id"`
	ItemID          string    `json:"item_id"`
	ItemTitle       string    `json:"item_title"`
	Quantity        int64     `json:"quantity"`
	Link            string    `json:"link"`
	Subtotal        string    `json:"subtotal"`
	Discount        string    `json:"discount"`
	Charged         string    `json:"charged"`
	PromoCode       string    `json:"promo_code,omitempty"`
	Status          string    `json:"status"`
	UpstreamOrderID *string   `json:"upstream_order_id"`
	CreatedAt       time.Time `json:"created_at"`
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil || userID == 0 {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	orders, err := s.deps.Orders.ListOrders(r.Context(), userID, queryInt(r, "limit", 50))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]orderDTO, 0, len(orders))
	for _, o := range orders {
		out = append(out, orderDTO{
			ID: o.ID, UserID: o.UserID, ItemID: o.ItemID, ItemTitle: o.ItemTitle,
			Quantity: o.Quantity, Link: o.Link,
			Subtotal: o.Subtotal.StringFixed(2), Discount: o.Discount.StringFixed(2), Charged: o.Charged.StringFixed(2),
			PromoCode: o.PromoCode, Status: string(o.Status), UpstreamOrderID: o.UpstreamOrderID, CreatedAt: o.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleOrdersCSV(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="orders.csv"`)
	n, err := s.deps.Stats.ExportOrdersCSV(r.Context(), w)
	if err != nil {
		// headers may be gone already; log only
		l := logging.With(r.Context(), s.log)
		l.Error().Err(err).Int("rows", n).Msg("orders csv export failed")
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	t, err := s.deps.Stats.Totals(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	byStatus := map[string]int{}
	for st, n := range t.OrdersByStatus {
		byStatus[string(st)] = n
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"orders_by_status": byStatus,
		"revenue":          t.Revenue.StringFixed(2),
		"pending_invoices": t.PendingInvoices,
	})
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		l := logging.With(r.Context(), s.log)
		l.Error().Err(err).Str("path", r.URL.Path).Msg("admin api request failed")
		writeError(w, code, "internal error")
		return
	}
	writeError(w, code, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrLockNotAcquired):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func queryInt(r *http.Request, key string, def int) int {
	if v, err := strconv.Atoi(r.URL.Query().Get(key)); err == nil && v > 0 {
		return v
	}
	return def
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
