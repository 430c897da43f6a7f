package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"fundingledger/internal/domain"
	"fundingledger/internal/idempotency"
	"fundingledger/internal/ledger"
	"fundingledger/internal/middleware"
)

// App carries the dependencies shared by all handlers.
type App struct {
	Ledger       *ledger.Ledger
	Idempotency  idempotency.Store
	ConfirmRoles []domain.Role
	Logger       zerolog.Logger
	// Ping reports storage health. Nil means always healthy.
	Ping func(ctx context.Context) error
}

func NewApp(l *ledger.Ledger, idem idempotency.Store, confirmRoles []domain.Role, logger zerolog.Logger) *App {
	return &App{
		Ledger:       l,
		Idempotency:  idem,
		ConfirmRoles: confirmRoles,
		Logger:       logger,
	}
}

type errorBody struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

type errorMapping struct {
	err    error
	status int
	code   string
}

// errorTable is checked in order with errors.Is.
var errorTable = []errorMapping{
	{domain.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{domain.ErrInvalidCurrency, http.StatusBadRequest, "invalid_currency"},
	{domain.ErrCurrencyMismatch, http.StatusBadRequest, "currency_mismatch"},
	{domain.ErrInvalidInput, http.StatusBadRequest, "bad_request"},
	{domain.ErrNeedNotVerified, http.StatusUnprocessableEntity, "need_not_verified"},
	{domain.ErrNeedClosed, http.StatusConflict, "need_closed"},
	{domain.ErrAlreadyConfirmed, http.StatusConflict, "already_confirmed"},
	{domain.ErrDonationFailed, http.StatusConflict, "donation_failed"},
	{domain.ErrNeedNotFound, http.StatusNotFound, "need_not_found"},
	{domain.ErrDonationNotFound, http.StatusNotFound, "donation_not_found"},
	{domain.ErrNotFound, http.StatusNotFound, "not_found"},
	{domain.ErrDuplicateOperation, http.StatusConflict, "duplicate_operation"},
	{domain.ErrConflict, http.StatusConflict, "conflict"},
	{domain.ErrPreconditionFailed, http.StatusConflict, "conflict"},
	{domain.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{domain.ErrForbidden, http.StatusForbidden, "forbidden"},
	{context.DeadlineExceeded, http.StatusServiceUnavailable, "unavailable"},
	{context.Canceled, StatusClientClosedRequest, "canceled"},
}

// StatusClientClosedRequest is reported when the client went away before the
// request finished.
const StatusClientClosedRequest = 499

func classify(err error) (int, string) {
	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, r *http.Request, status int, code string) {
	a.json(w, status, errorBody{Code: code, Error: localize(middleware.LocaleFromContext(r.Context()), code)})
}

// fail maps err onto the error table. Unknown errors are logged and reported opaquely.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	switch status {
	case http.StatusInternalServerError:
		a.log(r).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	case http.StatusServiceUnavailable, StatusClientClosedRequest:
		a.log(r).Warn().Err(err).Str("path", r.URL.Path).Msg("request abandoned")
	}
	a.error(w, r, status, code)
}

// log returns the request-scoped logger, falling back to the app logger.
func (a *App) log(r *http.Request) *zerolog.Logger {
	if reqLogger := zerolog.Ctx(r.Context()); reqLogger.GetLevel() != zerolog.Disabled {
		scoped := reqLogger.With().Str("component", "http").Logger()
		return &scoped
	}
	return &a.Logger
}

func (a *App) caller(r *http.Request) (domain.Caller, error) {
	c, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		return domain.Caller{}, domain.ErrUnauthorized
	}
	return c, nil
}

func pageFromQuery(r *http.Request) domain.Page {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	return domain.Page{Page: page, Limit: limit}.Normalize()
}
