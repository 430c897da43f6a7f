package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"fundingledger/internal/domain"
	"fundingledger/internal/idempotency"
	"fundingledger/internal/ledger"
)

const idempotencySettleTimeout = 5 * time.Second

type donationRequest struct {
	NeedID      string          `json:"needId"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	IsAnonymous bool            `json:"isAnonymous"`
}

type confirmRequest struct {
	TransactionID string `json:"transactionId"`
}

type donationResponse struct {
	ID            string          `json:"id"`
	Donor         *string         `json:"donor"`
	Need          string          `json:"need"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	PaymentStatus string          `json:"paymentStatus"`
	TransactionID *string         `json:"transactionId"`
	IsAnonymous   bool            `json:"isAnonymous"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

type pageResponse struct {
	Items []donationResponse `json:"items"`
	Total int                `json:"total"`
	Page  int                `json:"page"`
	Pages int                `json:"pages"`
}

func toDonationResponse(d *domain.Donation, hideAnonymous bool) donationResponse {
	resp := donationResponse{
		ID:            d.ID,
		Need:          d.NeedID,
		Amount:        d.Amount,
		Currency:      d.Currency,
		PaymentStatus: string(d.PaymentStatus),
		TransactionID: d.TransactionID,
		IsAnonymous:   d.IsAnonymous,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
	if !(hideAnonymous && d.IsAnonymous) {
		donor := d.DonorID
		resp.Donor = &donor
	}
	return resp
}

func toPageResponse(p *ledger.DonationPage, hideAnonymous bool) pageResponse {
	items := make([]donationResponse, 0, len(p.Items))
	for i := range p.Items {
		items = append(items, toDonationResponse(&p.Items[i], hideAnonymous))
	}
	return pageResponse{Items: items, Total: p.Total, Page: p.Page, Pages: p.Pages}
}

// DonationsCreate records a donation for the calling donor. A repeated
// Idempotency-Key replays the first result.
func (a *App) DonationsCreate(w http.ResponseWriter, r *http.Request) {
	caller, err := a.caller(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var req donationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, r, http.StatusBadRequest, "bad_request")
		return
	}

	idemKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if idemKey != "" && a.Idempotency != nil {
		key := idempotency.Key("donation", caller.ID, idemKey)
		res, err := a.Idempotency.Reserve(r.Context(), key)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		if !res.Fresh {
			d, err := a.Ledger.GetDonation(r.Context(), res.ResultID)
			if err != nil {
				a.fail(w, r, err)
				return
			}
			a.json(w, http.StatusOK, toDonationResponse(d, false))
			return
		}
		d, err := a.createDonation(r, caller, req)

		// The reservation is settled even when the client has gone away.
		settleCtx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), idempotencySettleTimeout)
		defer cancel()
		if err != nil {
			if relErr := a.Idempotency.Release(settleCtx, key); relErr != nil {
				a.log(r).Error().Err(relErr).Str("key", key).Msg("idempotency release failed")
			}
			a.fail(w, r, err)
			return
		}
		if err := a.Idempotency.Complete(settleCtx, key, d.ID); err != nil {
			a.log(r).Error().Err(err).Str("key", key).Str("donation_id", d.ID).Msg("idempotency complete failed")
		}
		a.json(w, http.StatusCreated, toDonationResponse(d, false))
		return
	}

	d, err := a.createDonation(r, caller, req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, toDonationResponse(d, false))
}

func (a *App) createDonation(r *http.Request, caller domain.Caller, req donationRequest) (*domain.Donation, error) {
	return a.Ledger.CreateDonation(r.Context(), ledger.CreateDonationInput{
		DonorID:     caller.ID,
		NeedID:      strings.TrimSpace(req.NeedID),
		Amount:      req.Amount,
		Currency:    req.Currency,
		IsAnonymous: req.IsAnonymous,
	})
}

// DonationConfirm settles a donation. Donors, when allowed to confirm, may only
// confirm their own donations.
func (a *App) DonationConfirm(w http.ResponseWriter, r *http.Request) {
	caller, err := a.caller(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if !caller.HasRole(a.ConfirmRoles...) {
		a.fail(w, r, domain.ErrForbidden)
		return
	}
	id := chi.URLParam(r, "id")
	if caller.Role != domain.RoleAdmin {
		d, err := a.Ledger.GetDonation(r.Context(), id)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		if d.DonorID != caller.ID {
			a.fail(w, r, domain.ErrForbidden)
			return
		}
	}

	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		a.error(w, r, http.StatusBadRequest, "bad_request")
		return
	}
	d, err := a.Ledger.ConfirmDonation(r.Context(), id, req.TransactionID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, toDonationResponse(d, false))
}

// DonationFail records a failed settlement.
func (a *App) DonationFail(w http.ResponseWriter, r *http.Request) {
	d, err := a.Ledger.FailDonation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, toDonationResponse(d, false))
}

// DonationDelete removes a donation and reverses it on the need.
func (a *App) DonationDelete(w http.ResponseWriter, r *http.Request) {
	d, err := a.Ledger.DeleteDonation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, toDonationResponse(d, false))
}

// DonationGet returns one donation to its donor or an admin.
func (a *App) DonationGet(w http.ResponseWriter, r *http.Request) {
	caller, err := a.caller(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	d, err := a.Ledger.GetDonation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if caller.Role != domain.RoleAdmin && d.DonorID != caller.ID {
		a.fail(w, r, domain.ErrForbidden)
		return
	}
	a.json(w, http.StatusOK, toDonationResponse(d, false))
}

// DonationsMine lists the caller's own donations.
func (a *App) DonationsMine(w http.ResponseWriter, r *http.Request) {
	caller, err := a.caller(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	page, err := a.Ledger.ListDonations(r.Context(), domain.DonationFilter{DonorID: caller.ID}, pageFromQuery(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, toPageResponse(page, false))
}

// DonationsList lists all donations, optionally filtered by donor or need.
func (a *App) DonationsList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.DonationFilter{
		DonorID: strings.TrimSpace(q.Get("donor")),
		NeedID:  strings.TrimSpace(q.Get("need")),
	}
	page, err := a.Ledger.ListDonations(r.Context(), filter, pageFromQuery(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, toPageResponse(page, false))
}
