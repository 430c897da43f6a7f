package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"fundingledger/internal/domain"
	"fundingledger/internal/ledger"
)

type needResponse struct {
	ID            string          `json:"id"`
	Recipient     string          `json:"recipient"`
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	Category      string          `json:"category"`
	Urgency       string          `json:"urgency"`
	Location      string          `json:"location"`
	Currency      string          `json:"currency"`
	GoalAmount    decimal.Decimal `json:"goalAmount"`
	CurrentAmount decimal.Decimal `json:"currentAmount"`
	Remaining     decimal.Decimal `json:"remaining"`
	Status        string          `json:"status"`
	IsVerified    bool            `json:"isVerified"`
	VerifiedBy    *string         `json:"verifiedBy"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

func toNeedResponse(n *domain.Need) needResponse {
	return needResponse{
		ID:            n.ID,
		Recipient:     n.RecipientID,
		Title:         n.Title,
		Description:   n.Description,
		Category:      string(n.Category),
		Urgency:       string(n.Urgency),
		Location:      n.Location,
		Currency:      n.Currency,
		GoalAmount:    n.GoalAmount,
		CurrentAmount: n.CurrentAmount,
		Remaining:     n.Remaining(),
		Status:        string(n.Status),
		IsVerified:    n.IsVerified,
		VerifiedBy:    n.VerifiedBy,
		CreatedAt:     n.CreatedAt,
		UpdatedAt:     n.UpdatedAt,
	}
}

type needPageResponse struct {
	Items []needResponse `json:"items"`
	Total int            `json:"total"`
	Page  int            `json:"page"`
	Pages int            `json:"pages"`
}

func toNeedPageResponse(p *ledger.NeedPage) needPageResponse {
	items := make([]needResponse, 0, len(p.Items))
	for i := range p.Items {
		items = append(items, toNeedResponse(&p.Items[i]))
	}
	return needPageResponse{Items: items, Total: p.Total, Page: p.Page, Pages: p.Pages}
}

// needFilterFromQuery reads the status and category filters. Unknown values
// are rejected rather than ignored.
func needFilterFromQuery(r *http.Request) (domain.NeedFilter, bool) {
	q := r.URL.Query()
	var filter domain.NeedFilter
	if v := strings.TrimSpace(q.Get("status")); v != "" {
		status, ok := domain.ParseNeedStatus(v)
		if !ok {
			return filter, false
		}
		filter.Status = status
	}
	if v := strings.TrimSpace(q.Get("category")); v != "" {
		category, ok := domain.ParseNeedCategory(v)
		if !ok {
			return filter, false
		}
		filter.Category = category
	}
	return filter, true
}

// NeedsList is the public need feed, filterable by status, category and recipient.
func (a *App) NeedsList(w http.ResponseWriter, r *http.Request) {
	filter, ok := needFilterFromQuery(r)
	if !ok {
		a.error(w, r, http.StatusBadRequest, "bad_request")
		return
	}
	filter.RecipientID = strings.TrimSpace(r.URL.Query().Get("recipient"))
	a.listNeeds(w, r, filter)
}

// NeedsMine lists the calling recipient's own needs.
func (a *App) NeedsMine(w http.ResponseWriter, r *http.Request) {
	caller, err := a.caller(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	filter, ok := needFilterFromQuery(r)
	if !ok {
		a.error(w, r, http.StatusBadRequest, "bad_request")
		return
	}
	filter.RecipientID = caller.ID
	a.listNeeds(w, r, filter)
}

func (a *App) listNeeds(w http.ResponseWriter, r *http.Request, filter domain.NeedFilter) {
	page, err := a.Ledger.ListNeeds(r.Context(), filter, pageFromQuery(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, toNeedPageResponse(page))
}

func (a *App) NeedGet(w http.ResponseWriter, r *http.Request) {
	n, err := a.Ledger.GetNeed(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, toNeedResponse(n))
}

// NeedDonations is the public donation feed of a need; anonymous donors are hidden.
func (a *App) NeedDonations(w http.ResponseWriter, r *http.Request) {
	page, err := a.Ledger.ListNeedDonations(r.Context(), chi.URLParam(r, "id"), pageFromQuery(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, toPageResponse(page, true))
}
