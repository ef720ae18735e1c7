package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"keygate.io/internal/account"
	"keygate.io/internal/audit"
	"keygate.io/internal/license"
	"keygate.io/internal/reseller"
)

type createResellerRequest struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

func (a *API) handleResellersCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createReseller(w, r)
	case http.MethodGet:
		a.listResellers(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

func (a *API) createReseller(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireRole(w, r, account.Role.CanManageResellers); !ok {
		return
	}
	var req createResellerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.Name) == "" {
		writeError(w, r, http.StatusBadRequest, "user_id and name are required")
		return
	}
	res, err := a.deps.Ledger.Register(r.Context(), req.UserID, req.Name)
	if err != nil {
		handleWalletError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/resellers/"+res.ID)
	writeJSON(w, http.StatusCreated, res)
}

func (a *API) listResellers(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireRole(w, r, account.Role.CanManageResellers); !ok {
		return
	}
	items, err := a.deps.Ledger.List(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) handleResellerResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/resellers/")
	id, action, hasAction := strings.Cut(path, "/")
	if id == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if !hasAction || action == "" {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.getReseller(w, r, id)
		return
	}
	switch action {
	case "deposit":
		a.deposit(w, r, id)
	case "purchase":
		a.purchase(w, r, id)
	case "adjust":
		a.adjust(w, r, id)
	case "wallet":
		a.wallet(w, r, id)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

// resellerAccess allows admins everywhere and a reseller on its own profile.
func (a *API) resellerAccess(w http.ResponseWriter, r *http.Request, resellerID string) (*account.User, bool) {
	user, ok := requireUser(w, r)
	if !ok {
		return nil, false
	}
	if user.Role.CanManageResellers() {
		return user, true
	}
	own, err := a.deps.Ledger.GetByUser(r.Context(), user.ID)
	if err != nil || own.ID != resellerID {
		writeError(w, r, http.StatusForbidden, "insufficient role")
		return nil, false
	}
	return user, true
}

func (a *API) getReseller(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := a.resellerAccess(w, r, id); !ok {
		return
	}
	res, err := a.deps.Ledger.Get(r.Context(), id)
	if err != nil {
		handleWalletError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type depositRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Description string `json:"description"`
}

func (a *API) deposit(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	user, ok := requireRole(w, r, account.Role.CanManageResellers)
	if !ok {
		return
	}
	var req depositRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	tx, err := a.deps.Ledger.Deposit(r.Context(), id, req.AmountCents, user.ID, req.Description)
	if err != nil {
		handleWalletError(w, r, err)
		return
	}
	a.deps.Recorder.Record(r.Context(), audit.ActionDeposit, "reseller", id, map[string]any{
		"amount_cents": strconv.FormatInt(req.AmountCents, 10),
	})
	writeJSON(w, http.StatusCreated, tx)
}

type purchaseRequest struct {
	Quantity     int    `json:"quantity"`
	DurationDays int    `json:"duration_days"`
	PriceCents   int64  `json:"price_cents"`
	ProductType  string `json:"product_type"`
}

func (a *API) purchase(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if _, ok := a.resellerAccess(w, r, id); !ok {
		return
	}
	var req purchaseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	productType, err := license.ParseProductType(req.ProductType)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	selector := license.KeySelector{
		DurationDays: req.DurationDays,
		PriceCents:   req.PriceCents,
		ProductType:  productType,
	}
	receipt, err := a.deps.Ledger.Purchase(r.Context(), id, selector, req.Quantity)
	if err != nil {
		handleWalletError(w, r, err)
		return
	}
	a.deps.Recorder.Record(r.Context(), audit.ActionPurchase, "reseller", id, map[string]any{
		"quantity":     req.Quantity,
		"product_type": string(productType),
		"amount_cents": strconv.FormatInt(receipt.Transaction.AmountCents, 10),
	})
	writeJSON(w, http.StatusCreated, receipt)
}

type adjustRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Description string `json:"description"`
}

func (a *API) adjust(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	user, ok := requireRole(w, r, account.Role.CanManageResellers)
	if !ok {
		return
	}
	var req adjustRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	tx, err := a.deps.Ledger.Adjust(r.Context(), id, req.AmountCents, user.ID, req.Description)
	if err != nil {
		handleWalletError(w, r, err)
		return
	}
	a.deps.Recorder.Record(r.Context(), audit.ActionAdjust, "reseller", id, map[string]any{
		"amount_cents": strconv.FormatInt(req.AmountCents, 10),
	})
	writeJSON(w, http.StatusCreated, tx)
}

type walletResponse struct {
	Reseller     reseller.Reseller            `json:"reseller"`
	Transactions []reseller.WalletTransaction `json:"transactions"`
}

func (a *API) wallet(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := a.resellerAccess(w, r, id); !ok {
		return
	}
	limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 100, 1, 500)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	res, txs, err := a.deps.Ledger.Wallet(r.Context(), id, limit)
	if err != nil {
		handleWalletError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, walletResponse{Reseller: *res, Transactions: txs})
}
