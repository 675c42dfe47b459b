package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/scheme-service/internal/eligibility"
	"github.com/Dan9191/scheme-service/internal/flow"
	"github.com/Dan9191/scheme-service/internal/limits"
	"github.com/Dan9191/scheme-service/internal/middleware"
	"github.com/Dan9191/scheme-service/internal/models"
	"github.com/Dan9191/scheme-service/internal/payment"
	"github.com/Dan9191/scheme-service/internal/selection"
	"github.com/Dan9191/scheme-service/internal/service"
)

// ViewerHeader distinguishes screens of the same user that keep separate tab state.
const ViewerHeader = "X-Session-ID"

type Handler struct {
	svc *service.Service
	log *logrus.Logger
}

func NewHandler(svc *service.Service, log *logrus.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

type errorResponse struct {
	Error       string                `json:"error"`
	Field       string                `json:"field,omitempty"`
	Eligibility *eligibility.Decision `json:"eligibility,omitempty"`
	Flow        *flow.Snapshot        `json:"flow,omitempty"`
}

// ListSchemes returns the catalog
func (h *Handler) ListSchemes(w http.ResponseWriter, r *http.Request) {
	schemes, stale := h.svc.Schemes(r.Context(), queryBool(r, "force"))
	if schemes == nil {
		schemes = []models.Scheme{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"schemes": schemes, "stale": stale})
}

// Tabs returns the tab bar and the reconciled active tab
func (h *Handler) Tabs(w http.ResponseWriter, r *http.Request) {
	view := h.svc.Tabs(r.Context(), viewer(r), r.URL.Query().Get("target"), queryBool(r, "force"))
	writeJSON(w, http.StatusOK, view)
}

// SelectTab applies a manual tab tap
func (h *Handler) SelectTab(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tab string `json:"tab"`
	}
	if !decode(w, r, &req) {
		return
	}
	view, err := h.svc.SelectTab(r.Context(), viewer(r), req.Tab)
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Bucket returns the schemes of one tab
func (h *Handler) Bucket(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	writeJSON(w, http.StatusOK, h.svc.Bucket(r.Context(), viewer(r), q.Get("tab"), q.Get("scheme_id")))
}

// Limits returns the amount limit of a scheme
func (h *Handler) Limits(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	writeJSON(w, http.StatusOK, h.svc.Limits(r.Context(), middleware.GetUserID(r.Context()), id, queryBool(r, "quick")))
}

// KYC returns the caller's compliance state
func (h *Handler) KYC(w http.ResponseWriter, r *http.Request) {
	state := h.svc.KYC(r.Context(), middleware.GetUserID(r.Context()))
	writeJSON(w, http.StatusOK, map[string]eligibility.State{"kyc": state})
}

// Branches lists enrollment branches
func (h *Handler) Branches(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Branches(r.Context())
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Dashboard returns the home screen aggregate
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	writeJSON(w, http.StatusOK, h.svc.Dashboard(r.Context(), user, queryBool(r, "force")))
}

// GoldWeight projects an amount onto grams of gold
func (h *Handler) GoldWeight(w http.ResponseWriter, r *http.Request) {
	amount, err := strconv.ParseFloat(r.URL.Query().Get("amount"), 64)
	if err != nil || math.IsNaN(amount) || math.IsInf(amount, 0) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Please enter a valid amount", Field: "amount"})
		return
	}
	writeJSON(w, http.StatusOK, h.svc.GoldWeight(r.Context(), amount))
}

// BannerSeen reports whether the info banner was dismissed
func (h *Handler) BannerSeen(w http.ResponseWriter, r *http.Request) {
	seen, err := h.svc.BannerSeen(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"seen": seen})
}

// MarkBannerSeen dismisses the info banner
func (h *Handler) MarkBannerSeen(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.MarkBannerSeen(r.Context(), middleware.GetUserID(r.Context())); err != nil {
		h.writeError(w, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// StartJoin opens a scheme in a new join flow
func (h *Handler) StartJoin(w http.ResponseWriter, r *http.Request) {
	var req service.JoinRequest
	if !decode(w, r, &req) {
		return
	}
	if req.SchemeID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "scheme_id is required", Field: "scheme_id"})
		return
	}
	user, _ := middleware.GetUser(r.Context())
	snap, err := h.svc.StartJoin(r.Context(), user, req)
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

// JoinStatus returns a join flow
func (h *Handler) JoinStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.JoinStatus(middleware.GetUserID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// ChoosePath picks the chit and the quick or full path
func (h *Handler) ChoosePath(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path   flow.Path `json:"path"`
		ChitID string    `json:"chit_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	snap, err := h.svc.ChooseJoinPath(r.Context(), middleware.GetUserID(r.Context()), mux.Vars(r)["id"], req.Path, req.ChitID)
	h.respondFlow(w, snap, err)
}

// ResolveBlocked answers a blocked quick join
func (h *Handler) ResolveBlocked(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Option eligibility.Option `json:"option"`
	}
	if !decode(w, r, &req) {
		return
	}
	snap, err := h.svc.ResolveBlocked(r.Context(), middleware.GetUserID(r.Context()), mux.Vars(r)["id"], req.Option)
	h.respondFlow(w, snap, err)
}

// SubmitAmount validates the amount and builds the payment session
func (h *Handler) SubmitAmount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount   decimal.Decimal `json:"amount"`
		BranchID string          `json:"branch_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	snap, err := h.svc.SubmitAmount(r.Context(), middleware.GetUserID(r.Context()), mux.Vars(r)["id"], req.Amount, req.BranchID)
	h.respondFlow(w, snap, err)
}

// Initiate submits the session to the payment gateway
func (h *Handler) Initiate(w http.ResponseWriter, r *http.Request) {
	redirect, err := h.svc.InitiateJoin(r.Context(), middleware.GetUserID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, redirect)
}

// Resume restores a lost payment session into a join flow
func (h *Handler) Resume(w http.ResponseWriter, r *http.Request) {
	snap, src, err := h.svc.ResumeJoin(r.Context(), middleware.GetUserID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"flow": snap, "source": src})
}

// CancelJoin returns a join flow to browsing
func (h *Handler) CancelJoin(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.CancelJoin(r.Context(), middleware.GetUserID(r.Context()), mux.Vars(r)["id"])
	h.respondFlow(w, snap, err)
}

// CloseJoin discards a join flow
func (h *Handler) CloseJoin(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.CloseJoin(middleware.GetUserID(r.Context()), mux.Vars(r)["id"]); err != nil {
		h.writeError(w, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Health reports liveness
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) respondFlow(w http.ResponseWriter, snap *flow.Snapshot, err error) {
	if err != nil {
		h.writeError(w, err, snap)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// writeError maps domain errors to HTTP statuses.
func (h *Handler) writeError(w http.ResponseWriter, err error, snap *flow.Snapshot) {
	resp := errorResponse{Error: err.Error(), Flow: snap}
	status := http.StatusInternalServerError

	var (
		amountErr  *limits.AmountError
		missingErr *payment.MissingFieldError
		blocked    *flow.BlockedError
	)
	switch {
	case errors.As(err, &amountErr):
		status = http.StatusBadRequest
		resp.Error = amountErr.Message
		resp.Field = "amount"
	case errors.As(err, &missingErr):
		status = http.StatusBadRequest
		resp.Field = missingErr.Field
	case errors.Is(err, selection.ErrUnknownTab), errors.Is(err, flow.ErrUnknownChit):
		status = http.StatusBadRequest
	case errors.As(err, &blocked):
		status = http.StatusConflict
		resp.Eligibility = &blocked.Decision
	case errors.Is(err, flow.ErrAlreadyProcessing), errors.Is(err, flow.ErrInvalidTransition), errors.Is(err, flow.ErrSessionMismatch):
		status = http.StatusConflict
	case errors.Is(err, flow.ErrClosed), service.IsNotFound(err):
		status = http.StatusNotFound
	case errors.Is(err, payment.ErrNoRedirectURL), errors.Is(err, payment.ErrUnrecognizedShape):
		// Gateway reply shapes are not shown to users.
		status = http.StatusBadGateway
		resp.Error = "Unable to start payment. Please try again."
	default:
		h.log.WithError(err).Error("Request failed")
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Something went wrong"}` + "\n"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		return false
	}
	return true
}

func queryBool(r *http.Request, key string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return b
}

func viewer(r *http.Request) string {
	v := r.Header.Get(ViewerHeader)
	if v == "" {
		v = "default"
	}
	return middleware.GetUserID(r.Context()) + "/" + v
}
