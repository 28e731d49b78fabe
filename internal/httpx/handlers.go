package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ariefcatur/go-realtime-venue/internal/apperr"
	"github.com/ariefcatur/go-realtime-venue/internal/coupons"
	"github.com/ariefcatur/go-realtime-venue/internal/inventory"
	"github.com/ariefcatur/go-realtime-venue/internal/loyalty"
	"github.com/ariefcatur/go-realtime-venue/internal/models"
	"github.com/ariefcatur/go-realtime-venue/internal/orders"
	"github.com/ariefcatur/go-realtime-venue/internal/payments"
	"github.com/ariefcatur/go-realtime-venue/internal/tables"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const opTimeout = 5 * time.Second

type Handler struct {
	Tables    *tables.Service
	Orders    *orders.Service
	Inventory *inventory.Ledger
	Coupons   *coupons.Service
	Payments  *payments.Service
	Loyalty   *loyalty.Ledger
	Log       *zap.Logger
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/reservations", h.reserveTable)
	r.Get("/reservations/{id}", h.getReservation)
	r.Patch("/reservations/{id}/status", h.updateReservationStatus)
	r.Post("/reservations/{id}/cancel", h.cancelReservation)

	r.Get("/tables/{id}/status", h.getTableStatus)
	r.Put("/tables/{id}/status", h.setTableStatus)

	r.Post("/orders", h.createOrder)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/status", h.getOrderStatus)
	r.Patch("/orders/{id}/status", h.updateOrderStatus)

	r.Put("/menu/{id}/stock", h.setStock)

	r.Post("/coupons/{id}/claim", h.claimCoupon)
	r.Post("/member-coupons/{id}/use", h.useCoupon)
	r.Get("/members/{id}/coupons", h.listMemberCoupons)

	r.Post("/payments", h.initiatePayment)
	r.Post("/payments/callback", h.paymentCallback)
	r.Get("/payments/{no}", h.getPayment)
	r.Post("/payments/{no}/cancel", h.cancelPayment)
	r.Post("/payments/{no}/refund", h.refundPayment)

	r.Get("/loyalty/leaderboard", h.leaderboard)
	r.Get("/members/{id}/rank", h.userRank)
	r.Get("/members/{id}/points", h.pointsHistory)
	r.Post("/members/{id}/points/redeem", h.redeemPoints)
}

type errorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func statusFor(k apperr.Kind) int {
	switch k {
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.InvalidInput:
		return http.StatusBadRequest
	case apperr.LevelTooLow:
		return http.StatusForbidden
	case apperr.AmountMismatch:
		return http.StatusUnprocessableEntity
	case apperr.PaymentProviderError:
		return http.StatusBadGateway
	case "":
		return http.StatusInternalServerError
	}
	return http.StatusConflict
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	code := statusFor(kind)
	if kind == "" {
		h.Log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeJSON(w, code, errorBody{Code: "INTERNAL", Message: "internal error"})
		return
	}
	body := errorBody{Code: string(kind), Message: err.Error()}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		body.Message = ae.Message
		body.Details = ae.Details
	}
	writeJSON(w, code, body)
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.New(apperr.InvalidInput, "invalid json: %v", err)
	}
	return nil
}

func opCtx(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), opTimeout)
}

func (h *Handler) reserveTable(w http.ResponseWriter, r *http.Request) {
	var in tables.ReserveInput
	if err := decode(r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	ctx, cancel := opCtx(r)
	defer cancel()
	res, err := h.Tables.ReserveTable(ctx, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) getReservation(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := opCtx(r)
	defer cancel()
	res, err := h.Tables.GetReservation(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type statusReq struct {
	Status string `json:"status"`
}

func (h *Handler) updateReservationStatus(w http.ResponseWriter, r *http.Request) {
	var req statusReq
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	ctx, cancel := opCtx(r)
	defer cancel()
	res, err := h.Tables.UpdateReservationStatus(ctx, chi.URLParam(r, "id"), models.ReservationStatus(req.Status))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type cancelReq struct {
	Reason string `json:"reason"`
}

func (h *Handler) cancelReservation(w http.ResponseWriter, r *http.Request) {
	var req cancelReq
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	ctx, cancel := opCtx(r)
	defer cancel()
	res, err := h.Tables.CancelReservation(ctx, chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) getTableStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := opCtx(r)
	defer cancel()
	id := chi.URLParam(r, "id")
	st, err := h.Tables.GetTableStatus(ctx, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(st)})
}

func (h *Handler) setTableStatus(w http.ResponseWriter, r *http.Request) {
	var req statusReq
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	ctx, cancel := opCtx(r)
	defer cancel()
	t, err := h.Tables.SetTableStatus(ctx, chi.URLParam(r, "id"), models.TableStatus(req.Status))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var in orders.CreateOrderInput
	if err := decode(r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	ctx, cancel := opCtx(r)
	defer cancel()
	o, err := h.Orders.CreateOrder(ctx, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := opCtx(r)
	defer cancel()
	o, err := h.Orders.GetOrder(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) getOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := opCtx(r)
	defer cancel()
	id := chi.URLParam(r, "id")
	st, err := h.Orders.GetOrderStatus(ctx, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(st)})
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req statusReq
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	ctx, cancel := opCtx(r)
	defer cancel()
	o, err := h.Orders.UpdateStatus(ctx, chi.URLParam(r, "id"), models.OrderStatus(req.Status))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type stockReq struct {
	Stock  int    `json:"stock"`
	Status string `json:"status,omitempty"`
}

func (h *Handler) setStock(w http.ResponseWriter, r *http.Request) {
	var req stockReq
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	ctx, cancel := opCtx(r)
	defer cancel()
	m, err := h.Inventory.SetStock(ctx, chi.URLParam(r, "id"), req.Stock, models.MenuItemStatus(req.Status))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type claimReq struct {
	MemberID string `json:"member_id"`
}

func (h *Handler) claimCoupon(w http.ResponseWriter, r *http.Request) {
	var req claimReq
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	ctx, cancel := opCtx(r)
	defer cancel()
	mc, err := h.Coupons.Claim(ctx, chi.URLParam(r, "id"), req.MemberID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, mc)
}

type useReq struct {
	OrderID string `json:"order_id"`
}

func (h *Handler) useCoupon(w http.ResponseWriter, r *http.Request) {
	var req useReq
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	ctx, cancel := opCtx(r)
	defer cancel()
	mc, err := h.Coupons.UseCoupon(ctx, chi.URLParam(r, "id"), req.OrderID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mc)
}

func (h *Handler) listMemberCoupons(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := opCtx(r)
	defer cancel()
	list, err := h.Coupons.ListMemberCoupons(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) initiatePayment(w http.ResponseWriter, r *http.Request) {
	var in payments.InitiateInput
	if err := decode(r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*opTimeout)
	defer cancel()
	p, err := h.Payments.Initiate(ctx, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// paymentCallback accepts the provider's settlement notification. Duplicates
// answer 200 like the first delivery so the provider stops retrying.
func (h *Handler) paymentCallback(w http.ResponseWriter, r *http.Request) {
	var st payments.Settlement
	if err := decode(r, &st); err != nil {
		h.writeError(w, r, err)
		return
	}
	ctx, cancel := opCtx(r)
	defer cancel()
	p, err := h.Payments.ApplySettlement(ctx, st)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"payment_order_no": p.PaymentOrderNo, "status": string(p.Status)})
}

func (h *Handler) getPayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := opCtx(r)
	defer cancel()
	p, err := h.Payments.Get(ctx, chi.URLParam(r, "no"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) cancelPayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := opCtx(r)
	defer cancel()
	p, err := h.Payments.Cancel(ctx, chi.URLParam(r, "no"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) refundPayment(w http.ResponseWriter, r *http.Request) {
	var req cancelReq
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*opTimeout)
	defer cancel()
	p, err := h.Payments.Refund(ctx, chi.URLParam(r, "no"), req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperr.New(apperr.InvalidInput, "%s must be an integer", key)
	}
	return n, nil
}

func (h *Handler) leaderboard(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", loyalty.DefaultLeaderboardSize)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ctx, cancel := opCtx(r)
	defer cancel()
	list, err := h.Loyalty.GetLeaderboard(ctx, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) userRank(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := opCtx(r)
	defer cancel()
	e, err := h.Loyalty.GetUserRank(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *Handler) pointsHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ctx, cancel := opCtx(r)
	defer cancel()
	id := chi.URLParam(r, "id")
	bal, err := h.Loyalty.Balance(ctx, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	hist, err := h.Loyalty.History(ctx, id, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"member_id": id, "balance": bal, "transactions": hist})
}

type redeemReq struct {
	Points int64  `json:"points"`
	Note   string `json:"note"`
}

func (h *Handler) redeemPoints(w http.ResponseWriter, r *http.Request) {
	var req redeemReq
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	ctx, cancel := opCtx(r)
	defer cancel()
	e, err := h.Loyalty.Redeem(ctx, chi.URLParam(r, "id"), req.Points, req.Note)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}
