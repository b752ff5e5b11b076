package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/soulishere/internal/middleware"
	"github.com/hitoshi/soulishere/internal/payment"
	"github.com/hitoshi/soulishere/internal/policy"
)

// PaymentServiceInterface は決済ハンドラーが必要とするサービスインターフェース。
type PaymentServiceInterface interface {
	CreateOrder(ctx context.Context, actor *policy.Actor, in payment.CreateOrderInput) (*payment.OrderResult, error)
}

// PaymentHandler は決済オーダーのHTTPハンドラー。
type PaymentHandler struct {
	service PaymentServiceInterface
}

// NewPaymentHandler はPaymentHandlerを生成する。
func NewPaymentHandler(service PaymentServiceInterface) *PaymentHandler {
	return &PaymentHandler{service: service}
}

// CreateOrder は決済ゲートウェイにオーダーを作成する。ボディは省略できる。
// POST /payments/orders
func (h *PaymentHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var in payment.CreateOrderInput
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &in); err != nil {
			middleware.WriteError(w, r, err)
			return
		}
	}

	order, err := h.service.CreateOrder(r.Context(), middleware.ActorFromContext(r.Context()), in)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, order)
}
