package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/soulishere/internal/metrics"
	"github.com/hitoshi/soulishere/internal/model"
	"github.com/hitoshi/soulishere/internal/policy"
	"github.com/hitoshi/soulishere/internal/repository"
)

// DefaultCurrency は通貨の既定値。
const DefaultCurrency = "INR"

// minorUnits は主通貨単位から最小通貨単位への倍率。
const minorUnits = 100

// Gateway は決済ゲートウェイのインターフェース。RazorpayClientが実装する。
type Gateway interface {
	CreateOrder(ctx context.Context, amount int64, currency, receipt string) (*GatewayOrder, error)
	KeyID() string
}

// CreateOrderInput はオーダー作成のリクエスト。Amountは主通貨単位（ルピー等）。
type CreateOrderInput struct {
	Amount     *int64 `json:"amount"`
	Currency   string `json:"currency"`
	MemorialID string `json:"memorialId"`
}

// OrderResult はクライアントのチェックアウトに渡すオーダー情報。
type OrderResult struct {
	OrderID    string `json:"orderId"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	Receipt    string `json:"receipt"`
	KeyID      string `json:"keyId"`
	MemorialID string `json:"memorialId,omitempty"`
}

// Service は決済オーダー作成の業務ロジックを提供する。
type Service struct {
	gateway       Gateway
	orders        repository.PaymentOrderRepository
	memorials     repository.MemorialRepository
	metrics       metrics.Recorder
	defaultAmount int64
	now           func() time.Time
}

// NewService はServiceを生成する。defaultAmountは金額未指定時に使う主通貨単位の金額。
func NewService(
	gateway Gateway,
	orders repository.PaymentOrderRepository,
	memorials repository.MemorialRepository,
	recorder metrics.Recorder,
	defaultAmount int64,
) *Service {
	return &Service{
		gateway:       gateway,
		orders:        orders,
		memorials:     memorials,
		metrics:       metrics.OrNop(recorder),
		defaultAmount: defaultAmount,
		now:           time.Now,
	}
}

// CreateOrder はゲートウェイにオーダーを作成し、保留中の控えを記録する。
// MemorialIDを指定した場合、そのメモリアルを公開できる主体であることを確認する。
func (s *Service) CreateOrder(ctx context.Context, actor *policy.Actor, in CreateOrderInput) (*OrderResult, error) {
	if err := policy.Check(actor, policy.ActionCreate, nil); err != nil {
		return nil, err
	}

	amount := s.defaultAmount
	if in.Amount != nil {
		if *in.Amount <= 0 {
			return nil, model.NewValidationError("amount は正の数で指定してください。")
		}
		amount = *in.Amount
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = DefaultCurrency
	}
	if !isCurrencyCode(currency) {
		return nil, model.NewValidationError("currency は3文字の通貨コードで指定してください。")
	}

	memorialID := strings.TrimSpace(in.MemorialID)
	if memorialID != "" {
		m, err := s.memorials.FindByID(ctx, memorialID)
		if err != nil {
			return nil, fmt.Errorf("failed to find memorial: %w", err)
		}
		if m == nil {
			return nil, model.NewMemorialNotFoundError(memorialID)
		}
		if err := policy.Check(actor, policy.ActionPublish, m); err != nil {
			return nil, err
		}
		if m.IsPublished() {
			return nil, model.NewAlreadyPublishedError()
		}
	}

	now := s.now()
	receipt := fmt.Sprintf("receipt_%d", now.UnixMilli())
	gw, err := s.gateway.CreateOrder(ctx, amount*minorUnits, currency, receipt)
	if err != nil {
		s.metrics.RecordUpstreamFailure("razorpay")
		if errors.Is(err, ErrNotConfigured) {
			return nil, model.NewUpstreamError("決済ゲートウェイ", err)
		}
		return nil, model.NewUpstreamError("Razorpay", err)
	}

	order := &model.PaymentOrder{
		ID:             uuid.New().String(),
		GatewayOrderID: gw.ID,
		UserID:         actor.UserID,
		MemorialID:     memorialID,
		Amount:         gw.Amount,
		Currency:       gw.Currency,
		Receipt:        receipt,
		Status:         model.OrderStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.orders.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to record payment order: %w", err)
	}

	slog.Info("payment order created",
		slog.String("order_id", gw.ID),
		slog.String("user_id", actor.UserID),
		slog.Int64("amount", gw.Amount),
		slog.String("currency", gw.Currency),
	)

	return &OrderResult{
		OrderID:    gw.ID,
		Amount:     gw.Amount,
		Currency:   gw.Currency,
		Receipt:    receipt,
		KeyID:      s.gateway.KeyID(),
		MemorialID: memorialID,
	}, nil
}

func isCurrencyCode(s string) bool {
	if len(s) != 3 {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
