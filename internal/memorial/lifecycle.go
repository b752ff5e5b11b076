package memorial

import (
	"strings"
	"time"

	"github.com/hitoshi/soulishere/internal/model"
)

// DefaultPaymentAmount は支払額が指定されなかった場合に記録する額。
const DefaultPaymentAmount int64 = 1999

// Lifecycle はメモリアルの状態遷移（下書き→公開）を管理する。
// 公開は終端状態で、非公開への戻しは提供しない。
type Lifecycle struct {
	defaultAmount int64
}

// NewLifecycle はLifecycleを生成する。defaultAmountが0以下の場合はDefaultPaymentAmountを使う。
func NewLifecycle(defaultAmount int64) Lifecycle {
	if defaultAmount <= 0 {
		defaultAmount = DefaultPaymentAmount
	}
	return Lifecycle{defaultAmount: defaultAmount}
}

// CanTransition はfromからtoへの遷移が許可されているかを返す。
func CanTransition(from, to model.MemorialStatus) bool {
	return from == model.MemorialStatusDraft && to == model.MemorialStatusPublished
}

// PublishParams は公開時に記録する支払い情報を組み立てる。
// 支払いIDが空の場合はエラー。支払額が省略または0以下なら既定額を使う。
func (l Lifecycle) PublishParams(in PublishInput, now time.Time) (model.PublishParams, error) {
	paymentID := strings.TrimSpace(in.PaymentID)
	if paymentID == "" {
		return model.PublishParams{}, model.NewPaymentRequiredError()
	}
	amount := l.defaultAmount
	if in.PaymentAmount != nil && *in.PaymentAmount > 0 {
		amount = *in.PaymentAmount
	}
	return model.PublishParams{
		PaymentID:     paymentID,
		PaymentAmount: amount,
		PaidAt:        now,
	}, nil
}

// DefaultAmount は既定の支払額を返す。
func (l Lifecycle) DefaultAmount() int64 {
	return l.defaultAmount
}
