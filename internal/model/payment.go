package model

import "time"

// OrderStatus は決済オーダーの状態を表す。
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusFailed    OrderStatus = "failed"
)

// PaymentOrder は決済ゲートウェイに作成したオーダーの控え。
// 支払いの検証には使わず、記帳と期限切れ処理のためだけに保持する。
type PaymentOrder struct {
	ID             string
	GatewayOrderID string
	UserID         string
	MemorialID     string
	Amount         int64 // 最小通貨単位（パイサ等）
	Currency       string
	Receipt        string
	Status         OrderStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// UploadedImage はメディアホストへのアップロード結果。
type UploadedImage struct {
	URL      string `json:"url"`
	PublicID string `json:"public_id"`
	Filename string `json:"filename"`
}
