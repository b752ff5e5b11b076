// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/soulishere/internal/model"
)

// ErrDuplicateEmail はメールアドレスの一意制約に違反した場合に返される。
var ErrDuplicateEmail = errors.New("email already exists")

// ErrDuplicateGoogleID はGoogle IDの一意制約に違反した場合に返される。
var ErrDuplicateGoogleID = errors.New("google id already linked")

// ErrNotPublished は公開済みであることを条件とする更新で、対象が下書きだった場合に返される。
var ErrNotPublished = errors.New("memorial is not published")

// ErrAlreadyPublished は下書きであることを条件とする公開処理で、対象が公開済みだった場合に返される。
var ErrAlreadyPublished = errors.New("memorial is already published")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// FindByGoogleID はGoogle IDでユーザーを検索する。見つからない場合はnilを返す。
	FindByGoogleID(ctx context.Context, googleID string) (*model.User, error)

	// Create はユーザーを作成する。メールアドレス重複時はErrDuplicateEmailを返す。
	Create(ctx context.Context, user *model.User) error

	// LinkGoogleID は既存ユーザーにGoogle IDを紐付ける。
	LinkGoogleID(ctx context.Context, userID, googleID string) error

	// UpdateCredentials は管理者ブートストラップ用にロールとパスワードハッシュを更新する。
	UpdateCredentials(ctx context.Context, userID string, role model.Role, passwordHash string) error

	// List は全ユーザーを作成日時の降順で返す。
	List(ctx context.Context) ([]*model.User, error)

	// Count はユーザー総数を返す。
	Count(ctx context.Context) (int, error)
}

// MemorialRepository はメモリアルの永続化インターフェース。
// すべての更新は単一ドキュメント（単一行）に対するアトミックな操作として実装する。
type MemorialRepository interface {
	// FindByID は指定IDのメモリアルを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Memorial, error)

	// FindByOwner は所有者のメモリアルを作成日時の降順で返す。
	FindByOwner(ctx context.Context, userID string) ([]*model.Memorial, error)

	// FindDraftsByOwner は所有者の下書きを更新日時の降順で返す。
	FindDraftsByOwner(ctx context.Context, userID string) ([]*model.Memorial, error)

	// FindPublishedSample は最も古い公開済みメモリアルを返す。存在しない場合はnilを返す。
	FindPublishedSample(ctx context.Context) (*model.Memorial, error)

	// Create はメモリアルを作成する。
	Create(ctx context.Context, memorial *model.Memorial) error

	// UpdateFields はpatchの非nilフィールドのみを更新し、updated_atを進める。
	// 見つからない場合はnilを返す。
	UpdateFields(ctx context.Context, id string, patch *model.MemorialPatch, now time.Time) (*model.Memorial, error)

	// Publish は下書きを公開状態へ遷移させ支払い情報を記録する。
	// 見つからない場合はnil、公開済みの場合はErrAlreadyPublishedを返す。
	Publish(ctx context.Context, id string, params model.PublishParams) (*model.Memorial, error)

	// SetQRGenerated はQRコード生成フラグを有効にする。見つからない場合はnilを返す。
	SetQRGenerated(ctx context.Context, id string, now time.Time) (*model.Memorial, error)

	// AppendGuestbookEntry は公開済みメモリアルのゲストブックにエントリをアトミックに追記する。
	// 見つからない場合はnil、下書きの場合はErrNotPublishedを返す。
	AppendGuestbookEntry(ctx context.Context, id string, entry model.GuestbookEntry) ([]model.GuestbookEntry, error)

	// IncrementHug は公開済みメモリアルのハグ数をアトミックに1増やし、増加後の値を返す。
	// 見つからない場合は(0, false, nil)、下書きの場合はErrNotPublishedを返す。
	IncrementHug(ctx context.Context, id string) (int64, bool, error)

	// Delete はメモリアルを削除する。削除した場合はtrueを返す。
	Delete(ctx context.Context, id string) (bool, error)

	// FindAll は全メモリアルを所有者情報付きで作成日時の降順に返す。
	FindAll(ctx context.Context) ([]*model.MemorialWithOwner, error)

	// Stats はメモリアル件数と支払い完了分の合計金額を返す。TotalUsersは設定しない。
	Stats(ctx context.Context) (*model.MemorialStats, error)
}

// SiteSettingsRepository はサイト設定（シングルトン）の永続化インターフェース。
type SiteSettingsRepository interface {
	// Get は保存済みの設定を返す。未保存の場合はnilを返す。
	Get(ctx context.Context) (*model.SiteSettings, error)

	// Upsert は設定を保存する。存在しない場合は作成する。
	Upsert(ctx context.Context, settings *model.SiteSettings) (*model.SiteSettings, error)
}

// PaymentOrderRepository は決済オーダー控えの永続化インターフェース。
type PaymentOrderRepository interface {
	// Create はオーダー控えを作成する。
	Create(ctx context.Context, order *model.PaymentOrder) error

	// MarkCompletedByGatewayID はゲートウェイのオーダーIDに一致する保留中オーダーを完了にする。
	// 一致するオーダーがない場合はfalseを返す。
	MarkCompletedByGatewayID(ctx context.Context, gatewayOrderID, memorialID string, now time.Time) (bool, error)

	// ExpirePending はcreatedBefore より前に作成された保留中オーダーを失敗にし、件数を返す。
	ExpirePending(ctx context.Context, createdBefore, now time.Time) (int64, error)
}
