// Package policy はメモリアルに対する操作の認可判定を提供する。
// 判定は純粋関数で行い、ストアやHTTPには依存しない。
package policy

import (
	"github.com/hitoshi/soulishere/internal/model"
)

// Action は認可対象の操作。
type Action string

const (
	ActionRead           Action = "read"
	ActionCreate         Action = "create"
	ActionUpdate         Action = "update"
	ActionDelete         Action = "delete"
	ActionPublish        Action = "publish"
	ActionEnableQR       Action = "enable_qr"
	ActionAdminRead      Action = "admin_read"
	ActionGuestbookWrite Action = "guestbook_write"
	ActionHug            Action = "hug"
	ActionUpdateSettings Action = "update_settings"
)

// Decision は認可判定の結果。
type Decision int

const (
	Allow Decision = iota
	Unauthenticated
	Forbidden
	NotPublished
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Unauthenticated:
		return "unauthenticated"
	case Forbidden:
		return "forbidden"
	case NotPublished:
		return "not_published"
	default:
		return "unknown"
	}
}

// Actor は操作の主体。未認証の場合はnilを渡す。
// Roleはトークンではなくユーザーストアから解決した値を設定する。
type Actor struct {
	UserID string
	Role   model.Role
}

// IsAdmin は管理者かどうかを返す。
func (a *Actor) IsAdmin() bool {
	return a != nil && a.Role == model.RoleAdmin
}

// owns は主体がメモリアルの作成者かを返す。
func (a *Actor) owns(m *model.Memorial) bool {
	return a != nil && m != nil && a.UserID != "" && a.UserID == m.UserID
}

// CanAct は主体がメモリアルに対して操作を行えるかを判定する。
// メモリアルを対象としない操作（Create, AdminRead, UpdateSettings）ではmにnilを渡してよい。
func CanAct(actor *Actor, action Action, m *model.Memorial) Decision {
	switch action {
	case ActionRead:
		return Allow

	case ActionGuestbookWrite, ActionHug:
		if m == nil || !m.IsPublished() {
			return NotPublished
		}
		return Allow

	case ActionCreate, ActionUpdateSettings:
		if actor == nil {
			return Unauthenticated
		}
		return Allow

	case ActionUpdate, ActionDelete, ActionPublish:
		if actor == nil {
			return Unauthenticated
		}
		if actor.owns(m) || actor.IsAdmin() {
			return Allow
		}
		return Forbidden

	case ActionEnableQR, ActionAdminRead:
		if actor == nil {
			return Unauthenticated
		}
		if actor.IsAdmin() {
			return Allow
		}
		return Forbidden
	}

	if actor == nil {
		return Unauthenticated
	}
	return Forbidden
}

// Check はCanActの結果を*model.APIErrorに変換する。許可された場合はnilを返す。
func Check(actor *Actor, action Action, m *model.Memorial) error {
	switch CanAct(actor, action, m) {
	case Allow:
		return nil
	case Unauthenticated:
		return model.NewUnauthenticatedError()
	case NotPublished:
		if action == ActionHug {
			return model.NewNotPublishedError("ハグ")
		}
		return model.NewNotPublishedError("ゲストブックへの書き込み")
	default:
		if action == ActionEnableQR || action == ActionAdminRead {
			return model.NewAdminRequiredError()
		}
		return model.NewForbiddenError(actionLabel(action))
	}
}

func actionLabel(action Action) string {
	switch action {
	case ActionUpdate:
		return "編集"
	case ActionDelete:
		return "削除"
	case ActionPublish:
		return "公開"
	default:
		return "操作"
	}
}
