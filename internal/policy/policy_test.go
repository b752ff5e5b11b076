package policy

import (
	"sort"
	"testing"

	"github.com/hitoshi/soulishere/internal/model"
)

func TestCanAct(t *testing.T) {
	owner := &Actor{UserID: "owner", Role: model.RoleMember}
	stranger := &Actor{UserID: "stranger", Role: model.RoleMember}
	admin := &Actor{UserID: "admin", Role: model.RoleAdmin}

	draft := &model.Memorial{ID: "m1", UserID: "owner", Status: model.MemorialStatusDraft}
	published := &model.Memorial{ID: "m2", UserID: "owner", Status: model.MemorialStatusPublished, PaymentStatus: model.PaymentStatusCompleted}

	tests := []struct {
		name     string
		actor    *Actor
		action   Action
		memorial *model.Memorial
		want     Decision
	}{
		{"誰でも閲覧できる", nil, ActionRead, draft, Allow},
		{"未認証は作成できない", nil, ActionCreate, nil, Unauthenticated},
		{"認証済みなら作成できる", stranger, ActionCreate, nil, Allow},
		{"作成者は編集できる", owner, ActionUpdate, draft, Allow},
		{"他人は編集できない", stranger, ActionUpdate, draft, Forbidden},
		{"管理者は他人のメモリアルを編集できる", admin, ActionUpdate, draft, Allow},
		{"未認証は編集できない", nil, ActionUpdate, draft, Unauthenticated},
		{"他人は削除できない", stranger, ActionDelete, published, Forbidden},
		{"作成者は削除できる", owner, ActionDelete, published, Allow},
		{"作成者は公開できる", owner, ActionPublish, draft, Allow},
		{"他人は公開できない", stranger, ActionPublish, draft, Forbidden},
		{"管理者は公開できる", admin, ActionPublish, draft, Allow},
		{"作成者でもQRは有効化できない", owner, ActionEnableQR, published, Forbidden},
		{"管理者はQRを有効化できる", admin, ActionEnableQR, published, Allow},
		{"未認証はQRを有効化できない", nil, ActionEnableQR, published, Unauthenticated},
		{"一般ユーザーは管理画面を読めない", owner, ActionAdminRead, nil, Forbidden},
		{"管理者は管理画面を読める", admin, ActionAdminRead, nil, Allow},
		{"下書きにはゲストブックを書けない", nil, ActionGuestbookWrite, draft, NotPublished},
		{"公開済みなら誰でもゲストブックを書ける", nil, ActionGuestbookWrite, published, Allow},
		{"下書きにはハグできない", stranger, ActionHug, draft, NotPublished},
		{"公開済みなら誰でもハグできる", nil, ActionHug, published, Allow},
		{"認証済みならサイト設定を更新できる", stranger, ActionUpdateSettings, nil, Allow},
		{"未認証はサイト設定を更新できない", nil, ActionUpdateSettings, nil, Unauthenticated},
		{"未知の操作は拒否する", owner, Action("unknown"), draft, Forbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanAct(tt.actor, tt.action, tt.memorial); got != tt.want {
				t.Errorf("CanAct() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCheck_MapsDecisionToErrorKind(t *testing.T) {
	draft := &model.Memorial{ID: "m1", UserID: "owner", Status: model.MemorialStatusDraft}

	tests := []struct {
		name     string
		actor    *Actor
		action   Action
		wantKind model.ErrorKind
		wantCode string
	}{
		{"未認証", nil, ActionUpdate, model.KindUnauthenticated, model.ErrCodeUnauthorized},
		{"権限なし", &Actor{UserID: "x"}, ActionDelete, model.KindForbidden, model.ErrCodeForbidden},
		{"管理者専用", &Actor{UserID: "x"}, ActionEnableQR, model.KindForbidden, model.ErrCodeAdminRequired},
		{"下書きへのハグ", nil, ActionHug, model.KindValidationFailed, model.ErrCodeNotPublished},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(tt.actor, tt.action, draft)
			if err == nil {
				t.Fatal("expected error")
			}
			apiErr, ok := err.(*model.APIError)
			if !ok {
				t.Fatalf("expected *model.APIError, got %T", err)
			}
			if apiErr.Kind != tt.wantKind || apiErr.Code != tt.wantCode {
				t.Errorf("got %s/%s, want %s/%s", apiErr.Kind, apiErr.Code, tt.wantKind, tt.wantCode)
			}
		})
	}

	if err := Check(&Actor{UserID: "owner"}, ActionUpdate, draft); err != nil {
		t.Errorf("owner update should be allowed, got %v", err)
	}
}

func TestStripProtectedFields(t *testing.T) {
	input := map[string]string{
		"firstName":     "Jane",
		"biography":     "text",
		"status":        "published",
		"paymentStatus": "completed",
		"hugCount":      "1000",
		"userId":        "someone",
		"_id":           "x",
	}

	kept, dropped := StripProtectedFields(input)

	if len(kept) != 2 {
		t.Errorf("kept = %v, want only firstName and biography", kept)
	}
	if _, ok := kept["status"]; ok {
		t.Error("status should be stripped")
	}
	sort.Strings(dropped)
	want := []string{"_id", "hugCount", "paymentStatus", "status", "userId"}
	if len(dropped) != len(want) {
		t.Fatalf("dropped = %v, want %v", dropped, want)
	}
	for i := range want {
		if dropped[i] != want[i] {
			t.Errorf("dropped[%d] = %q, want %q", i, dropped[i], want[i])
		}
	}

	// 入力マップは変更しない
	if _, ok := input["status"]; !ok {
		t.Error("input map must not be modified")
	}
}
