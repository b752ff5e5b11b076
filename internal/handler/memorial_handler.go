package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/soulishere/internal/memorial"
	"github.com/hitoshi/soulishere/internal/middleware"
	"github.com/hitoshi/soulishere/internal/model"
	"github.com/hitoshi/soulishere/internal/policy"
)

// MemorialServiceInterface はメモリアルハンドラーが必要とするサービスインターフェース。
type MemorialServiceInterface interface {
	Create(ctx context.Context, actor *policy.Actor, in memorial.CreateInput) (*model.Memorial, error)
	Get(ctx context.Context, id string) (*model.Memorial, error)
	ListOwn(ctx context.Context, actor *policy.Actor) ([]*model.Memorial, error)
	Drafts(ctx context.Context, actor *policy.Actor) ([]*model.Memorial, error)
	Sample(ctx context.Context) (*model.Memorial, error)
	Update(ctx context.Context, actor *policy.Actor, id string, in memorial.UpdateInput) (*model.Memorial, error)
	Delete(ctx context.Context, actor *policy.Actor, id string) error
	Publish(ctx context.Context, actor *policy.Actor, id string, in memorial.PublishInput) (*model.Memorial, error)
	EnableQR(ctx context.Context, actor *policy.Actor, id string) (*model.Memorial, error)
	Hug(ctx context.Context, id string) (int64, error)
	AddGuestbookEntry(ctx context.Context, id string, in memorial.GuestbookInput) ([]model.GuestbookEntry, error)
}

// MemorialHandler はメモリアル関連のHTTPハンドラー。
type MemorialHandler struct {
	service MemorialServiceInterface
}

// NewMemorialHandler はMemorialHandlerを生成する。
func NewMemorialHandler(service MemorialServiceInterface) *MemorialHandler {
	return &MemorialHandler{service: service}
}

// List は自分のメモリアル一覧を返す。
// GET /memorials
func (h *MemorialHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListOwn(r.Context(), middleware.ActorFromContext(r.Context()))
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, toMemorialResponses(list))
}

// Drafts は自分の下書き一覧を返す。
// GET /memorials/drafts
func (h *MemorialHandler) Drafts(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.Drafts(r.Context(), middleware.ActorFromContext(r.Context()))
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, toMemorialResponses(list))
}

// Sample は見本のメモリアルを返す。
// GET /memorials/sample
func (h *MemorialHandler) Sample(w http.ResponseWriter, r *http.Request) {
	m, err := h.service.Sample(r.Context())
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, toMemorialResponse(m))
}

// Create はメモリアルを下書きとして作成する。
// POST /memorials
func (h *MemorialHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in memorial.CreateInput
	if err := decodeWithoutProtected(w, r, &in); err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	m, err := h.service.Create(r.Context(), middleware.ActorFromContext(r.Context()), in)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, toMemorialResponse(m))
}

// Get はメモリアルを返す。
// GET /memorials/{id}
func (h *MemorialHandler) Get(w http.ResponseWriter, r *http.Request) {
	m, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, toMemorialResponse(m))
}

// Update はメモリアルを更新する。状態・支払い・所有者のフィールドは無視する。
// PUT /memorials/{id}
func (h *MemorialHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in memorial.UpdateInput
	if err := decodeWithoutProtected(w, r, &in); err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	m, err := h.service.Update(r.Context(), middleware.ActorFromContext(r.Context()), chi.URLParam(r, "id"), in)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, toMemorialResponse(m))
}

// Delete はメモリアルを削除する。
// DELETE /memorials/{id}
func (h *MemorialHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), middleware.ActorFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	middleware.WriteMessage(w, http.StatusOK, "メモリアルを削除しました。")
}

// Publish は支払い情報を記録してメモリアルを公開する。
// POST /memorials/{id}/publish
func (h *MemorialHandler) Publish(w http.ResponseWriter, r *http.Request) {
	var in memorial.PublishInput
	if err := decodeJSON(w, r, &in); err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	m, err := h.service.Publish(r.Context(), middleware.ActorFromContext(r.Context()), chi.URLParam(r, "id"), in)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, toMemorialResponse(m))
}

// EnableQR はQRコードを有効にする。
// POST /memorials/{id}/qr
func (h *MemorialHandler) EnableQR(w http.ResponseWriter, r *http.Request) {
	m, err := h.service.EnableQR(r.Context(), middleware.ActorFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, toMemorialResponse(m))
}

// Hug はハグ数を1増やす。
// POST /memorials/{id}/hug
func (h *MemorialHandler) Hug(w http.ResponseWriter, r *http.Request) {
	count, err := h.service.Hug(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]int64{"hugCount": count})
}

// AddGuestbookEntry はゲストブックに書き込み、全エントリを返す。
// POST /memorials/{id}/guestbook
func (h *MemorialHandler) AddGuestbookEntry(w http.ResponseWriter, r *http.Request) {
	var in memorial.GuestbookInput
	if err := decodeJSON(w, r, &in); err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	entries, err := h.service.AddGuestbookEntry(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, entries)
}
