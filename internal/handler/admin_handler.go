package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/soulishere/internal/middleware"
	"github.com/hitoshi/soulishere/internal/model"
	"github.com/hitoshi/soulishere/internal/policy"
)

// AdminServiceInterface は管理画面ハンドラーが必要とするサービスインターフェース。
type AdminServiceInterface interface {
	Stats(ctx context.Context, actor *policy.Actor) (*model.MemorialStats, error)
	ListUsers(ctx context.Context, actor *policy.Actor) ([]*model.User, error)
	ListMemorials(ctx context.Context, actor *policy.Actor) ([]*model.MemorialWithOwner, error)
}

// AdminHandler は管理画面向けのHTTPハンドラー。
type AdminHandler struct {
	service AdminServiceInterface
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(service AdminServiceInterface) *AdminHandler {
	return &AdminHandler{service: service}
}

// Stats は集計値を返す。
// GET /admin/stats
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context(), middleware.ActorFromContext(r.Context()))
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, statsResponse{
		TotalUsers:         stats.TotalUsers,
		TotalMemorials:     stats.TotalMemorials,
		PublishedMemorials: stats.PublishedMemorials,
		DraftMemorials:     stats.DraftMemorials,
		TotalRevenue:       stats.TotalRevenue,
	})
}

// Users は全ユーザーを返す。
// GET /admin/users
func (h *AdminHandler) Users(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context(), middleware.ActorFromContext(r.Context()))
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	out := make([]*userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResponse(u))
	}
	middleware.WriteJSON(w, http.StatusOK, out)
}

// Memorials は全メモリアルを所有者情報付きで返す。
// GET /admin/memorials
func (h *AdminHandler) Memorials(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListMemorials(r.Context(), middleware.ActorFromContext(r.Context()))
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, toAdminMemorialResponses(list))
}
