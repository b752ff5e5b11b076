package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/soulishere/internal/middleware"
	"github.com/hitoshi/soulishere/internal/model"
	"github.com/hitoshi/soulishere/internal/policy"
	"github.com/hitoshi/soulishere/internal/settings"
)

// SettingsServiceInterface はサイト設定ハンドラーが必要とするサービスインターフェース。
type SettingsServiceInterface interface {
	Get(ctx context.Context) (*model.SiteSettings, error)
	Update(ctx context.Context, actor *policy.Actor, in settings.UpdateInput) (*model.SiteSettings, error)
}

// SettingsHandler はサイト設定のHTTPハンドラー。
type SettingsHandler struct {
	service SettingsServiceInterface
}

// NewSettingsHandler はSettingsHandlerを生成する。
func NewSettingsHandler(service SettingsServiceInterface) *SettingsHandler {
	return &SettingsHandler{service: service}
}

// Get はサイト設定を返す。
// GET /site-settings
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, err := h.service.Get(r.Context())
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, s)
}

// Update はサイト設定を更新する。
// PUT /site-settings
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in settings.UpdateInput
	if err := decodeWithoutProtected(w, r, &in); err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	s, err := h.service.Update(r.Context(), middleware.ActorFromContext(r.Context()), in)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, s)
}
