// Package settings はサイト全体の設定（SEO・画像・料金表示）の取得と更新を提供する。
package settings

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/soulishere/internal/model"
	"github.com/hitoshi/soulishere/internal/policy"
	"github.com/hitoshi/soulishere/internal/repository"
	"github.com/hitoshi/soulishere/internal/security"
)

// UpdateInput は設定更新リクエスト。指定したセクションのみ置き換える。
type UpdateInput struct {
	SEO     *model.SEOSettings   `json:"seo"`
	Images  *model.ImageSettings `json:"images"`
	Pricing *model.Pricing       `json:"pricing"`
}

// Service はサイト設定のビジネスロジックを提供する。
type Service struct {
	repo repository.SiteSettingsRepository
	urls security.URLGuard
	now  func() time.Time
}

// NewService はServiceを生成する。
func NewService(repo repository.SiteSettingsRepository, urls security.URLGuard) *Service {
	return &Service{repo: repo, urls: urls, now: time.Now}
}

// Get は保存済みの設定を返す。未保存の場合は既定値を返す（保存はしない）。
func (s *Service) Get(ctx context.Context) (*model.SiteSettings, error) {
	current, err := s.repo.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get site settings: %w", err)
	}
	if current == nil {
		return model.DefaultSiteSettings(), nil
	}
	return current, nil
}

// Update は設定を更新する。認証済みであれば誰でも実行できる。
func (s *Service) Update(ctx context.Context, actor *policy.Actor, in UpdateInput) (*model.SiteSettings, error) {
	if err := policy.Check(actor, policy.ActionUpdateSettings, nil); err != nil {
		return nil, err
	}
	if in.Pricing != nil && in.Pricing.Amount < 0 {
		return nil, model.NewValidationError("pricing.amount は0以上にしてください")
	}
	if in.Images != nil {
		if err := s.checkImages(in.Images); err != nil {
			return nil, err
		}
	}

	next, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}
	if in.SEO != nil {
		next.SEO = *in.SEO
	}
	if in.Images != nil {
		next.Images = *in.Images
	}
	if in.Pricing != nil {
		next.Pricing = *in.Pricing
	}
	normalize(next)
	next.UpdatedAt = s.now()

	saved, err := s.repo.Upsert(ctx, next)
	if err != nil {
		return nil, fmt.Errorf("failed to save site settings: %w", err)
	}

	slog.Info("site settings updated", slog.String("user_id", actor.UserID))
	return saved, nil
}

// checkImages は画像URLを検証する。サイト内の絶対パス（/images/...）はそのまま許可する。
func (s *Service) checkImages(images *model.ImageSettings) error {
	check := func(field, raw string) error {
		raw = strings.TrimSpace(raw)
		if raw == "" || isSitePath(raw) {
			return nil
		}
		if err := s.urls.ValidateURL(raw); err != nil {
			return model.NewInvalidURLError(field, err.Error())
		}
		return nil
	}

	fields := []struct {
		name, value string
	}{
		{"images.logo", images.Logo},
		{"images.favicon", images.Favicon},
		{"images.homeHeroBg", images.HomeHeroBg},
		{"images.homeHeroFamily", images.HomeHeroFamily},
		{"images.memorialSample", images.MemorialSample},
		{"images.processFlow", images.ProcessFlow},
		{"images.pricingIllustration", images.PricingIllustration},
		{"images.heartIcon", images.HeartIcon},
	}
	for _, f := range fields {
		if err := check(f.name, f.value); err != nil {
			return err
		}
	}
	for i, t := range images.Testimonials {
		if err := check(fmt.Sprintf("images.testimonials[%d].image", i), t.Image); err != nil {
			return err
		}
	}
	for i, g := range images.Gallery {
		if err := check(fmt.Sprintf("images.gallery[%d]", i), g); err != nil {
			return err
		}
	}
	return nil
}

// isSitePath は同一オリジンの絶対パスかを返す。//host 形式は外部URLとして扱う。
func isSitePath(raw string) bool {
	return strings.HasPrefix(raw, "/") && !strings.HasPrefix(raw, "//") && !strings.Contains(raw, "\\")
}

// normalize はnilのスライスを空にしてレスポンスで配列として返るようにする。
func normalize(s *model.SiteSettings) {
	if s.Images.Testimonials == nil {
		s.Images.Testimonials = []model.Testimonial{}
	}
	if s.Images.Gallery == nil {
		s.Images.Gallery = []string{}
	}
	if s.Pricing.Features == nil {
		s.Pricing.Features = []string{}
	}
}
