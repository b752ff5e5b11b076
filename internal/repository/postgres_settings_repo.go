package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/soulishere/internal/model"
)

// siteSettingsID はシングルトン行の固定ID。
const siteSettingsID = "default"

// PostgresSiteSettingsRepo はPostgreSQLを使用したサイト設定リポジトリ。
type PostgresSiteSettingsRepo struct {
	db *sql.DB
}

// NewPostgresSiteSettingsRepo はPostgresSiteSettingsRepoを生成する。
func NewPostgresSiteSettingsRepo(db *sql.DB) *PostgresSiteSettingsRepo {
	return &PostgresSiteSettingsRepo{db: db}
}

// Get は保存済みの設定を返す。未保存の場合はnilを返す。
func (r *PostgresSiteSettingsRepo) Get(ctx context.Context) (*model.SiteSettings, error) {
	settings, err := scanSiteSettings(r.db.QueryRowContext(ctx,
		`SELECT seo, images, pricing, updated_at FROM site_settings WHERE id = $1`,
		siteSettingsID,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to get site settings: %w", err)
	}
	return settings, nil
}

// Upsert は設定を保存する。
func (r *PostgresSiteSettingsRepo) Upsert(ctx context.Context, settings *model.SiteSettings) (*model.SiteSettings, error) {
	seo, err := json.Marshal(settings.SEO)
	if err != nil {
		return nil, fmt.Errorf("failed to encode seo settings: %w", err)
	}
	images, err := json.Marshal(settings.Images)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image settings: %w", err)
	}
	pricing, err := json.Marshal(settings.Pricing)
	if err != nil {
		return nil, fmt.Errorf("failed to encode pricing: %w", err)
	}

	saved, err := scanSiteSettings(r.db.QueryRowContext(ctx,
		`INSERT INTO site_settings (id, seo, images, pricing, updated_at)
		 VALUES ($1, $2::jsonb, $3::jsonb, $4::jsonb, $5)
		 ON CONFLICT (id) DO UPDATE SET
		    seo = EXCLUDED.seo,
		    images = EXCLUDED.images,
		    pricing = EXCLUDED.pricing,
		    updated_at = EXCLUDED.updated_at
		 RETURNING seo, images, pricing, updated_at`,
		siteSettingsID, seo, images, pricing, settings.UpdatedAt,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert site settings: %w", err)
	}
	return saved, nil
}

func scanSiteSettings(row rowScanner) (*model.SiteSettings, error) {
	settings := &model.SiteSettings{}
	var seo, images, pricing []byte
	err := row.Scan(&seo, &images, &pricing, &settings.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(seo, &settings.SEO); err != nil {
		return nil, fmt.Errorf("failed to decode seo settings: %w", err)
	}
	if err := json.Unmarshal(images, &settings.Images); err != nil {
		return nil, fmt.Errorf("failed to decode image settings: %w", err)
	}
	if err := json.Unmarshal(pricing, &settings.Pricing); err != nil {
		return nil, fmt.Errorf("failed to decode pricing: %w", err)
	}
	return settings, nil
}

// compile-time interface check
var _ SiteSettingsRepository = (*PostgresSiteSettingsRepo)(nil)
