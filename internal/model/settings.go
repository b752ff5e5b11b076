package model

import "time"

// SiteSettings はサイト全体の設定を保持するシングルトン。
type SiteSettings struct {
	SEO       SEOSettings   `json:"seo"`
	Images    ImageSettings `json:"images"`
	Pricing   Pricing       `json:"pricing"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// SEOSettings は検索エンジン向けメタデータ。
type SEOSettings struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Keywords    string `json:"keywords"`
}

// ImageSettings はトップページ等で使用する画像URL群。
type ImageSettings struct {
	Logo                string        `json:"logo,omitempty"`
	Favicon             string        `json:"favicon,omitempty"`
	HomeHeroBg          string        `json:"homeHeroBg,omitempty"`
	HomeHeroFamily      string        `json:"homeHeroFamily,omitempty"`
	MemorialSample      string        `json:"memorialSample,omitempty"`
	ProcessFlow         string        `json:"processFlow,omitempty"`
	PricingIllustration string        `json:"pricingIllustration,omitempty"`
	HeartIcon           string        `json:"heartIcon,omitempty"`
	Testimonials        []Testimonial `json:"testimonials"`
	Gallery             []string      `json:"gallery"`
}

// Testimonial は利用者の声。
type Testimonial struct {
	Name  string `json:"name"`
	Role  string `json:"role"`
	Text  string `json:"text"`
	Image string `json:"image"`
}

// Pricing は料金表示。Amountは表示通貨の最小単位ではなく表示額そのもの。
type Pricing struct {
	Amount   int64    `json:"amount"`
	Currency string   `json:"currency"`
	Features []string `json:"features"`
}

// DefaultSiteSettings は設定未保存時に返す既定値を生成する。
func DefaultSiteSettings() *SiteSettings {
	return &SiteSettings{
		SEO: SEOSettings{
			Title:       "Soulishere - Digital Memorial Platform",
			Description: "Create beautiful, lasting digital memorials for your loved ones.",
			Keywords:    "memorial, tribute, digital memorial, remembrance",
		},
		Images: ImageSettings{
			HomeHeroFamily:      "/images/home_hero_family.png",
			MemorialSample:      "/images/memorial_sample.png",
			ProcessFlow:         "/images/process_flow.png",
			PricingIllustration: "/images/pricing_illustration.png",
			HeartIcon:           "/images/heart_icon.png",
			Testimonials:        []Testimonial{},
			Gallery: []string{
				"/images/gallery_1.png",
				"/images/gallery_2.png",
				"/images/gallery_3.png",
				"/images/gallery_4.png",
			},
		},
		Pricing: Pricing{
			Amount:   1999,
			Currency: "₹",
			Features: []string{
				"YouTube Video Embedding",
				"Profile & Cover Pictures",
				"Complete Guest Book",
				"Family Tree Documentation",
				"Life Timeline & Events",
				"Premium Design Templates",
				"Permanent Memorial Page",
			},
		},
	}
}
