package model

import "time"

// MemorialStatus はメモリアルの公開状態を表す。
type MemorialStatus string

const (
	// MemorialStatusDraft は作成直後の下書き状態。
	MemorialStatusDraft MemorialStatus = "draft"
	// MemorialStatusPublished は支払い済みで公開された状態。終端状態。
	MemorialStatusPublished MemorialStatus = "published"
)

// PaymentStatus はメモリアルの支払い状態を表す。
type PaymentStatus string

const (
	PaymentStatusNone      PaymentStatus = "none"
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// Memorial は故人1人分の追悼ページを表す。
// 埋め込みコレクション（動画・写真・家族・出来事・ゲストブック）は1ドキュメントとして扱う。
type Memorial struct {
	ID             string
	UserID         string // 作成後は不変
	FirstName      string
	LastName       string
	BirthDate      time.Time
	DeathDate      time.Time
	ProfilePicture string
	CoverPicture   string
	Biography      string
	LifeSummary    string
	Achievements   string
	Profession     string
	Website        string

	YoutubeVideos    []Video
	GalleryPhotos    []Photo
	FamilyMembers    []FamilyMember
	LifeEvents       []LifeEvent
	GuestBookEntries []GuestbookEntry

	Status        MemorialStatus
	PaymentStatus PaymentStatus
	PaymentID     string
	PaymentAmount *int64
	PaidAt        *time.Time
	QRGenerated   bool
	HugCount      int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsPublished は公開済みかどうかを返す。
func (m *Memorial) IsPublished() bool {
	return m.Status == MemorialStatusPublished
}

// Video はYouTube動画への参照。
type Video struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

// Photo はギャラリー写真への参照。
type Photo struct {
	URL         string `json:"url"`
	Description string `json:"description"`
}

// FamilyMember は家系図の1エントリ。Datesは自由記述。
type FamilyMember struct {
	Relationship string `json:"relationship"`
	Name         string `json:"name"`
	Dates        string `json:"dates"`
}

// LifeEvent は年表の1エントリ。
type LifeEvent struct {
	Title       string     `json:"title"`
	Date        *time.Time `json:"date,omitempty"`
	Description string     `json:"description"`
}

// GuestbookEntry はゲストブックへの書き込み。追記のみで変更・削除はしない。
type GuestbookEntry struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Email   string    `json:"email"`
	Message string    `json:"message"`
	Date    time.Time `json:"date"`
}

// MemorialPatch は汎用更新で変更可能なフィールドの部分集合。
// nilのフィールドは変更しない。ステータス・支払い・所有者・カウンタは含めない。
type MemorialPatch struct {
	FirstName      *string
	LastName       *string
	BirthDate      *time.Time
	DeathDate      *time.Time
	ProfilePicture *string
	CoverPicture   *string
	Biography      *string
	LifeSummary    *string
	Achievements   *string
	Profession     *string
	Website        *string

	YoutubeVideos *[]Video
	GalleryPhotos *[]Photo
	FamilyMembers *[]FamilyMember
	LifeEvents    *[]LifeEvent
}

// IsEmpty は変更対象フィールドが1つもないかを返す。
func (p *MemorialPatch) IsEmpty() bool {
	return p.FirstName == nil && p.LastName == nil &&
		p.BirthDate == nil && p.DeathDate == nil &&
		p.ProfilePicture == nil && p.CoverPicture == nil &&
		p.Biography == nil && p.LifeSummary == nil && p.Achievements == nil &&
		p.Profession == nil && p.Website == nil &&
		p.YoutubeVideos == nil && p.GalleryPhotos == nil &&
		p.FamilyMembers == nil && p.LifeEvents == nil
}

// PublishParams は公開遷移時に記録する支払い情報。
type PublishParams struct {
	PaymentID     string
	PaymentAmount int64
	PaidAt        time.Time
}

// MemorialStats は管理画面向けの集計値。
type MemorialStats struct {
	TotalUsers         int
	TotalMemorials     int
	PublishedMemorials int
	DraftMemorials     int
	TotalRevenue       int64
}

// MemorialWithOwner は管理画面の一覧で所有者情報を結合したモデル。
type MemorialWithOwner struct {
	Memorial
	OwnerName  string
	OwnerEmail string
}
