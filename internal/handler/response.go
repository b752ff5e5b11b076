package handler

import (
	"time"

	"github.com/hitoshi/soulishere/internal/model"
)

// userResponse はユーザー情報のAPIレスポンス。パスワードハッシュは含めない。
type userResponse struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	HasPassword  bool      `json:"hasPassword"`
	GoogleLinked bool      `json:"googleLinked"`
	CreatedAt    time.Time `json:"createdAt"`
}

func toUserResponse(u *model.User) *userResponse {
	if u == nil {
		return nil
	}
	return &userResponse{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		Role:         string(u.Role),
		HasPassword:  u.PasswordHash != "",
		GoogleLinked: u.GoogleID != "",
		CreatedAt:    u.CreatedAt,
	}
}

// authResponse はログイン・登録成功時のレスポンス。
type authResponse struct {
	Token string        `json:"token"`
	User  *userResponse `json:"user"`
}

// memorialResponse はメモリアルのAPIレスポンス。
type memorialResponse struct {
	ID               string                 `json:"id"`
	UserID           string                 `json:"userId"`
	FirstName        string                 `json:"firstName"`
	LastName         string                 `json:"lastName"`
	BirthDate        *time.Time             `json:"birthDate"`
	DeathDate        *time.Time             `json:"deathDate"`
	ProfilePicture   string                 `json:"profilePicture"`
	CoverPicture     string                 `json:"coverPicture"`
	Biography        string                 `json:"biography"`
	LifeSummary      string                 `json:"lifeSummary"`
	Achievements     string                 `json:"achievements"`
	Profession       string                 `json:"profession"`
	Website          string                 `json:"website"`
	YoutubeVideos    []model.Video          `json:"youtubeVideos"`
	GalleryPhotos    []model.Photo          `json:"galleryPhotos"`
	FamilyMembers    []model.FamilyMember   `json:"familyMembers"`
	LifeEvents       []model.LifeEvent      `json:"lifeEvents"`
	GuestBookEntries []model.GuestbookEntry `json:"guestBookEntries"`
	Status           string                 `json:"status"`
	PaymentStatus    string                 `json:"paymentStatus"`
	PaymentID        string                 `json:"paymentId,omitempty"`
	PaymentAmount    *int64                 `json:"paymentAmount,omitempty"`
	PaidAt           *time.Time             `json:"paidAt,omitempty"`
	QRGenerated      bool                   `json:"qrGenerated"`
	HugCount         int64                  `json:"hugCount"`
	CreatedAt        time.Time              `json:"createdAt"`
	UpdatedAt        time.Time              `json:"updatedAt"`
}

func toMemorialResponse(m *model.Memorial) *memorialResponse {
	return &memorialResponse{
		ID:               m.ID,
		UserID:           m.UserID,
		FirstName:        m.FirstName,
		LastName:         m.LastName,
		BirthDate:        timePtr(m.BirthDate),
		DeathDate:        timePtr(m.DeathDate),
		ProfilePicture:   m.ProfilePicture,
		CoverPicture:     m.CoverPicture,
		Biography:        m.Biography,
		LifeSummary:      m.LifeSummary,
		Achievements:     m.Achievements,
		Profession:       m.Profession,
		Website:          m.Website,
		YoutubeVideos:    nonNil(m.YoutubeVideos),
		GalleryPhotos:    nonNil(m.GalleryPhotos),
		FamilyMembers:    nonNil(m.FamilyMembers),
		LifeEvents:       nonNil(m.LifeEvents),
		GuestBookEntries: nonNil(m.GuestBookEntries),
		Status:           string(m.Status),
		PaymentStatus:    string(m.PaymentStatus),
		PaymentID:        m.PaymentID,
		PaymentAmount:    m.PaymentAmount,
		PaidAt:           m.PaidAt,
		QRGenerated:      m.QRGenerated,
		HugCount:         m.HugCount,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func toMemorialResponses(ms []*model.Memorial) []*memorialResponse {
	out := make([]*memorialResponse, 0, len(ms))
	for _, m := range ms {
		out = append(out, toMemorialResponse(m))
	}
	return out
}

// ownerResponse は管理画面の一覧に含める所有者情報。
type ownerResponse struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type adminMemorialResponse struct {
	*memorialResponse
	Owner ownerResponse `json:"owner"`
}

func toAdminMemorialResponses(ms []*model.MemorialWithOwner) []*adminMemorialResponse {
	out := make([]*adminMemorialResponse, 0, len(ms))
	for _, m := range ms {
		out = append(out, &adminMemorialResponse{
			memorialResponse: toMemorialResponse(&m.Memorial),
			Owner:            ownerResponse{Name: m.OwnerName, Email: m.OwnerEmail},
		})
	}
	return out
}

// statsResponse は管理画面の集計値。
type statsResponse struct {
	TotalUsers         int   `json:"totalUsers"`
	TotalMemorials     int   `json:"totalMemorials"`
	PublishedMemorials int   `json:"publishedMemorials"`
	DraftMemorials     int   `json:"draftMemorials"`
	TotalRevenue       int64 `json:"totalRevenue"`
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
