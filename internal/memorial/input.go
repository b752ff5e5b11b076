package memorial

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/soulishere/internal/model"
)

// dateLayouts はDateが受け付ける形式。フォームからは日付のみが送られる。
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Date は "2006-01-02" とRFC3339のどちらでも受け付ける日付。
type Date struct {
	time.Time
}

// UnmarshalJSON は文字列の日付をパースする。nullと空文字列はゼロ値として扱う。
func (d *Date) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		d.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		d.Time = time.Time{}
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			d.Time = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("invalid date %q", s)
}

// VideoInput はYouTube動画の入力。
type VideoInput struct {
	Title       string `json:"title" validate:"max=200"`
	URL         string `json:"url" validate:"required,max=2048"`
	Description string `json:"description" validate:"max=2000"`
	ID          string `json:"_id,omitempty"`
}

// PhotoInput はギャラリー写真の入力。
type PhotoInput struct {
	URL         string `json:"url" validate:"required,max=2048"`
	Description string `json:"description" validate:"max=2000"`
	ID          string `json:"_id,omitempty"`
}

// FamilyMemberInput は家族の入力。
type FamilyMemberInput struct {
	Relationship string `json:"relationship" validate:"max=100"`
	Name         string `json:"name" validate:"required,max=200"`
	Dates        string `json:"dates" validate:"max=100"`
	ID           string `json:"_id,omitempty"`
}

// LifeEventInput は年表の入力。
type LifeEventInput struct {
	Title       string `json:"title" validate:"required,max=200"`
	Date        *Date  `json:"date"`
	Description string `json:"description" validate:"max=5000"`
	ID          string `json:"_id,omitempty"`
}

// CreateInput はメモリアル作成リクエスト。
type CreateInput struct {
	FirstName      string              `json:"firstName" validate:"required,max=100"`
	LastName       string              `json:"lastName" validate:"required,max=100"`
	BirthDate      Date                `json:"birthDate"`
	DeathDate      Date                `json:"deathDate"`
	ProfilePicture string              `json:"profilePicture" validate:"max=2048"`
	CoverPicture   string              `json:"coverPicture" validate:"max=2048"`
	Biography      string              `json:"biography" validate:"max=20000"`
	LifeSummary    string              `json:"lifeSummary" validate:"max=5000"`
	Achievements   string              `json:"achievements" validate:"max=10000"`
	Profession     string              `json:"profession" validate:"max=200"`
	Website        string              `json:"website" validate:"max=2048"`
	YoutubeVideos  []VideoInput        `json:"youtubeVideos" validate:"max=50,dive"`
	GalleryPhotos  []PhotoInput        `json:"galleryPhotos" validate:"max=200,dive"`
	FamilyMembers  []FamilyMemberInput `json:"familyMembers" validate:"max=100,dive"`
	LifeEvents     []LifeEventInput    `json:"lifeEvents" validate:"max=200,dive"`
}

// UpdateInput は汎用更新リクエスト。指定されたフィールドのみ変更する。
// 保護フィールドはデコード前に取り除かれるためここには含めない。
type UpdateInput struct {
	FirstName      *string              `json:"firstName" validate:"omitnil,min=1,max=100"`
	LastName       *string              `json:"lastName" validate:"omitnil,min=1,max=100"`
	BirthDate      *Date                `json:"birthDate"`
	DeathDate      *Date                `json:"deathDate"`
	ProfilePicture *string              `json:"profilePicture" validate:"omitnil,max=2048"`
	CoverPicture   *string              `json:"coverPicture" validate:"omitnil,max=2048"`
	Biography      *string              `json:"biography" validate:"omitnil,max=20000"`
	LifeSummary    *string              `json:"lifeSummary" validate:"omitnil,max=5000"`
	Achievements   *string              `json:"achievements" validate:"omitnil,max=10000"`
	Profession     *string              `json:"profession" validate:"omitnil,max=200"`
	Website        *string              `json:"website" validate:"omitnil,max=2048"`
	YoutubeVideos  *[]VideoInput        `json:"youtubeVideos" validate:"omitnil,max=50,dive"`
	GalleryPhotos  *[]PhotoInput        `json:"galleryPhotos" validate:"omitnil,max=200,dive"`
	FamilyMembers  *[]FamilyMemberInput `json:"familyMembers" validate:"omitnil,max=100,dive"`
	LifeEvents     *[]LifeEventInput    `json:"lifeEvents" validate:"omitnil,max=200,dive"`
}

// PublishInput は公開リクエスト。PaymentAmountが省略または0以下の場合は既定額を使う。
type PublishInput struct {
	PaymentID     string `json:"paymentId" validate:"max=200"`
	PaymentAmount *int64 `json:"paymentAmount"`
}

// GuestbookInput はゲストブック書き込みリクエスト。
type GuestbookInput struct {
	Name    string `json:"name" validate:"required,max=100"`
	Email   string `json:"email" validate:"required,email,max=254"`
	Message string `json:"message" validate:"required,max=5000"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// エラーメッセージにはJSONのフィールド名を使う
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate は構造体のタグ検証を行い、失敗した場合はValidationFailedのエラーを返す。
func Validate(input any) error {
	err := validate.Struct(input)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return model.NewInvalidRequestError(err.Error())
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describeFieldError(fe))
	}
	return model.NewValidationError(strings.Join(msgs, ", "))
}

func describeFieldError(fe validator.FieldError) string {
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s は必須です", field)
	case "email":
		return fmt.Sprintf("%s はメールアドレスの形式ではありません", field)
	case "max":
		return fmt.Sprintf("%s は%s以下にしてください", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s は%s以上にしてください", field, fe.Param())
	default:
		return fmt.Sprintf("%s が不正です (%s)", field, fe.Tag())
	}
}

// toVideos は動画の入力をモデルに変換する。タイトルと説明はplainで無害化する。
func toVideos(in []VideoInput, plain func(string) string) []model.Video {
	out := make([]model.Video, 0, len(in))
	for _, v := range in {
		out = append(out, model.Video{Title: plain(v.Title), URL: strings.TrimSpace(v.URL), Description: plain(v.Description)})
	}
	return out
}

func toPhotos(in []PhotoInput, plain func(string) string) []model.Photo {
	out := make([]model.Photo, 0, len(in))
	for _, p := range in {
		out = append(out, model.Photo{URL: strings.TrimSpace(p.URL), Description: plain(p.Description)})
	}
	return out
}

func toFamilyMembers(in []FamilyMemberInput, plain func(string) string) []model.FamilyMember {
	out := make([]model.FamilyMember, 0, len(in))
	for _, f := range in {
		out = append(out, model.FamilyMember{Relationship: plain(f.Relationship), Name: plain(f.Name), Dates: plain(f.Dates)})
	}
	return out
}

func toLifeEvents(in []LifeEventInput, plain func(string) string) []model.LifeEvent {
	out := make([]model.LifeEvent, 0, len(in))
	for _, e := range in {
		ev := model.LifeEvent{Title: plain(e.Title), Description: plain(e.Description)}
		if e.Date != nil && !e.Date.IsZero() {
			t := e.Date.Time
			ev.Date = &t
		}
		out = append(out, ev)
	}
	return out
}
