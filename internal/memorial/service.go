// Package memorial はメモリアルの作成・編集・公開とゲストブック・ハグの業務ロジックを提供する。
package memorial

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/soulishere/internal/metrics"
	"github.com/hitoshi/soulishere/internal/model"
	"github.com/hitoshi/soulishere/internal/policy"
	"github.com/hitoshi/soulishere/internal/repository"
	"github.com/hitoshi/soulishere/internal/security"
)

// Config はメモリアルサービスの設定。
type Config struct {
	DefaultPaymentAmount int64
}

// Service はメモリアルに関するビジネスロジックを提供する。
type Service struct {
	memorials repository.MemorialRepository
	orders    repository.PaymentOrderRepository
	sanitizer security.TextSanitizer
	urls      security.URLGuard
	metrics   metrics.Recorder
	lifecycle Lifecycle
	now       func() time.Time
}

// NewService はServiceを生成する。ordersとrecorderはnilでもよい。
func NewService(
	memorials repository.MemorialRepository,
	orders repository.PaymentOrderRepository,
	sanitizer security.TextSanitizer,
	urls security.URLGuard,
	recorder metrics.Recorder,
	config Config,
) *Service {
	return &Service{
		memorials: memorials,
		orders:    orders,
		sanitizer: sanitizer,
		urls:      urls,
		metrics:   metrics.OrNop(recorder),
		lifecycle: NewLifecycle(config.DefaultPaymentAmount),
		now:       time.Now,
	}
}

// Create は下書き・支払い保留状態のメモリアルを作成する。
func (s *Service) Create(ctx context.Context, actor *policy.Actor, in CreateInput) (*model.Memorial, error) {
	if err := policy.Check(actor, policy.ActionCreate, nil); err != nil {
		return nil, err
	}
	if err := Validate(in); err != nil {
		return nil, err
	}
	if in.BirthDate.IsZero() || in.DeathDate.IsZero() {
		return nil, model.NewValidationError("birthDate と deathDate は必須です")
	}
	if err := checkDates(in.BirthDate.Time, in.DeathDate.Time); err != nil {
		return nil, err
	}

	videos := toVideos(in.YoutubeVideos, s.sanitizer.PlainText)
	photos := toPhotos(in.GalleryPhotos, s.sanitizer.PlainText)
	if err := s.checkURLs(in.Website, in.ProfilePicture, in.CoverPicture, videos, photos); err != nil {
		return nil, err
	}

	now := s.now()
	m := &model.Memorial{
		ID:               uuid.New().String(),
		UserID:           actor.UserID,
		FirstName:        s.sanitizer.PlainText(in.FirstName),
		LastName:         s.sanitizer.PlainText(in.LastName),
		BirthDate:        in.BirthDate.Time,
		DeathDate:        in.DeathDate.Time,
		ProfilePicture:   strings.TrimSpace(in.ProfilePicture),
		CoverPicture:     strings.TrimSpace(in.CoverPicture),
		Biography:        s.sanitizer.RichText(in.Biography),
		LifeSummary:      s.sanitizer.RichText(in.LifeSummary),
		Achievements:     s.sanitizer.RichText(in.Achievements),
		Profession:       s.sanitizer.PlainText(in.Profession),
		Website:          strings.TrimSpace(in.Website),
		YoutubeVideos:    videos,
		GalleryPhotos:    photos,
		FamilyMembers:    toFamilyMembers(in.FamilyMembers, s.sanitizer.PlainText),
		LifeEvents:       toLifeEvents(in.LifeEvents, s.sanitizer.PlainText),
		GuestBookEntries: []model.GuestbookEntry{},
		Status:           model.MemorialStatusDraft,
		PaymentStatus:    model.PaymentStatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if m.FirstName == "" || m.LastName == "" {
		return nil, model.NewValidationError("firstName と lastName は必須です")
	}

	if err := s.memorials.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to create memorial: %w", err)
	}

	s.metrics.RecordMemorialCreated()
	slog.Info("memorial created",
		slog.String("memorial_id", m.ID),
		slog.String("user_id", m.UserID),
	)
	return m, nil
}

// Get はメモリアルを取得する。閲覧は誰でも可能。
func (s *Service) Get(ctx context.Context, id string) (*model.Memorial, error) {
	return s.find(ctx, id)
}

// ListOwn は主体が作成したメモリアルを新しい順に返す。
func (s *Service) ListOwn(ctx context.Context, actor *policy.Actor) ([]*model.Memorial, error) {
	if actor == nil {
		return nil, model.NewUnauthenticatedError()
	}
	list, err := s.memorials.FindByOwner(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memorials: %w", err)
	}
	return list, nil
}

// Drafts は主体の下書きを最近更新した順に返す。
func (s *Service) Drafts(ctx context.Context, actor *policy.Actor) ([]*model.Memorial, error) {
	if actor == nil {
		return nil, model.NewUnauthenticatedError()
	}
	list, err := s.memorials.FindDraftsByOwner(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list drafts: %w", err)
	}
	return list, nil
}

// Sample はトップページに表示する見本として最も古い公開済みメモリアルを返す。
func (s *Service) Sample(ctx context.Context) (*model.Memorial, error) {
	m, err := s.memorials.FindPublishedSample(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to find sample memorial: %w", err)
	}
	if m == nil {
		return nil, model.NewNoSampleMemorialError()
	}
	return m, nil
}

// Update は指定されたフィールドのみを更新する。所有者または管理者のみ実行できる。
func (s *Service) Update(ctx context.Context, actor *policy.Actor, id string, in UpdateInput) (*model.Memorial, error) {
	if actor == nil {
		return nil, model.NewUnauthenticatedError()
	}
	if err := Validate(in); err != nil {
		return nil, err
	}

	current, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := policy.Check(actor, policy.ActionUpdate, current); err != nil {
		return nil, err
	}

	patch, err := s.buildPatch(current, in)
	if err != nil {
		return nil, err
	}
	if patch.IsEmpty() {
		return current, nil
	}

	updated, err := s.memorials.UpdateFields(ctx, id, patch, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to update memorial: %w", err)
	}
	if updated == nil {
		return nil, model.NewMemorialNotFoundError(id)
	}

	slog.Info("memorial updated",
		slog.String("memorial_id", id),
		slog.String("user_id", actor.UserID),
	)
	return updated, nil
}

func (s *Service) buildPatch(current *model.Memorial, in UpdateInput) (*model.MemorialPatch, error) {
	patch := &model.MemorialPatch{}

	birth, death := current.BirthDate, current.DeathDate
	if in.BirthDate != nil {
		if in.BirthDate.IsZero() {
			return nil, model.NewValidationError("birthDate は空にできません")
		}
		t := in.BirthDate.Time
		patch.BirthDate = &t
		birth = t
	}
	if in.DeathDate != nil {
		if in.DeathDate.IsZero() {
			return nil, model.NewValidationError("deathDate は空にできません")
		}
		t := in.DeathDate.Time
		patch.DeathDate = &t
		death = t
	}
	if err := checkDates(birth, death); err != nil {
		return nil, err
	}

	patch.FirstName = s.plainPtr(in.FirstName)
	patch.LastName = s.plainPtr(in.LastName)
	if (patch.FirstName != nil && *patch.FirstName == "") || (patch.LastName != nil && *patch.LastName == "") {
		return nil, model.NewValidationError("firstName と lastName は空にできません")
	}
	patch.Profession = s.plainPtr(in.Profession)
	patch.Biography = s.richPtr(in.Biography)
	patch.LifeSummary = s.richPtr(in.LifeSummary)
	patch.Achievements = s.richPtr(in.Achievements)
	patch.ProfilePicture = trimPtr(in.ProfilePicture)
	patch.CoverPicture = trimPtr(in.CoverPicture)
	patch.Website = trimPtr(in.Website)

	var videos []model.Video
	if in.YoutubeVideos != nil {
		videos = toVideos(*in.YoutubeVideos, s.sanitizer.PlainText)
		patch.YoutubeVideos = &videos
	}
	var photos []model.Photo
	if in.GalleryPhotos != nil {
		photos = toPhotos(*in.GalleryPhotos, s.sanitizer.PlainText)
		patch.GalleryPhotos = &photos
	}
	if in.FamilyMembers != nil {
		family := toFamilyMembers(*in.FamilyMembers, s.sanitizer.PlainText)
		patch.FamilyMembers = &family
	}
	if in.LifeEvents != nil {
		events := toLifeEvents(*in.LifeEvents, s.sanitizer.PlainText)
		patch.LifeEvents = &events
	}

	if err := s.checkURLs(deref(patch.Website), deref(patch.ProfilePicture), deref(patch.CoverPicture), videos, photos); err != nil {
		return nil, err
	}
	return patch, nil
}

// Delete はメモリアルを削除する。所有者または管理者のみ実行できる。
func (s *Service) Delete(ctx context.Context, actor *policy.Actor, id string) error {
	if actor == nil {
		return model.NewUnauthenticatedError()
	}
	current, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if err := policy.Check(actor, policy.ActionDelete, current); err != nil {
		return err
	}

	deleted, err := s.memorials.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete memorial: %w", err)
	}
	if !deleted {
		return model.NewMemorialNotFoundError(id)
	}

	slog.Info("memorial deleted",
		slog.String("memorial_id", id),
		slog.String("user_id", actor.UserID),
	)
	return nil
}

// Publish は支払い済みの下書きを公開する。公開済みの場合はConflictを返す。
func (s *Service) Publish(ctx context.Context, actor *policy.Actor, id string, in PublishInput) (*model.Memorial, error) {
	if actor == nil {
		return nil, model.NewUnauthenticatedError()
	}
	if err := Validate(in); err != nil {
		return nil, err
	}
	current, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := policy.Check(actor, policy.ActionPublish, current); err != nil {
		return nil, err
	}
	if !CanTransition(current.Status, model.MemorialStatusPublished) {
		return nil, model.NewAlreadyPublishedError()
	}

	params, err := s.lifecycle.PublishParams(in, s.now())
	if err != nil {
		return nil, err
	}

	published, err := s.memorials.Publish(ctx, id, params)
	if errors.Is(err, repository.ErrAlreadyPublished) {
		return nil, model.NewAlreadyPublishedError()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to publish memorial: %w", err)
	}
	if published == nil {
		return nil, model.NewMemorialNotFoundError(id)
	}

	s.recordOrderCompleted(ctx, params.PaymentID, id, params.PaidAt)
	s.metrics.RecordMemorialPublished(params.PaymentAmount)
	slog.Info("memorial published",
		slog.String("memorial_id", id),
		slog.String("user_id", actor.UserID),
		slog.String("payment_id", params.PaymentID),
		slog.Int64("amount", params.PaymentAmount),
	)
	return published, nil
}

// recordOrderCompleted は支払いIDに一致する決済オーダー控えを完了にする。
// 記帳のためだけなので失敗しても公開は取り消さない。
func (s *Service) recordOrderCompleted(ctx context.Context, paymentID, memorialID string, now time.Time) {
	if s.orders == nil {
		return
	}
	matched, err := s.orders.MarkCompletedByGatewayID(ctx, paymentID, memorialID, now)
	if err != nil {
		slog.Warn("failed to mark payment order completed",
			slog.String("payment_id", paymentID),
			slog.String("memorial_id", memorialID),
			slog.String("error", err.Error()),
		)
		return
	}
	if matched {
		slog.Info("payment order completed",
			slog.String("payment_id", paymentID),
			slog.String("memorial_id", memorialID),
		)
	}
}

// EnableQR はQRコードを有効にする。管理者のみ実行できる。
func (s *Service) EnableQR(ctx context.Context, actor *policy.Actor, id string) (*model.Memorial, error) {
	if err := policy.Check(actor, policy.ActionEnableQR, nil); err != nil {
		return nil, err
	}
	m, err := s.memorials.SetQRGenerated(ctx, id, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to enable qr: %w", err)
	}
	if m == nil {
		return nil, model.NewMemorialNotFoundError(id)
	}
	slog.Info("memorial qr enabled",
		slog.String("memorial_id", id),
		slog.String("user_id", actor.UserID),
	)
	return m, nil
}

// Hug は公開済みメモリアルのハグ数を1増やし、増加後の値を返す。認証は不要。
func (s *Service) Hug(ctx context.Context, id string) (int64, error) {
	current, err := s.find(ctx, id)
	if err != nil {
		return 0, err
	}
	if err := policy.Check(nil, policy.ActionHug, current); err != nil {
		return 0, err
	}

	// 判定後に状態が変わっていてもストア側の条件付き更新で弾かれる
	count, found, err := s.memorials.IncrementHug(ctx, id)
	if errors.Is(err, repository.ErrNotPublished) {
		return 0, model.NewNotPublishedError("ハグ")
	}
	if err != nil {
		return 0, fmt.Errorf("failed to increment hug: %w", err)
	}
	if !found {
		return 0, model.NewMemorialNotFoundError(id)
	}

	s.metrics.RecordHug()
	return count, nil
}

// AddGuestbookEntry は公開済みメモリアルのゲストブックに追記し、追記後の全エントリを返す。
// 認証は不要。メッセージと名前のHTMLは除去する。
func (s *Service) AddGuestbookEntry(ctx context.Context, id string, in GuestbookInput) ([]model.GuestbookEntry, error) {
	in.Name = s.sanitizer.PlainText(in.Name)
	in.Message = s.sanitizer.PlainText(in.Message)
	in.Email = strings.TrimSpace(in.Email)
	if err := Validate(in); err != nil {
		return nil, err
	}

	current, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := policy.Check(nil, policy.ActionGuestbookWrite, current); err != nil {
		return nil, err
	}

	entry := model.GuestbookEntry{
		ID:      uuid.New().String(),
		Name:    in.Name,
		Email:   in.Email,
		Message: in.Message,
		Date:    s.now(),
	}
	entries, err := s.memorials.AppendGuestbookEntry(ctx, id, entry)
	if errors.Is(err, repository.ErrNotPublished) {
		return nil, model.NewNotPublishedError("ゲストブックへの書き込み")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to append guestbook entry: %w", err)
	}
	if entries == nil {
		return nil, model.NewMemorialNotFoundError(id)
	}

	s.metrics.RecordGuestbookEntry()
	slog.Info("guestbook entry added",
		slog.String("memorial_id", id),
		slog.String("entry_id", entry.ID),
	)
	return entries, nil
}

func (s *Service) find(ctx context.Context, id string) (*model.Memorial, error) {
	m, err := s.memorials.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find memorial: %w", err)
	}
	if m == nil {
		return nil, model.NewMemorialNotFoundError(id)
	}
	return m, nil
}

// checkURLs はWebサイト・画像・動画のURLを検証する。空文字列は未設定として許可する。
func (s *Service) checkURLs(website, profile, cover string, videos []model.Video, photos []model.Photo) error {
	check := func(field, raw string) error {
		if raw == "" {
			return nil
		}
		if err := s.urls.ValidateURL(raw); err != nil {
			return model.NewInvalidURLError(field, err.Error())
		}
		return nil
	}
	if err := check("website", website); err != nil {
		return err
	}
	if err := check("profilePicture", profile); err != nil {
		return err
	}
	if err := check("coverPicture", cover); err != nil {
		return err
	}
	for i, v := range videos {
		if err := check(fmt.Sprintf("youtubeVideos[%d].url", i), v.URL); err != nil {
			return err
		}
	}
	for i, p := range photos {
		if err := check(fmt.Sprintf("galleryPhotos[%d].url", i), p.URL); err != nil {
			return err
		}
	}
	return nil
}

func checkDates(birth, death time.Time) error {
	if death.Before(birth) {
		return model.NewValidationError("deathDate は birthDate 以降の日付にしてください")
	}
	return nil
}

func (s *Service) plainPtr(v *string) *string {
	if v == nil {
		return nil
	}
	out := s.sanitizer.PlainText(*v)
	return &out
}

func (s *Service) richPtr(v *string) *string {
	if v == nil {
		return nil
	}
	out := s.sanitizer.RichText(*v)
	return &out
}

func trimPtr(v *string) *string {
	if v == nil {
		return nil
	}
	out := strings.TrimSpace(*v)
	return &out
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
