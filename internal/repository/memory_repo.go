package repository

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/hitoshi/soulishere/internal/model"
)

// MemoryStore はプロセス内メモリに全データを保持するストア。
// 単一のミューテックスで保護し、各操作はPostgreSQL実装の1文と同じ粒度でアトミックに行う。
// 読み書きともに値をコピーするため、呼び出し元が返り値を変更しても保存状態には影響しない。
type MemoryStore struct {
	mu        sync.RWMutex
	users     map[string]*model.User
	memorials map[string]*model.Memorial
	settings  *model.SiteSettings
	orders    map[string]*model.PaymentOrder
}

// NewMemoryStore は空のMemoryStoreを生成する。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[string]*model.User),
		memorials: make(map[string]*model.Memorial),
		orders:    make(map[string]*model.PaymentOrder),
	}
}

// Users はユーザーリポジトリとしてのビューを返す。
func (s *MemoryStore) Users() *MemoryUserRepo { return &MemoryUserRepo{s: s} }

// Memorials はメモリアルリポジトリとしてのビューを返す。
func (s *MemoryStore) Memorials() *MemoryMemorialRepo { return &MemoryMemorialRepo{s: s} }

// SiteSettings はサイト設定リポジトリとしてのビューを返す。
func (s *MemoryStore) SiteSettings() *MemorySiteSettingsRepo { return &MemorySiteSettingsRepo{s: s} }

// PaymentOrders は決済オーダーリポジトリとしてのビューを返す。
func (s *MemoryStore) PaymentOrders() *MemoryPaymentOrderRepo { return &MemoryPaymentOrderRepo{s: s} }

// ---------------------------------------------------------------------------
// users

// MemoryUserRepo はMemoryStore上のユーザーリポジトリ。
type MemoryUserRepo struct{ s *MemoryStore }

func (r *MemoryUserRepo) FindByID(_ context.Context, id string) (*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return cloneUser(r.s.users[id]), nil
}

func (r *MemoryUserRepo) FindByEmail(_ context.Context, email string) (*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, u := range r.s.users {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return nil, nil
}

func (r *MemoryUserRepo) FindByGoogleID(_ context.Context, googleID string) (*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, u := range r.s.users {
		if u.GoogleID != "" && u.GoogleID == googleID {
			return cloneUser(u), nil
		}
	}
	return nil, nil
}

func (r *MemoryUserRepo) Create(_ context.Context, user *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if !user.HasCredential() {
		return fmt.Errorf("user %s has no credential", user.Email)
	}
	for _, u := range r.s.users {
		if u.Email == user.Email {
			return ErrDuplicateEmail
		}
		if user.GoogleID != "" && u.GoogleID == user.GoogleID {
			return ErrDuplicateGoogleID
		}
	}
	r.s.users[user.ID] = cloneUser(user)
	return nil
}

func (r *MemoryUserRepo) LinkGoogleID(_ context.Context, userID, googleID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.ID != userID && u.GoogleID == googleID {
			return ErrDuplicateGoogleID
		}
	}
	u, ok := r.s.users[userID]
	if !ok {
		return fmt.Errorf("user not found: %s", userID)
	}
	u.GoogleID = googleID
	u.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryUserRepo) UpdateCredentials(_ context.Context, userID string, role model.Role, passwordHash string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[userID]
	if !ok {
		return fmt.Errorf("user not found: %s", userID)
	}
	u.Role = role
	if passwordHash != "" {
		u.PasswordHash = passwordHash
	}
	u.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryUserRepo) List(_ context.Context) ([]*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	users := make([]*model.User, 0, len(r.s.users))
	for _, u := range r.s.users {
		users = append(users, cloneUser(u))
	}
	sort.SliceStable(users, func(i, j int) bool {
		return users[i].CreatedAt.After(users[j].CreatedAt)
	})
	return users, nil
}

func (r *MemoryUserRepo) Count(_ context.Context) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return len(r.s.users), nil
}

// ---------------------------------------------------------------------------
// memorials

// MemoryMemorialRepo はMemoryStore上のメモリアルリポジトリ。
type MemoryMemorialRepo struct{ s *MemoryStore }

func (r *MemoryMemorialRepo) FindByID(_ context.Context, id string) (*model.Memorial, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return cloneMemorial(r.s.memorials[id]), nil
}

func (r *MemoryMemorialRepo) FindByOwner(_ context.Context, userID string) ([]*model.Memorial, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	result := r.filter(func(m *model.Memorial) bool { return m.UserID == userID })
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (r *MemoryMemorialRepo) FindDraftsByOwner(_ context.Context, userID string) ([]*model.Memorial, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	result := r.filter(func(m *model.Memorial) bool {
		return m.UserID == userID && m.Status == model.MemorialStatusDraft
	})
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	return result, nil
}

func (r *MemoryMemorialRepo) FindPublishedSample(_ context.Context) (*model.Memorial, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var sample *model.Memorial
	for _, m := range r.s.memorials {
		if !m.IsPublished() {
			continue
		}
		if sample == nil || m.CreatedAt.Before(sample.CreatedAt) {
			sample = m
		}
	}
	return cloneMemorial(sample), nil
}

func (r *MemoryMemorialRepo) Create(_ context.Context, m *model.Memorial) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.memorials[m.ID]; exists {
		return fmt.Errorf("memorial already exists: %s", m.ID)
	}
	if m.IsPublished() && m.PaymentStatus != model.PaymentStatusCompleted {
		return fmt.Errorf("published memorial %s must have completed payment", m.ID)
	}
	r.s.memorials[m.ID] = cloneMemorial(m)
	return nil
}

func (r *MemoryMemorialRepo) UpdateFields(_ context.Context, id string, patch *model.MemorialPatch, now time.Time) (*model.Memorial, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.memorials[id]
	if !ok {
		return nil, nil
	}
	applyPatch(m, patch)
	m.UpdatedAt = now
	return cloneMemorial(m), nil
}

func (r *MemoryMemorialRepo) Publish(_ context.Context, id string, params model.PublishParams) (*model.Memorial, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.memorials[id]
	if !ok {
		return nil, nil
	}
	if m.IsPublished() {
		return nil, ErrAlreadyPublished
	}
	amount := params.PaymentAmount
	paidAt := params.PaidAt
	m.Status = model.MemorialStatusPublished
	m.PaymentStatus = model.PaymentStatusCompleted
	m.PaymentID = params.PaymentID
	m.PaymentAmount = &amount
	m.PaidAt = &paidAt
	m.UpdatedAt = params.PaidAt
	return cloneMemorial(m), nil
}

func (r *MemoryMemorialRepo) SetQRGenerated(_ context.Context, id string, now time.Time) (*model.Memorial, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.memorials[id]
	if !ok {
		return nil, nil
	}
	m.QRGenerated = true
	m.UpdatedAt = now
	return cloneMemorial(m), nil
}

func (r *MemoryMemorialRepo) AppendGuestbookEntry(_ context.Context, id string, entry model.GuestbookEntry) ([]model.GuestbookEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.memorials[id]
	if !ok {
		return nil, nil
	}
	if !m.IsPublished() {
		return nil, ErrNotPublished
	}
	m.GuestBookEntries = append(m.GuestBookEntries, entry)
	m.UpdatedAt = entry.Date
	return slices.Clone(m.GuestBookEntries), nil
}

func (r *MemoryMemorialRepo) IncrementHug(_ context.Context, id string) (int64, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.memorials[id]
	if !ok {
		return 0, false, nil
	}
	if !m.IsPublished() {
		return 0, true, ErrNotPublished
	}
	m.HugCount++
	m.UpdatedAt = time.Now()
	return m.HugCount, true, nil
}

func (r *MemoryMemorialRepo) Delete(_ context.Context, id string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.memorials[id]; !ok {
		return false, nil
	}
	delete(r.s.memorials, id)
	return true, nil
}

func (r *MemoryMemorialRepo) FindAll(_ context.Context) ([]*model.MemorialWithOwner, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	result := make([]*model.MemorialWithOwner, 0, len(r.s.memorials))
	for _, m := range r.s.memorials {
		item := &model.MemorialWithOwner{Memorial: *cloneMemorial(m)}
		if owner, ok := r.s.users[m.UserID]; ok {
			item.OwnerName = owner.Name
			item.OwnerEmail = owner.Email
		}
		result = append(result, item)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (r *MemoryMemorialRepo) Stats(_ context.Context) (*model.MemorialStats, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	stats := &model.MemorialStats{TotalMemorials: len(r.s.memorials)}
	for _, m := range r.s.memorials {
		switch m.Status {
		case model.MemorialStatusPublished:
			stats.PublishedMemorials++
		case model.MemorialStatusDraft:
			stats.DraftMemorials++
		}
		if m.PaymentStatus == model.PaymentStatusCompleted && m.PaymentAmount != nil {
			stats.TotalRevenue += *m.PaymentAmount
		}
	}
	return stats, nil
}

// filter はロック取得済みの状態で条件に一致するメモリアルのコピーを返す。
func (r *MemoryMemorialRepo) filter(match func(*model.Memorial) bool) []*model.Memorial {
	var result []*model.Memorial
	for _, m := range r.s.memorials {
		if match(m) {
			result = append(result, cloneMemorial(m))
		}
	}
	return result
}

// ---------------------------------------------------------------------------
// site settings

// MemorySiteSettingsRepo はMemoryStore上のサイト設定リポジトリ。
type MemorySiteSettingsRepo struct{ s *MemoryStore }

func (r *MemorySiteSettingsRepo) Get(_ context.Context) (*model.SiteSettings, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return cloneSiteSettings(r.s.settings), nil
}

func (r *MemorySiteSettingsRepo) Upsert(_ context.Context, settings *model.SiteSettings) (*model.SiteSettings, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.settings = cloneSiteSettings(settings)
	return cloneSiteSettings(r.s.settings), nil
}

// ---------------------------------------------------------------------------
// payment orders

// MemoryPaymentOrderRepo はMemoryStore上の決済オーダーリポジトリ。
type MemoryPaymentOrderRepo struct{ s *MemoryStore }

func (r *MemoryPaymentOrderRepo) Create(_ context.Context, order *model.PaymentOrder) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, o := range r.s.orders {
		if o.GatewayOrderID == order.GatewayOrderID {
			return fmt.Errorf("payment order already exists: %s", order.GatewayOrderID)
		}
	}
	copied := *order
	r.s.orders[order.ID] = &copied
	return nil
}

func (r *MemoryPaymentOrderRepo) MarkCompletedByGatewayID(_ context.Context, gatewayOrderID, memorialID string, now time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, o := range r.s.orders {
		if o.GatewayOrderID != gatewayOrderID || o.Status != model.OrderStatusPending {
			continue
		}
		o.Status = model.OrderStatusCompleted
		if memorialID != "" {
			o.MemorialID = memorialID
		}
		o.UpdatedAt = now
		return true, nil
	}
	return false, nil
}

func (r *MemoryPaymentOrderRepo) ExpirePending(_ context.Context, createdBefore, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, o := range r.s.orders {
		if o.Status == model.OrderStatusPending && o.CreatedAt.Before(createdBefore) {
			o.Status = model.OrderStatusFailed
			o.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

// FindByGatewayID はゲートウェイのオーダーIDでオーダーを取得する。見つからない場合はnilを返す。
func (r *MemoryPaymentOrderRepo) FindByGatewayID(_ context.Context, gatewayOrderID string) (*model.PaymentOrder, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, o := range r.s.orders {
		if o.GatewayOrderID == gatewayOrderID {
			copied := *o
			return &copied, nil
		}
	}
	return nil, nil
}

// ---------------------------------------------------------------------------
// clone helpers

func cloneUser(u *model.User) *model.User {
	if u == nil {
		return nil
	}
	copied := *u
	return &copied
}

func cloneMemorial(m *model.Memorial) *model.Memorial {
	if m == nil {
		return nil
	}
	copied := *m
	copied.YoutubeVideos = slices.Clone(m.YoutubeVideos)
	copied.GalleryPhotos = slices.Clone(m.GalleryPhotos)
	copied.FamilyMembers = slices.Clone(m.FamilyMembers)
	copied.LifeEvents = slices.Clone(m.LifeEvents)
	copied.GuestBookEntries = slices.Clone(m.GuestBookEntries)
	if m.PaymentAmount != nil {
		amount := *m.PaymentAmount
		copied.PaymentAmount = &amount
	}
	if m.PaidAt != nil {
		paidAt := *m.PaidAt
		copied.PaidAt = &paidAt
	}
	return &copied
}

func cloneSiteSettings(s *model.SiteSettings) *model.SiteSettings {
	if s == nil {
		return nil
	}
	copied := *s
	copied.Images.Testimonials = slices.Clone(s.Images.Testimonials)
	copied.Images.Gallery = slices.Clone(s.Images.Gallery)
	copied.Pricing.Features = slices.Clone(s.Pricing.Features)
	return &copied
}

// applyPatch はpatchの非nilフィールドをメモリアルに反映する。
func applyPatch(m *model.Memorial, p *model.MemorialPatch) {
	if p.FirstName != nil {
		m.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		m.LastName = *p.LastName
	}
	if p.BirthDate != nil {
		m.BirthDate = *p.BirthDate
	}
	if p.DeathDate != nil {
		m.DeathDate = *p.DeathDate
	}
	if p.ProfilePicture != nil {
		m.ProfilePicture = *p.ProfilePicture
	}
	if p.CoverPicture != nil {
		m.CoverPicture = *p.CoverPicture
	}
	if p.Biography != nil {
		m.Biography = *p.Biography
	}
	if p.LifeSummary != nil {
		m.LifeSummary = *p.LifeSummary
	}
	if p.Achievements != nil {
		m.Achievements = *p.Achievements
	}
	if p.Profession != nil {
		m.Profession = *p.Profession
	}
	if p.Website != nil {
		m.Website = *p.Website
	}
	if p.YoutubeVideos != nil {
		m.YoutubeVideos = slices.Clone(*p.YoutubeVideos)
	}
	if p.GalleryPhotos != nil {
		m.GalleryPhotos = slices.Clone(*p.GalleryPhotos)
	}
	if p.FamilyMembers != nil {
		m.FamilyMembers = slices.Clone(*p.FamilyMembers)
	}
	if p.LifeEvents != nil {
		m.LifeEvents = slices.Clone(*p.LifeEvents)
	}
}

// compile-time interface checks
var (
	_ UserRepository         = (*MemoryUserRepo)(nil)
	_ MemorialRepository     = (*MemoryMemorialRepo)(nil)
	_ SiteSettingsRepository = (*MemorySiteSettingsRepo)(nil)
	_ PaymentOrderRepository = (*MemoryPaymentOrderRepo)(nil)
)
