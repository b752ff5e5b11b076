// Package auth はユーザー登録・ログイン、ベアラートークン、Google OAuth認証フローを提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/soulishere/internal/model"
	"github.com/hitoshi/soulishere/internal/repository"
)

// MinPasswordLength はパスワードの最小文字数。
const MinPasswordLength = 6

// MaxPasswordLength はパスワードの最大バイト数。bcryptが扱える上限。
const MaxPasswordLength = 72

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	ProviderUserID string
	Email          string
	EmailVerified  bool
	Name           string
	Provider       string
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	BcryptCost int // 0の場合はbcrypt.DefaultCost
}

// AuthResult はログイン成功時に返すトークンとユーザー。
type AuthResult struct {
	Token string
	User  *model.User
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	oauth    OAuthProvider
	userRepo repository.UserRepository
	tokens   *TokenIssuer
	config   ServiceConfig
}

// NewService はServiceを生成する。Google OAuthを使わない場合はoauthにnilを渡す。
func NewService(
	oauth OAuthProvider,
	userRepo repository.UserRepository,
	tokens *TokenIssuer,
	config ServiceConfig,
) *Service {
	if config.BcryptCost == 0 {
		config.BcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		oauth:    oauth,
		userRepo: userRepo,
		tokens:   tokens,
		config:   config,
	}
}

// OAuthEnabled はOAuthプロバイダーが設定されているかを返す。
func (s *Service) OAuthEnabled() bool {
	return s.oauth != nil
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	if s.oauth == nil {
		return ""
	}
	return s.oauth.GetLoginURL(state)
}

// TokenTTL はトークンの有効期間を返す。Cookieの有効期限に使う。
func (s *Service) TokenTTL() time.Duration {
	return s.tokens.TTL()
}

// Register はメールアドレスとパスワードでユーザーを登録し、トークンを発行する。
func (s *Service) Register(ctx context.Context, name, email, password string) (*AuthResult, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)
	if name == "" || email == "" {
		return nil, model.NewValidationError("名前とメールアドレスは必須です。")
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if existing != nil {
		return nil, model.NewEmailTakenError()
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.config.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	user := &model.User{
		ID:           uuid.New().String(),
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Role:         model.RoleMember,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, model.NewEmailTakenError()
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("user registered",
		slog.String("user_id", user.ID),
		slog.String("provider", "password"),
	)

	return s.issue(user)
}

// Login はメールアドレスとパスワードを検証し、トークンを発行する。
// 未登録・パスワード不一致・OAuth専用アカウントはいずれも同じエラーを返す。
func (s *Service) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := s.userRepo.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if user == nil || user.PasswordHash == "" {
		return nil, model.NewInvalidCredentialsError()
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, model.NewInvalidCredentialsError()
	}

	slog.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.String("provider", "password"),
	)

	return s.issue(user)
}

// HandleCallback はOAuthコールバックを処理し、トークンを発行する。
// Google IDで既存ユーザーを検索し、なければメールアドレスが一致するユーザーにGoogle IDを紐付け、
// それもなければ一般ユーザーとして新規作成する。
func (s *Service) HandleCallback(ctx context.Context, code string) (*AuthResult, error) {
	if s.oauth == nil {
		return nil, model.NewUpstreamError("Google OAuth", errors.New("oauth provider is not configured"))
	}
	if code == "" {
		return nil, model.NewValidationError("認可コードがありません。")
	}

	userInfo, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, model.NewUpstreamError("Google OAuth", err)
	}

	user, err := s.findOrCreateOAuthUser(ctx, userInfo)
	if err != nil {
		return nil, err
	}

	return s.issue(user)
}

func (s *Service) findOrCreateOAuthUser(ctx context.Context, info *OAuthUserInfo) (*model.User, error) {
	user, err := s.userRepo.FindByGoogleID(ctx, info.ProviderUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by google id: %w", err)
	}
	if user != nil {
		slog.Info("existing user logged in",
			slog.String("user_id", user.ID),
			slog.String("provider", info.Provider),
		)
		return user, nil
	}

	email := normalizeEmail(info.Email)
	user, err = s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if user != nil {
		// 未確認のメールアドレスでは既存アカウントを乗っ取れないようにする
		if !info.EmailVerified {
			slog.Warn("refused to link unverified google email",
				slog.String("user_id", user.ID),
				slog.String("provider", info.Provider),
			)
			return nil, model.NewEmailTakenError()
		}
		if err := s.userRepo.LinkGoogleID(ctx, user.ID, info.ProviderUserID); err != nil {
			return nil, fmt.Errorf("failed to link google id: %w", err)
		}
		user.GoogleID = info.ProviderUserID
		slog.Info("google account linked",
			slog.String("user_id", user.ID),
			slog.String("provider", info.Provider),
		)
		return user, nil
	}

	name := strings.TrimSpace(info.Name)
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}

	now := time.Now()
	user = &model.User{
		ID:        uuid.New().String(),
		Name:      name,
		Email:     email,
		GoogleID:  info.ProviderUserID,
		Role:      model.RoleMember,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("new user created",
		slog.String("user_id", user.ID),
		slog.String("provider", info.Provider),
	)
	return user, nil
}

// Authenticate はトークンを検証し、ユーザーストアから現在のユーザーを解決する。
// ロールはトークンではなくストアの値を使うため、降格は即座に反映される。
func (s *Service) Authenticate(ctx context.Context, token string) (*model.User, error) {
	identity, err := s.tokens.Verify(token)
	if err != nil {
		return nil, model.NewUnauthenticatedError()
	}
	return s.ResolveActor(ctx, identity)
}

// ResolveActor は認証済みの主体からユーザーを取得する。
func (s *Service) ResolveActor(ctx context.Context, identity *model.Identity) (*model.User, error) {
	if identity == nil || identity.UserID == "" {
		return nil, model.NewUnauthenticatedError()
	}
	user, err := s.userRepo.FindByID(ctx, identity.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUnauthenticatedError()
	}
	return user, nil
}

// EnsureAdmin は起動時に管理者アカウントを用意する。
// 既存ユーザーは管理者に昇格してパスワードを更新し、存在しなければ作成する。
func (s *Service) EnsureAdmin(ctx context.Context, email, password, name string) (*model.User, error) {
	email = normalizeEmail(email)
	if email == "" || len(password) < MinPasswordLength || len(password) > MaxPasswordLength {
		return nil, fmt.Errorf("admin email and a password of %d to %d bytes are required", MinPasswordLength, MaxPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.config.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if existing != nil {
		if err := s.userRepo.UpdateCredentials(ctx, existing.ID, model.RoleAdmin, string(hash)); err != nil {
			return nil, fmt.Errorf("failed to promote admin: %w", err)
		}
		existing.Role = model.RoleAdmin
		existing.PasswordHash = string(hash)
		slog.Info("admin account ensured", slog.String("user_id", existing.ID), slog.Bool("created", false))
		return existing, nil
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = "Admin"
	}
	now := time.Now()
	admin := &model.User{
		ID:           uuid.New().String(),
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Role:         model.RoleAdmin,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.userRepo.Create(ctx, admin); err != nil {
		return nil, fmt.Errorf("failed to create admin: %w", err)
	}
	slog.Info("admin account ensured", slog.String("user_id", admin.ID), slog.Bool("created", true))
	return admin, nil
}

func (s *Service) issue(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Issue(user)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}
	return &AuthResult{Token: token, User: user}, nil
}

func validatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return model.NewValidationError(fmt.Sprintf("パスワードは%d文字以上で入力してください。", MinPasswordLength))
	}
	if len(password) > MaxPasswordLength {
		return model.NewValidationError(fmt.Sprintf("パスワードは%dバイト以内で入力してください。", MaxPasswordLength))
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
