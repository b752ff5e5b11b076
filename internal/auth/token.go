package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/soulishere/internal/model"
)

// DefaultTokenTTL はトークンの既定の有効期間（30日）。
const DefaultTokenTTL = 30 * 24 * time.Hour

// ErrInvalidToken はトークンが期限切れ・改ざん・形式不正などで検証できない場合に返される。
var ErrInvalidToken = errors.New("invalid token")

// claims はトークンに含めるクレーム。roleは参照用で、認可判定には使わない。
type claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// TokenIssuer はHS256署名のベアラートークンを発行・検証する。
// サーバー側には状態を持たず、失効はサポートしない。
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer はTokenIssuerを生成する。ttlが0以下の場合はDefaultTokenTTLを使用する。
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenIssuer{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// TTL はトークンの有効期間を返す。
func (i *TokenIssuer) TTL() time.Duration {
	return i.ttl
}

// Issue はユーザーのトークンを発行する。
func (i *TokenIssuer) Issue(user *model.User) (string, error) {
	now := i.now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		Role: string(user.Role),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

// Verify はトークンを検証し、認証済みの主体を返す。
// 検証に失敗した場合は常にErrInvalidTokenを返す。
func (i *TokenIssuer) Verify(tokenString string) (*model.Identity, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	c := &claims{}
	token, err := jwt.ParseWithClaims(tokenString, c,
		func(t *jwt.Token) (any, error) {
			return i.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if c.Subject == "" {
		return nil, ErrInvalidToken
	}

	return &model.Identity{
		UserID: c.Subject,
		Role:   model.Role(c.Role),
	}, nil
}
