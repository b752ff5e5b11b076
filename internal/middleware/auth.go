// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/soulishere/internal/model"
	"github.com/hitoshi/soulishere/internal/policy"
)

// TokenCookieName はOAuthログイン後にトークンを保持するCookieの名前。
const TokenCookieName = "token"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	userContextKey         = contextKey("user")
	requestStateContextKey = contextKey("request_state")
)

// requestState はロギングミドルウェアが後段の認証結果を参照するための可変な領域。
type requestState struct {
	userID string
}

// Authenticator はトークンから現在のユーザーを解決するインターフェース。
// auth.Serviceが実装する。
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*model.User, error)
}

// TokenFromRequest はAuthorizationヘッダー（Bearer）またはtoken Cookieからトークンを取り出す。
// ヘッダーを優先する。
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if c, err := r.Cookie(TokenCookieName); err == nil {
		return c.Value
	}
	return ""
}

// NewOptionalAuthMiddleware はトークンがあれば検証してユーザーをコンテキストに注入する。
// トークンがない・無効な場合は匿名として処理を続ける。
func NewOptionalAuthMiddleware(authn Authenticator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			user, err := authn.Authenticate(r.Context(), token)
			if err != nil {
				if model.KindOf(err) != model.KindUnauthenticated {
					WriteError(w, r, err)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), user)))
		})
	}
}

// NewRequireAuthMiddleware はトークンを検証し、未認証のリクエストには401を返す。
func NewRequireAuthMiddleware(authn Authenticator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r)
			if token == "" {
				WriteError(w, r, model.NewUnauthenticatedError())
				return
			}

			user, err := authn.Authenticate(r.Context(), token)
			if err != nil {
				if model.KindOf(err) == model.KindUnauthenticated {
					slog.Debug("token rejected", slog.String("path", r.URL.Path))
				}
				WriteError(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), user)))
		})
	}
}

// UserFromContext はリクエストコンテキストから認証済みユーザーを取得する。未認証の場合はnil。
func UserFromContext(ctx context.Context) *model.User {
	user, _ := ctx.Value(userContextKey).(*model.User)
	return user
}

// ActorFromContext は認可判定に使う主体を返す。未認証の場合はnil。
func ActorFromContext(ctx context.Context) *policy.Actor {
	user := UserFromContext(ctx)
	if user == nil {
		return nil
	}
	return &policy.Actor{UserID: user.ID, Role: user.Role}
}

// UserIDFromContext は認証済みユーザーのIDを返す。未認証の場合は空文字列。
func UserIDFromContext(ctx context.Context) string {
	if user := UserFromContext(ctx); user != nil {
		return user.ID
	}
	return ""
}

// ContextWithUser はコンテキストにユーザーを注入する。
// テストやミドルウェア以外のコンテキスト生成でも使用する。
func ContextWithUser(ctx context.Context, user *model.User) context.Context {
	if st, ok := ctx.Value(requestStateContextKey).(*requestState); ok && user != nil {
		st.userID = user.ID
	}
	return context.WithValue(ctx, userContextKey, user)
}
