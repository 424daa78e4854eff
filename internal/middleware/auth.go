// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/roster/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// identityContextKey はリクエストコンテキストに呼び出し元のIdentityを格納するためのキー。
var identityContextKey = contextKey("identity")

// errNoIdentity はコンテキストにIdentityが存在しない場合のエラー。
var errNoIdentity = errors.New("identity not found in context")

// TokenVerifier はベアラートークンを検証し、呼び出し元のIdentityを返す。
// auth.TokenIssuer がこれを満たす。
type TokenVerifier interface {
	Verify(token string) (model.Identity, error)
}

// NewBearerAuthMiddleware はAuthorizationヘッダーのベアラートークンを検証し、
// 解決したIdentityをリクエストコンテキストに注入するミドルウェアを返す。
// トークンがない、または不正な場合は401 Unauthorizedを返す。
func NewBearerAuthMiddleware(verifier TokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				writeUnauthorized(w)
				return
			}

			identity, err := verifier.Verify(token)
			if err != nil {
				slog.Debug("bearer token rejected",
					slog.String("error", err.Error()),
					slog.String("path", r.URL.Path),
				)
				writeUnauthorized(w)
				return
			}

			recordAccountID(r.Context(), identity.AccountID)
			next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), identity)))
		})
	}
}

// bearerToken はAuthorizationヘッダーからトークン部分を取り出す。
// スキーム名の大文字小文字は区別しない。
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="roster"`)
	WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
}

// IdentityFromContext はリクエストコンテキストから呼び出し元のIdentityを取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func IdentityFromContext(ctx context.Context) (model.Identity, error) {
	identity, ok := ctx.Value(identityContextKey).(model.Identity)
	if !ok || identity.AccountID == "" {
		return model.Identity{}, errNoIdentity
	}
	return identity, nil
}

// ContextWithIdentity はコンテキストにIdentityを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithIdentity(ctx context.Context, identity model.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}
