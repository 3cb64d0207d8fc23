// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/taskboard/internal/auth"
	"github.com/hitoshi/taskboard/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userContextKey はリクエストコンテキストに認証済みユーザーを格納するためのキー。
var userContextKey = contextKey("user")

// TokenValidator はベアラートークンの検証に必要なインターフェース。
// auth.Validatorの部分集合として定義する。
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*auth.Claims, error)
}

// UserProvisioner はユーザーのJITプロビジョニングに必要なインターフェース。
// auth.Serviceの部分集合として定義する。
type UserProvisioner interface {
	EnsureUser(ctx context.Context, claims *auth.Claims) (*model.User, error)
}

// AuthMetrics は認証結果のメトリクス記録に必要なインターフェース。
type AuthMetrics interface {
	RecordAuthSuccess()
	RecordAuthFailure(reason string)
}

// NewAuthMiddleware はAuthorizationヘッダーのベアラートークンを検証し、
// 対応するユーザーをリクエストコンテキストに注入するミドルウェアを返す。
//
// トークン自体に問題がある場合（欠落、署名不正、期限切れなど）は
// WWW-Authenticate: Bearerヘッダー付きの401を返す。
// プロバイダやDBへの到達失敗はトークンの正当性を判定できていないため、
// WWW-Authenticateを付けずに500を返す。
func NewAuthMiddleware(validator TokenValidator, provisioner UserProvisioner, m AuthMetrics) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. Authorizationヘッダーからベアラートークンを取り出す
			token, ok := extractBearerToken(r)
			if !ok {
				m.RecordAuthFailure("missing_token")
				writeUnauthorized(w, model.NewUnauthorizedError())
				return
			}

			// 2. トークンの署名・時刻・issuer・audienceを検証
			claims, err := validator.ValidateToken(r.Context(), token)
			if err != nil {
				if errors.Is(err, auth.ErrProviderUnavailable) {
					slog.Error("identity provider unreachable",
						slog.String("error", err.Error()),
					)
					m.RecordAuthFailure("provider_unavailable")
					WriteInternalServerError(w)
					return
				}

				var apiErr *model.APIError
				if errors.As(err, &apiErr) {
					// subクレーム欠落など、検証済みトークンのクレーム不備
					m.RecordAuthFailure("missing_subject")
					writeUnauthorized(w, apiErr)
					return
				}

				slog.Warn("token validation failed",
					slog.String("error", err.Error()),
				)
				m.RecordAuthFailure("invalid_token")
				writeUnauthorized(w, model.NewInvalidTokenError())
				return
			}

			// 3. ユーザーをJITプロビジョニング
			user, err := provisioner.EnsureUser(r.Context(), claims)
			if err != nil {
				slog.Error("failed to provision user",
					slog.String("error", err.Error()),
				)
				m.RecordAuthFailure("provisioning_failed")
				WriteInternalServerError(w)
				return
			}

			m.RecordAuthSuccess()

			// 4. 認証済みユーザーをコンテキストに注入
			ctx := context.WithValue(r.Context(), userContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractBearerToken はAuthorizationヘッダーからベアラートークンを取り出す。
// スキーム名の大文字小文字は区別しない。
func extractBearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}

	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}

	token := strings.TrimSpace(header[len(prefix):])
	if token == "" {
		return "", false
	}

	return token, true
}

// writeUnauthorized はWWW-Authenticate: Bearerヘッダー付きの401レスポンスを書き込む。
func writeUnauthorized(w http.ResponseWriter, apiErr *model.APIError) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	WriteErrorResponse(w, http.StatusUnauthorized, apiErr)
}

// UserFromContext はリクエストコンテキストから認証済みユーザーを取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func UserFromContext(ctx context.Context) (*model.User, error) {
	user, ok := ctx.Value(userContextKey).(*model.User)
	if !ok || user == nil {
		return nil, fmt.Errorf("user not found in context")
	}
	return user, nil
}

// ContextWithUser はコンテキストに認証済みユーザーを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserIDFromContext はリクエストコンテキストから認証済みユーザーのIDを取得する。
// ログ出力など、ユーザーID文字列だけが必要な場面用。
func UserIDFromContext(ctx context.Context) (string, error) {
	user, err := UserFromContext(ctx)
	if err != nil {
		return "", err
	}
	return user.ID, nil
}
