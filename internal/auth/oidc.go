// Package auth はOIDCベアラートークンの検証とJITユーザープロビジョニングを提供する。
package auth

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken はトークンそのものに問題があることを示す（401相当）。
// 署名不正、期限切れ、issuer/audience不一致など。
var ErrInvalidToken = errors.New("invalid token")

// ErrProviderUnavailable はプロバイダへの到達失敗を示す（500相当）。
// トークンの正当性は判定できていないため、401と区別する。
var ErrProviderUnavailable = errors.New("identity provider unavailable")

// clockSkew はトークンの時刻クレーム検証で許容する時計のずれ。
const clockSkew = 2 * time.Minute

// maxResponseSize はディスカバリ・JWKSレスポンスの読み取り上限。
const maxResponseSize = 1 << 20

// ValidatorConfig はValidatorの設定。
type ValidatorConfig struct {
	// Authority はOIDCプロバイダのベースURL。
	// 末尾に/.well-known/openid-configurationを付与してディスカバリする。
	Authority string

	// Audience はトークンのaudクレームに期待する値。
	Audience string

	// MetadataTTL はディスカバリ文書とJWKSのキャッシュ期間。
	MetadataTTL time.Duration

	// HTTPClient が未指定の場合は10秒タイムアウトのクライアントを使用する。
	HTTPClient *http.Client
}

// Validator はOIDCプロバイダが発行したJWTアクセストークンを検証する。
// 署名鍵はプロバイダのJWKSエンドポイントから取得し、TTL付きでキャッシュする。
// 複数goroutineからの同時使用に対して安全。
type Validator struct {
	authority   string
	audience    string
	metadataTTL time.Duration
	client      *http.Client

	mu          sync.RWMutex
	jwksURL     string
	keys        map[string]interface{} // kid -> *rsa.PublicKey または *ecdsa.PublicKey
	lastFetched time.Time
	fetchedOnce bool
}

// NewValidator はValidatorを生成する。
func NewValidator(cfg ValidatorConfig) *Validator {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	ttl := cfg.MetadataTTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	return &Validator{
		authority:   strings.TrimRight(cfg.Authority, "/"),
		audience:    cfg.Audience,
		metadataTTL: ttl,
		client:      client,
	}
}

// ValidateToken はアクセストークンを検証し、ユーザー属性を返す。
// 検証内容:
//   - 署名（RS256またはES256のみ許可、kidでJWKSから鍵を解決）
//   - 有効期限・nbf（2分の時計ずれを許容）
//   - issuer（authorityそのもの、またはauthority+"/v2.0"を許可）
//   - audience（設定値そのもの、または"api://"+設定値を許可）
//   - subクレームの存在
func (v *Validator) ValidateToken(ctx context.Context, tokenStr string) (*Claims, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		kid, ok := token.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, fmt.Errorf("%w: トークンヘッダーにkidがありません", ErrInvalidToken)
		}
		return v.getKey(ctx, kid)
	},
		jwt.WithValidMethods([]string{"RS256", "ES256"}),
		jwt.WithLeeway(clockSkew),
	)
	if err != nil {
		if errors.Is(err, ErrProviderUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: クレームを取得できません", ErrInvalidToken)
	}

	// issuer/audienceは複数の表記を許可するため、ライブラリのオプション
	// ではなくここで検証する。
	if err := v.checkIssuer(mc); err != nil {
		return nil, err
	}
	if err := v.checkAudience(mc); err != nil {
		return nil, err
	}

	return extractClaims(mc)
}

// checkIssuer はissクレームを検証する。
// プロバイダによってはauthorityに"/v2.0"が付いたissuerを発行するため、
// どちらの形式も受け入れる。
func (v *Validator) checkIssuer(mc jwt.MapClaims) error {
	iss, err := mc.GetIssuer()
	if err != nil || iss == "" {
		return fmt.Errorf("%w: issuerがありません", ErrInvalidToken)
	}

	trimmed := strings.TrimRight(iss, "/")
	if trimmed == v.authority || trimmed == v.authority+"/v2.0" {
		return nil
	}

	return fmt.Errorf("%w: issuerが一致しません: %s", ErrInvalidToken, iss)
}

// checkAudience はaudクレームを検証する。
// API用のaudienceは"api://"プレフィックス付きで発行されることがあるため、
// どちらの形式も受け入れる。
func (v *Validator) checkAudience(mc jwt.MapClaims) error {
	auds, err := mc.GetAudience()
	if err != nil || len(auds) == 0 {
		return fmt.Errorf("%w: audienceがありません", ErrInvalidToken)
	}

	for _, aud := range auds {
		if aud == v.audience || aud == "api://"+v.audience {
			return nil
		}
	}

	return fmt.Errorf("%w: audienceが一致しません", ErrInvalidToken)
}

// getKey はkidに対応する公開鍵を返す。
// キャッシュが有効期限内でもkidが見つからない場合は、鍵ローテーションの
// 可能性があるため再取得する。
func (v *Validator) getKey(ctx context.Context, kid string) (interface{}, error) {
	v.mu.RLock()
	if v.fetchedOnce && time.Since(v.lastFetched) < v.metadataTTL {
		if key, ok := v.keys[kid]; ok {
			v.mu.RUnlock()
			return key, nil
		}
	}
	v.mu.RUnlock()

	if err := v.RefreshKeys(ctx); err != nil {
		return nil, err
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	key, ok := v.keys[kid]
	if !ok {
		return nil, fmt.Errorf("%w: kid %q に対応する鍵がJWKSにありません", ErrInvalidToken, kid)
	}
	return key, nil
}

// RefreshKeys はディスカバリ文書とJWKSを強制的に再取得する。
// 起動時のウォームアップや、鍵ローテーションの即時反映に使用する。
func (v *Validator) RefreshKeys(ctx context.Context) error {
	jwksURL, err := v.discoverJWKSURL(ctx)
	if err != nil {
		return err
	}

	keys, err := v.fetchJWKS(ctx, jwksURL)
	if err != nil {
		return err
	}

	v.mu.Lock()
	v.keys = keys
	v.lastFetched = time.Now()
	v.fetchedOnce = true
	v.mu.Unlock()

	return nil
}

// discoveryDocument はOIDCディスカバリ文書のうち必要なフィールド。
type discoveryDocument struct {
	Issuer  string `json:"issuer"`
	JWKSURI string `json:"jwks_uri"`
}

// discoverJWKSURL はディスカバリ文書からJWKSエンドポイントのURLを取得する。
// 取得済みのURLはキャッシュする。
func (v *Validator) discoverJWKSURL(ctx context.Context) (string, error) {
	v.mu.RLock()
	cached := v.jwksURL
	v.mu.RUnlock()
	if cached != "" {
		return cached, nil
	}

	discoveryURL := v.authority + "/.well-known/openid-configuration"

	body, err := v.fetchJSON(ctx, discoveryURL)
	if err != nil {
		return "", err
	}

	var doc discoveryDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("%w: ディスカバリ文書の解析に失敗しました: %v", ErrProviderUnavailable, err)
	}
	if doc.JWKSURI == "" {
		return "", fmt.Errorf("%w: ディスカバリ文書にjwks_uriがありません", ErrProviderUnavailable)
	}

	v.mu.Lock()
	v.jwksURL = doc.JWKSURI
	v.mu.Unlock()

	return doc.JWKSURI, nil
}

// jwksResponse はJWKSエンドポイントのレスポンス。
type jwksResponse struct {
	Keys []jwkKey `json:"keys"`
}

// jwkKey はJWKSの1鍵。RSAとECの復元に必要なフィールドのみ持つ。
type jwkKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	// RSA
	N string `json:"n"`
	E string `json:"e"`
	// EC
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

// fetchJWKS はJWKSを取得し、kidから公開鍵へのマップを構築する。
// 復元できない鍵はスキップする。
func (v *Validator) fetchJWKS(ctx context.Context, jwksURL string) (map[string]interface{}, error) {
	body, err := v.fetchJSON(ctx, jwksURL)
	if err != nil {
		return nil, err
	}

	var jwks jwksResponse
	if err := json.Unmarshal(body, &jwks); err != nil {
		return nil, fmt.Errorf("%w: JWKSの解析に失敗しました: %v", ErrProviderUnavailable, err)
	}

	keys := make(map[string]interface{}, len(jwks.Keys))
	for _, k := range jwks.Keys {
		if k.Kid == "" {
			continue
		}
		switch k.Kty {
		case "RSA":
			pubKey, err := parseRSAPublicKey(k.N, k.E)
			if err != nil {
				continue
			}
			keys[k.Kid] = pubKey
		case "EC":
			pubKey, err := parseECPublicKey(k.Crv, k.X, k.Y)
			if err != nil {
				continue
			}
			keys[k.Kid] = pubKey
		}
	}

	return keys, nil
}

// fetchJSON はGETリクエストを送り、レスポンスボディを返す。
// 失敗はすべてErrProviderUnavailableとして扱う。
func (v *Validator) fetchJSON(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: リクエストの作成に失敗しました: %v", ErrProviderUnavailable, err)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s への接続に失敗しました: %v", ErrProviderUnavailable, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s がステータス%dを返しました", ErrProviderUnavailable, url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: レスポンスの読み取りに失敗しました: %v", ErrProviderUnavailable, err)
	}

	return body, nil
}

// parseRSAPublicKey はbase64urlエンコードされたmodulus(n)とexponent(e)から
// RSA公開鍵を復元する。
func parseRSAPublicKey(nBase64, eBase64 string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(nBase64)
	if err != nil {
		return nil, fmt.Errorf("RSA modulusのデコードに失敗しました: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(eBase64)
	if err != nil {
		return nil, fmt.Errorf("RSA exponentのデコードに失敗しました: %w", err)
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(new(big.Int).SetBytes(eBytes).Int64()),
	}, nil
}

// parseECPublicKey は曲線名とbase64urlエンコードされた座標から
// ECDSA公開鍵を復元する。
func parseECPublicKey(crv, xBase64, yBase64 string) (*ecdsa.PublicKey, error) {
	var curve elliptic.Curve
	switch crv {
	case "P-256":
		curve = elliptic.P256()
	case "P-384":
		curve = elliptic.P384()
	case "P-521":
		curve = elliptic.P521()
	default:
		return nil, fmt.Errorf("未対応のEC曲線です: %q", crv)
	}

	xBytes, err := base64.RawURLEncoding.DecodeString(xBase64)
	if err != nil {
		return nil, fmt.Errorf("EC x座標のデコードに失敗しました: %w", err)
	}
	yBytes, err := base64.RawURLEncoding.DecodeString(yBase64)
	if err != nil {
		return nil, fmt.Errorf("EC y座標のデコードに失敗しました: %w", err)
	}

	return &ecdsa.PublicKey{
		Curve: curve,
		X:     new(big.Int).SetBytes(xBytes),
		Y:     new(big.Int).SetBytes(yBytes),
	}, nil
}
