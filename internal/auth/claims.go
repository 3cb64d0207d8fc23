package auth

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/taskboard/internal/model"
)

// Claims は検証済みトークンから取り出したユーザー属性。
// Subは必須。NameとEmailはプロバイダによって欠けることがある。
type Claims struct {
	Sub   string
	Name  string
	Email string
}

// extractClaims は検証済みのMapClaimsからユーザー属性を取り出す。
// subクレームが欠けている場合はエラーを返す。subなしではユーザーを
// 同定できないため、この失敗は認証失敗として扱う。
func extractClaims(mc jwt.MapClaims) (*Claims, error) {
	sub, _ := mc["sub"].(string)
	if sub == "" {
		return nil, model.NewMissingSubjectError()
	}

	name, _ := mc["name"].(string)

	return &Claims{
		Sub:   sub,
		Name:  name,
		Email: extractEmail(mc),
	}, nil
}

// emailExtractors はメールアドレスを取り出す抽出関数のフォールバック順。
// プロバイダごとにクレーム名が異なるため、先頭から順に試して最初に
// 見つかった非空の値を採用する。
var emailExtractors = []func(jwt.MapClaims) string{
	stringClaim("email"),
	firstOfEmailsClaim, // Azure AD B2C
	stringClaim("preferred_username"),
	stringClaim("upn"),
	stringClaim("unique_name"),
}

// extractEmail はメールアドレスのクレームをフォールバック順で探す。
// どれも無ければ空文字を返す。メールは認証の必須条件ではない。
func extractEmail(mc jwt.MapClaims) string {
	for _, extract := range emailExtractors {
		if v := extract(mc); v != "" {
			return v
		}
	}
	return ""
}

// stringClaim は指定名の文字列クレームを取り出す抽出関数を返す。
func stringClaim(name string) func(jwt.MapClaims) string {
	return func(mc jwt.MapClaims) string {
		v, _ := mc[name].(string)
		return v
	}
}

// firstOfEmailsClaim はemails配列クレームの先頭要素を取り出す。
func firstOfEmailsClaim(mc jwt.MapClaims) string {
	emails, ok := mc["emails"].([]interface{})
	if !ok || len(emails) == 0 {
		return ""
	}
	first, _ := emails[0].(string)
	return first
}
