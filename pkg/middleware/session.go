package middleware

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims はセッショントークンのクレーム（ペイロード）を表す。
// 解決済みのアクセスレベル名を運び、ホットパスでのキーストア参照を省く。
type SessionClaims struct {
	jwt.RegisteredClaims
	// Tier は解決済みアクセスレベルの表示名。
	Tier string `json:"tier"`
}

// sessionTokenTTL はセッショントークンの有効期間。
// アクセスキー本体と異なり短命で、期限切れ後はキーで再取得する。
const sessionTokenTTL = time.Hour

// sessionIssuer はトークンのIssuerクレームに設定する識別子。
const sessionIssuer = "forkgate"

// GenerateSessionToken は解決済みアクセスレベルを埋め込んだ
// HS256署名付きセッショントークンを生成する。
func GenerateSessionToken(secret, tier string) (string, error) {
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(sessionTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    sessionIssuer,
		},
		Tier: tier,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("セッショントークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// ParseSessionToken はセッショントークンを検証し、埋め込まれた
// アクセスレベル名を返す。署名不正・期限切れはエラーになる。
func ParseSessionToken(secret, tokenString string) (string, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return "", fmt.Errorf("セッショントークンの検証に失敗: %w", err)
	}
	if !token.Valid {
		return "", fmt.Errorf("セッショントークンが無効です")
	}
	return claims.Tier, nil
}
