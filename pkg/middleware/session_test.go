package middleware

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// testSecret はテスト用の署名秘密鍵。
const testSecret = "test-secret-key-for-unit-tests"

// TestGenerateSessionToken はセッショントークンの生成を検証する。
func TestGenerateSessionToken(t *testing.T) {
	t.Parallel()

	t.Run("生成したトークンからアクセスレベルを復元できること", func(t *testing.T) {
		t.Parallel()

		tokenStr, err := GenerateSessionToken(testSecret, "developer")
		if err != nil {
			t.Fatalf("GenerateSessionToken()でエラーが発生: %v", err)
		}
		if tokenStr == "" {
			t.Fatal("GenerateSessionToken()が空文字列を返した")
		}

		tier, err := ParseSessionToken(testSecret, tokenStr)
		if err != nil {
			t.Fatalf("ParseSessionToken()でエラーが発生: %v", err)
		}
		if tier != "developer" {
			t.Errorf("tier = %q, want %q", tier, "developer")
		}
	})

	t.Run("Issuerと有効期限のクレームが設定されていること", func(t *testing.T) {
		t.Parallel()

		before := time.Now()
		tokenStr, err := GenerateSessionToken(testSecret, "basic")
		if err != nil {
			t.Fatalf("GenerateSessionToken()でエラーが発生: %v", err)
		}

		claims := &SessionClaims{}
		if _, err := jwt.ParseWithClaims(tokenStr, claims, func(_ *jwt.Token) (any, error) {
			return []byte(testSecret), nil
		}); err != nil {
			t.Fatalf("トークンのパースに失敗: %v", err)
		}

		if claims.Issuer != "forkgate" {
			t.Errorf("Issuer = %q, want %q", claims.Issuer, "forkgate")
		}
		// 有効期限が1時間後の前後1分以内であること
		expected := before.Add(time.Hour)
		if claims.ExpiresAt.Time.Before(expected.Add(-1*time.Minute)) ||
			claims.ExpiresAt.Time.After(expected.Add(1*time.Minute)) {
			t.Errorf("ExpiresAt = %v, 期待範囲: %v ± 1m", claims.ExpiresAt.Time, expected)
		}
	})
}

// TestParseSessionToken はセッショントークンの検証を検証する。
func TestParseSessionToken(t *testing.T) {
	t.Parallel()

	t.Run("異なる秘密鍵で署名されたトークンは拒否されること", func(t *testing.T) {
		t.Parallel()

		tokenStr, err := GenerateSessionToken("other-secret", "administrator")
		if err != nil {
			t.Fatalf("GenerateSessionToken()でエラーが発生: %v", err)
		}

		if _, err := ParseSessionToken(testSecret, tokenStr); err == nil {
			t.Error("署名不正のトークンが受理された")
		}
	})

	t.Run("壊れたトークン文字列は拒否されること", func(t *testing.T) {
		t.Parallel()

		if _, err := ParseSessionToken(testSecret, "not.a.token"); err == nil {
			t.Error("壊れたトークンが受理された")
		}
	})

	t.Run("期限切れのトークンは拒否されること", func(t *testing.T) {
		t.Parallel()

		claims := SessionClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
				IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
				Issuer:    "forkgate",
			},
			Tier: "developer",
		}
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
		signed, err := token.SignedString([]byte(testSecret))
		if err != nil {
			t.Fatalf("期限切れトークンの署名に失敗: %v", err)
		}

		_, err = ParseSessionToken(testSecret, signed)
		if err == nil {
			t.Fatal("期限切れのトークンが受理された")
		}
		if !strings.Contains(err.Error(), "検証に失敗") {
			t.Errorf("err = %v, 検証失敗のエラーでない", err)
		}
	})
}
