package access

import "context"

// KeyStore はアクセスキーの永続化層に対する能力インターフェース。
// 接続プールの管理は実装側（internal/keystore）に隠蔽され、
// 呼び出しごとに接続の取得と解放が完結する。
type KeyStore interface {
	// Lookup はキーに対応するTierを返す。
	// 未登録ならErrUnknownKey、ストア障害ならErrStoreUnavailableを返す。
	Lookup(ctx context.Context, key string) (Tier, error)
	// Insert はキーとTier、ラベルを永続化する。
	Insert(ctx context.Context, key string, tier Tier, label string) error
}

// Resolve は提示されたアクセスキー群をTierに解決する。
//
//   - キーが2つ以上 → ErrMultipleKeys（ストアには問い合わせない）
//   - キーが0個     → TierUnauthenticated（ストアには問い合わせない）
//   - キーが1つ     → ストアを参照し、登録されたTierを返す
//
// 解決はストアの読み取り以外の副作用を持たない。利用統計の更新は
// 実行が完了したリクエストに対してのみ行うため、ここでは触らない。
func Resolve(ctx context.Context, store KeyStore, keys []string) (Tier, error) {
	if len(keys) > 1 {
		return 0, ErrMultipleKeys
	}
	if len(keys) == 0 {
		return TierUnauthenticated, nil
	}
	return store.Lookup(ctx, keys[0])
}
