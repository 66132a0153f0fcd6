package access

import (
	"context"
	"errors"
	"testing"
)

// fakeStore はテスト用のインメモリKeyStore実装。
// LookupとInsertの呼び出し回数を記録し、任意のエラーを注入できる。
type fakeStore struct {
	keys       map[string]Tier
	lookupErr  error
	insertErr  error
	lookups    int
	inserts    int
	lastInsert struct {
		key   string
		tier  Tier
		label string
	}
}

func newFakeStore() *fakeStore {
	return &fakeStore{keys: make(map[string]Tier)}
}

func (f *fakeStore) Lookup(_ context.Context, key string) (Tier, error) {
	f.lookups++
	if f.lookupErr != nil {
		return 0, f.lookupErr
	}
	tier, ok := f.keys[key]
	if !ok {
		return 0, ErrUnknownKey
	}
	return tier, nil
}

func (f *fakeStore) Insert(_ context.Context, key string, tier Tier, label string) error {
	f.inserts++
	if f.insertErr != nil {
		return f.insertErr
	}
	f.keys[key] = tier
	f.lastInsert.key = key
	f.lastInsert.tier = tier
	f.lastInsert.label = label
	return nil
}

// TestResolve はアクセスキー解決の分岐を検証する。
func TestResolve(t *testing.T) {
	t.Parallel()

	t.Run("キー未提示ならunauthenticatedになりストアを参照しないこと", func(t *testing.T) {
		t.Parallel()

		store := newFakeStore()
		tier, err := Resolve(context.Background(), store, nil)
		if err != nil {
			t.Fatalf("Resolve()でエラーが発生: %v", err)
		}
		if tier != TierUnauthenticated {
			t.Errorf("tier = %v, want %v", tier, TierUnauthenticated)
		}
		if store.lookups != 0 {
			t.Errorf("ストアが%d回参照された, want 0", store.lookups)
		}
	})

	t.Run("複数キーの提示は有効性に関わらず拒否されること", func(t *testing.T) {
		t.Parallel()

		store := newFakeStore()
		store.keys["valid-1"] = TierDeveloper
		store.keys["valid-2"] = TierBasic

		_, err := Resolve(context.Background(), store, []string{"valid-1", "valid-2"})
		if !errors.Is(err, ErrMultipleKeys) {
			t.Errorf("err = %v, want ErrMultipleKeys", err)
		}
		if store.lookups != 0 {
			t.Errorf("ストアが%d回参照された, want 0", store.lookups)
		}
	})

	t.Run("登録済みキーは保存されたTierに解決されること", func(t *testing.T) {
		t.Parallel()

		store := newFakeStore()
		store.keys["dev-key"] = TierDeveloper

		tier, err := Resolve(context.Background(), store, []string{"dev-key"})
		if err != nil {
			t.Fatalf("Resolve()でエラーが発生: %v", err)
		}
		if tier != TierDeveloper {
			t.Errorf("tier = %v, want %v", tier, TierDeveloper)
		}
	})

	t.Run("未登録キーはErrUnknownKeyになること", func(t *testing.T) {
		t.Parallel()

		store := newFakeStore()
		_, err := Resolve(context.Background(), store, []string{"not-a-real-key"})
		if !errors.Is(err, ErrUnknownKey) {
			t.Errorf("err = %v, want ErrUnknownKey", err)
		}
	})

	t.Run("ストア障害はErrStoreUnavailableとして区別されること", func(t *testing.T) {
		t.Parallel()

		store := newFakeStore()
		store.lookupErr = ErrStoreUnavailable

		_, err := Resolve(context.Background(), store, []string{"dev-key"})
		if !errors.Is(err, ErrStoreUnavailable) {
			t.Errorf("err = %v, want ErrStoreUnavailable", err)
		}
		if errors.Is(err, ErrUnknownKey) {
			t.Error("ストア障害が認証失敗と区別できない")
		}
	})
}
