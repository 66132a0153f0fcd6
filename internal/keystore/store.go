// Package keystore はアクセスキーとアクセスレベルの対応を永続化する
// SQLiteベースのストアを提供する。access.KeyStoreの実装。
package keystore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nao1215/forkgate/internal/access"
	"github.com/nao1215/forkgate/pkg/migration"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// maxOpenConns は接続プールの上限。プール枯渇時はopTimeoutまで待ち、
// 超えた場合はaccess.ErrStoreUnavailableとして呼び出し元に返る。
const maxOpenConns = 5

// opTimeout はLookup/Insert1回あたりの待ち時間の上限。
// プール枯渇や接続障害がこの時間を超えて呼び出し元を塞ぐことはない。
const opTimeout = 2 * time.Second

// Store はSQLiteを背後に持つアクセスキーストア。
// 接続の取得と解放は呼び出しごとにプール内で完結する。
type Store struct {
	// db はSQLiteデータベース接続プール。
	db *sql.DB
}

// Open は指定パスのSQLiteデータベースを開き、スキーマを適用してStoreを返す。
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path))
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)

	if err := migration.Apply(db, migrationsFS, "migrations"); err != nil {
		return nil, fmt.Errorf("スキーマ適用に失敗: %w", err)
	}
	return &Store{db: db}, nil
}

// New は既存のデータベース接続からStoreを生成し、スキーマを適用する。
// テストでインメモリ・一時ファイルのDBを使うための経路。
func New(db *sql.DB) (*Store, error) {
	if err := migration.Apply(db, migrationsFS, "migrations"); err != nil {
		return nil, fmt.Errorf("スキーマ適用に失敗: %w", err)
	}
	return &Store{db: db}, nil
}

// Close はデータベース接続を閉じる。
func (s *Store) Close() error {
	return s.db.Close()
}

// Lookup はキーに対応するTierを返す。
// 未登録ならaccess.ErrUnknownKey。接続障害・プール枯渇・tierカラムの
// データ破損はaccess.ErrStoreUnavailableに分類する。破損したtier値を
// デフォルトのアクセスレベルへ暗黙に降格することはしない。
func (s *Store) Lookup(ctx context.Context, key string) (access.Tier, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var code int64
	err := s.db.QueryRowContext(ctx, "SELECT tier FROM access_keys WHERE key = ?", key).Scan(&code)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, access.ErrUnknownKey
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %s", access.ErrStoreUnavailable, err)
	}

	tier, err := access.TierFromCode(code)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", access.ErrStoreUnavailable, err)
	}
	return tier, nil
}

// Insert はキーとTier、ラベルを永続化する。
// キーの重複（主キー制約違反）もエラーとして返る。
func (s *Store) Insert(ctx context.Context, key string, tier access.Tier, label string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO access_keys (key, tier, label) VALUES (?, ?, ?)",
		key, int64(tier), label)
	if err != nil {
		return fmt.Errorf("アクセスキーの挿入に失敗: %w", err)
	}
	return nil
}

// CountByTier は指定Tierの登録キー数を返す。起動時のadministrator
// キーのブートストラップ判定に使用する。
func (s *Store) CountByTier(ctx context.Context, tier access.Tier) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM access_keys WHERE tier = ?", int64(tier)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", access.ErrStoreUnavailable, err)
	}
	return n, nil
}

// EnsureKey はキーが指定のTierで登録されていることを保証する。
// 未登録なら登録し、同じTierで登録済みなら何もしない。別のTierで
// 登録済みの場合はエラーを返す。キーのレコードは作成後に変更しないため、
// Tierの食い違いは黙殺も上書きもせず呼び出し元に報告する。
// 環境変数で与えられたadministratorキーの起動時投入に使用する。
func (s *Store) EnsureKey(ctx context.Context, key string, tier access.Tier, label string) error {
	existing, err := s.Lookup(ctx, key)
	if errors.Is(err, access.ErrUnknownKey) {
		return s.Insert(ctx, key, tier, label)
	}
	if err != nil {
		return err
	}
	if existing != tier {
		return fmt.Errorf("キーは別のアクセスレベル（%s）で登録済みです: %s が必要です", existing, tier)
	}
	return nil
}
