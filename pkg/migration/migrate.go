// Package migration はembedされたSQLファイルによるSQLiteスキーマ管理を提供する。
// 適用済みバージョンはschema_migrationsテーブルで追跡し、再起動時は未適用分のみ実行する。
package migration

import (
	"database/sql"
	"fmt"
	"io/fs"
	"log"
	"path"
	"sort"
	"strconv"
	"strings"
)

// Apply はdir配下の *.up.sql をバージョン順に適用する。
// ファイル名形式: 000001_description.up.sql。適用済みバージョンはスキップする。
// 各マイグレーションはトランザクション内で実行され、失敗時は適用前の状態に戻る。
func Apply(db *sql.DB, fsys fs.FS, dir string) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
		)
	`); err != nil {
		return fmt.Errorf("マイグレーション管理テーブルの作成に失敗: %w", err)
	}

	applied, err := appliedVersions(db)
	if err != nil {
		return fmt.Errorf("適用済みバージョンの取得に失敗: %w", err)
	}

	files, err := fs.Glob(fsys, path.Join(dir, "*.up.sql"))
	if err != nil {
		return fmt.Errorf("マイグレーションファイルの列挙に失敗: %w", err)
	}
	sort.Strings(files)

	for _, file := range files {
		version, err := versionOf(file)
		if err != nil {
			return err
		}
		if applied[version] {
			continue
		}

		if err := applyOne(db, fsys, file, version); err != nil {
			return fmt.Errorf("マイグレーション %s の適用に失敗: %w", path.Base(file), err)
		}
		log.Printf("[Migration] %s を適用しました", path.Base(file))
	}

	return nil
}

// appliedVersions は適用済みのバージョン集合を読み取る。
func appliedVersions(db *sql.DB) (map[int]bool, error) {
	rows, err := db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

// versionOf はファイル名の先頭数値部をバージョンとして取り出す。
func versionOf(file string) (int, error) {
	base := path.Base(file)
	prefix, _, ok := strings.Cut(base, "_")
	if !ok {
		return 0, fmt.Errorf("マイグレーションファイル名が不正: %s", base)
	}
	version, err := strconv.Atoi(prefix)
	if err != nil {
		return 0, fmt.Errorf("マイグレーションファイル名のバージョン部が不正: %s", base)
	}
	return version, nil
}

// applyOne は1つのマイグレーションをトランザクション内で適用し、バージョンを記録する。
func applyOne(db *sql.DB, fsys fs.FS, file string, version int) error {
	content, err := fs.ReadFile(fsys, file)
	if err != nil {
		return fmt.Errorf("ファイル読み込みに失敗: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(string(content)); err != nil {
		return fmt.Errorf("SQL実行に失敗: %w", err)
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
		return fmt.Errorf("バージョン記録に失敗: %w", err)
	}

	return tx.Commit()
}
