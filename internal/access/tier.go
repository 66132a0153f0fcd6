package access

import "fmt"

// Tier はリクエストに与えられるアクセスレベルを表す。
// 数値が小さいほど権限が高い。値はキーストアのtierカラムにそのまま永続化されるため、
// 既存の割り当てを変更してはならない。
type Tier int

const (
	// TierAdministrator は最上位のアクセスレベル。キーの発行が可能。
	TierAdministrator Tier = 0
	// TierDeveloper は開発者向けのアクセスレベル。
	TierDeveloper Tier = 1
	// TierBasic は一般利用者向けのアクセスレベル。
	TierBasic Tier = 2
	// TierUnauthenticated はキー未提示時のデフォルトのアクセスレベル。
	TierUnauthenticated Tier = 3
)

// String はTierの表示名を返す。
func (t Tier) String() string {
	switch t {
	case TierAdministrator:
		return "administrator"
	case TierDeveloper:
		return "developer"
	case TierBasic:
		return "basic"
	case TierUnauthenticated:
		return "unauthenticated"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// ParseTier は表示名からTierを復元する。未知の名前はエラーを返す。
func ParseTier(s string) (Tier, error) {
	switch s {
	case "administrator":
		return TierAdministrator, nil
	case "developer":
		return TierDeveloper, nil
	case "basic":
		return TierBasic, nil
	case "unauthenticated":
		return TierUnauthenticated, nil
	default:
		return 0, fmt.Errorf("未知のアクセスレベル: %q", s)
	}
}

// TierFromCode は永続化された数値コードからTierを復元する。
// 範囲外のコードはデータ破損としてエラーを返す（デフォルト予算への
// 暗黙の降格は行わない）。
func TierFromCode(code int64) (Tier, error) {
	t := Tier(code)
	switch t {
	case TierAdministrator, TierDeveloper, TierBasic, TierUnauthenticated:
		return t, nil
	default:
		return 0, fmt.Errorf("不正なアクセスレベルコード: %d", code)
	}
}

// ResourceBudget はエンジン実行1回あたりのリソース予算。
type ResourceBudget struct {
	// ExecutionLimit は実行できる命令数の上限。
	ExecutionLimit uint64
	// MemoryLimit はテープが使用できるセル数の上限。
	MemoryLimit uint64
}

// budgets はTierごとの静的な予算テーブル。
// デフォルト予算（TierUnauthenticated）は元のforkengine運用値に合わせている。
var budgets = map[Tier]ResourceBudget{
	TierAdministrator:   {ExecutionLimit: 100000, MemoryLimit: 256000},
	TierDeveloper:       {ExecutionLimit: 10000, MemoryLimit: 128000},
	TierBasic:           {ExecutionLimit: 2000, MemoryLimit: 64000},
	TierUnauthenticated: {ExecutionLimit: 500, MemoryLimit: 32000},
}

// BudgetFor はTierに対応する予算を返す。
// 未知のTierに対してはデフォルト予算（TierUnauthenticatedと同じ）を返す
// 全域関数であり、副作用を持たない。
func BudgetFor(t Tier) ResourceBudget {
	if b, ok := budgets[t]; ok {
		return b
	}
	return budgets[TierUnauthenticated]
}

// VerifyBudgetOrdering は予算テーブルの単調性を検証する。
// 権限の高いTierほど各上限が大きい（成分ごとに非減少）ことを保証し、
// テーブルの誤設定による権限の取り違えを起動時に検出する。
func VerifyBudgetOrdering() error {
	order := []Tier{TierAdministrator, TierDeveloper, TierBasic, TierUnauthenticated}
	for i := 1; i < len(order); i++ {
		higher := budgets[order[i-1]]
		lower := budgets[order[i]]
		if higher.ExecutionLimit < lower.ExecutionLimit || higher.MemoryLimit < lower.MemoryLimit {
			return fmt.Errorf("予算テーブルの順序が不正: %s の予算が %s を下回っている", order[i-1], order[i])
		}
	}
	return nil
}
