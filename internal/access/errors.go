package access

import "errors"

// アクセス制御の失敗理由。すべて値として呼び出し元に返され、
// プロセスを停止させることはない。認証・認可の失敗（再試行しても無駄）と
// インフラ障害（再試行可能）をerrors.Isで区別できるようにしている。
var (
	// ErrMultipleKeys は1リクエストに複数のアクセスキーが提示されたことを表す。
	// クライアント側の形式エラーであり、認証失敗ではない。
	ErrMultipleKeys = errors.New("アクセスキーは1リクエストに1つまでしか提示できません")

	// ErrUnknownKey は提示されたアクセスキーが登録されていないことを表す。
	ErrUnknownKey = errors.New("アクセスキーが登録されていません")

	// ErrStoreUnavailable はキーストアへの接続失敗やプール枯渇を表す。
	// 一時的なインフラ障害であり、呼び出し元は再試行してよい。
	ErrStoreUnavailable = errors.New("キーストアが利用できません")

	// ErrNotAuthorized はキー発行に必要な権限が不足していることを表す。
	ErrNotAuthorized = errors.New("この操作にはadministrator権限が必要です")

	// ErrInvalidTier は発行できないアクセスレベルが要求されたことを表す。
	ErrInvalidTier = errors.New("発行できないアクセスレベルが指定されました")

	// ErrIssuanceFailed はキーの永続化に失敗したことを表す。
	// キー生成は失敗原因と独立なので、新しいキーで再試行してよい。
	ErrIssuanceFailed = errors.New("アクセスキーの発行に失敗しました")
)
