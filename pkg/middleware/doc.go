// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアと
// セッショントークンの補助関数を提供する。
//
// アクセスキーをストア参照なしで検証できる署名付きセッショントークン、
// パニックリカバリ、CORS設定を含む。
package middleware
