// Package access はアクセスキーの解決・発行と、アクセスレベルごとの
// 実行リソース制限を提供する。
//
// アクセスキーは不透明なベアラートークンであり、キーストアを介して
// アクセスレベル（Tier）に解決される。各Tierには命令数上限とメモリ上限の
// 静的な予算（ResourceBudget）が対応付けられる。
package access
