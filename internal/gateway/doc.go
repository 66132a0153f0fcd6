// Package gateway は実行エンジンの前段に立つ入場管理サービスの内部実装を提供する。
//
// アクセスキーの解決、アクセスレベルに応じた実行予算の選択、エンジンの
// 呼び出し、利用統計の記録、アクセスキーの発行を担当する。外部から
// アクセス可能な唯一のサービスであり、セキュリティの境界線として機能する。
package gateway
