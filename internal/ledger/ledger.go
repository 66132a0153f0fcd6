// Package ledger はプロセス全体の利用統計カウンタを提供する。
package ledger

import "sync/atomic"

// Ledger は利用統計の集計カウンタ群。
// 各カウンタは独立してアトミックに更新される。カウンタ間の一貫した
// 同時スナップショットは提供しない。観測用途のデータであり、
// 入場判定には使用しないため、この緩和は許容される。
// プロセス起動時にゼロで初期化され、永続化はしない。
type Ledger struct {
	// requests は応答を返し終えたリクエストの数。
	requests atomic.Uint64
	// instructions はエンジンが実行した命令の累計。
	instructions atomic.Uint64
	// engineTimeNS はエンジン実行時間の累計（ナノ秒）。
	engineTimeNS atomic.Uint64
	// responseBytes は返却したレスポンスボディの累計バイト数。
	responseBytes atomic.Uint64
	// statusHits はステータスエンドポイントの参照回数。
	statusHits atomic.Uint64
}

// New はゼロ初期化されたLedgerを生成する。
// プロセス起動時に一度だけ生成し、各ハンドラへ明示的に渡して共有する。
func New() *Ledger {
	return &Ledger{}
}

// AddRequests はリクエスト数カウンタを加算し、新しい値を返す。
func (l *Ledger) AddRequests(n uint64) uint64 {
	return l.requests.Add(n)
}

// AddInstructions は実行命令数カウンタを加算し、新しい値を返す。
func (l *Ledger) AddInstructions(n uint64) uint64 {
	return l.instructions.Add(n)
}

// AddEngineTime はエンジン実行時間カウンタを加算し、新しい値を返す。
func (l *Ledger) AddEngineTime(ns uint64) uint64 {
	return l.engineTimeNS.Add(ns)
}

// AddResponseBytes は返却バイト数カウンタを加算し、新しい値を返す。
func (l *Ledger) AddResponseBytes(n uint64) uint64 {
	return l.responseBytes.Add(n)
}

// AddStatusHit はステータス参照カウンタを1加算し、新しい値を返す。
func (l *Ledger) AddStatusHit() uint64 {
	return l.statusHits.Add(1)
}

// Snapshot は各カウンタの現在値。
type Snapshot struct {
	// Requests は応答を返し終えたリクエストの数。
	Requests uint64
	// Instructions はエンジンが実行した命令の累計。
	Instructions uint64
	// EngineTimeNS はエンジン実行時間の累計（ナノ秒）。
	EngineTimeNS uint64
	// ResponseBytes は返却したレスポンスボディの累計バイト数。
	ResponseBytes uint64
	// StatusHits はステータスエンドポイントの参照回数。
	StatusHits uint64
}

// Snapshot は各カウンタの現在値を読み取って返す。
// 読み取りはカウンタごとに行われるため、並行更新中は単一時点に
// 対応しない組み合わせを観測しうる。
func (l *Ledger) Snapshot() Snapshot {
	return Snapshot{
		Requests:      l.requests.Load(),
		Instructions:  l.instructions.Load(),
		EngineTimeNS:  l.engineTimeNS.Load(),
		ResponseBytes: l.responseBytes.Load(),
		StatusHits:    l.statusHits.Load(),
	}
}
