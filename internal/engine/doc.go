// Package engine はサンドボックス化されたBrainfuckランタイムを提供する。
//
// ランタイムは命令数上限とメモリ上限のもとでプログラムを解釈し、
// 実行した命令ごとの状態スナップショット列を含むProductを返す。
// 上限超過やポインタ逸脱はエラースナップショットとして記録され、
// Runがエラーを返すことはない。停止性は上限によって保証される。
package engine
