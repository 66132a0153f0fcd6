package engine

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ByteArray はJSONで数値の配列としてシリアライズされるバイト列。
// 標準のencoding/jsonは[]byteをbase64文字列にするため、
// メモリイメージと出力の配列表現を保つために独自にマーシャルする。
type ByteArray []byte

// MarshalJSON はバイト列を数値の配列として出力する。
func (b ByteArray) MarshalJSON() ([]byte, error) {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, v := range b {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(int(v)))
	}
	sb.WriteByte(']')
	return []byte(sb.String()), nil
}

// Snapshot は命令1つを実行した直後のランタイム状態。
type Snapshot struct {
	// Memory は実行時点のテープ全体のコピー。
	Memory ByteArray `json:"memory"`
	// MemoryPointer はテープ上の現在位置。
	MemoryPointer uint64 `json:"memory_pointer"`
	// InstructionPointer は実行した命令のプログラム内の位置。
	InstructionPointer uint64 `json:"instruction_pointer"`
	// InputPointer は入力バイト列の次の読み取り位置。
	InputPointer uint64 `json:"input_pointer"`
	// Output は実行時点までに出力されたバイト列。
	Output ByteArray `json:"output"`
	// IsError はこのステップで異常停止したかどうか。
	IsError bool `json:"is_error"`
	// Message は異常停止時の理由。正常ステップでは空。
	Message string `json:"message"`
}

// Product は1回の実行の完全な結果。
// 返却後は不変であり、要求した呼び出しが排他的に所有する。
type Product struct {
	// Snapshots は実行した命令ごとの状態スナップショット列。
	Snapshots []Snapshot `json:"snapshots"`
	// Output はプログラムが出力したバイト列。
	Output ByteArray `json:"output"`
	// Executions は実行した命令の総数。
	Executions uint64 `json:"executions"`
	// Time は実行に要した時間（ナノ秒）。
	Time int64 `json:"time"`
}

// Runtime は1回の実行に必要な状態を保持するBrainfuckインタプリタ。
type Runtime struct {
	// program はソーステキスト。命令以外の文字は無視される。
	program string
	// input は","命令が読み取る入力バイト列。
	input []byte
	// executionLimit は実行できる命令数の上限。
	executionLimit uint64
	// memoryLimit はテープが使用できるセル数の上限。
	memoryLimit uint64
}

// New は指定された上限つきのRuntimeを生成する。
// 上限はアクセスレベルごとの予算から与えられる。
func New(program string, input []byte, executionLimit, memoryLimit uint64) *Runtime {
	return &Runtime{
		program:        program,
		input:          input,
		executionLimit: executionLimit,
		memoryLimit:    memoryLimit,
	}
}

// Run はプログラムを最後まで、または上限に達するまで実行する。
//
// 正常終了はプログラムカウンタの末尾到達。命令数上限への到達、
// メモリ上限を超えるテープアクセス、ポインタの負方向への逸脱、
// 対応の取れない括弧は、いずれも最終スナップショットに
// エラーとして記録されて停止する。エラーは戻り値ではなくデータであり、
// Runは常にProductを返す。
func (r *Runtime) Run() Product {
	start := time.Now()

	jumps, err := matchBrackets(r.program)
	if err != nil {
		// 構文エラーは1命令も実行せずに単一のエラースナップショットで報告する
		return Product{
			Snapshots: []Snapshot{{
				Memory:  ByteArray{},
				Output:  ByteArray{},
				IsError: true,
				Message: err.Error(),
			}},
			Output: ByteArray{},
			Time:   time.Since(start).Nanoseconds(),
		}
	}

	var (
		memory     = make([]byte, 1, 64)
		memPtr     uint64
		inputPtr   uint64
		output     []byte
		executions uint64
		snapshots  = make([]Snapshot, 0, 16)
	)

	// スナップショットは毎命令でテープ全体を複製する。トレース全体の
	// 大きさは最悪で命令数上限×メモリ上限に比例するため、予算テーブルの
	// 両上限を同時に引き上げる際はレスポンスサイズも連動して増える。
	record := func(ip uint64, isError bool, message string) {
		snapshots = append(snapshots, Snapshot{
			Memory:             append(ByteArray(nil), memory...),
			MemoryPointer:      memPtr,
			InstructionPointer: ip,
			InputPointer:       inputPtr,
			Output:             append(ByteArray(nil), output...),
			IsError:            isError,
			Message:            message,
		})
	}

	for ip := 0; ip < len(r.program); ip++ {
		op := r.program[ip]
		if !isCommand(op) {
			continue
		}

		if executions >= r.executionLimit {
			record(uint64(ip), true, fmt.Sprintf("命令数上限（%d）に達しました", r.executionLimit))
			break
		}

		var fault string
		switch op {
		case '>':
			memPtr++
			if memPtr >= r.memoryLimit {
				fault = fmt.Sprintf("メモリ上限（%dセル）を超えました", r.memoryLimit)
				break
			}
			if memPtr >= uint64(len(memory)) {
				memory = append(memory, 0)
			}
		case '<':
			if memPtr == 0 {
				fault = "メモリポインタが負の位置に移動しました"
				break
			}
			memPtr--
		case '+':
			memory[memPtr]++
		case '-':
			memory[memPtr]--
		case '.':
			output = append(output, memory[memPtr])
		case ',':
			// 入力が尽きた場合は0を読み取る
			if inputPtr < uint64(len(r.input)) {
				memory[memPtr] = r.input[inputPtr]
				inputPtr++
			} else {
				memory[memPtr] = 0
			}
		case '[':
			if memory[memPtr] == 0 {
				ip = jumps[ip]
			}
		case ']':
			if memory[memPtr] != 0 {
				ip = jumps[ip]
			}
		}

		executions++
		record(uint64(ip), fault != "", fault)
		if fault != "" {
			break
		}
	}

	return Product{
		Snapshots:  snapshots,
		Output:     ByteArray(output),
		Executions: executions,
		Time:       time.Since(start).Nanoseconds(),
	}
}

// isCommand はBrainfuckの命令文字かどうかを返す。
func isCommand(op byte) bool {
	switch op {
	case '>', '<', '+', '-', '.', ',', '[', ']':
		return true
	}
	return false
}

// matchBrackets は括弧の対応表を作る。
// 返り値のマップは "[" の位置から対応する "]" の位置（およびその逆）を引く。
// 対応の取れない括弧があればエラーを返す。
func matchBrackets(program string) (map[int]int, error) {
	jumps := make(map[int]int)
	var stack []int
	for i := 0; i < len(program); i++ {
		switch program[i] {
		case '[':
			stack = append(stack, i)
		case ']':
			if len(stack) == 0 {
				return nil, fmt.Errorf("位置%dの\"]\"に対応する\"[\"がありません", i)
			}
			open := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			jumps[open] = i
			jumps[i] = open
		}
	}
	if len(stack) > 0 {
		return nil, fmt.Errorf("位置%dの\"[\"に対応する\"]\"がありません", stack[len(stack)-1])
	}
	return jumps, nil
}
