package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
)

// dialStream はテストサーバーのストリーム配信エンドポイントに接続する。
func dialStream(t *testing.T, s *Server, header http.Header) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(s.router)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/execute/stream"
	ws, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		if resp != nil {
			t.Fatalf("WebSocket接続に失敗: %v (status=%d)", err, resp.StatusCode)
		}
		t.Fatalf("WebSocket接続に失敗: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

// TestHandleExecuteStream はWebSocketでのトレース配信を検証する。
func TestHandleExecuteStream(t *testing.T) {
	t.Parallel()

	t.Run("スナップショットが1件ずつ届き最後にまとめが届くこと", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		ws := dialStream(t, s, nil)

		if err := ws.WriteJSON(map[string]string{
			"instructions": "+++.",
			"input":        "",
		}); err != nil {
			t.Fatalf("実行リクエストの送信に失敗: %v", err)
		}

		// 4命令分のスナップショット
		for i := 0; i < 4; i++ {
			var snapshot struct {
				Memory             []int  `json:"memory"`
				InstructionPointer uint64 `json:"instruction_pointer"`
				IsError            bool   `json:"is_error"`
			}
			if err := ws.ReadJSON(&snapshot); err != nil {
				t.Fatalf("%d件目のスナップショット受信に失敗: %v", i+1, err)
			}
			if snapshot.IsError {
				t.Fatalf("%d件目がエラースナップショット", i+1)
			}
		}

		// まとめメッセージ
		_, payload, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("まとめメッセージの受信に失敗: %v", err)
		}
		var summary struct {
			Output     []int  `json:"output"`
			Executions uint64 `json:"executions"`
			Time       int64  `json:"time"`
		}
		if err := json.Unmarshal(payload, &summary); err != nil {
			t.Fatalf("まとめメッセージのパースに失敗: %v", err)
		}
		if summary.Executions != 4 {
			t.Errorf("executions = %d, want 4", summary.Executions)
		}
		if len(summary.Output) != 1 || summary.Output[0] != 3 {
			t.Errorf("output = %v, want [3]", summary.Output)
		}
	})

	t.Run("配信完了後に利用統計が更新されること", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		ws := dialStream(t, s, nil)

		if err := ws.WriteJSON(map[string]string{"instructions": "+.", "input": ""}); err != nil {
			t.Fatalf("実行リクエストの送信に失敗: %v", err)
		}

		// スナップショット2件とまとめを読み切る
		for i := 0; i < 3; i++ {
			if _, _, err := ws.ReadMessage(); err != nil {
				t.Fatalf("%d件目のメッセージ受信に失敗: %v", i+1, err)
			}
		}

		snap := s.ledger.Snapshot()
		if snap.Requests != 1 {
			t.Errorf("Requests = %d, want 1", snap.Requests)
		}
		if snap.Instructions != 2 {
			t.Errorf("Instructions = %d, want 2", snap.Instructions)
		}
	})

	t.Run("許可されたオリジンからの接続は受理されること", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		header := http.Header{}
		header.Set("Origin", "http://localhost:3000")

		ws := dialStream(t, s, header)
		if err := ws.WriteJSON(map[string]string{"instructions": "+.", "input": ""}); err != nil {
			t.Fatalf("実行リクエストの送信に失敗: %v", err)
		}
		if _, _, err := ws.ReadMessage(); err != nil {
			t.Fatalf("スナップショットの受信に失敗: %v", err)
		}
	})

	t.Run("許可されていないオリジンからの接続は拒否されること", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		srv := httptest.NewServer(s.router)
		t.Cleanup(srv.Close)

		url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/execute/stream"
		header := http.Header{}
		header.Set("Origin", "https://evil.example.com")

		_, resp, err := websocket.DefaultDialer.Dial(url, header)
		if err == nil {
			t.Fatal("許可されていないオリジンからの接続が成功した")
		}
		if resp == nil || resp.StatusCode != http.StatusForbidden {
			t.Errorf("拒否時のステータスコードが403でない: %+v", resp)
		}
	})

	t.Run("未登録キーでの接続はアップグレード前に拒否されること", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		srv := httptest.NewServer(s.router)
		t.Cleanup(srv.Close)

		url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/execute/stream"
		header := http.Header{}
		header.Set(headerAccessKey, "not-a-real-key")

		_, resp, err := websocket.DefaultDialer.Dial(url, header)
		if err == nil {
			t.Fatal("未登録キーでの接続が成功した")
		}
		if resp == nil || resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("拒否時のステータスコードが401でない: %+v", resp)
		}
	})
}
