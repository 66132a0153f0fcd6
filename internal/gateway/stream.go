package gateway

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/nao1215/forkgate/internal/access"
	"github.com/nao1215/forkgate/internal/engine"
)

// streamSummary はスナップショット配信後に送る最終メッセージ。
type streamSummary struct {
	// Output はプログラムが出力したバイト列。
	Output engine.ByteArray `json:"output"`
	// Executions は実行した命令の総数。
	Executions uint64 `json:"executions"`
	// Time は実行に要した時間（ナノ秒）。
	Time int64 `json:"time"`
}

// handleExecuteStream は実行トレースをWebSocketで配信するハンドラを返す。
//
// クライアントは接続後に実行リクエストを1件送信する。サーバーは
// スナップショットを1件ずつメッセージとして送り、最後にまとめの
// メッセージを送って接続を閉じる。アクセスレベルはアップグレード前の
// HTTPヘッダーから解決する。
func (s *Server) handleExecuteStream() gin.HandlerFunc {
	// オリジン検査はCORSミドルウェアと同じ許可リストに合わせる。
	// Originヘッダーを送らない非ブラウザクライアントは許可する。
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || origin == s.frontendURL
		},
	}

	return func(c *gin.Context) {
		tier, err := s.resolveTier(c)
		if err != nil {
			c.JSON(rejectStatus(err), gin.H{"error": err.Error()})
			return
		}

		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("WebSocketへの昇格に失敗: %v", err)
			return
		}
		defer func() { _ = ws.Close() }()

		var req interpretationRequest
		if err := ws.ReadJSON(&req); err != nil {
			log.Printf("実行リクエストの読み取りに失敗: %v", err)
			return
		}

		budget := access.BudgetFor(tier)
		product := engine.New(req.Instructions, []byte(req.Input), budget.ExecutionLimit, budget.MemoryLimit).Run()

		s.ledger.AddInstructions(product.Executions)
		s.ledger.AddEngineTime(uint64(product.Time))

		for i := range product.Snapshots {
			if err := ws.WriteJSON(product.Snapshots[i]); err != nil {
				log.Printf("スナップショットの送信に失敗: %v", err)
				return
			}
		}

		summary, err := json.Marshal(streamSummary{
			Output:     product.Output,
			Executions: product.Executions,
			Time:       product.Time,
		})
		if err != nil {
			log.Printf("まとめメッセージのシリアライズに失敗: %v", err)
			return
		}

		s.ledger.AddResponseBytes(uint64(len(summary)))
		s.ledger.AddRequests(1)

		if err := ws.WriteMessage(websocket.TextMessage, summary); err != nil {
			log.Printf("まとめメッセージの送信に失敗: %v", err)
		}
	}
}
