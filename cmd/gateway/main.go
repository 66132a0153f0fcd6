// 入場管理ゲートウェイのエントリポイント。
// アクセスキーの解決、アクセスレベルに応じた実行予算の選択、
// 実行エンジンの呼び出し、利用統計の記録を担当する。
package main

import (
	"log"
	"os"

	"github.com/nao1215/forkgate/internal/gateway"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server, err := gateway.NewServer(port)
	if err != nil {
		log.Fatalf("ゲートウェイサーバーの初期化に失敗: %v", err)
	}

	log.Printf("ゲートウェイを起動します: :%s", port)
	if err := server.Run(); err != nil {
		log.Fatalf("ゲートウェイの起動に失敗: %v", err)
	}
}
