package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/nao1215/forkgate/internal/access"
	"github.com/nao1215/forkgate/internal/engine"
	"github.com/nao1215/forkgate/internal/keystore"
	"github.com/nao1215/forkgate/internal/ledger"
	"github.com/nao1215/forkgate/pkg/middleware"
)

// headerAccessKey はアクセスキーを提示するHTTPヘッダーキー。
// 1リクエストに1つまで。複数提示は形式エラーとして拒否される。
const headerAccessKey = "X-Access-Key"

// Server は入場管理ゲートウェイのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// store はアクセスキーの永続化ストア。
	store *keystore.Store
	// ledger は利用統計カウンタ。起動時に一度だけ生成して全ハンドラで共有する。
	ledger *ledger.Ledger
	// jwtSecret はセッショントークン署名用の秘密鍵。
	jwtSecret string
	// frontendURL はCORSとWebSocketのオリジン検査で許可するフロントエンドのオリジン。
	frontendURL string
}

// NewServer は新しいゲートウェイサーバーを生成する。
// 予算テーブルの検証、キーストアの初期化、administratorキーの
// ブートストラップを行う。
func NewServer(port string) (*Server, error) {
	if err := access.VerifyBudgetOrdering(); err != nil {
		return nil, fmt.Errorf("予算テーブルの検証に失敗: %w", err)
	}

	store, err := keystore.Open(getEnvOr("FORKGATE_DB", "/data/forkgate.db"))
	if err != nil {
		return nil, fmt.Errorf("キーストアの初期化に失敗: %w", err)
	}

	frontendURL := getEnvOr("FRONTEND_URL", "http://localhost:3000")

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORS([]string{frontendURL}))

	s := &Server{
		router:      router,
		port:        port,
		store:       store,
		ledger:      ledger.New(),
		jwtSecret:   getEnvOr("FORKGATE_JWT_SECRET", "dev-secret-key"),
		frontendURL: frontendURL,
	}

	if err := s.bootstrapAdminKey(context.Background()); err != nil {
		return nil, fmt.Errorf("administratorキーのブートストラップに失敗: %w", err)
	}
	s.setupRoutes()

	return s, nil
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	return s.router.Run(fmt.Sprintf(":%s", s.port))
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	api := s.router.Group("/api/v1")
	{
		// プログラムの実行
		api.POST("/execute", s.handleExecute())
		// 実行トレースのWebSocket配信
		api.GET("/execute/stream", s.handleExecuteStream())
		// 解決されたアクセスレベルと予算の照会
		api.GET("/limits", s.handleLimits())
		// アクセスキーの発行（administrator限定）
		api.POST("/keys", s.handleIssueKey())
	}

	// アクセスキーとセッショントークンの交換
	s.router.POST("/auth/session", s.handleSession())

	// 利用統計（プレーンテキスト）
	s.router.GET("/status", s.handleStatus())

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "forkgate"})
	})
}

// bootstrapAdminKey は起動時にadministratorキーの存在を保証する。
// FORKGATE_ADMIN_KEYが設定されていればそれを登録する。指定されたキーが
// 別のアクセスレベルで登録済みの場合は起動を失敗させる。未設定かつ
// administratorキーが1つも無ければ新規に発行してログに一度だけ出力する。
func (s *Server) bootstrapAdminKey(ctx context.Context) error {
	if key := os.Getenv("FORKGATE_ADMIN_KEY"); key != "" {
		return s.store.EnsureKey(ctx, key, access.TierAdministrator, "環境変数によるブートストラップ")
	}

	n, err := s.store.CountByTier(ctx, access.TierAdministrator)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	key := uuid.New().String()
	if err := s.store.Insert(ctx, key, access.TierAdministrator, "初回起動時の自動発行"); err != nil {
		return err
	}
	log.Printf("administratorキーを発行しました（再表示はされません）: %s", key)
	return nil
}

// interpretationRequest は実行リクエストのボディ。
type interpretationRequest struct {
	// Instructions は実行するプログラムのソーステキスト。
	Instructions string `json:"instructions"`
	// Input はプログラムが読み取る入力。
	Input string `json:"input"`
}

// issueKeyRequest はアクセスキー発行リクエストのボディ。
type issueKeyRequest struct {
	// Tier は発行するアクセスレベルの表示名（developerまたはbasic）。
	Tier string `json:"tier"`
	// Label はキーの用途を示す人間向けのラベル。
	Label string `json:"label"`
}

// resolveTier はリクエストからアクセスレベルを解決する。
//
// Authorizationヘッダーにセッショントークンがあれば署名検証のみで解決し、
// キーストアには問い合わせない。それ以外はX-Access-Keyヘッダーの値を
// そのままaccess.Resolveに渡す。トークンとキーの併用は複数提示として
// 形式エラーになる。
func (s *Server) resolveTier(c *gin.Context) (access.Tier, error) {
	keys := c.Request.Header.Values(headerAccessKey)

	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		if len(keys) > 0 {
			return 0, access.ErrMultipleKeys
		}
		tokenString, found := strings.CutPrefix(authHeader, "Bearer ")
		if !found {
			return 0, fmt.Errorf("%w: Bearerトークン形式が不正です", access.ErrUnknownKey)
		}
		tierName, err := middleware.ParseSessionToken(s.jwtSecret, tokenString)
		if err != nil {
			return 0, fmt.Errorf("%w: %s", access.ErrUnknownKey, err)
		}
		tier, err := access.ParseTier(tierName)
		if err != nil {
			return 0, fmt.Errorf("%w: %s", access.ErrUnknownKey, err)
		}
		return tier, nil
	}

	return access.Resolve(c.Request.Context(), s.store, keys)
}

// rejectStatus はアクセス制御エラーをHTTPステータスコードに対応付ける。
// 認証・認可の失敗とインフラ障害をステータスで区別し、クライアントが
// 再試行の可否を判断できるようにする。
func rejectStatus(err error) int {
	switch {
	case errors.Is(err, access.ErrMultipleKeys), errors.Is(err, access.ErrInvalidTier):
		return http.StatusBadRequest
	case errors.Is(err, access.ErrUnknownKey):
		return http.StatusUnauthorized
	case errors.Is(err, access.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, access.ErrStoreUnavailable), errors.Is(err, access.ErrIssuanceFailed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// handleExecute はプログラム実行リクエストを処理するハンドラを返す。
//
// アクセスレベルの解決、予算の導出、エンジンの同期呼び出し、利用統計の
// 更新、結果のシリアライズを順に行う。エンジンは上限到達時も必ず結果を
// 返すため再試行は行わない（1リクエストにつき1回の実行）。ステップ内の
// エラースナップショットはゲートウェイの障害ではなくデータとして
// そのまま転送する。
func (s *Server) handleExecute() gin.HandlerFunc {
	return func(c *gin.Context) {
		tier, err := s.resolveTier(c)
		if err != nil {
			c.JSON(rejectStatus(err), gin.H{"error": err.Error()})
			return
		}

		var req interpretationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストボディが不正です"})
			return
		}

		budget := access.BudgetFor(tier)
		product := engine.New(req.Instructions, []byte(req.Input), budget.ExecutionLimit, budget.MemoryLimit).Run()

		// 命令数と実行時間は実行完了時点で無条件に計上する
		s.ledger.AddInstructions(product.Executions)
		s.ledger.AddEngineTime(uint64(product.Time))

		body, err := json.Marshal(product)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "結果のシリアライズに失敗しました"})
			return
		}

		// 返却バイト数とリクエスト数はシリアライズ後に計上する
		s.ledger.AddResponseBytes(uint64(len(body)))
		s.ledger.AddRequests(1)

		log.Printf("%d命令を%.2fミリ秒で実行、%dバイトを返却 (access_level=%s)",
			product.Executions, float64(product.Time)/1e6, len(body), tier)
		c.Data(http.StatusOK, "application/json", body)
	}
}

// handleLimits は解決されたアクセスレベルと実行予算を返すハンドラを返す。
func (s *Server) handleLimits() gin.HandlerFunc {
	return func(c *gin.Context) {
		tier, err := s.resolveTier(c)
		if err != nil {
			c.JSON(rejectStatus(err), gin.H{"error": err.Error()})
			return
		}

		budget := access.BudgetFor(tier)
		c.JSON(http.StatusOK, gin.H{
			"access_level":    tier.String(),
			"execution_limit": budget.ExecutionLimit,
			"memory_limit":    budget.MemoryLimit,
		})
	}
}

// handleIssueKey はアクセスキー発行リクエストを処理するハンドラを返す。
// 発行できるのはadministratorキーの保持者のみ。発行されたキーはこの
// レスポンスでのみ開示され、以後どの操作からも取得できない。
func (s *Server) handleIssueKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		callerTier, err := s.resolveTier(c)
		if err != nil {
			c.JSON(rejectStatus(err), gin.H{"error_message": err.Error()})
			return
		}

		var req issueKeyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error_message": "リクエストボディが不正です"})
			return
		}

		requested, err := access.ParseTier(req.Tier)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error_message": access.ErrInvalidTier.Error()})
			return
		}

		key, err := access.Issue(c.Request.Context(), s.store, callerTier, requested, req.Label)
		if err != nil {
			c.JSON(rejectStatus(err), gin.H{"error_message": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"key": key})
	}
}

// handleSession はアクセスキーをセッショントークンに交換するハンドラを返す。
// トークンには解決済みのアクセスレベルが埋め込まれ、有効期間中は
// キーストアを参照せずに解決できる。
func (s *Server) handleSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		tier, err := s.resolveTier(c)
		if err != nil {
			c.JSON(rejectStatus(err), gin.H{"error": err.Error()})
			return
		}
		if tier == access.TierUnauthenticated {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "セッションの発行にはアクセスキーが必要です"})
			return
		}

		token, err := middleware.GenerateSessionToken(s.jwtSecret, tier.String())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "セッショントークンの生成に失敗しました"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"token": token})
	}
}

// handleStatus は利用統計をプレーンテキストで返すハンドラを返す。
func (s *Server) handleStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.ledger.AddStatusHit()
		snap := s.ledger.Snapshot()

		c.String(http.StatusOK,
			"requests_served: %d\ninstructions_executed: %d\nengine_time_ns: %d\nresponse_bytes: %d\nstatus_hits: %d\n",
			snap.Requests, snap.Instructions, snap.EngineTimeNS, snap.ResponseBytes, snap.StatusHits)
	}
}

// getEnvOr は環境変数を取得し、設定されていない場合はデフォルト値を返す。
func getEnvOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
