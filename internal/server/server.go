package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kiroku/internal/camera"
	"kiroku/internal/config"
	"kiroku/internal/process"
	"kiroku/internal/recording"
	"kiroku/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Server はHTTPサーバーを管理する構造体
type Server struct {
	config     *config.Config
	engine     *gin.Engine
	httpServer *http.Server

	bridge    process.Bridge
	recording *recording.Controller
	camera    *camera.Controller
	sessions  *session.Store

	upgrader websocket.Upgrader
}

// New は新しいServerインスタンスを作成する
func New(cfg *config.Config, bridge process.Bridge, rec *recording.Controller, cam *camera.Controller, sessions *session.Store) *Server {
	s := &Server{
		config:    cfg,
		bridge:    bridge,
		recording: rec,
		camera:    cam,
		sessions:  sessions,
		upgrader: websocket.Upgrader{
			// ローカルネットワーク内での利用を想定
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	s.engine = gin.Default()
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.ServerAddress(),
		Handler:      s.engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return s
}

// setupRoutes はHTTPルートを設定する
func (s *Server) setupRoutes() {
	// ヘルスチェックエンドポイント
	s.engine.GET("/health", s.handleHealth)

	api := s.engine.Group("/api")
	{
		api.GET("/status", s.handleStatus)

		// 録画操作
		api.POST("/recording/start", s.handleStartRecording)
		api.POST("/recording/stop", s.handleStopRecording)
		api.POST("/recording/process", s.handleProcessRecording)
		api.GET("/recording/output", s.handleRecordingOutput)

		// セッションメタデータ
		api.GET("/sessions", s.handleListSessions)
		api.POST("/sessions", s.handleCreateSession)
		api.PUT("/sessions/:name", s.handleRenameSession)
		api.DELETE("/sessions/:name", s.handleDeleteSession)

		// カメラ操作
		api.POST("/camera/detect", s.handleDetectCamera)
		api.POST("/camera/stream/start", s.handleStartCameraStream)
		api.POST("/camera/stream/stop", s.handleStopCameraStream)
		api.GET("/camera/stream", s.handleCameraFrames)
	}
}

// Start はサーバーを起動する
func (s *Server) Start(ctx context.Context) error {
	// シャットダウン用のチャンネル
	shutdownCh := make(chan error, 1)

	// サーバーを別ゴルーチンで起動
	go func() {
		log.Printf("HTTPサーバーを起動しています: %s", s.config.ServerAddress())
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			shutdownCh <- fmt.Errorf("サーバーの起動に失敗: %w", err)
		}
	}()

	// シグナルハンドリング
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	// コンテキストかシグナルを待つ
	select {
	case <-ctx.Done():
		log.Println("コンテキストがキャンセルされました")
	case sig := <-sigCh:
		log.Printf("シグナルを受信しました: %v", sig)
	case err := <-shutdownCh:
		return err
	}

	// グレースフルシャットダウン
	return s.Shutdown()
}

// Shutdown はサーバーをグレースフルにシャットダウンする
// 実行中の全ワーカープロセスを停止してからHTTPサーバーを閉じる
func (s *Server) Shutdown() error {
	log.Println("サーバーをシャットダウンしています...")

	// 全ワーカーを停止
	s.bridge.KillAll()

	// 5秒のタイムアウトを設定
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("サーバーのシャットダウンに失敗: %w", err)
	}

	log.Println("サーバーが正常にシャットダウンされました")
	return nil
}
