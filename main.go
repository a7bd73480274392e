package main

import (
	"context"
	"log"

	"kiroku/internal/camera"
	"kiroku/internal/config"
	"kiroku/internal/process"
	"kiroku/internal/recording"
	"kiroku/internal/server"
	"kiroku/internal/session"
)

func main() {
	// 設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	// ワーカープロセスの管理基盤を作成
	bridge := process.NewDefaultBridge()

	// 各コントローラを作成
	rec := recording.NewController(bridge, recording.WorkerScripts{
		Command:      cfg.Worker.Command,
		Record:       cfg.Worker.ScriptPath(cfg.Worker.RecordScript),
		Process:      cfg.Worker.ScriptPath(cfg.Worker.ProcessScript),
		ListSessions: cfg.Worker.ScriptPath(cfg.Worker.ListSessionsScript),
	})
	cam := camera.NewController(bridge, camera.WorkerScripts{
		Command: cfg.Worker.Command,
		Detect:  cfg.Worker.ScriptPath(cfg.Worker.DetectScript),
		Stream:  cfg.Worker.ScriptPath(cfg.Worker.StreamScript),
	})
	store := session.NewStore(cfg.Session.Dir)

	// コンテキストを作成
	ctx := context.Background()

	// 起動時のカメラ検出
	if cfg.Camera.DetectOnStartup {
		detected := cam.DetectCamera(ctx)
		log.Printf("カメラ検出の結果: %s", detected)
	}

	// サーバーを作成して起動
	srv := server.New(cfg, bridge, rec, cam, store)
	if err := srv.Start(ctx); err != nil {
		log.Fatalf("サーバーの起動に失敗しました: %v", err)
	}
}
