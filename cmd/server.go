// Package main はKirokuサーバーコマンドの実装です
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"kiroku/internal/camera"
	"kiroku/internal/config"
	"kiroku/internal/process"
	"kiroku/internal/recording"
	"kiroku/internal/server"
	"kiroku/internal/session"
)

func main() {
	// コマンドラインオプション
	var (
		host       = flag.String("host", "", "サーバーのホスト (デフォルト: 0.0.0.0)")
		port       = flag.Int("port", 0, "サーバーのポート (デフォルト: 8080)")
		configPath = flag.String("config", "", "設定ファイルのパス")
		noDetect   = flag.Bool("no-detect", false, "起動時のカメラ検出をスキップ")
		help       = flag.Bool("help", false, "ヘルプを表示")
	)

	flag.Parse()

	// ヘルプ表示
	if *help {
		fmt.Println("Kiroku")
		fmt.Println()
		fmt.Println("使用方法:")
		fmt.Println("  server [オプション]")
		fmt.Println()
		fmt.Println("オプション:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	// 設定を読み込む
	path := *configPath
	if path == "" {
		path = os.Getenv("KIROKU_CONFIG")
	}
	cfg, err := config.LoadPath(path)
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	// コマンドラインオプションで設定を上書き
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *noDetect {
		cfg.Camera.DetectOnStartup = false
	}

	// ワーカープロセスの管理基盤とコントローラを作成
	bridge := process.NewDefaultBridge()
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
	log.Printf("Kiroku サーバーを起動します: %s", cfg.ServerAddress())
	if err := srv.Start(ctx); err != nil {
		log.Fatalf("サーバーの起動に失敗しました: %v", err)
	}
}
