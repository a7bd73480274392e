package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Worker  WorkerConfig  `yaml:"worker"`
	Session SessionConfig `yaml:"session"`
	Camera  CameraConfig  `yaml:"camera"`
}

// ServerConfig はHTTPサーバーの設定
type ServerConfig struct {
	Host string `yaml:"host"` // リッスンするホスト
	Port int    `yaml:"port"` // リッスンするポート番号

	// タイムアウト設定
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // 読み込みタイムアウト
	WriteTimeout time.Duration `yaml:"write_timeout"` // 書き込みタイムアウト
}

// WorkerConfig はワーカースクリプトの設定
type WorkerConfig struct {
	Command    string `yaml:"command"`     // ワーカーの実行コマンド
	ScriptsDir string `yaml:"scripts_dir"` // スクリプト配置ディレクトリ

	// 各ワーカーのスクリプトファイル名
	RecordScript       string `yaml:"record_script"`
	ProcessScript      string `yaml:"process_script"`
	ListSessionsScript string `yaml:"list_sessions_script"`
	DetectScript       string `yaml:"detect_script"`
	StreamScript       string `yaml:"stream_script"`
}

// ScriptPath はスクリプトファイル名をフルパスに変換する
func (w WorkerConfig) ScriptPath(name string) string {
	return filepath.Join(w.ScriptsDir, name)
}

// SessionConfig はセッションメタデータの設定
type SessionConfig struct {
	Dir string `yaml:"dir"` // セッションディレクトリの保存先
}

// CameraConfig はカメラ関連の設定
type CameraConfig struct {
	DetectOnStartup bool `yaml:"detect_on_startup"` // 起動時にカメラ検出を実行するか
}

// Load は設定を読み込む
// デフォルト値を構築し、KIROKU_CONFIG環境変数が指すYAMLファイルと
// 環境変数による上書きを順に適用する
func Load() (*Config, error) {
	return LoadPath(os.Getenv("KIROKU_CONFIG"))
}

// LoadPath は指定されたYAMLファイルから設定を読み込む
// pathが空の場合はファイルの読み込みをスキップする
func LoadPath(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("設定ファイルの解析に失敗: %w", err)
		}
	}

	// 環境変数による上書き
	cfg.Server.Host = getEnvOrDefault("SERVER_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvAsIntOrDefault("PORT", cfg.Server.Port)
	cfg.Worker.Command = getEnvOrDefault("KIROKU_WORKER_COMMAND", cfg.Worker.Command)
	cfg.Worker.ScriptsDir = getEnvOrDefault("KIROKU_SCRIPTS_DIR", cfg.Worker.ScriptsDir)
	cfg.Session.Dir = getEnvOrDefault("KIROKU_SESSION_DIR", cfg.Session.Dir)

	// 設定の検証
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

// defaultConfig はデフォルト設定を構築する
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 0, // ストリーミング用にタイムアウト無効化
		},
		Worker: WorkerConfig{
			Command:            "python3",
			ScriptsDir:         "./scripts",
			RecordScript:       "record_session.py",
			ProcessScript:      "process_session.py",
			ListSessionsScript: "list_sessions.py",
			DetectScript:       "detect_camera.py",
			StreamScript:       "stream_camera.py",
		},
		Session: SessionConfig{
			Dir: "./sessions",
		},
		Camera: CameraConfig{
			DetectOnStartup: true,
		},
	}
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	// サーバー設定の検証
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("無効なポート番号: %d", c.Server.Port)
	}

	// ワーカー設定の検証
	if c.Worker.Command == "" {
		return fmt.Errorf("ワーカーの実行コマンドが設定されていません")
	}
	if c.Worker.ScriptsDir == "" {
		return fmt.Errorf("スクリプトディレクトリが設定されていません")
	}

	// セッション設定の検証
	if c.Session.Dir == "" {
		return fmt.Errorf("セッション保存先が設定されていません")
	}

	return nil
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// getEnvOrDefault は環境変数を取得し、設定されていない場合はデフォルト値を返す
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault は環境変数を整数として取得し、設定されていない場合はデフォルト値を返す
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		if _, err := fmt.Sscanf(value, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultValue
}
