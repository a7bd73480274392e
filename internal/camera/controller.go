package camera

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"kiroku/internal/process"

	"github.com/google/uuid"
)

// Type は検出されたカメラの種別を表す
type Type string

const (
	TypeRaspberryPi Type = "raspberry_pi" // Raspberry Piカメラ
	TypeWebCamera   Type = "web_camera"   // USB Webカメラ
	TypeNone        Type = "none"         // カメラ未検出
)

// ワーカーの論理ID
const (
	DetectID = "camera_detect"
	StreamID = "camera_stream"
)

// sentinelCameraFound は検出ワーカーがカメラを発見したときの出力マーカー
// マーカー以降の文字列がデバイスパスとなる
const sentinelCameraFound = "CAMERA_FOUND:"

// WorkerScripts はカメラ関連ワーカーの起動方法を保持する
type WorkerScripts struct {
	Command string // 実行コマンド（例: python3）
	Detect  string // 検出ワーカースクリプトのパス
	Stream  string // ストリーミングワーカースクリプトのパス
}

// Controller はカメラの検出状態とストリーミングを管理する
type Controller struct {
	bridge  process.Bridge
	workers WorkerScripts

	mu           sync.RWMutex
	ctype        Type
	cameraPath   string
	initialized  bool
	typeSubs     map[string]chan Type
	frames       *FrameStream
	cancelStream func()
}

// NewController は新しいControllerを作成する
func NewController(bridge process.Bridge, workers WorkerScripts) *Controller {
	return &Controller{
		bridge:   bridge,
		workers:  workers,
		ctype:    TypeNone,
		typeSubs: make(map[string]chan Type),
	}
}

// Type は現在のカメラ種別を返す
func (c *Controller) Type() Type {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ctype
}

// CameraPath は検出されたデバイスパスを返す
func (c *Controller) CameraPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cameraPath
}

// Initialized はカメラが検出済みかどうかを返す
func (c *Controller) Initialized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.initialized
}

// SubscribeType はカメラ種別の変化の購読を開始する
func (c *Controller) SubscribeType() (<-chan Type, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan Type, 4)
	id := uuid.New().String()
	c.typeSubs[id] = ch

	cancel := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.typeSubs[id]; ok {
			delete(c.typeSubs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// DetectCamera はカメラ検出プロトコルを実行する
// Raspberry Piカメラをプローブし、見つからなければWebカメラをプローブする。
// 検出の成否にかかわらず結果の種別を購読者に通知する
func (c *Controller) DetectCamera(ctx context.Context) Type {
	if path, found := c.probe(ctx, "raspberry"); found {
		c.adopt(TypeRaspberryPi, path)
		return TypeRaspberryPi
	}

	if path, found := c.probe(ctx, "webcam"); found {
		c.adopt(TypeWebCamera, path)
		return TypeWebCamera
	}

	log.Println("カメラが検出されませんでした")
	c.adopt(TypeNone, "")
	return TypeNone
}

// probe は検出ワーカーを1回実行し、センチネルを待つ
// センチネルなしにチャンネルが終端した場合は未検出と判定する
func (c *Controller) probe(ctx context.Context, kind string) (string, bool) {
	args := []string{c.workers.Detect, "--type=" + kind}
	stream := c.bridge.Run(ctx, DetectID, c.workers.Command, args, true)
	if stream == nil {
		log.Printf("検出ワーカーの起動に失敗しました (type=%s)", kind)
		return "", false
	}

	lines, cancel := stream.Subscribe()
	defer cancel()

	for line := range lines {
		if idx := strings.Index(line, sentinelCameraFound); idx >= 0 {
			path := strings.TrimSpace(line[idx+len(sentinelCameraFound):])
			log.Printf("カメラを検出しました (type=%s, path=%s)", kind, path)
			return path, true
		}
	}
	return "", false
}

// adopt は検出結果を反映し、種別を購読者に通知する
func (c *Controller) adopt(t Type, path string) {
	c.mu.Lock()
	c.ctype = t
	c.cameraPath = path
	c.initialized = t != TypeNone
	subs := make([]chan Type, 0, len(c.typeSubs))
	for _, ch := range c.typeSubs {
		subs = append(subs, ch)
	}
	c.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- t:
		default:
		}
	}
}

// StartCameraStream はストリーミングワーカーを起動し、フレームの
// 配信チャンネルを返す。カメラが未検出の場合は先に検出を実行する。
// カメラが見つからない場合、および起動に失敗した場合はnilを返す
func (c *Controller) StartCameraStream(ctx context.Context) *FrameStream {
	c.mu.RLock()
	t := c.ctype
	initialized := c.initialized
	c.mu.RUnlock()

	if !initialized || t == TypeNone {
		t = c.DetectCamera(ctx)
		if t == TypeNone {
			return nil
		}
	}

	c.mu.RLock()
	path := c.cameraPath
	c.mu.RUnlock()

	args := []string{
		c.workers.Stream,
		"--camera_path=" + path,
		"--type=" + probeArg(t),
	}
	stream := c.bridge.Run(ctx, StreamID, c.workers.Command, args, true)
	if stream == nil {
		log.Println("ストリーミングワーカーの起動に失敗しました")
		return nil
	}

	lines, cancel := stream.Subscribe()
	frames := NewFrameStream()

	c.mu.Lock()
	c.frames = frames
	c.cancelStream = cancel
	c.mu.Unlock()

	go func() {
		for line := range lines {
			frames.Publish(Frame{Data: line, ReceivedAt: time.Now()})
		}
		// ワーカーチャンネルの終端とともにフレームチャンネルも終端する
		frames.Close()
	}()

	return frames
}

// StopCameraStream はストリーミングワーカーを停止する
// ストリームが動作していない場合も安全に呼び出せる
func (c *Controller) StopCameraStream() bool {
	c.mu.Lock()
	cancel := c.cancelStream
	c.cancelStream = nil
	c.frames = nil
	c.mu.Unlock()

	killed := c.bridge.Kill(StreamID)
	if cancel != nil {
		cancel()
	}
	return killed
}

// Frames は現在のフレーム配信チャンネルを返す。ストリーム停止中はnil
func (c *Controller) Frames() *FrameStream {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.frames
}

// probeArg はカメラ種別をワーカーの--type引数値に変換する
func probeArg(t Type) string {
	if t == TypeRaspberryPi {
		return "raspberry"
	}
	return "webcam"
}
