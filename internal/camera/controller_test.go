package camera

import (
	"context"
	"strings"
	"testing"
	"time"

	"kiroku/internal/process"
)

func testWorkers() WorkerScripts {
	return WorkerScripts{
		Command: "python3",
		Detect:  "scripts/detect_camera.py",
		Stream:  "scripts/stream_camera.py",
	}
}

// waitRunCalls はRun呼び出しが指定回数に達するまでポーリングする
func waitRunCalls(t *testing.T, bridge *process.MockBridge, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(bridge.RunCalls()) >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Run呼び出しが%d回に達しません (現在: %d)", n, len(bridge.RunCalls()))
}

// emitUntil は結果が届くまで行を繰り返し配信する
// プローブの購読開始と配信のタイミング競合を吸収するためのヘルパー
func emitUntil(t *testing.T, bridge *process.MockBridge, id, line string, result <-chan Type) Type {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case got := <-result:
			return got
		case <-deadline:
			t.Fatal("検出結果を受信できません")
		default:
			bridge.EmitLine(id, line)
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func TestController_DetectRaspberryPi(t *testing.T) {
	bridge := process.NewMockBridge()
	c := NewController(bridge, testWorkers())

	result := make(chan Type, 1)
	go func() {
		result <- c.DetectCamera(context.Background())
	}()

	waitRunCalls(t, bridge, 1)

	calls := bridge.RunCalls()
	if calls[0].ID != DetectID {
		t.Errorf("論理IDが不正: %s", calls[0].ID)
	}
	wantArgs := []string{"scripts/detect_camera.py", "--type=raspberry"}
	if len(calls[0].Args) != 2 || calls[0].Args[0] != wantArgs[0] || calls[0].Args[1] != wantArgs[1] {
		t.Errorf("プローブ引数が不正: %v", calls[0].Args)
	}

	got := emitUntil(t, bridge, DetectID, "CAMERA_FOUND:/dev/video0", result)
	if got != TypeRaspberryPi {
		t.Errorf("検出結果が不正: %s", got)
	}
	if c.CameraPath() != "/dev/video0" {
		t.Errorf("デバイスパスが不正: %s", c.CameraPath())
	}
	if !c.Initialized() {
		t.Error("検出後はInitializedがtrueであるべき")
	}

	// 最初のプローブで見つかったためWebカメラのプローブは実行されない
	for _, call := range bridge.RunCalls() {
		for _, arg := range call.Args {
			if strings.Contains(arg, "webcam") {
				t.Error("Raspberry Pi検出後にWebカメラのプローブが実行されました")
			}
		}
	}
}

func TestController_DetectFallsBackToWebcam(t *testing.T) {
	bridge := process.NewMockBridge()
	c := NewController(bridge, testWorkers())

	result := make(chan Type, 1)
	go func() {
		result <- c.DetectCamera(context.Background())
	}()

	// Raspberry Piプローブはセンチネルなしで終端する
	waitRunCalls(t, bridge, 1)
	bridge.CompleteProcess(DetectID, 0)

	// 2番目のプローブがWebカメラで起動される
	waitRunCalls(t, bridge, 2)
	calls := bridge.RunCalls()
	if calls[1].Args[1] != "--type=webcam" {
		t.Errorf("2番目のプローブ引数が不正: %v", calls[1].Args)
	}

	got := emitUntil(t, bridge, DetectID, "CAMERA_FOUND:/dev/video0", result)
	if got != TypeWebCamera {
		t.Errorf("検出結果が不正: %s", got)
	}
	if c.CameraPath() != "/dev/video0" {
		t.Errorf("デバイスパスが不正: %s", c.CameraPath())
	}
}

func TestController_DetectNone(t *testing.T) {
	bridge := process.NewMockBridge()
	c := NewController(bridge, testWorkers())

	result := make(chan Type, 1)
	go func() {
		result <- c.DetectCamera(context.Background())
	}()

	waitRunCalls(t, bridge, 1)
	bridge.CompleteProcess(DetectID, 0)
	waitRunCalls(t, bridge, 2)
	bridge.CompleteProcess(DetectID, 0)

	select {
	case got := <-result:
		if got != TypeNone {
			t.Errorf("検出結果が不正: %s", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("検出結果を受信できません")
	}

	if c.Initialized() {
		t.Error("未検出の場合はInitializedがfalseであるべき")
	}
	if c.Type() != TypeNone {
		t.Errorf("種別が不正: %s", c.Type())
	}
}

func TestController_DetectSpawnFailureFallsThrough(t *testing.T) {
	bridge := process.NewMockBridge()
	bridge.SetRunFailure(DetectID, true)
	c := NewController(bridge, testWorkers())

	// 両プローブとも起動に失敗した場合は未検出となる
	if got := c.DetectCamera(context.Background()); got != TypeNone {
		t.Errorf("検出結果が不正: %s", got)
	}
}

func TestController_TypeChangeNotification(t *testing.T) {
	bridge := process.NewMockBridge()
	c := NewController(bridge, testWorkers())

	typeCh, cancel := c.SubscribeType()
	defer cancel()

	result := make(chan Type, 1)
	go func() {
		result <- c.DetectCamera(context.Background())
	}()

	waitRunCalls(t, bridge, 1)
	emitUntil(t, bridge, DetectID, "CAMERA_FOUND:/dev/video2", result)

	select {
	case got := <-typeCh:
		if got != TypeRaspberryPi {
			t.Errorf("通知された種別が不正: %s", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("種別変化の通知を受信できません")
	}
}

func TestController_StreamLifecycle(t *testing.T) {
	bridge := process.NewMockBridge()
	c := NewController(bridge, testWorkers())

	// 事前に検出を完了させる
	result := make(chan Type, 1)
	go func() {
		result <- c.DetectCamera(context.Background())
	}()
	waitRunCalls(t, bridge, 1)
	emitUntil(t, bridge, DetectID, "CAMERA_FOUND:/dev/video0", result)

	frames := c.StartCameraStream(context.Background())
	if frames == nil {
		t.Fatal("StartCameraStreamがnilを返しました")
	}

	// ストリーミングワーカーの引数を確認
	calls := bridge.RunCalls()
	last := calls[len(calls)-1]
	if last.ID != StreamID {
		t.Errorf("論理IDが不正: %s", last.ID)
	}
	wantArgs := []string{"scripts/stream_camera.py", "--camera_path=/dev/video0", "--type=raspberry"}
	for i, want := range wantArgs {
		if last.Args[i] != want {
			t.Errorf("引数%dが不正: got %s, want %s", i, last.Args[i], want)
		}
	}

	// フレームが配信される
	frameCh, cancelFrames := frames.Subscribe()
	defer cancelFrames()

	bridge.EmitLine(StreamID, `{"frame": 0, "timestamp": 1700000000.0}`)

	select {
	case frame := <-frameCh:
		if !strings.Contains(frame.Data, `"frame": 0`) {
			t.Errorf("フレームデータが不正: %s", frame.Data)
		}
		if frame.ReceivedAt.IsZero() {
			t.Error("受信時刻が設定されていません")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("フレームを受信できません")
	}

	// 停止でワーカーがKillされ、フレームチャンネルも終端する
	if !c.StopCameraStream() {
		t.Fatal("StopCameraStreamがfalseを返しました")
	}
	if bridge.IsRunning(StreamID) {
		t.Error("停止後もストリーミングワーカーが残っています")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && !frames.Closed() {
		time.Sleep(5 * time.Millisecond)
	}
	if !frames.Closed() {
		t.Error("フレームチャンネルがクローズされていません")
	}
}

func TestController_StreamClosesWhenWorkerExits(t *testing.T) {
	bridge := process.NewMockBridge()
	c := NewController(bridge, testWorkers())

	result := make(chan Type, 1)
	go func() {
		result <- c.DetectCamera(context.Background())
	}()
	waitRunCalls(t, bridge, 1)
	emitUntil(t, bridge, DetectID, "CAMERA_FOUND:/dev/video0", result)

	frames := c.StartCameraStream(context.Background())
	if frames == nil {
		t.Fatal("StartCameraStreamがnilを返しました")
	}

	// ワーカーの自然終了でフレームチャンネルが終端する
	bridge.CompleteProcess(StreamID, 0)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && !frames.Closed() {
		time.Sleep(5 * time.Millisecond)
	}
	if !frames.Closed() {
		t.Error("フレームチャンネルがクローズされていません")
	}
}

func TestController_StopStreamWhenInactive(t *testing.T) {
	bridge := process.NewMockBridge()
	c := NewController(bridge, testWorkers())

	// ストリーム未起動でも安全に呼び出せる
	if c.StopCameraStream() {
		t.Error("ストリーム未起動のStopCameraStreamはfalseを返すべき")
	}
}

func TestController_StartStreamWithoutCameraReturnsNil(t *testing.T) {
	bridge := process.NewMockBridge()
	bridge.SetRunFailure(DetectID, true)
	c := NewController(bridge, testWorkers())

	// 検出が走り、カメラが見つからないためnilを返す
	if frames := c.StartCameraStream(context.Background()); frames != nil {
		t.Error("カメラ未検出の場合はnilを返すべき")
	}
}
