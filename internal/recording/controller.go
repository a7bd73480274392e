package recording

import (
	"context"
	"log"
	"sort"
	"strings"
	"sync"

	"kiroku/internal/process"

	"github.com/google/uuid"
)

// Status は録画操作の状態を表す
type Status string

const (
	StatusIdle         Status = "idle"         // 待機中
	StatusInitializing Status = "initializing" // 録画ワーカー起動中
	StatusRecording    Status = "recording"    // 録画中
	StatusProcessing   Status = "processing"   // 後処理中
	StatusError        Status = "error"        // エラー発生
)

// ワーカーの論理ID
const (
	RecordingID    = "recording"
	ProcessingID   = "processing"
	ListSessionsID = "list_sessions"
)

// ワーカー出力のセンチネル文字列
const (
	sentinelRecordingStarted = "Recording started"
	sentinelProcessing       = "Processing"
	sentinelError            = "Error"
	completionSuccess        = process.CompletionPrefix + "0"
)

// WorkerScripts は録画関連ワーカーの起動方法を保持する
type WorkerScripts struct {
	Command      string // 実行コマンド（例: python3）
	Record       string // 録画ワーカースクリプトのパス
	Process      string // 処理ワーカースクリプトのパス
	ListSessions string // セッション一覧ワーカースクリプトのパス
}

// Controller は録画操作の状態機械を所有する
// 状態の変更はControllerのみが行い、ワーカー出力のパターンマッチと
// 明示的なコマンドだけが遷移の契機となる
type Controller struct {
	bridge  process.Bridge
	workers WorkerScripts

	mu           sync.RWMutex
	status       Status
	session      string
	cancelOutput func()
	statusSubs   map[string]chan Status

	// 全ワーカー出力行の転送先。Controllerの生存期間中クローズされない
	output *process.Broadcast
}

// NewController は新しいControllerを作成する
func NewController(bridge process.Bridge, workers WorkerScripts) *Controller {
	return &Controller{
		bridge:     bridge,
		workers:    workers,
		status:     StatusIdle,
		statusSubs: make(map[string]chan Status),
		output:     process.NewBroadcast(),
	}
}

// Status は現在の録画状態を返す
func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Session は現在の録画セッション名を返す
func (c *Controller) Session() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// SubscribeStatus は状態変化の購読を開始する
func (c *Controller) SubscribeStatus() (<-chan Status, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan Status, 16)
	id := uuid.New().String()
	c.statusSubs[id] = ch

	cancel := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.statusSubs[id]; ok {
			delete(c.statusSubs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// SubscribeOutput はワーカー出力行の購読を開始する
func (c *Controller) SubscribeOutput() (<-chan string, func()) {
	return c.output.Subscribe()
}

// setStatus は状態を変更し、変化した場合のみ購読者に通知する
func (c *Controller) setStatus(next Status) {
	c.mu.Lock()
	if c.status == next {
		c.mu.Unlock()
		return
	}
	c.status = next
	subs := make([]chan Status, 0, len(c.statusSubs))
	for _, ch := range c.statusSubs {
		subs = append(subs, ch)
	}
	c.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- next:
		default:
		}
	}
}

// StartRecording は録画を開始する
// 既に録画中の場合は何もせずfalseを返す。引数は--session=<名前>に続けて
// パラメータをキーの昇順で--<キー>=<値>として渡す
func (c *Controller) StartRecording(ctx context.Context, sessionName string, params map[string]string) bool {
	c.mu.Lock()
	if c.status == StatusRecording {
		c.mu.Unlock()
		c.output.Publish("Already recording")
		return false
	}
	c.status = StatusInitializing
	c.session = sessionName
	c.mu.Unlock()
	c.notifyStatus(StatusInitializing)

	args := buildRecordArgs(c.workers.Record, sessionName, params)
	stream := c.bridge.Run(ctx, RecordingID, c.workers.Command, args, true)
	if stream == nil {
		log.Printf("録画ワーカーの起動に失敗しました (session=%s)", sessionName)
		c.setStatus(StatusError)
		return false
	}

	lines, cancel := stream.Subscribe()

	c.mu.Lock()
	c.cancelOutput = cancel
	c.status = StatusRecording
	c.mu.Unlock()
	c.notifyStatus(StatusRecording)

	go c.consumeRecordingOutput(lines)
	return true
}

// StopRecording は録画を停止する
// 録画中でない場合は何もせずfalseを返す
func (c *Controller) StopRecording() bool {
	c.mu.Lock()
	if c.status != StatusRecording {
		c.mu.Unlock()
		return false
	}
	cancel := c.cancelOutput
	c.cancelOutput = nil
	c.session = ""
	c.status = StatusIdle
	c.mu.Unlock()

	killed := c.bridge.Kill(RecordingID)
	if cancel != nil {
		cancel()
	}
	c.notifyStatus(StatusIdle)
	return killed
}

// ProcessRecording はセッションの後処理ワーカーを実行する
// 成功行（終了コード0）またはチャンネルのクローズまでブロックする。
// 明示的な失敗マーカーなしにチャンネルが終端した場合は成功として扱う
func (c *Controller) ProcessRecording(ctx context.Context, sessionName, outputFormat string) bool {
	args := []string{
		c.workers.Process,
		"--session=" + sessionName,
		"--format=" + outputFormat,
	}
	stream := c.bridge.Run(ctx, ProcessingID, c.workers.Command, args, true)
	if stream == nil {
		log.Printf("処理ワーカーの起動に失敗しました (session=%s)", sessionName)
		c.setStatus(StatusError)
		return false
	}

	lines, cancel := stream.Subscribe()
	defer cancel()

	c.setStatus(StatusProcessing)

	sawError := false
	for line := range lines {
		c.output.Publish(line)
		if strings.Contains(line, sentinelError) {
			sawError = true
		}
		if strings.Contains(line, completionSuccess) {
			break
		}
	}

	if sawError {
		c.setStatus(StatusError)
		return false
	}
	c.setStatus(StatusIdle)
	return true
}

// AvailableSessions は一覧ワーカーを実行してセッション名を収集する
// 起動に失敗した場合は空のリストを返す
func (c *Controller) AvailableSessions(ctx context.Context) []string {
	stream := c.bridge.Run(ctx, ListSessionsID, c.workers.Command, []string{c.workers.ListSessions}, true)
	if stream == nil {
		log.Println("セッション一覧ワーカーの起動に失敗しました")
		return []string{}
	}

	lines, cancel := stream.Subscribe()
	defer cancel()

	sessions := []string{}
	for line := range lines {
		name := strings.TrimSpace(line)
		if name == "" ||
			strings.HasPrefix(name, process.ErrorPrefix) ||
			strings.Contains(name, process.CompletionPrefix) ||
			name == process.TerminatedLine {
			continue
		}
		sessions = append(sessions, name)
	}
	return sessions
}

// consumeRecordingOutput は録画ワーカーの出力を状態遷移に反映する
// チャンネルのクローズ（プロセス終了・購読キャンセル）で待機状態に戻る
func (c *Controller) consumeRecordingOutput(lines <-chan string) {
	for line := range lines {
		c.output.Publish(line)
		c.applySentinel(line)
	}
	c.setStatus(StatusIdle)
}

// applySentinel は出力行のセンチネルを状態遷移に変換する
// マッチは記述順に評価される。複数のセンチネルを含む行は最初の
// マッチだけが適用される
func (c *Controller) applySentinel(line string) {
	switch {
	case strings.Contains(line, sentinelRecordingStarted):
		// 録画開始の確認。状態は変わらない
	case strings.Contains(line, sentinelProcessing):
		c.setStatus(StatusProcessing)
	case strings.Contains(line, sentinelError):
		c.setStatus(StatusError)
	}
}

// notifyStatus はロック外から現在状態を購読者へ通知する
func (c *Controller) notifyStatus(s Status) {
	c.mu.RLock()
	subs := make([]chan Status, 0, len(c.statusSubs))
	for _, ch := range c.statusSubs {
		subs = append(subs, ch)
	}
	c.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- s:
		default:
		}
	}
}

// buildRecordArgs は録画ワーカーの引数リストを構築する
func buildRecordArgs(script, sessionName string, params map[string]string) []string {
	args := []string{script, "--session=" + sessionName}

	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		args = append(args, "--"+key+"="+params[key])
	}
	return args
}
