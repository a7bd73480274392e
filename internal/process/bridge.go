package process

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os/exec"
	"sync"
)

// 出力チャンネルに追加される合成行
const (
	// CompletionPrefix はプロセス終了時に付加される行のプレフィックス
	CompletionPrefix = "Process completed with exit code: "
	// TerminatedLine はユーザー操作による停止時に付加される行
	TerminatedLine = "Process terminated by user"
	// ErrorPrefix は標準エラー出力の行に付加されるプレフィックス
	ErrorPrefix = "ERROR: "
)

// Bridge はワーカープロセスの起動・停止・照会を担うインターフェース
type Bridge interface {
	// Run は論理IDに対応するプロセスを起動する
	// 同じIDのプロセスが生存している場合は既存の出力チャンネルを返し、
	// 新しいプロセスは起動しない。起動に失敗した場合、および
	// captureOutputがfalseの場合はnilを返す
	Run(ctx context.Context, id, command string, args []string, captureOutput bool) *Broadcast

	// Kill は論理IDのプロセスを停止する
	// プロセスが存在しない場合はfalseを返す（エラーにはならない）
	Kill(id string) bool

	// KillAll は登録中の全プロセスを停止する。順序は不定
	KillAll()

	// IsRunning は論理IDのプロセスが生存しているかを返す
	IsRunning(id string) bool

	// StreamFor は論理IDの出力チャンネルを返す。存在しない場合はnil
	StreamFor(id string) *Broadcast
}

// handle は生存中のプロセス1つ分の登録情報
type handle struct {
	id     string
	cmd    *exec.Cmd
	stream *Broadcast // 出力キャプチャ無効の場合はnil

	// 登録解除とチャンネルクローズを正確に1回にするためのガード
	finalize sync.Once

	// 出力リーダーの完了待ち（cmd.Waitより先に読み切る必要がある）
	drained sync.WaitGroup
}

// DefaultBridge はBridgeのデフォルト実装
// レジストリ（ID→プロセス）が「実行中かどうか」の唯一の情報源となる
type DefaultBridge struct {
	mu      sync.Mutex
	handles map[string]*handle
}

// NewDefaultBridge は新しいDefaultBridgeを作成する
func NewDefaultBridge() *DefaultBridge {
	return &DefaultBridge{
		handles: make(map[string]*handle),
	}
}

// Run は論理IDに対応するプロセスを起動する
// チェックと登録はロック内で行い、同じIDに2つのプロセスが
// 生まれることを防ぐ
func (b *DefaultBridge) Run(ctx context.Context, id, command string, args []string, captureOutput bool) *Broadcast {
	b.mu.Lock()

	// 既に生存している場合は既存のチャンネルを返す
	if h, ok := b.handles[id]; ok {
		b.mu.Unlock()
		return h.stream
	}

	cmd := exec.CommandContext(ctx, command, args...)

	var stdout, stderr io.ReadCloser
	if captureOutput {
		var err error
		stdout, err = cmd.StdoutPipe()
		if err != nil {
			b.mu.Unlock()
			log.Printf("標準出力パイプの作成に失敗しました (id=%s): %v", id, err)
			return nil
		}
		stderr, err = cmd.StderrPipe()
		if err != nil {
			b.mu.Unlock()
			log.Printf("標準エラーパイプの作成に失敗しました (id=%s): %v", id, err)
			return nil
		}
	}

	if err := cmd.Start(); err != nil {
		b.mu.Unlock()
		log.Printf("プロセスの起動に失敗しました (id=%s, command=%s): %v", id, command, err)
		return nil
	}

	h := &handle{id: id, cmd: cmd}
	if captureOutput {
		h.stream = NewBroadcast()
	}
	b.handles[id] = h
	b.mu.Unlock()

	log.Printf("プロセスを起動しました (id=%s, pid=%d)", id, cmd.Process.Pid)

	if captureOutput {
		h.drained.Add(2)
		go b.drain(h, stdout, "")
		go b.drain(h, stderr, ErrorPrefix)
	}
	go b.watch(h)

	return h.stream
}

// drain はパイプを行単位で読み取り、チャンネルに配信する
func (b *DefaultBridge) drain(h *handle, r io.Reader, prefix string) {
	defer h.drained.Done()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		h.stream.Publish(prefix + scanner.Text())
	}
}

// watch はプロセスの終了を待ち、終了処理を行う
func (b *DefaultBridge) watch(h *handle) {
	// パイプを読み切ってからWaitする（exec.Cmdの制約）
	h.drained.Wait()
	_ = h.cmd.Wait()

	code := h.cmd.ProcessState.ExitCode()
	b.finalizeHandle(h, fmt.Sprintf("%s%d", CompletionPrefix, code))
}

// finalizeHandle はレジストリからの削除と出力チャンネルのクローズを行う
// 自然終了とKillの両方から呼ばれるが、実行されるのは正確に1回
func (b *DefaultBridge) finalizeHandle(h *handle, lastLine string) {
	h.finalize.Do(func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		if cur, ok := b.handles[h.id]; ok && cur == h {
			delete(b.handles, h.id)
		}

		if h.stream != nil {
			h.stream.Publish(lastLine)
			h.stream.Close()
		}

		log.Printf("プロセスが終了しました (id=%s)", h.id)
	})
}

// Kill は論理IDのプロセスを停止する
func (b *DefaultBridge) Kill(id string) bool {
	b.mu.Lock()
	h, ok := b.handles[id]
	b.mu.Unlock()

	if !ok {
		return false
	}

	if h.cmd.Process != nil {
		if err := h.cmd.Process.Kill(); err != nil {
			log.Printf("プロセスの停止に失敗しました (id=%s): %v", id, err)
		}
	}

	b.finalizeHandle(h, TerminatedLine)
	return true
}

// KillAll は登録中の全プロセスを停止する
func (b *DefaultBridge) KillAll() {
	b.mu.Lock()
	ids := make([]string, 0, len(b.handles))
	for id := range b.handles {
		ids = append(ids, id)
	}
	b.mu.Unlock()

	for _, id := range ids {
		b.Kill(id)
	}
}

// IsRunning は論理IDのプロセスが生存しているかを返す
func (b *DefaultBridge) IsRunning(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.handles[id]
	return ok
}

// StreamFor は論理IDの出力チャンネルを返す
func (b *DefaultBridge) StreamFor(id string) *Broadcast {
	b.mu.Lock()
	defer b.mu.Unlock()
	if h, ok := b.handles[id]; ok {
		return h.stream
	}
	return nil
}

// RunCall はMockBridgeが記録するRun呼び出しの内容
type RunCall struct {
	ID            string
	Command       string
	Args          []string
	CaptureOutput bool
}

// MockBridge はテスト用のモックBridge実装
// 実際のプロセスは起動せず、テストコードがEmitLine/CompleteProcessで
// 出力と終了を制御する
type MockBridge struct {
	mu      sync.Mutex
	streams map[string]*Broadcast
	calls   []RunCall
	failIDs map[string]bool
	killed  []string
}

// NewMockBridge は新しいMockBridgeを作成する
func NewMockBridge() *MockBridge {
	return &MockBridge{
		streams: make(map[string]*Broadcast),
		failIDs: make(map[string]bool),
	}
}

// Run はモックプロセスを起動する
func (m *MockBridge) Run(_ context.Context, id, command string, args []string, captureOutput bool) *Broadcast {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, RunCall{
		ID:            id,
		Command:       command,
		Args:          args,
		CaptureOutput: captureOutput,
	})

	if m.failIDs[id] {
		return nil
	}

	if stream, ok := m.streams[id]; ok {
		return stream
	}

	if !captureOutput {
		m.streams[id] = nil
		return nil
	}

	stream := NewBroadcast()
	m.streams[id] = stream
	return stream
}

// Kill はモックプロセスを停止する
func (m *MockBridge) Kill(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	stream, ok := m.streams[id]
	if !ok {
		return false
	}

	delete(m.streams, id)
	m.killed = append(m.killed, id)

	if stream != nil {
		stream.Publish(TerminatedLine)
		stream.Close()
	}
	return true
}

// KillAll は全モックプロセスを停止する
func (m *MockBridge) KillAll() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.streams))
	for id := range m.streams {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.Kill(id)
	}
}

// IsRunning はモックプロセスが生存しているかを返す
func (m *MockBridge) IsRunning(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.streams[id]
	return ok
}

// StreamFor はモックプロセスの出力チャンネルを返す
func (m *MockBridge) StreamFor(id string) *Broadcast {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streams[id]
}

// SetRunFailure はテスト用に指定IDの起動失敗を設定する
func (m *MockBridge) SetRunFailure(id string, fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failIDs[id] = fail
}

// EmitLine はテスト用に出力行を配信する
func (m *MockBridge) EmitLine(id, line string) {
	m.mu.Lock()
	stream := m.streams[id]
	m.mu.Unlock()

	if stream != nil {
		stream.Publish(line)
	}
}

// CompleteProcess はテスト用にプロセスの自然終了を再現する
func (m *MockBridge) CompleteProcess(id string, code int) {
	m.mu.Lock()
	stream, ok := m.streams[id]
	delete(m.streams, id)
	m.mu.Unlock()

	if !ok || stream == nil {
		return
	}

	stream.Publish(fmt.Sprintf("%s%d", CompletionPrefix, code))
	stream.Close()
}

// RunCalls は記録されたRun呼び出しを返す
func (m *MockBridge) RunCalls() []RunCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	calls := make([]RunCall, len(m.calls))
	copy(calls, m.calls)
	return calls
}

// KilledIDs はKillされたIDの一覧を返す
func (m *MockBridge) KilledIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	killed := make([]string, len(m.killed))
	copy(killed, m.killed)
	return killed
}
