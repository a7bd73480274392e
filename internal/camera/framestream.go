package camera

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Frame はストリーミングワーカーが出力した1フレーム分のイベント
// Dataはワーカーの出力行そのもので、ペイロードの解釈は行わない
type Frame struct {
	Data       string    // ワーカー出力行（フレームペイロードのテキスト表現）
	ReceivedAt time.Time // 受信時刻
}

// frameBuffer は購読者ごとのフレームバッファサイズ
const frameBuffer = 64

// FrameStream はフレームイベントの複数購読者向けチャンネル
// 下層のワーカー出力チャンネルが終端するとクローズされる
type FrameStream struct {
	mu     sync.Mutex
	subs   map[string]chan Frame
	closed bool
}

// NewFrameStream は新しいFrameStreamを作成する
func NewFrameStream() *FrameStream {
	return &FrameStream{
		subs: make(map[string]chan Frame),
	}
}

// Subscribe は新しい購読を開始する
func (s *FrameStream) Subscribe() (<-chan Frame, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Frame, frameBuffer)
	if s.closed {
		close(ch)
		return ch, func() {}
	}

	id := uuid.New().String()
	s.subs[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// Publish は全購読者にフレームを配信する
// 消費の遅い購読者はフレームを取りこぼす（配信はブロックしない）
func (s *FrameStream) Publish(frame Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	for _, ch := range s.subs {
		select {
		case ch <- frame:
		default:
		}
	}
}

// Close は配信を終了し、全購読者のチャンネルをクローズする
func (s *FrameStream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}

// Closed はクローズ済みかどうかを返す
func (s *FrameStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
