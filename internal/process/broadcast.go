package process

import (
	"sync"

	"github.com/google/uuid"
)

// subscriberBuffer は購読者ごとのチャンネルバッファサイズ
const subscriberBuffer = 256

// Broadcast はプロセス出力行の複数購読者向けチャンネル
// 1つのプロデューサ（プロセスリーダー）がPublishし、任意の数の購読者が
// Subscribeで受信する。途中から購読した場合は以降の行のみを受信する。
type Broadcast struct {
	mu     sync.Mutex
	subs   map[string]chan string
	closed bool
}

// NewBroadcast は新しいBroadcastを作成する
func NewBroadcast() *Broadcast {
	return &Broadcast{
		subs: make(map[string]chan string),
	}
}

// Subscribe は新しい購読を開始する
// 返されたチャンネルはBroadcastのクローズ時、またはキャンセル関数の
// 呼び出し時にクローズされる。キャンセル関数は複数回呼んでも安全
func (b *Broadcast) Subscribe() (<-chan string, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan string, subscriberBuffer)

	// クローズ済みの場合は即座に終端を返す
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := uuid.New().String()
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}

	return ch, cancel
}

// Publish は全購読者に1行を配信する
// クローズ後の呼び出しは何もしない。バッファが満杯の購読者は
// その行を受信しない（他の購読者への配信はブロックしない）
func (b *Broadcast) Publish(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	for _, ch := range b.subs {
		select {
		case ch <- line:
		default:
			// 消費の遅い購読者はこの行をスキップ
		}
	}
}

// Close は配信を終了し、全購読者のチャンネルをクローズする
// 2回目以降の呼び出しは何もしない
func (b *Broadcast) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

// Closed はクローズ済みかどうかを返す
func (b *Broadcast) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}
