package process

import (
	"testing"
	"time"
)

// recvLine はチャンネルから1行受信する。タイムアウトした場合はテスト失敗
func recvLine(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case line, ok := <-ch:
		if !ok {
			t.Fatal("チャンネルが予期せずクローズされました")
		}
		return line
	case <-time.After(2 * time.Second):
		t.Fatal("行の受信がタイムアウトしました")
	}
	return ""
}

// recvClosed はチャンネルのクローズを待つ
func recvClosed(t *testing.T, ch <-chan string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("チャンネルのクローズがタイムアウトしました")
		}
	}
}

func TestBroadcast_PublishToMultipleSubscribers(t *testing.T) {
	b := NewBroadcast()

	ch1, cancel1 := b.Subscribe()
	ch2, cancel2 := b.Subscribe()
	defer cancel1()
	defer cancel2()

	b.Publish("hello")

	if got := recvLine(t, ch1); got != "hello" {
		t.Errorf("購読者1の受信行が不正: %q", got)
	}
	if got := recvLine(t, ch2); got != "hello" {
		t.Errorf("購読者2の受信行が不正: %q", got)
	}
}

func TestBroadcast_LateSubscriberSeesOnlyFutureLines(t *testing.T) {
	b := NewBroadcast()

	early, cancelEarly := b.Subscribe()
	defer cancelEarly()

	b.Publish("first")

	// 途中からの購読者は過去の行を受信しない
	late, cancelLate := b.Subscribe()
	defer cancelLate()

	b.Publish("second")

	if got := recvLine(t, early); got != "first" {
		t.Errorf("先行購読者の1行目が不正: %q", got)
	}
	if got := recvLine(t, early); got != "second" {
		t.Errorf("先行購読者の2行目が不正: %q", got)
	}
	if got := recvLine(t, late); got != "second" {
		t.Errorf("後続購読者の受信行が不正: %q", got)
	}
}

func TestBroadcast_OrderPreservedPerSubscriber(t *testing.T) {
	b := NewBroadcast()

	ch, cancel := b.Subscribe()
	defer cancel()

	lines := []string{"a", "b", "c", "d", "e"}
	for _, line := range lines {
		b.Publish(line)
	}

	for i, want := range lines {
		if got := recvLine(t, ch); got != want {
			t.Fatalf("%d行目が不正: got %q, want %q", i, got, want)
		}
	}
}

func TestBroadcast_CloseEndsAllSubscribers(t *testing.T) {
	b := NewBroadcast()

	ch1, _ := b.Subscribe()
	ch2, _ := b.Subscribe()

	b.Close()

	recvClosed(t, ch1)
	recvClosed(t, ch2)

	if !b.Closed() {
		t.Error("Closeの後はClosedがtrueを返すべき")
	}
}

func TestBroadcast_PublishAfterCloseIsNoop(t *testing.T) {
	b := NewBroadcast()
	b.Close()

	// クローズ後のPublishはパニックせず、何も配信しない
	b.Publish("ignored")

	// クローズ後の購読は即座に終端チャンネルを返す
	ch, cancel := b.Subscribe()
	defer cancel()
	recvClosed(t, ch)
}

func TestBroadcast_DoubleCloseIsSafe(t *testing.T) {
	b := NewBroadcast()
	b.Close()
	b.Close() // 2回目はパニックしない
}

func TestBroadcast_CancelStopsDelivery(t *testing.T) {
	b := NewBroadcast()

	ch, cancel := b.Subscribe()
	cancel()

	// キャンセル後はチャンネルがクローズされる
	recvClosed(t, ch)

	// キャンセルは複数回呼んでも安全
	cancel()

	// 残った購読者がいない状態でのPublishも安全
	b.Publish("nobody")
}
