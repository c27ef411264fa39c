package channel

import (
	"context"
	"testing"
	"time"

	"github.com/flemzord/omnihear/pkg/message"
)

func TestStartTypingLoop_NonPositiveIntervalDoesNotPanic(t *testing.T) {
	t.Parallel()

	ch := newFakeChannel("test")
	ctx, cancel := context.WithCancel(context.Background())
	StartTypingLoop(ctx, ch, message.Chat{ID: "chat-1"}, "typing", 0)

	deadline := time.Now().Add(time.Second)
	for ch.typingCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	if ch.typingCount() == 0 {
		t.Fatal("expected at least one typing indicator")
	}
}
