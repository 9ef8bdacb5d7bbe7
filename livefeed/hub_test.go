package livefeed

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/epic1st/mexcscanner/logging"
	"github.com/epic1st/mexcscanner/signal"
)

func TestPublishWithNoClientsDoesNotBlockOrError(t *testing.T) {
	h := NewHub(logging.NewLogger(logging.FATAL, io.Discard))
	stop := make(chan struct{})
	go h.Run(stop)
	defer close(stop)

	if err := h.Publish(context.Background(), signal.Signal{Symbol: "BTCUSDT"}); err != nil {
		t.Fatalf("Publish() error = %v, want nil", err)
	}
}

func TestPublishFillsBroadcastBufferWithoutBlocking(t *testing.T) {
	h := NewHub(logging.NewLogger(logging.FATAL, io.Discard))
	// Run is deliberately not started: broadcast channel has a fixed buffer
	// (256) and Publish must drop rather than block once it's full.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 300; i++ {
			_ = h.Publish(context.Background(), signal.Signal{Symbol: "BTCUSDT"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish() blocked instead of dropping once the broadcast buffer filled")
	}
}
