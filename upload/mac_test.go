package upload

import (
	"bytes"
	"context"
	"testing"

	"github.com/cloudmega/megasdk/cryptoprim"
)

// TestRunMACWorkerOrdersOutOfOrderArrivals feeds jobs in reverse order and
// checks the worker still folds them correctly by index, matching
// spec.md §4.6's "MAC concurrency" requirement.
func TestRunMACWorkerOrdersOutOfOrderArrivals(t *testing.T) {
	key := bytes.Repeat([]byte{0x01}, 16)
	nonce := bytes.Repeat([]byte{0x02}, 8)
	chunks := [][]byte{
		bytes.Repeat([]byte{0xAA}, 16),
		bytes.Repeat([]byte{0xBB}, 32),
		bytes.Repeat([]byte{0xCC}, 8),
	}

	jobs := make(chan macJob, len(chunks))
	// Feed in reverse order.
	for i := len(chunks) - 1; i >= 0; i-- {
		jobs <- macJob{index: i, plaintext: chunks[i]}
	}

	macs, err := runMACWorker(context.Background(), jobs, key, nonce, len(chunks))
	if err != nil {
		t.Fatal(err)
	}

	iv := macIV(nonce)
	for i, pt := range chunks {
		want, err := cryptoprim.CBCMAC(key, iv, pt)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(macs[i], want) {
			t.Errorf("macs[%d] = %x, want %x", i, macs[i], want)
		}
	}
}

func TestRunMACWorkerCancelsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	jobs := make(chan macJob)
	if _, err := runMACWorker(ctx, jobs, bytes.Repeat([]byte{1}, 16), bytes.Repeat([]byte{2}, 8), 3); err == nil {
		t.Error("expected an error when the context is already canceled")
	}
}
