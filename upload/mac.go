package upload

import (
	"context"
	"fmt"

	"github.com/cloudmega/megasdk/cryptoprim"
)

// macJob is one chunk's plaintext handed to the MAC worker, tagged with
// its position in the plan so the worker can fold chunk MACs back into
// index order even when chunks finish encrypting/uploading out of order
// (spec.md §4.6 "MAC concurrency").
type macJob struct {
	index     int
	plaintext []byte
}

// runMACWorker drains jobs and computes each chunk's CBC-MAC (seeded by
// nonce||nonce) in index order, buffering arrivals that outrun their
// turn in a slot map. It returns once all n chunks have been MACed, or
// the context is canceled.
func runMACWorker(ctx context.Context, jobs <-chan macJob, key, nonce []byte, n int) ([][]byte, error) {
	macs := make([][]byte, n)
	pending := make(map[int][]byte)
	next := 0
	iv := macIV(nonce)

	for next < n {
		select {
		case j, ok := <-jobs:
			if !ok {
				return nil, fmt.Errorf("upload: MAC worker starved: channel closed with %d/%d chunks MACed", next, n)
			}
			pending[j.index] = j.plaintext
			for {
				pt, ok := pending[next]
				if !ok {
					break
				}
				mac, err := cryptoprim.CBCMAC(key, iv, pt)
				if err != nil {
					return nil, err
				}
				macs[next] = mac
				delete(pending, next)
				next++
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return macs, nil
}
