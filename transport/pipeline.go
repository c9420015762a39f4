// Package transport implements MEGA's command pipeline (spec.md §4.4): a
// batching request queue addressed to the /cs endpoint, sequence-id
// management, hashcash challenge resolution, and the retry/backoff policy
// around MEGA's error code set.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cloudmega/megasdk"
)

// slot is one queued request awaiting a positional result from the next
// batch dispatch (spec.md's RequestEnvelope).
type slot struct {
	body   any
	result chan slotResult
}

type slotResult struct {
	raw json.RawMessage
	err error
}

// Pipeline owns the request queue, the 350ms batch timer, sequence-id
// counter, and session id used to address /cs. One Pipeline serves one
// logical session; it is safe for concurrent use by multiple goroutines
// submitting commands.
type Pipeline struct {
	cfg    mega.Config
	client *http.Client
	logger *log.Logger

	seq int64 // atomic, monotonic per-client id

	mu      sync.Mutex
	sid     string
	queue   []*slot
	timer   *time.Timer
	dialing bool

	sendMu sync.Mutex // serializes actual HTTP dispatch (invariant 7)
}

// New builds a Pipeline against cfg.Transport.Gateway. logger may be nil,
// in which case diagnostics are discarded.
func New(cfg mega.Config, logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Pipeline{
		cfg:    cfg,
		logger: logger,
		client: cfg.NewHTTPClient(),
	}
}

// SetSessionID updates the sid query parameter future requests carry. Safe
// to call concurrently with in-flight Send calls; it takes effect on the
// next HTTP dispatch.
func (p *Pipeline) SetSessionID(sid string) {
	p.mu.Lock()
	p.sid = sid
	p.mu.Unlock()
}

// Send enqueues body for the next batch and blocks until its positional
// result arrives (or ctx is done). This is the default path every regular
// command command takes.
func (p *Pipeline) Send(ctx context.Context, body any) (json.RawMessage, error) {
	s := &slot{body: body, result: make(chan slotResult, 1)}

	p.mu.Lock()
	p.queue = append(p.queue, s)
	full := len(p.queue) >= mega.BatchMaxEntries
	if full {
		batch := p.drainLocked()
		p.mu.Unlock()
		go p.dispatch(batch)
	} else {
		if p.timer == nil {
			p.timer = time.AfterFunc(mega.BatchWindow, p.onTimerFire)
		}
		p.mu.Unlock()
	}

	select {
	case r := <-s.result:
		return r.raw, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SendImmediate bypasses the queue and issues body directly, as spec.md
// §4.4 requires for login-family requests and hashcash solution
// resubmission.
func (p *Pipeline) SendImmediate(ctx context.Context, body any) (json.RawMessage, error) {
	raws, code, err := p.doHTTP(ctx, []any{body})
	if err != nil {
		return nil, err
	}
	if code != 0 {
		return nil, codeError("transport.SendImmediate", code)
	}
	if len(raws) == 0 {
		return nil, mega.E("transport.SendImmediate", mega.KindProtocol, fmt.Errorf("empty response"))
	}
	return raws[0], nil
}

func (p *Pipeline) drainLocked() []*slot {
	batch := p.queue
	p.queue = nil
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	return batch
}

func (p *Pipeline) onTimerFire() {
	p.mu.Lock()
	p.timer = nil
	batch := p.drainLocked()
	p.mu.Unlock()
	if len(batch) == 0 {
		return
	}
	p.dispatch(batch)
}

// dispatch drives one batch through the retry policy and completes every
// slot positionally. At most one dispatch runs at a time (sendMu) so the
// next batch never overlaps the one being parsed (spec.md invariant 7).
func (p *Pipeline) dispatch(batch []*slot) {
	p.sendMu.Lock()
	defer p.sendMu.Unlock()

	bodies := make([]any, len(batch))
	for i, s := range batch {
		bodies[i] = s.body
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.Timeouts.Total)
	defer cancel()

	raws, err := p.sendWithRetry(ctx, bodies)
	if err != nil {
		for _, s := range batch {
			s.result <- slotResult{err: err}
		}
		return
	}
	for i, s := range batch {
		if i < len(raws) {
			s.result <- slotResult{raw: raws[i]}
		} else {
			s.result <- slotResult{err: mega.E("transport.dispatch", mega.KindProtocol, fmt.Errorf("missing result for slot %d of %d", i, len(batch)))}
		}
	}
}

// sendWithRetry implements spec.md §4.4's batch-wide retry policy:
// exponential backoff capped at max_delay, jittered, with up to max_retries
// retries after the first attempt, for transient batch-wide negative codes
// and network errors.
func (p *Pipeline) sendWithRetry(ctx context.Context, bodies []any) ([]json.RawMessage, error) {
	var lastErr error
	for attempt := 0; attempt <= p.cfg.Retry.MaxRetries; attempt++ {
		raws, code, err := p.doHTTP(ctx, bodies)
		if err != nil {
			lastErr = mega.E("transport.Send", mega.KindTransient, err)
			if attempt < p.cfg.Retry.MaxRetries {
				p.backoffSleep(ctx, attempt)
				continue
			}
			return nil, lastErr
		}
		if code != 0 {
			if retryable(code) && attempt < p.cfg.Retry.MaxRetries {
				lastErr = codeError("transport.Send", code)
				p.backoffSleep(ctx, attempt)
				continue
			}
			return nil, codeError("transport.Send", code)
		}
		return raws, nil
	}
	return nil, lastErr
}

func (p *Pipeline) backoffSleep(ctx context.Context, attempt int) {
	delay := float64(p.cfg.Retry.BaseDelay) * math.Pow(p.cfg.Retry.ExponentialBase, float64(attempt))
	if d := time.Duration(delay); d > p.cfg.Retry.MaxDelay {
		delay = float64(p.cfg.Retry.MaxDelay)
	}
	jitter := delay * (0.5 + rand.Float64()*0.5)
	timer := time.NewTimer(time.Duration(jitter))
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// hashcashResponse is the shape MEGA's login-family endpoints use to carry
// a proof-of-work challenge in place of (or alongside) the ordinary result
// array (spec.md §4.4, §8 S5).
type hashcashResponse struct {
	Challenge string `json:"hashcash"`
}

// doHTTP issues one HTTP round trip for bodies, resolving any hashcash
// challenge transparently. It returns either the positional result array
// and a zero code, or a nil slice and a nonzero batch-wide code.
func (p *Pipeline) doHTTP(ctx context.Context, bodies []any) ([]json.RawMessage, int, error) {
	raw, status, err := p.post(ctx, bodies, "")
	if err != nil {
		return nil, 0, err
	}

	if challenge, ok := extractHashcash(raw); ok {
		prefix, err := SolveHashcash(challenge)
		if err != nil {
			return nil, 0, mega.E("transport.doHTTP", mega.KindProtocol, fmt.Errorf("solve hashcash: %w", err))
		}
		token := BuildSolutionToken(challenge, prefix)
		raw, status, err = p.post(ctx, bodies, token)
		if err != nil {
			return nil, 0, err
		}
	}
	_ = status

	var code int
	if err := json.Unmarshal(raw, &code); err == nil {
		return nil, code, nil
	}

	var results []json.RawMessage
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, 0, mega.E("transport.doHTTP", mega.KindProtocol, fmt.Errorf("decode response: %w", err))
	}
	return results, 0, nil
}

// extractHashcash checks whether raw is an object carrying a hashcash
// challenge rather than the ordinary array/integer response shape.
func extractHashcash(raw json.RawMessage) (string, bool) {
	var hc hashcashResponse
	if err := json.Unmarshal(raw, &hc); err != nil {
		return "", false
	}
	if hc.Challenge == "" {
		return "", false
	}
	return hc.Challenge, true
}

// post issues a single POST to {gateway}/cs?id={seq}&sid={sid}, optionally
// carrying a resolved hashcash token in the X-Hashcash header MEGA expects
// on resubmission.
func (p *Pipeline) post(ctx context.Context, bodies []any, hashcashToken string) (json.RawMessage, int, error) {
	payload, err := json.Marshal(bodies)
	if err != nil {
		return nil, 0, mega.E("transport.post", mega.KindArgument, err)
	}

	p.mu.Lock()
	sid := p.sid
	p.mu.Unlock()
	id := atomic.AddInt64(&p.seq, 1)

	u, err := url.Parse(p.cfg.Transport.Gateway)
	if err != nil {
		return nil, 0, mega.E("transport.post", mega.KindArgument, err)
	}
	u.Path = joinPath(u.Path, "cs")
	q := u.Query()
	q.Set("id", strconv.FormatInt(id, 10))
	if sid != "" {
		q.Set("sid", sid)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(payload))
	if err != nil {
		return nil, 0, mega.E("transport.post", mega.KindArgument, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.Transport.UserAgent != "" {
		req.Header.Set("User-Agent", p.cfg.Transport.UserAgent)
	}
	for k, v := range p.cfg.Transport.ExtraHeaders {
		req.Header.Set(k, v)
	}
	if hashcashToken != "" {
		req.Header.Set("X-Hashcash", hashcashToken)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	p.logger.Printf("transport: POST %s -> %d (%d bytes)", u.Path, resp.StatusCode, len(body))
	return json.RawMessage(body), resp.StatusCode, nil
}

func joinPath(base, elem string) string {
	if len(base) > 0 && base[len(base)-1] == '/' {
		return base + elem
	}
	return base + "/" + elem
}
