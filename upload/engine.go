package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cloudmega/megasdk"
	"github.com/cloudmega/megasdk/attr"
	"github.com/cloudmega/megasdk/cryptoprim"
	"github.com/cloudmega/megasdk/transport"
)

// Source is the read side of an upload: a sized, randomly-addressable
// byte range. *os.File satisfies this directly.
type Source interface {
	io.ReaderAt
	Size() int64
}

// Request describes the node an upload should create.
type Request struct {
	ParentHandle  string
	Name          string
	ModTime       uint64 // seconds since epoch
	ReplaceHandle string // non-empty sets "ov" (spec.md §4.6 versioning)
	Fingerprint   string
	Label         int
	HasLabel      bool
	Favorite      bool
	Extra         map[string]any
	FAString      string // pre-uploaded thumbnail/preview/media-attr references
	Progress      func(Progress)
}

// Result is what a successful upload produced.
type Result struct {
	Handle     string
	WrappedKey string
}

// Engine drives MEGA's upload protocol: request an upload URL, encrypt
// and PUT chunks in parallel (bounded by cfg.Upload.MaxConcurrentUploads),
// accumulate the meta-MAC in chunk-index order, then finalize with a "p"
// command (spec.md §4.6).
type Engine struct {
	pipeline *transport.Pipeline
	client   *http.Client
	cfg      mega.Config
	logger   *log.Logger
}

// NewEngine builds an Engine. logger may be nil.
func NewEngine(pipeline *transport.Pipeline, cfg mega.Config, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Engine{
		pipeline: pipeline,
		cfg:      cfg,
		logger:   logger,
		client:   cfg.NewHTTPClient(),
	}
}

// Upload encrypts and uploads src under masterKey, creating a node named
// req.Name inside req.ParentHandle.
func (e *Engine) Upload(ctx context.Context, masterKey []byte, src Source, req Request) (*Result, error) {
	size := src.Size()
	plan := PlanChunks(size)
	if len(plan) == 0 {
		return nil, mega.E("upload.Upload", mega.KindArgument, fmt.Errorf("upload: empty source"))
	}

	km, err := newKeyMaterial()
	if err != nil {
		return nil, mega.E("upload.Upload", mega.KindCrypto, err)
	}

	uploadURLRaw, err := e.pipeline.Send(ctx, map[string]any{"a": "u", "s": size})
	if err != nil {
		return nil, err
	}
	uploadURL, err := parseUploadURL(uploadURLRaw)
	if err != nil {
		return nil, err
	}

	macs, completionToken, err := e.runChunkPipeline(ctx, uploadURL, src, plan, km, req.Progress)
	if err != nil {
		return nil, err
	}

	metaMAC, err := cryptoprim.MetaMACFold(km.AESKey, macs)
	if err != nil {
		return nil, mega.E("upload.Upload", mega.KindCrypto, err)
	}

	wrappedKey, err := wrapNodeKey(masterKey, km, metaMAC)
	if err != nil {
		return nil, mega.E("upload.Upload", mega.KindCrypto, err)
	}

	attrs := attr.New(req.Name)
	attrs.SetMTime(req.ModTime)
	if req.HasLabel {
		attrs["lbl"] = req.Label
	}
	if req.Favorite {
		attrs["fav"] = 1
	}
	if req.Fingerprint != "" {
		attrs.SetFingerprint(req.Fingerprint)
	}
	if req.Extra != nil {
		attrs["e"] = req.Extra
	}

	encAttrs, err := attr.Encode(km.AESKey, attrs)
	if err != nil {
		return nil, mega.E("upload.Upload", mega.KindCrypto, err)
	}

	cmd := buildPutCommand(req.ParentHandle, completionToken, encAttrs, wrappedKey, req.FAString, req.ReplaceHandle)
	putRaw, err := e.pipeline.Send(ctx, cmd)
	if err != nil {
		return nil, err
	}
	handle, err := parsePutResponse(putRaw)
	if err != nil {
		return nil, err
	}

	return &Result{Handle: handle, WrappedKey: wrappedKey}, nil
}

// runChunkPipeline drives the parallel encrypt+PUT workers and the
// ordered MAC worker described in spec.md §4.6, returning the chunk MACs
// in index order and the final chunk's completion token.
func (e *Engine) runChunkPipeline(ctx context.Context, uploadURL string, src Source, plan []Chunk, km keyMaterial, progress func(Progress)) ([][]byte, string, error) {
	concurrency := e.cfg.Upload.MaxConcurrentUploads
	if concurrency <= 0 {
		concurrency = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, concurrency)
	jobs := make(chan macJob, len(plan))

	var tokenMu sync.Mutex
	var progressMu sync.Mutex
	var completionToken string
	var uploadedBytes int64
	var uploadedChunks int64
	total := int64(0)
	for _, c := range plan {
		total += c.Length
	}

	for i, ch := range plan {
		i, ch := i, ch
		isFinal := i == len(plan)-1
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-gctx.Done():
				return gctx.Err()
			}
			defer func() { <-sem }()

			buf := make([]byte, ch.Length)
			if _, err := src.ReadAt(buf, ch.Offset); err != nil && err != io.EOF {
				return mega.E("upload.runChunkPipeline", mega.KindArgument, fmt.Errorf("read chunk %d: %w", i, err))
			}

			ciphertext, err := cryptoprim.CTRXCrypt(km.AESKey, km.Nonce, ch.Offset, buf)
			if err != nil {
				return mega.E("upload.runChunkPipeline", mega.KindCrypto, err)
			}

			token, err := e.putChunkWithRetry(gctx, uploadURL, ch.Offset, ciphertext)
			if err != nil {
				return err
			}
			if isFinal {
				tokenMu.Lock()
				completionToken = token
				tokenMu.Unlock()
			}

			select {
			case jobs <- macJob{index: i, plaintext: buf}:
			case <-gctx.Done():
				return gctx.Err()
			}

			if progress != nil {
				progressMu.Lock()
				bytesDone := atomic.AddInt64(&uploadedBytes, ch.Length)
				chunksDone := atomic.AddInt64(&uploadedChunks, 1)
				progress(Progress{
					TotalBytes:     total,
					UploadedBytes:  bytesDone,
					TotalChunks:    len(plan),
					UploadedChunks: int(chunksDone),
				})
				progressMu.Unlock()
			}
			return nil
		})
	}

	macCh := make(chan macResult, 1)
	go func() {
		macs, err := runMACWorker(gctx, jobs, km.AESKey, km.Nonce, len(plan))
		macCh <- macResult{macs: macs, err: err}
	}()

	werr := g.Wait()
	close(jobs)
	mr := <-macCh

	if werr != nil {
		return nil, "", werr
	}
	if mr.err != nil {
		return nil, "", mega.E("upload.runChunkPipeline", mega.KindCrypto, mr.err)
	}
	if completionToken == "" {
		return nil, "", mega.E("upload.runChunkPipeline", mega.KindProtocol, fmt.Errorf("no completion token returned by final chunk PUT"))
	}
	return mr.macs, completionToken, nil
}

type macResult struct {
	macs [][]byte
	err  error
}

// putChunkWithRetry PUTs one encrypted chunk, retrying transient HTTP
// failures with the same backoff shape as transport.Pipeline (spec.md
// §4.6 "Failure policy").
func (e *Engine) putChunkWithRetry(ctx context.Context, uploadURL string, offset int64, ciphertext []byte) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= e.cfg.Retry.MaxRetries; attempt++ {
		token, err := e.putChunk(ctx, uploadURL, offset, ciphertext)
		if err == nil {
			return token, nil
		}
		lastErr = err
		if attempt < e.cfg.Retry.MaxRetries {
			e.backoffSleep(ctx, attempt)
			continue
		}
	}
	return "", mega.E("upload.putChunk", mega.KindTransient, lastErr)
}

func (e *Engine) putChunk(ctx context.Context, uploadURL string, offset int64, ciphertext []byte) (string, error) {
	u := fmt.Sprintf("%s/%d", uploadURL, offset)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(ciphertext))
	if err != nil {
		return "", err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("upload: chunk PUT at offset %d: HTTP %d", offset, resp.StatusCode)
	}
	return string(bytes.TrimSpace(body)), nil
}

func (e *Engine) backoffSleep(ctx context.Context, attempt int) {
	delay := float64(e.cfg.Retry.BaseDelay) * math.Pow(e.cfg.Retry.ExponentialBase, float64(attempt))
	if d := time.Duration(delay); d > e.cfg.Retry.MaxDelay {
		delay = float64(e.cfg.Retry.MaxDelay)
	}
	jitter := delay * (0.5 + rand.Float64()*0.5)
	timer := time.NewTimer(time.Duration(jitter))
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
