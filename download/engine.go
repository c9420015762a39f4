package download

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/cloudmega/megasdk"
	"github.com/cloudmega/megasdk/cryptoprim"
	"github.com/cloudmega/megasdk/transport"
	"github.com/cloudmega/megasdk/upload"
)

// FileKey holds the decrypted key material a download needs: the same
// three parts tree.FileKey carries (spec.md §3 invariant 3), passed in
// separately so this package has no import-time dependency on tree.
type FileKey struct {
	AESKey  []byte // 16 bytes
	Nonce   []byte // 8 bytes
	MetaMAC []byte // 8 bytes, stored
}

// Request describes one download.
type Request struct {
	Handle   string
	Key      FileKey
	Progress func(Progress)
}

// Progress reports byte/chunk counters as a download proceeds.
type Progress struct {
	TotalBytes       int64
	DownloadedBytes  int64
	TotalChunks      int
	DownloadedChunks int
}

// Engine drives MEGA's download protocol: a "g" command for a transient
// URL, then a single streamed GET whose body is consumed chunk-by-chunk
// using the same progressive chunk boundaries the upload engine used to
// compute the stored meta-MAC (spec.md §4.7). Chunk boundaries must
// match upload's exactly, since the meta-MAC is a fold over per-chunk
// MACs keyed to those same boundaries.
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

// Download fetches req.Handle's content into sink, verifying the
// meta-MAC before returning. On any integrity failure it aborts sink
// (deleting partial output, per spec.md §4.7) and returns a
// mega.KindIntegrity error.
func (e *Engine) Download(ctx context.Context, req Request, sink Sink) error {
	raw, err := e.pipeline.Send(ctx, map[string]any{"a": "g", "g": 1, "n": req.Handle})
	if err != nil {
		return err
	}
	getResp, err := parseGetResponse(raw)
	if err != nil {
		return err
	}

	plan := upload.PlanChunks(getResp.Size)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, getResp.URL, nil)
	if err != nil {
		return mega.E("download.Download", mega.KindTransient, err)
	}
	httpResp, err := e.client.Do(httpReq)
	if err != nil {
		return mega.E("download.Download", mega.KindTransient, err)
	}
	defer httpResp.Body.Close()
	if httpResp.StatusCode != http.StatusOK {
		return mega.E("download.Download", mega.KindTransient, fmt.Errorf("download: GET %s: HTTP %d", getResp.URL, httpResp.StatusCode))
	}

	macs := make([][]byte, len(plan))
	iv := macIV(req.Key.Nonce)
	buf := make([]byte, 0)

	for i, c := range plan {
		if int64(cap(buf)) < c.Length {
			buf = make([]byte, c.Length)
		}
		buf = buf[:c.Length]
		if _, err := io.ReadFull(httpResp.Body, buf); err != nil {
			sink.Abort()
			return mega.E("download.Download", mega.KindTransient, fmt.Errorf("read chunk %d: %w", i, err))
		}

		plaintext, err := cryptoprim.CTRXCrypt(req.Key.AESKey, req.Key.Nonce, c.Offset, buf)
		if err != nil {
			sink.Abort()
			return mega.E("download.Download", mega.KindCrypto, err)
		}
		mac, err := cryptoprim.CBCMAC(req.Key.AESKey, iv, plaintext)
		if err != nil {
			sink.Abort()
			return mega.E("download.Download", mega.KindCrypto, err)
		}
		macs[i] = mac

		if _, err := sink.Write(plaintext); err != nil {
			sink.Abort()
			return mega.E("download.Download", mega.KindTransient, fmt.Errorf("write chunk %d: %w", i, err))
		}

		if req.Progress != nil {
			req.Progress(Progress{
				TotalBytes:       getResp.Size,
				DownloadedBytes:  c.Offset + c.Length,
				TotalChunks:      len(plan),
				DownloadedChunks: i + 1,
			})
		}
	}

	metaMAC, err := cryptoprim.MetaMACFold(req.Key.AESKey, macs)
	if err != nil {
		sink.Abort()
		return mega.E("download.Download", mega.KindCrypto, err)
	}
	if !cryptoprim.ConstantTimeEqual(metaMAC, req.Key.MetaMAC) {
		sink.Abort()
		return mega.E("download.Download", mega.KindIntegrity, fmt.Errorf("meta-MAC mismatch for node %s", req.Handle))
	}

	return sink.Close()
}

// macIV is the CBC-MAC seed for every chunk of one download: nonce||nonce
// (spec.md §3 ChunkMAC), mirroring upload's macIV.
func macIV(nonce []byte) []byte {
	return append(append([]byte{}, nonce...), nonce...)
}
