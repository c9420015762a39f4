// Package download implements MEGA's chunked download engine: a "g"
// command to obtain a transient URL, then sequential AES-CTR decryption
// with CBC-MAC accumulation verified against the file's stored meta-MAC
// (spec.md §4.7).
package download

import (
	"encoding/json"
	"fmt"

	"github.com/cloudmega/megasdk"
)

// getResponse is the "g" command's result (spec.md §6).
type getResponse struct {
	URL  string `json:"g"`
	Size int64  `json:"s"`
	At   string `json:"at"`
}

func parseGetResponse(raw json.RawMessage) (getResponse, error) {
	var resp getResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return getResponse{}, mega.E("download.Download", mega.KindProtocol, fmt.Errorf("decode g response: %w", err))
	}
	if resp.URL == "" {
		return getResponse{}, mega.E("download.Download", mega.KindProtocol, fmt.Errorf("g response carried no download url"))
	}
	return resp, nil
}
