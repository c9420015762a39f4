// Package importer implements MEGA's folder import (copy-by-reference):
// a pre-order subtree walk, fresh folder keys with retained file keys,
// attribute re-encryption, and a single "p" command that lets the server
// remap source handles to new ones (spec.md §4.8).
package importer

import (
	"encoding/json"
	"fmt"

	"github.com/cloudmega/megasdk"
	"github.com/cloudmega/megasdk/tree"
)

// putNode is one entry of the "p" command's "n" array. Handle carries the
// node's *source* handle (not a completion token, unlike upload's use of
// the same command) so the server can remap it in the response; Parent
// is the source parent's handle, used to link nodes created within the
// same command, and is omitted for the subtree root, which binds
// directly to the command's top-level "t" target (spec.md §4.8 step 5).
type putNode struct {
	Handle string `json:"h"`
	Type   int    `json:"t"`
	Attr   string `json:"a"`
	Key    string `json:"k"`
	Parent string `json:"p,omitempty"`
}

type putCommand struct {
	Action string    `json:"a"`
	Target string    `json:"t"`
	Nodes  []putNode `json:"n"`
}

func kindToWire(k tree.Kind) int {
	if k == tree.KindFile {
		return 0
	}
	return 1
}

type putResponseEntry struct {
	Handle string `json:"h"`
}

type putResponse struct {
	F []putResponseEntry `json:"f"`
}

// parseImportResponse maps each submitted node's source handle to the
// handle the server assigned its copy, matching response entries to
// submitted nodes positionally.
func parseImportResponse(raw json.RawMessage, nodes []*tree.Node) (*Result, error) {
	var resp putResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, mega.E("importer.Import", mega.KindProtocol, fmt.Errorf("decode p response: %w", err))
	}
	if len(resp.F) != len(nodes) {
		return nil, mega.E("importer.Import", mega.KindProtocol, fmt.Errorf("p response returned %d nodes, want %d", len(resp.F), len(nodes)))
	}

	out := &Result{HandleMap: make(map[string]string, len(nodes))}
	for i, n := range nodes {
		out.HandleMap[n.Handle] = resp.F[i].Handle
	}
	return out, nil
}
