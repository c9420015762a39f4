package tree

import (
	"encoding/json"
	"log"

	"github.com/cloudmega/megasdk"
	"github.com/cloudmega/megasdk/attr"
	"github.com/cloudmega/megasdk/keys"
)

// WireNode is one element of the "f" response's node array (spec.md §6).
type WireNode struct {
	Handle       string `json:"h"`
	ParentHandle string `json:"p"`
	Type         int    `json:"t"`
	Owner        string `json:"u"`
	Timestamp    int64  `json:"ts"`
	Size         int64  `json:"s"`
	RawKey       string `json:"k"`
	AttrBlob     string `json:"a"`
	FAString     string `json:"fa"`
}

// FetchResponse is the decoded shape of an "f" command response: node
// records plus the share-key fields C3's Resolver.Intake consumes.
type FetchResponse struct {
	Nodes []WireNode           `json:"f"`
	OK    []keys.ShareKeyEntry `json:"ok"`
	OK0   json.RawMessage      `json:"ok0"`
}

// Builder runs the two-pass construction spec.md §4.5 describes: resolve
// every node's key/attributes independently, then link parent/child
// edges, deferring nodes whose parent has not appeared yet.
type Builder struct {
	resolver *keys.Resolver
	logger   *log.Logger
}

// NewBuilder creates a Builder that resolves node keys through resolver.
// logger may be nil (diagnostics discarded).
func NewBuilder(resolver *keys.Resolver, logger *log.Logger) *Builder {
	return &Builder{resolver: resolver, logger: logger}
}

func (b *Builder) logf(format string, args ...any) {
	if b.logger != nil {
		b.logger.Printf(format, args...)
	}
}

// Build consumes one FetchResponse and produces a Tree. Share keys are
// intaken first (so pass 1 can resolve shared nodes), then every node is
// resolved and indexed, then parent/child edges are linked with orphan
// deferral (spec.md invariant 1).
func (b *Builder) Build(resp FetchResponse) (*Tree, error) {
	if err := b.resolver.Intake(resp.OK, resp.OK0); err != nil {
		return nil, mega.E("tree.Build", mega.KindProtocol, err)
	}

	t := newTree()

	// Pass 1: resolve key + attributes independently per node.
	for _, w := range resp.Nodes {
		kind, ok := kindFromWire(w.Type)
		if !ok {
			b.logf("tree: node %s has unknown type %d, skipping", w.Handle, w.Type)
			continue
		}

		n := &Node{
			Handle:       w.Handle,
			ParentHandle: w.ParentHandle,
			Kind:         kind,
			Owner:        w.Owner,
			Timestamp:    w.Timestamp,
			Size:         w.Size,
			RawKey:       w.RawKey,
			AttrBlob:     w.AttrBlob,
			FAString:     w.FAString,
		}

		b.resolveNode(n)
		t.index[n.Handle] = n

		switch kind {
		case KindRoot:
			t.root = n
		case KindInbox:
			t.inbox = n
		case KindRubbish:
			t.rubbish = n
		}
	}

	// Pass 2: link parent/child edges in response order, deferring orphans.
	pending := make(map[string][]*Node)
	linked := make(map[string]bool, len(t.index))
	for _, w := range resp.Nodes {
		n, ok := t.index[w.Handle]
		if !ok || linked[n.Handle] {
			continue
		}
		linked[n.Handle] = true
		if n.ParentHandle == "" {
			continue
		}
		if parent, ok := t.index[n.ParentHandle]; ok {
			parent.Children = append(parent.Children, n.Handle)
		} else {
			pending[n.ParentHandle] = append(pending[n.ParentHandle], n)
		}
	}
	// Pass 1 indexed every node, so a child listed before its parent is
	// already linked above; pending holds only nodes whose parent is absent
	// from this response. They are logged and left detached.
	for parentHandle, children := range pending {
		parent, ok := t.index[parentHandle]
		if !ok {
			for _, c := range children {
				b.logf("tree: node %s has no known parent %s, leaving detached", c.Handle, parentHandle)
			}
			continue
		}
		for _, c := range children {
			parent.Children = append(parent.Children, c.Handle)
		}
	}

	return t, nil
}

// resolveNode decrypts n's key and attributes in place. Failure is not
// fatal: the node is kept, marked Decrypted=false, and surfaced with a
// placeholder name (spec.md §7).
func (b *Builder) resolveNode(n *Node) {
	if n.Kind == KindRoot || n.Kind == KindInbox || n.Kind == KindRubbish {
		// Roots carry no "k" field; attributes (if any) are plaintext
		// display names the caller may override.
		n.Decrypted = true
		n.Attributes = attr.New(defaultRootName(n.Kind))
		return
	}

	isFolder := n.Kind == KindFolder
	key, err := b.resolver.Resolve(n.RawKey, isFolder)
	if err != nil {
		b.logf("tree: node %s key unresolved: %v", n.Handle, err)
		return
	}
	n.Key = key

	attrKey := key
	if n.Kind == KindFile {
		aesKey, nonce, metaMAC, err := keys.FileKeyParts(key)
		if err != nil {
			b.logf("tree: node %s file key malformed: %v", n.Handle, err)
			return
		}
		n.FileKey = &FileKey{AESKey: aesKey, Nonce: nonce, MetaMAC: metaMAC}
		attrKey = aesKey
	}

	if n.AttrBlob == "" {
		n.Decrypted = true
		n.Attributes = attr.New("")
		return
	}

	attrs, err := attr.Decode(attrKey, n.AttrBlob)
	if err != nil {
		b.logf("tree: node %s attributes undecryptable: %v", n.Handle, err)
		return
	}
	n.Attributes = attrs
	n.Decrypted = true
}

func defaultRootName(k Kind) string {
	switch k {
	case KindRoot:
		return "Cloud Drive"
	case KindInbox:
		return "Inbox"
	case KindRubbish:
		return "Rubbish Bin"
	default:
		return ""
	}
}
