package importer

import (
	"context"
	"crypto/rand"
	"fmt"

	"github.com/cloudmega/megasdk"
	"github.com/cloudmega/megasdk/attr"
	"github.com/cloudmega/megasdk/cryptoprim"
	"github.com/cloudmega/megasdk/transport"
	"github.com/cloudmega/megasdk/tree"
)

// strippedAttrFields are removed from every copied node's attributes
// before re-encryption: label and favorite are per-account annotations
// that shouldn't follow a copy, s4/sen are share-specific, and rr is
// always dropped regardless of caller intent (spec.md §4.8 step 3).
var strippedAttrFields = []string{"lbl", "fav", "s4", "sen", "rr"}

// Importer copies a subtree of an already-built Tree into a new parent
// folder via a single "p" command.
type Importer struct {
	pipeline  *transport.Pipeline
	tree      *tree.Tree
	masterKey []byte
}

// New creates an Importer. masterKey wraps every copied node's key, same
// as the upload engine's finalization step.
func New(pipeline *transport.Pipeline, t *tree.Tree, masterKey []byte) *Importer {
	return &Importer{pipeline: pipeline, tree: t, masterKey: masterKey}
}

// Result reports how source handles map onto the handles the server
// assigned their copies.
type Result struct {
	HandleMap map[string]string
}

// Import copies the subtree rooted at root into targetParent. root may
// be a single file or a folder; folders are copied recursively.
func (im *Importer) Import(ctx context.Context, root *tree.Node, targetParent string) (*Result, error) {
	if root == nil {
		return nil, mega.E("importer.Import", mega.KindArgument, fmt.Errorf("importer: nil root"))
	}

	nodes := collectPreOrder(im.tree, root)
	putNodes := make([]putNode, 0, len(nodes))
	for _, n := range nodes {
		pn, err := im.buildPutNode(n, root)
		if err != nil {
			return nil, err
		}
		putNodes = append(putNodes, pn)
	}

	cmd := putCommand{Action: "p", Target: targetParent, Nodes: putNodes}
	raw, err := im.pipeline.Send(ctx, cmd)
	if err != nil {
		return nil, err
	}
	return parseImportResponse(raw, nodes)
}

// collectPreOrder walks root and its descendants pre-order: the node
// itself, then each child's own pre-order subtree, in first-seen child
// order (spec.md §4.8 step 1).
func collectPreOrder(t *tree.Tree, root *tree.Node) []*tree.Node {
	var out []*tree.Node
	var walk func(n *tree.Node)
	walk = func(n *tree.Node) {
		out = append(out, n)
		if !n.IsFolderish() {
			return
		}
		for _, c := range t.Children(n) {
			walk(c)
		}
	}
	walk(root)
	return out
}

// buildPutNode re-keys and re-encrypts one source node: folders get a
// fresh random 16-byte key, files retain their existing compkey
// (spec.md §4.8 step 2); attributes are stripped and re-encrypted under
// whichever key now applies (step 3), then the key itself is wrapped
// under the importer's master key (step 4).
func (im *Importer) buildPutNode(n *tree.Node, root *tree.Node) (putNode, error) {
	if !n.Decrypted {
		return putNode{}, mega.E("importer.Import", mega.KindCrypto, fmt.Errorf("importer: node %s has no decrypted key, cannot import", n.Handle))
	}

	var attrKey, wrapKey []byte
	switch n.Kind {
	case tree.KindFolder:
		newKey := make([]byte, 16)
		if _, err := rand.Read(newKey); err != nil {
			return putNode{}, mega.E("importer.Import", mega.KindCrypto, fmt.Errorf("generate folder key: %w", err))
		}
		attrKey = newKey
		wrapKey = newKey
	case tree.KindFile:
		if n.FileKey == nil {
			return putNode{}, mega.E("importer.Import", mega.KindCrypto, fmt.Errorf("importer: file node %s has no resolved file key", n.Handle))
		}
		attrKey = n.FileKey.AESKey
		wrapKey = n.Key
	default:
		return putNode{}, mega.E("importer.Import", mega.KindArgument, fmt.Errorf("importer: cannot import node kind %s", n.Kind))
	}

	attrs := n.Attributes.Clone()
	for _, f := range strippedAttrFields {
		delete(attrs, f)
	}

	encAttrs, err := attr.Encode(attrKey, attrs)
	if err != nil {
		return putNode{}, mega.E("importer.Import", mega.KindCrypto, fmt.Errorf("re-encrypt attributes for %s: %w", n.Handle, err))
	}
	wrapped, err := cryptoprim.ECBEncryptRun(im.masterKey, wrapKey)
	if err != nil {
		return putNode{}, mega.E("importer.Import", mega.KindCrypto, fmt.Errorf("wrap key for %s: %w", n.Handle, err))
	}

	pn := putNode{
		Handle: n.Handle,
		Type:   kindToWire(n.Kind),
		Attr:   encAttrs,
		Key:    cryptoprim.Base64URLEncode(wrapped),
	}
	if n.Handle != root.Handle {
		pn.Parent = n.ParentHandle
	}
	return pn, nil
}
