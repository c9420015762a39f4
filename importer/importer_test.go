package importer_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cloudmega/megasdk"
	"github.com/cloudmega/megasdk/attr"
	"github.com/cloudmega/megasdk/cryptoprim"
	"github.com/cloudmega/megasdk/importer"
	"github.com/cloudmega/megasdk/keys"
	"github.com/cloudmega/megasdk/transport"
	"github.com/cloudmega/megasdk/tree"
)

const testUser = "u1"

func encryptRawK(t *testing.T, id string, encKey, plainKey []byte) string {
	t.Helper()
	enc, err := cryptoprim.ECBEncryptRun(encKey, plainKey)
	if err != nil {
		t.Fatal(err)
	}
	return fmt.Sprintf("%s:%s", id, cryptoprim.Base64URLEncode(enc))
}

func encryptAttrBlob(t *testing.T, key []byte, name string, extra map[string]any) string {
	t.Helper()
	a := attr.New(name)
	for k, v := range extra {
		a[k] = v
	}
	blob, err := attr.Encode(key, a)
	if err != nil {
		t.Fatal(err)
	}
	return blob
}

func fileKeyHalves(compkey []byte) []byte {
	out := make([]byte, 16)
	for i := range out {
		out[i] = compkey[i] ^ compkey[i+16]
	}
	return out
}

// buildSampleTree constructs ROOT -> FOLDER1 (lbl=2, fav=1) -> FILE1, all
// decryptable under masterKey, mirroring tree's own fixture style.
func buildSampleTree(t *testing.T, masterKey, folderKey, fileCompKey []byte) *tree.Tree {
	t.Helper()
	resp := tree.FetchResponse{
		Nodes: []tree.WireNode{
			{Handle: "ROOT", Type: 2},
			{
				Handle: "FOLDER1", ParentHandle: "ROOT", Type: 1,
				RawKey:   encryptRawK(t, testUser, masterKey, folderKey),
				AttrBlob: encryptAttrBlob(t, folderKey, "Documents", map[string]any{"lbl": 2, "fav": 1}),
			},
			{
				Handle: "FILE1", ParentHandle: "FOLDER1", Type: 0,
				RawKey:   encryptRawK(t, testUser, masterKey, fileCompKey),
				AttrBlob: encryptAttrBlob(t, fileKeyHalves(fileCompKey), "report.txt", map[string]any{"lbl": 3, "rr": "SOMEHANDLE"}),
			},
		},
	}
	b := tree.NewBuilder(keys.NewResolver(masterKey, testUser), nil)
	tr, err := b.Build(resp)
	if err != nil {
		t.Fatal(err)
	}
	return tr
}

// TestImportEndToEnd drives Import against a fake /cs server, checking
// the emitted "p" command's shape, the retained file key and fresh folder
// key, and that the file's re-encrypted attributes had lbl/rr stripped
// (spec.md §4.8).
func TestImportEndToEnd(t *testing.T) {
	masterKey := bytes.Repeat([]byte{0x10}, 16)
	folderKey := bytes.Repeat([]byte{0x20}, 16)
	fileCompKey := bytes.Repeat([]byte{0x30}, 32)

	tr := buildSampleTree(t, masterKey, folderKey, fileCompKey)
	folder, ok := tr.ByHandle("FOLDER1")
	if !ok {
		t.Fatal("expected FOLDER1 in tree")
	}

	var capturedCmd map[string]any
	csServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var reqs []map[string]any
		_ = json.NewDecoder(r.Body).Decode(&reqs)
		resp := make([]json.RawMessage, len(reqs))
		for i, req := range reqs {
			if req["a"] == "p" {
				capturedCmd = req
				nodes := req["n"].([]any)
				entries := make([]map[string]string, len(nodes))
				for j := range nodes {
					entries[j] = map[string]string{"h": fmt.Sprintf("NEW%d", j)}
				}
				b, _ := json.Marshal(map[string]any{"f": entries})
				resp[i] = b
				continue
			}
			resp[i] = json.RawMessage(`{}`)
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer csServer.Close()

	cfg := mega.DefaultConfig()
	cfg.Transport.Gateway = csServer.URL
	cfg.Timeouts.Total = 5 * time.Second
	pipeline := transport.New(cfg, nil)

	im := importer.New(pipeline, tr, masterKey)
	result, err := im.Import(context.Background(), folder, "TARGETPARENT")
	if err != nil {
		t.Fatalf("Import: %v", err)
	}

	if len(result.HandleMap) != 2 {
		t.Fatalf("expected 2 mapped handles, got %d", len(result.HandleMap))
	}
	if result.HandleMap["FOLDER1"] != "NEW0" || result.HandleMap["FILE1"] != "NEW1" {
		t.Errorf("unexpected handle map: %+v", result.HandleMap)
	}

	if capturedCmd["t"] != "TARGETPARENT" {
		t.Errorf("command target = %v, want TARGETPARENT", capturedCmd["t"])
	}
	nodes := capturedCmd["n"].([]any)
	if len(nodes) != 2 {
		t.Fatalf("expected 2 emitted nodes, got %d", len(nodes))
	}

	root := nodes[0].(map[string]any)
	if root["h"] != "FOLDER1" {
		t.Errorf("first emitted node h = %v, want FOLDER1 (subtree root)", root["h"])
	}
	if _, hasParent := root["p"]; hasParent {
		t.Error("subtree root should omit its p field")
	}

	child := nodes[1].(map[string]any)
	if child["h"] != "FILE1" || child["p"] != "FOLDER1" {
		t.Errorf("file node = %+v, want h=FILE1 p=FOLDER1", child)
	}

	// The file's key must have been retained, not re-generated: decrypt
	// the emitted "k" under masterKey and compare to the original compkey.
	wrappedKey, err := cryptoprim.Base64URLDecode(child["k"].(string))
	if err != nil {
		t.Fatal(err)
	}
	compkey, err := cryptoprim.ECBDecryptRun(masterKey, wrappedKey)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(compkey, fileCompKey) {
		t.Errorf("file key was re-generated, want retained: got %x, want %x", compkey, fileCompKey)
	}

	// The folder's key must be fresh, not equal to the original.
	folderWrapped, err := cryptoprim.Base64URLDecode(root["k"].(string))
	if err != nil {
		t.Fatal(err)
	}
	newFolderKey, err := cryptoprim.ECBDecryptRun(masterKey, folderWrapped)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(newFolderKey, folderKey) {
		t.Error("expected a fresh folder key, got the original")
	}

	// Decrypt the file's re-encrypted attributes and check lbl/rr were
	// stripped while the name survived.
	attrKey := fileKeyHalves(compkey)
	attrs, err := attr.Decode(attrKey, child["a"].(string))
	if err != nil {
		t.Fatal(err)
	}
	if attrs.Name() != "report.txt" {
		t.Errorf("re-encrypted name = %q, want report.txt", attrs.Name())
	}
	if _, ok := attrs["lbl"]; ok {
		t.Error("expected lbl to be stripped")
	}
	if _, ok := attrs["rr"]; ok {
		t.Error("expected rr to be stripped")
	}
}
