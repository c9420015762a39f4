package upload

import (
	"encoding/json"
	"fmt"

	"github.com/cloudmega/megasdk"
)

// uploadURLResponse is the "u" command's result: a PUT target the chunk
// pipeline addresses by byte offset (spec.md §6).
type uploadURLResponse struct {
	URL string `json:"p"`
}

func parseUploadURL(raw json.RawMessage) (string, error) {
	var resp uploadURLResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", mega.E("upload.requestUploadURL", mega.KindProtocol, fmt.Errorf("decode u response: %w", err))
	}
	if resp.URL == "" {
		return "", mega.E("upload.requestUploadURL", mega.KindProtocol, fmt.Errorf("u response carried no upload url"))
	}
	return resp.URL, nil
}

// putNode is one element of a "p" command's "n" array (spec.md §4.6 step
// 4): the completion token MEGA handed back from the final chunk PUT
// stands in for the handle until the response assigns the real one.
type putNode struct {
	Handle string `json:"h"`
	Type   int    `json:"t"`
	Attr   string `json:"a"`
	Key    string `json:"k"`
	FA     string `json:"fa,omitempty"`
	OV     string `json:"ov,omitempty"`
}

type putCommand struct {
	Action string    `json:"a"`
	Target string    `json:"t"`
	Nodes  []putNode `json:"n"`
}

func buildPutCommand(parentHandle, completionToken, encAttrs, wrappedKey, faString, replaceHandle string) putCommand {
	return putCommand{
		Action: "p",
		Target: parentHandle,
		Nodes: []putNode{{
			Handle: completionToken,
			Type:   0,
			Attr:   encAttrs,
			Key:    wrappedKey,
			FA:     faString,
			OV:     replaceHandle,
		}},
	}
}

// putResponse is the shape of a successful "p" command response: the
// server's node-list echo, from which the newly assigned handle is read.
type putResponse struct {
	F []struct {
		Handle string `json:"h"`
	} `json:"f"`
}

func parsePutResponse(raw json.RawMessage) (string, error) {
	var resp putResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", mega.E("upload.Upload", mega.KindProtocol, fmt.Errorf("decode p response: %w", err))
	}
	if len(resp.F) == 0 || resp.F[0].Handle == "" {
		return "", mega.E("upload.Upload", mega.KindProtocol, fmt.Errorf("p response carried no node handle"))
	}
	return resp.F[0].Handle, nil
}
