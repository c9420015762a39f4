package download

import (
	"encoding/json"
	"testing"
)

func TestParseGetResponse(t *testing.T) {
	resp, err := parseGetResponse(json.RawMessage(`{"g":"https://example.test/dl","s":1234,"at":"encattrs"}`))
	if err != nil {
		t.Fatal(err)
	}
	if resp.URL != "https://example.test/dl" || resp.Size != 1234 {
		t.Errorf("unexpected response: %+v", resp)
	}

	if _, err := parseGetResponse(json.RawMessage(`{"s":1234}`)); err == nil {
		t.Error("expected an error for a missing g field")
	}
}
