package qr

import (
	"encoding/base64"
	"strings"
	"testing"
)

func TestRender_DataURI(t *testing.T) {
	uri, err := Render("pair-code-123")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	const prefix = "data:image/png;base64,"
	if !strings.HasPrefix(uri, prefix) {
		t.Fatalf("uri prefix = %q", uri[:min(len(uri), 30)])
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, prefix))
	if err != nil {
		t.Fatalf("payload is not valid base64: %v", err)
	}
	// PNG magic bytes.
	if len(raw) < 8 || raw[0] != 0x89 || string(raw[1:4]) != "PNG" {
		t.Error("payload is not a PNG")
	}
}

func TestRender_Empty(t *testing.T) {
	if _, err := Render(""); err == nil {
		t.Fatal("expected error for empty code")
	}
}
