package version

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestWritePretty(t *testing.T) {
	var buf bytes.Buffer
	WritePretty(&buf, Info{Version: "1.2.3", GitCommit: "abc123"}, false)
	want := "ferment 1.2.3\ncommit: abc123\n"
	if buf.String() != want {
		t.Fatalf("got %q want %q", buf.String(), want)
	}
}

func TestWriteJSONOmitsEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, Info{Version: "1.2.3"}); err != nil {
		t.Fatal(err)
	}
	var got map[string]string
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got["version"] != "1.2.3" {
		t.Fatalf("unexpected json: %v", got)
	}
}

func TestCurrentReflectsOverrides(t *testing.T) {
	orig := Version
	t.Cleanup(func() { Version = orig })
	Version = "9.9.9"
	if Current().Version != "9.9.9" {
		t.Fatalf("Current() = %+v", Current())
	}
}
