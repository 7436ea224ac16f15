package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRun_UsageError(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := run([]string{"-no-such-flag"}, &out, &errOut); code != 2 {
		t.Fatalf("code %d, want 2", code)
	}
}

func TestRun_ListBackends(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := run([]string{"-list-backends"}, &out, &errOut); code != 0 {
		t.Fatalf("code %d: %s", code, errOut.String())
	}
	if !strings.Contains(out.String(), "leveldb\t") || strings.Contains(out.String(), "grpc\t") {
		t.Fatalf("unexpected backend list:\n%s", out.String())
	}
}

func TestRun_NotRegisteredExits1(t *testing.T) {
	dir := t.TempDir()
	peers := filepath.Join(dir, "peers.yaml")
	if err := os.WriteFile(peers, []byte("netuid: 1\npeers: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	var out, errOut bytes.Buffer
	code := run([]string{
		"-key-file", filepath.Join(dir, "id.key"),
		"-directory", peers,
		"-log-level", "error",
	}, &out, &errOut)
	if code != 1 {
		t.Fatalf("code %d, want 1", code)
	}
	if !strings.Contains(errOut.String(), "not registered") {
		t.Fatalf("stderr: %s", errOut.String())
	}
}
