package fskv

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"xdao.co/storagenet/storage"
	"xdao.co/storagenet/storage/testkit"
)

func TestFS_Conformance(t *testing.T) {
	testkit.RunKVConformance(t, func(t *testing.T) storage.KV {
		t.Helper()
		kv, err := New(t.TempDir())
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		return kv
	})
}

func TestFS_OverwriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	kv, err := New(dir)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	for _, v := range []string{"one", "two", "three"} {
		if err := kv.Put([]byte("42"), []byte(v)); err != nil {
			t.Fatalf("Put(%s) failed: %v", v, err)
		}
	}

	var files []string
	err = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected exactly one file, got %v", files)
	}
	if files[0] != kv.pathFor([]byte("42")) {
		t.Fatalf("unexpected file %s", files[0])
	}
}

func TestFS_CorruptionIsVisible(t *testing.T) {
	kv, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := kv.Put([]byte("42"), []byte("hello")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// Corrupt the stored object out-of-band; the store does not hide it.
	if err := os.WriteFile(kv.pathFor([]byte("42")), []byte("hellp"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	got, err := kv.Get([]byte("42"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != "hellp" {
		t.Fatalf("got %q", got)
	}
}

func TestFS_LongKeys(t *testing.T) {
	kv, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	long := bytes.Repeat([]byte("k"), 4096)
	other := append(bytes.Repeat([]byte("k"), 4095), 'j')
	if err := kv.Put(long, []byte("one")); err != nil {
		t.Fatalf("Put(long) failed: %v", err)
	}
	if err := kv.Put(other, []byte("two")); err != nil {
		t.Fatalf("Put(other) failed: %v", err)
	}
	if got, err := kv.Get(long); err != nil || string(got) != "one" {
		t.Fatalf("Get(long) = %q, %v", got, err)
	}
	if got, err := kv.Get(other); err != nil || string(got) != "two" {
		t.Fatalf("Get(other) = %q, %v", got, err)
	}
	if base := filepath.Base(kv.pathFor(long)); len(base) > 255 {
		t.Fatalf("file name too long: %d bytes", len(base))
	}

	edge := bytes.Repeat([]byte{0xab}, MaxInlineKey)
	if err := kv.Put(edge, []byte("edge")); err != nil {
		t.Fatalf("Put(edge) failed: %v", err)
	}
	if !kv.Has(edge) {
		t.Fatalf("Has(edge) = false")
	}
}
