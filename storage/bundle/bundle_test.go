package bundle_test

import (
	"archive/tar"
	"bytes"
	"errors"
	"testing"
	"time"

	"xdao.co/storagenet/fingerprint"
	"xdao.co/storagenet/storage"
	"xdao.co/storagenet/storage/bundle"
	"xdao.co/storagenet/storage/fskv"
	"xdao.co/storagenet/storage/leveldbkv"
)

func keys(ss ...string) [][]byte {
	out := make([][]byte, len(ss))
	for i, s := range ss {
		out[i] = []byte(s)
	}
	return out
}

func TestBundle_ExportIsDeterministic(t *testing.T) {
	kv, err := fskv.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	_ = kv.Put([]byte("1"), []byte("hello"))
	_ = kv.Put([]byte("2"), []byte("world"))

	var a, b bytes.Buffer
	if _, err := bundle.Export(&a, kv, keys("2", "1"), bundle.ExportOptions{IncludeIndex: true}); err != nil {
		t.Fatal(err)
	}
	if _, err := bundle.Export(&b, kv, keys("1", "2", "1"), bundle.ExportOptions{IncludeIndex: true}); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Fatalf("expected deterministic bundle bytes")
	}
}

func TestBundle_ImportRoundTripAcrossBackends(t *testing.T) {
	src, err := fskv.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	_ = src.Put([]byte("42"), []byte("hello"))
	_ = src.Put([]byte("7"), []byte{})

	var buf bytes.Buffer
	n, err := bundle.Export(&buf, src, keys("42", "7", "missing"), bundle.ExportOptions{IncludeIndex: true, SkipMissing: true})
	if err != nil || n != 2 {
		t.Fatalf("Export: n=%d err=%v", n, err)
	}

	dst, err := leveldbkv.OpenMemory()
	if err != nil {
		t.Fatal(err)
	}
	defer dst.Close()
	n, err = bundle.Import(bytes.NewReader(buf.Bytes()), dst)
	if err != nil || n != 2 {
		t.Fatalf("Import: n=%d err=%v", n, err)
	}
	got, err := dst.Get([]byte("42"))
	if err != nil || string(got) != "hello" {
		t.Fatalf("Get(42) = %q, %v", got, err)
	}
	if !dst.Has([]byte("7")) {
		t.Fatalf("empty value was not imported")
	}
}

func TestBundle_ExportMissingKeyFails(t *testing.T) {
	kv, err := leveldbkv.OpenMemory()
	if err != nil {
		t.Fatal(err)
	}
	defer kv.Close()
	var buf bytes.Buffer
	if _, err := bundle.Export(&buf, kv, keys("nope"), bundle.ExportOptions{}); !storage.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func tarWith(t *testing.T, name string, payload []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	if err := tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(payload)), ModTime: time.Unix(0, 0), Typeflag: tar.TypeReg}); err != nil {
		t.Fatal(err)
	}
	_, _ = tw.Write(payload)
	_ = tw.Close()
	return buf.Bytes()
}

func TestBundle_ImportRejectsTampering(t *testing.T) {
	kv, err := leveldbkv.OpenMemory()
	if err != nil {
		t.Fatal(err)
	}
	defer kv.Close()

	name := "entries/3432/" + fingerprint.Of([]byte("hello")).String()
	_, err = bundle.Import(bytes.NewReader(tarWith(t, name, []byte("hellp"))), kv)
	if !errors.Is(err, bundle.ErrFingerprintMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
	if kv.Has([]byte("42")) {
		t.Fatalf("tampered entry must not be written")
	}

	for _, bad := range []string{"../evil", "entries/zz/" + fingerprint.Of(nil).String(), "other/file"} {
		if _, err := bundle.Import(bytes.NewReader(tarWith(t, bad, []byte("x"))), kv); err == nil {
			t.Fatalf("%s: expected error", bad)
		}
	}

	n, err := bundle.ImportWithOptions(bytes.NewReader(tarWith(t, "other/file", []byte("x"))), kv, bundle.ImportOptions{IgnoreUnknown: true})
	if err != nil || n != 0 {
		t.Fatalf("IgnoreUnknown: n=%d err=%v", n, err)
	}
}
