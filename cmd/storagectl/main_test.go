package main

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/libp2p/go-libp2p/core/peer"
	"google.golang.org/grpc"

	"xdao.co/storagenet/fingerprint"
	"xdao.co/storagenet/keys"
	"xdao.co/storagenet/storage/grpckv"
	"xdao.co/storagenet/storage/leveldbkv"
	"xdao.co/storagenet/weights"
)

func runCmd(args ...string) (int, string, string) {
	var out, errOut bytes.Buffer
	code := run(args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestStoreRetrieve_FSBackend(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.txt")
	if err := os.WriteFile(in, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	kvDir := filepath.Join(dir, "kv")

	code, out, errOut := runCmd("store", "--backend", "fs", "--fs-dir", kvDir, "--key", "42", in)
	if code != 0 {
		t.Fatalf("store: code %d: %s", code, errOut)
	}
	if strings.TrimSpace(out) != fingerprint.Of([]byte("hello")).String() {
		t.Fatalf("store printed %q", out)
	}

	code, out, errOut = runCmd("retrieve", "--backend", "fs", "--fs-dir", kvDir, "--key", "42")
	if code != 0 || out != "hello" {
		t.Fatalf("retrieve: code %d out %q err %s", code, out, errOut)
	}

	code, _, _ = runCmd("retrieve", "--backend", "fs", "--fs-dir", kvDir, "--key", "43")
	if code != 1 {
		t.Fatalf("retrieve(missing): code %d", code)
	}
}

func TestUsageErrors(t *testing.T) {
	for _, args := range [][]string{
		nil,
		{"bogus"},
		{"store", "--backend", "fs"},
		{"retrieve"},
		{"fingerprint"},
		{"prove", "--key", "1"},
		{"keygen"},
		{"ledger"},
		{"export", "--keys", "1"},
		{"export", "--keys", "9-3", "--out", "x.tar"},
		{"import"},
	} {
		if code, _, _ := runCmd(args...); code != 2 {
			t.Fatalf("%v: code %d, want 2", args, code)
		}
	}
}

func TestListBackends(t *testing.T) {
	code, out, _ := runCmd("-list-backends")
	if code != 0 {
		t.Fatalf("code %d", code)
	}
	for _, name := range []string{"bolt", "fs", "grpc", "leveldb", "memory", "pebble"} {
		if !strings.Contains(out, name+"\t") {
			t.Fatalf("missing backend %q in:\n%s", name, out)
		}
	}
}

func TestFingerprint(t *testing.T) {
	p := filepath.Join(t.TempDir(), "f")
	if err := os.WriteFile(p, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	code, out, _ := runCmd("fingerprint", p)
	fp := fingerprint.Of([]byte("hello"))
	if code != 0 || out != fp.String()+"\t"+fp.Hex()+"\n" {
		t.Fatalf("code %d out %q", code, out)
	}
}

func TestKeygen(t *testing.T) {
	p := filepath.Join(t.TempDir(), "id.key")
	code, out, errOut := runCmd("keygen", "--key-file", p)
	if code != 0 {
		t.Fatalf("keygen: %s", errOut)
	}
	id, err := keys.LoadIdentity(p)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != id.ID().String() {
		t.Fatalf("printed %q, key file holds %s", out, id.ID())
	}
	if code, _, _ := runCmd("keygen", "--key-file", p); code != 1 {
		t.Fatalf("keygen over existing file: code %d", code)
	}
	if code, _, _ := runCmd("keygen", "--key-file", p, "--force"); code != 0 {
		t.Fatalf("keygen --force: code %d", code)
	}
}

func TestLedger(t *testing.T) {
	dir := t.TempDir()
	id, err := keys.IdentityFromSeed(bytes.Repeat([]byte{9}, 32))
	if err != nil {
		t.Fatal(err)
	}
	l := &weights.FileLedger{Path: filepath.Join(dir, "w.jsonl"), Identity: id}
	if err := l.CommitWeights(context.Background(), 2, []peer.ID{id.ID()}, []float64{1}); err != nil {
		t.Fatal(err)
	}
	code, out, errOut := runCmd("ledger", "--path", l.Path)
	if code != 0 || !strings.Contains(out, "round=2") || !strings.Contains(out, " ok ") {
		t.Fatalf("code %d out %q err %s", code, out, errOut)
	}

	b, _ := os.ReadFile(l.Path)
	tampered := bytes.Replace(b, []byte(`"round":2`), []byte(`"round":3`), 1)
	if err := os.WriteFile(l.Path, tampered, 0o644); err != nil {
		t.Fatal(err)
	}
	code, out, _ = runCmd("ledger", "--path", l.Path)
	if code != 1 || !strings.Contains(out, "BAD") {
		t.Fatalf("tampered ledger: code %d out %q", code, out)
	}
}

func TestProve_AgainstMiner(t *testing.T) {
	kv, err := leveldbkv.OpenMemory()
	if err != nil {
		t.Fatal(err)
	}
	defer kv.Close()
	if err := kv.Put([]byte("42"), []byte("hello")); err != nil {
		t.Fatal(err)
	}

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	s := grpc.NewServer()
	grpckv.RegisterStorageServer(s, &grpckv.Server{KV: kv})
	go func() { _ = s.Serve(lis) }()
	defer s.Stop()
	target := lis.Addr().String()

	good := fingerprint.Of([]byte("hello")).String()
	if code, out, errOut := runCmd("prove", "--grpc-target", target, "--key", "42", "--fingerprint", good); code != 0 {
		t.Fatalf("prove(good): code %d out %q err %s", code, out, errOut)
	}
	bad := fingerprint.Of([]byte("hellp")).Hex()
	if code, out, _ := runCmd("prove", "--grpc-target", target, "--key", "42", "--fingerprint", bad); code != 1 || !strings.HasPrefix(out, "FAIL") {
		t.Fatalf("prove(bad): code %d out %q", code, out)
	}
}

func TestExportImport_MovesDataBetweenBackends(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.txt")
	if err := os.WriteFile(in, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	fsDir := filepath.Join(dir, "fs")
	for _, k := range []string{"3", "7"} {
		if code, _, errOut := runCmd("store", "--backend", "fs", "--fs-dir", fsDir, "--key", k, in); code != 0 {
			t.Fatalf("store %s: %s", k, errOut)
		}
	}

	tarPath := filepath.Join(dir, "bundle.tar")
	code, out, errOut := runCmd("export", "--backend", "fs", "--fs-dir", fsDir, "--keys", "0-9", "--out", tarPath)
	if code != 0 || strings.TrimSpace(out) != "exported 2 entries" {
		t.Fatalf("export: code %d out %q err %s", code, out, errOut)
	}

	code, _, _ = runCmd("export", "--backend", "fs", "--fs-dir", fsDir, "--keys", "0-9", "--strict", "--out", filepath.Join(dir, "strict.tar"))
	if code != 1 {
		t.Fatalf("strict export with missing keys: code %d", code)
	}
	if _, err := os.Stat(filepath.Join(dir, "strict.tar")); !os.IsNotExist(err) {
		t.Fatalf("failed export should not leave a bundle behind")
	}

	boltPath := filepath.Join(dir, "miner.bolt")
	code, out, errOut = runCmd("import", "--backend", "bolt", "--bolt-path", boltPath, tarPath)
	if code != 0 || strings.TrimSpace(out) != "imported 2 entries" {
		t.Fatalf("import: code %d out %q err %s", code, out, errOut)
	}
	code, out, errOut = runCmd("retrieve", "--backend", "bolt", "--bolt-path", boltPath, "--key", "7")
	if code != 0 || out != "hello" {
		t.Fatalf("retrieve after import: code %d out %q err %s", code, out, errOut)
	}
}

func TestParseKeys(t *testing.T) {
	ks, err := parseKeys("a, 2-4 ,b")
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, k := range ks {
		got = append(got, string(k))
	}
	if strings.Join(got, ",") != "a,2,3,4,b" {
		t.Fatalf("parseKeys = %v", got)
	}
	for _, bad := range []string{"", ",", "x-2", "5-1"} {
		if _, err := parseKeys(bad); err == nil {
			t.Fatalf("parseKeys(%q): expected error", bad)
		}
	}
}
