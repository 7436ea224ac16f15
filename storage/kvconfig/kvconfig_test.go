package kvconfig

import (
	"os"
	"path/filepath"
	"testing"

	"xdao.co/storagenet/storage"
	"xdao.co/storagenet/storage/kvregistry"

	_ "xdao.co/storagenet/storage/fskv"
	_ "xdao.co/storagenet/storage/leveldbkv"
)

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"empty", Config{}, false},
		{"no name", Config{Backends: []BackendConfig{{}}}, false},
		{"dup", Config{Backends: []BackendConfig{{Name: "fs"}, {Name: "fs"}}}, false},
		{"dup with ids", Config{Backends: []BackendConfig{{Name: "fs", ID: "a"}, {Name: "fs", ID: "b"}}}, true},
		{"bad policy", Config{WritePolicy: "some", Backends: []BackendConfig{{Name: "fs"}}}, false},
		{"all", Config{WritePolicy: "all", Backends: []BackendConfig{{Name: "fs"}}}, true},
	}
	for _, tc := range cases {
		err := tc.cfg.Validate()
		if (err == nil) != tc.ok {
			t.Fatalf("%s: Validate() = %v, want ok=%v", tc.name, err, tc.ok)
		}
	}
}

func TestLoadFile_YAMLAndJSON(t *testing.T) {
	dir := t.TempDir()
	yml := filepath.Join(dir, "kv.yaml")
	if err := os.WriteFile(yml, []byte("write_policy: all\nbackends:\n  - name: fs\n    config: {fs-dir: /tmp/x}\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFile(yml)
	if err != nil {
		t.Fatalf("LoadFile(yaml): %v", err)
	}
	if cfg.WritePolicy != "all" || cfg.Backends[0].Config["fs-dir"] != "/tmp/x" {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	js := filepath.Join(dir, "kv.json")
	if err := os.WriteFile(js, []byte(`{"backends":[{"name":"memory"}]}`), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err = LoadFile(js)
	if err != nil {
		t.Fatalf("LoadFile(json): %v", err)
	}
	if cfg.Backends[0].Name != "memory" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestOpen_ReplicatingWritesEverywhere(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	cfg := Config{
		WritePolicy: "all",
		Backends: []BackendConfig{
			{Name: "fs", ID: "a", Config: map[string]string{"fs-dir": a}},
			{Name: "fs", ID: "b", Config: map[string]string{"fs-dir": b}},
		},
	}
	kv, closeFn, err := cfg.Open(kvregistry.UsageMiner, "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer closeFn()
	rep, ok := kv.(storage.ReplicatingKV)
	if !ok {
		t.Fatalf("expected ReplicatingKV, got %T", kv)
	}
	if err := kv.Put([]byte("42"), []byte("hello")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := rep.Verify([]byte("42")); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	for _, n := range rep.Backends {
		got, err := n.KV.Get([]byte("42"))
		if err != nil || string(got) != "hello" {
			t.Fatalf("backend %s: got %q err %v", n.Name, got, err)
		}
	}

	if err := rep.Backends[1].KV.Put([]byte("42"), []byte("hellp")); err != nil {
		t.Fatalf("Put(b): %v", err)
	}
	if err := rep.Verify([]byte("42")); err != storage.ErrMismatch {
		t.Fatalf("Verify after divergence: got %v want ErrMismatch", err)
	}
}

func TestOpen_FirstPolicyWithPreferred(t *testing.T) {
	a := t.TempDir()
	cfg := Config{
		Backends: []BackendConfig{
			{Name: "fs", ID: "a", Config: map[string]string{"fs-dir": a}},
			{Name: "memory", ID: "b"},
		},
	}
	kv, closeFn, err := cfg.Open(kvregistry.UsageValidator, "b")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer closeFn()
	multi, ok := kv.(storage.MultiKV)
	if !ok {
		t.Fatalf("expected MultiKV, got %T", kv)
	}
	if err := kv.Put([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !multi.Adapters[0].Has([]byte("k")) {
		t.Fatalf("preferred backend should receive writes")
	}
	if multi.Adapters[1].Has([]byte("k")) {
		t.Fatalf("second backend should not receive writes under policy first")
	}

	if _, _, err := cfg.Open(kvregistry.UsageValidator, "nope"); err == nil {
		t.Fatalf("expected error for unknown preferred backend")
	}
}

func TestOpen_SingleBackendIsUnwrapped(t *testing.T) {
	kv, closeFn, err := Single("memory", nil).Open(kvregistry.UsageCLI, "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer closeFn()
	if _, ok := kv.(storage.MultiKV); ok {
		t.Fatalf("single backend should not be wrapped")
	}
}
