package storage_test

import (
	"errors"
	"testing"

	"xdao.co/storagenet/storage"
	"xdao.co/storagenet/storage/leveldbkv"
)

func memKV(t *testing.T) *leveldbkv.Store {
	t.Helper()
	s, err := leveldbkv.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

type brokenKV struct{ storage.KV }

var errBroken = errors.New("disk on fire")

func (brokenKV) Get([]byte) ([]byte, error) { return nil, errBroken }

func TestMultiKV_ReadFallbackInOrder(t *testing.T) {
	first, second := memKV(t), memKV(t)
	if err := second.Put([]byte("k"), []byte("from second")); err != nil {
		t.Fatal(err)
	}
	m := storage.MultiKV{Adapters: []storage.KV{first, second}}

	got, err := m.Get([]byte("k"))
	if err != nil || string(got) != "from second" {
		t.Fatalf("Get: got %q err %v", got, err)
	}
	if err := first.Put([]byte("k"), []byte("from first")); err != nil {
		t.Fatal(err)
	}
	got, _ = m.Get([]byte("k"))
	if string(got) != "from first" {
		t.Fatalf("first adapter should win, got %q", got)
	}
	if _, err := m.Get([]byte("missing")); !storage.IsNotFound(err) {
		t.Fatalf("Get(missing): got %v", err)
	}
}

func TestMultiKV_HardErrorStopsFallback(t *testing.T) {
	second := memKV(t)
	_ = second.Put([]byte("k"), []byte("v"))
	m := storage.MultiKV{Adapters: []storage.KV{brokenKV{memKV(t)}, second}}
	if _, err := m.Get([]byte("k")); !errors.Is(err, errBroken) {
		t.Fatalf("got %v want errBroken", err)
	}
}

func TestMultiKV_NoAdapters(t *testing.T) {
	if err := (storage.MultiKV{}).Put([]byte("k"), nil); err == nil {
		t.Fatalf("expected error with no adapters")
	}
}

func TestReplicatingKV_PutAllAndVerify(t *testing.T) {
	a, b := memKV(t), memKV(t)
	r := storage.ReplicatingKV{Backends: []storage.NamedKV{{Name: "a", KV: a}, {Name: "b", KV: b}}}

	if err := r.Put([]byte("42"), []byte("hello")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	for _, kv := range []storage.KV{a, b} {
		got, err := kv.Get([]byte("42"))
		if err != nil || string(got) != "hello" {
			t.Fatalf("replica: got %q err %v", got, err)
		}
	}
	if err := r.Verify([]byte("42")); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if err := r.Verify([]byte("missing")); !storage.IsNotFound(err) {
		t.Fatalf("Verify(missing): got %v", err)
	}
	if err := r.Put(nil, []byte("x")); err != storage.ErrEmptyKey {
		t.Fatalf("Put(empty key): got %v", err)
	}
}
