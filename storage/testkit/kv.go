package testkit

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"xdao.co/storagenet/storage"
)

// NewKV constructs a fresh, empty KV instance for a test.
// The returned KV MUST be isolated from other tests.
type NewKV func(t *testing.T) storage.KV

func RunKVConformance(t *testing.T, newKV NewKV) {
	t.Helper()

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		kv := newKV(t)
		key := []byte("42")
		want := []byte("hello")

		if err := kv.Put(key, want); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		got, err := kv.Get(key)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("Get bytes mismatch: got %q want %q", got, want)
		}
	})

	t.Run("PutOverwrites", func(t *testing.T) {
		kv := newKV(t)
		key := []byte("k")

		if err := kv.Put(key, []byte("first")); err != nil {
			t.Fatalf("Put(1) failed: %v", err)
		}
		if err := kv.Put(key, []byte("second")); err != nil {
			t.Fatalf("Put(2) failed: %v", err)
		}
		got, err := kv.Get(key)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(got) != "second" {
			t.Fatalf("overwrite not visible: got %q", got)
		}
	})

	t.Run("EmptyValue", func(t *testing.T) {
		kv := newKV(t)
		if err := kv.Put([]byte("empty"), []byte{}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		got, err := kv.Get([]byte("empty"))
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if len(got) != 0 {
			t.Fatalf("expected empty value, got %q", got)
		}
	})

	t.Run("HasAndNotFound", func(t *testing.T) {
		kv := newKV(t)
		key := []byte("missing")

		if kv.Has(key) {
			t.Fatalf("Has returned true for missing key")
		}
		_, err := kv.Get(key)
		if !storage.IsNotFound(err) {
			t.Fatalf("Get missing: got err=%v want ErrNotFound", err)
		}

		if err := kv.Put(key, []byte("now present")); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if !kv.Has(key) {
			t.Fatalf("Has returned false after Put")
		}
	})

	t.Run("RejectEmptyKey", func(t *testing.T) {
		kv := newKV(t)
		if err := kv.Put(nil, []byte("x")); err != storage.ErrEmptyKey {
			t.Fatalf("Put(nil key): got %v want ErrEmptyKey", err)
		}
		if _, err := kv.Get(nil); err != storage.ErrEmptyKey {
			t.Fatalf("Get(nil key): got %v want ErrEmptyKey", err)
		}
		if kv.Has(nil) {
			t.Fatalf("Has should be false for empty key")
		}
	})

	t.Run("ReturnedSliceIsOwned", func(t *testing.T) {
		kv := newKV(t)
		if err := kv.Put([]byte("own"), []byte("abc")); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		got, err := kv.Get([]byte("own"))
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		got[0] = 'z'
		again, err := kv.Get([]byte("own"))
		if err != nil {
			t.Fatalf("Get(2) failed: %v", err)
		}
		if string(again) != "abc" {
			t.Fatalf("mutating a returned slice changed the store: %q", again)
		}
	})

	t.Run("ConcurrentDistinctKeys", func(t *testing.T) {
		kv := newKV(t)
		var wg sync.WaitGroup
		errs := make(chan error, 16)
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				key := []byte(fmt.Sprintf("c%d", i))
				if err := kv.Put(key, key); err != nil {
					errs <- err
				}
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Fatalf("concurrent Put failed: %v", err)
		}
		for i := 0; i < 16; i++ {
			key := []byte(fmt.Sprintf("c%d", i))
			got, err := kv.Get(key)
			if err != nil || !bytes.Equal(got, key) {
				t.Fatalf("Get(%s): got %q err %v", key, got, err)
			}
		}
	})
}
