// Package bundle moves KV contents between backends as a TAR archive.
//
// Each value is stored at entries/<hex key>/<fingerprint CID>, so every
// entry can be checked against its own name on import. An optional
// index.json lists keys, fingerprints and sizes for humans and tools.
package bundle

import (
	"archive/tar"
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"xdao.co/storagenet/fingerprint"
	"xdao.co/storagenet/storage"
)

// FormatVersion is the current bundle index schema version.
const FormatVersion = 1

var ErrFingerprintMismatch = errors.New("bundle: entry does not match its fingerprint")

var epoch0 = time.Unix(0, 0).UTC()

type ExportOptions struct {
	IncludeIndex bool
	// SkipMissing leaves out keys the KV does not hold instead of failing.
	SkipMissing bool
}

// Export writes a deterministic TAR bundle holding the values of keys.
// Entries are ordered by hex key and headers are normalized.
func Export(w io.Writer, kv storage.KV, keys [][]byte, opts ExportOptions) (int, error) {
	if kv == nil {
		return 0, fmt.Errorf("bundle: nil KV")
	}

	uniq := make(map[string][]byte, len(keys))
	for _, k := range keys {
		if len(k) == 0 {
			return 0, storage.ErrEmptyKey
		}
		uniq[hex.EncodeToString(k)] = k
	}
	names := make([]string, 0, len(uniq))
	for s := range uniq {
		names = append(names, s)
	}
	sort.Strings(names)

	tw := tar.NewWriter(w)
	entries := make([]indexEntry, 0, len(names))
	for _, name := range names {
		v, err := kv.Get(uniq[name])
		if err != nil {
			if opts.SkipMissing && storage.IsNotFound(err) {
				continue
			}
			_ = tw.Close()
			return 0, fmt.Errorf("bundle: key %s: %w", name, err)
		}
		fp := fingerprint.Of(v)
		if err := writeFile(tw, "entries/"+name+"/"+fp.String(), v); err != nil {
			_ = tw.Close()
			return 0, err
		}
		entries = append(entries, indexEntry{Key: name, Fingerprint: fp.String(), Size: len(v)})
	}

	if opts.IncludeIndex {
		b, err := json.Marshal(indexJSON{Version: FormatVersion, Multihash: "sha2-256", Entries: entries})
		if err != nil {
			_ = tw.Close()
			return 0, err
		}
		if err := writeFile(tw, "index.json", append(b, '\n')); err != nil {
			_ = tw.Close()
			return 0, err
		}
	}
	return len(entries), tw.Close()
}

type ImportOptions struct {
	// IgnoreUnknown skips unknown TAR entries. The default fails closed.
	IgnoreUnknown bool
}

// Import reads a bundle from r and writes every entry into kv.
func Import(r io.Reader, kv storage.KV) (int, error) {
	return ImportWithOptions(r, kv, ImportOptions{})
}

// ImportWithOptions verifies each entry against the fingerprint in its
// name before writing it.
func ImportWithOptions(r io.Reader, kv storage.KV, opts ImportOptions) (int, error) {
	if kv == nil {
		return 0, fmt.Errorf("bundle: nil KV")
	}

	tr := tar.NewReader(r)
	seen := map[string]struct{}{}
	n := 0
	for {
		h, err := tr.Next()
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		name := cleanTarPath(h.Name)
		if name == "" {
			return n, fmt.Errorf("bundle: invalid entry path: %q", h.Name)
		}
		if h.Typeflag != tar.TypeReg {
			if opts.IgnoreUnknown {
				continue
			}
			return n, fmt.Errorf("bundle: unexpected tar entry type: %v (%s)", h.Typeflag, name)
		}
		if name == "index.json" {
			_, _ = io.Copy(io.Discard, tr)
			continue
		}

		parts := strings.Split(name, "/")
		if len(parts) != 3 || parts[0] != "entries" {
			if opts.IgnoreUnknown {
				_, _ = io.Copy(io.Discard, tr)
				continue
			}
			return n, fmt.Errorf("bundle: unknown entry: %s", name)
		}
		key, err := hex.DecodeString(parts[1])
		if err != nil || len(key) == 0 {
			return n, fmt.Errorf("bundle: invalid key in %s", name)
		}
		want, err := fingerprint.ParseString(parts[2])
		if err != nil {
			return n, fmt.Errorf("bundle: invalid fingerprint in %s", name)
		}
		if _, dup := seen[parts[1]]; dup {
			return n, fmt.Errorf("bundle: duplicate entry for key %s", parts[1])
		}
		seen[parts[1]] = struct{}{}

		payload, err := io.ReadAll(tr)
		if err != nil {
			return n, err
		}
		if !want.Matches(payload) {
			return n, fmt.Errorf("%w: %s", ErrFingerprintMismatch, name)
		}
		if err := kv.Put(key, payload); err != nil {
			return n, err
		}
		n++
	}
}

type indexJSON struct {
	Version   int          `json:"version"`
	Multihash string       `json:"multihash"`
	Entries   []indexEntry `json:"entries"`
}

type indexEntry struct {
	Key         string `json:"key"`
	Fingerprint string `json:"fingerprint"`
	Size        int    `json:"size"`
}

func writeFile(tw *tar.Writer, name string, content []byte) error {
	hdr := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  epoch0,
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := io.Copy(tw, bytes.NewReader(content))
	return err
}

func cleanTarPath(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return ""
	}
	parts := strings.Split(name, "/")
	for _, part := range parts {
		if part == "" || part == "." || part == ".." {
			return ""
		}
	}
	return name
}
