package main

import (
	"context"
	"crypto/rand"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"xdao.co/storagenet/directory"
	"xdao.co/storagenet/fingerprint"
	"xdao.co/storagenet/keys"
	"xdao.co/storagenet/proof"
	"xdao.co/storagenet/storage"
	"xdao.co/storagenet/storage/bundle"
	"xdao.co/storagenet/storage/grpckv"
	"xdao.co/storagenet/storage/kvregistry"
	"xdao.co/storagenet/weights"

	_ "xdao.co/storagenet/storage/boltkv"
	_ "xdao.co/storagenet/storage/fskv"
	_ "xdao.co/storagenet/storage/leveldbkv"
	_ "xdao.co/storagenet/storage/pebblekv"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}

	switch args[0] {
	case "store":
		return cmdStore(args[1:], out, errOut)
	case "retrieve":
		return cmdRetrieve(args[1:], out, errOut)
	case "fingerprint":
		return cmdFingerprint(args[1:], out, errOut)
	case "prove":
		return cmdProve(args[1:], out, errOut)
	case "keygen":
		return cmdKeygen(args[1:], out, errOut)
	case "ledger":
		return cmdLedger(args[1:], out, errOut)
	case "export":
		return cmdExport(args[1:], out, errOut)
	case "import":
		return cmdImport(args[1:], out, errOut)
	case "-list-backends", "--list-backends":
		printBackends(out)
		return 0
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "storagectl: operator tool for storage miners and validators")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  storagectl store --backend leveldb --leveldb-dir <dir> --key <key> <file|->")
	fmt.Fprintln(w, "  storagectl retrieve --backend leveldb --leveldb-dir <dir> --key <key> [--out <file>]")
	fmt.Fprintln(w, "  storagectl store --backend grpc --grpc-target <host:port> --key <key> <file|->")
	fmt.Fprintln(w, "  storagectl fingerprint <file|->")
	fmt.Fprintln(w, "  storagectl prove --grpc-target <host:port> --key <key> --fingerprint <cid|hex>")
	fmt.Fprintln(w, "  storagectl keygen --key-file <path> [--force]")
	fmt.Fprintln(w, "  storagectl ledger --path <weights.jsonl>")
	fmt.Fprintln(w, "  storagectl export --backend leveldb --leveldb-dir <dir> --keys 0-10000 --out <bundle.tar>")
	fmt.Fprintln(w, "  storagectl import --backend pebble --pebble-dir <dir> <bundle.tar>")
	fmt.Fprintln(w, "  storagectl -list-backends")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - the grpc backend talks to a running storage-miner")
	fmt.Fprintln(w, "  - fingerprints are sha2-256 multihashes printed as CIDv1 raw")
}

type commonFlags struct {
	backend      string
	key          string
	listBackends bool
}

func (c *commonFlags) add(fs *flag.FlagSet) {
	fs.StringVar(&c.backend, "backend", "leveldb", "KV backend name")
	fs.StringVar(&c.key, "key", "", "Key")
	fs.BoolVar(&c.listBackends, "list-backends", false, "List supported backends and exit")
	kvregistry.RegisterFlags(fs, kvregistry.UsageCLI)
}

func (c *commonFlags) openKV() (storage.KV, func() error, error) {
	return kvregistry.Open(c.backend, kvregistry.UsageCLI)
}

func printBackends(w io.Writer) {
	for _, b := range kvregistry.List(kvregistry.UsageCLI) {
		if b.Description == "" {
			_, _ = fmt.Fprintf(w, "%s\n", b.Name)
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\n", b.Name, b.Description)
	}
}

func readInput(p string) ([]byte, error) {
	if p == "-" {
		return io.ReadAll(os.Stdin)
	}
	b, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(p), err)
	}
	return b, nil
}

func cmdStore(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("store", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if common.listBackends {
		printBackends(out)
		return 0
	}
	if common.key == "" || fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: storagectl store [common flags] --key <key> <file|->")
		return 2
	}

	data, err := readInput(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	kv, closeFn, err := common.openKV()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if closeFn != nil {
		defer closeFn()
	}
	if err := kv.Put([]byte(common.key), data); err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	_, _ = fmt.Fprintln(out, fingerprint.Of(data).String())
	return 0
}

func cmdRetrieve(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("retrieve", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)
	var outPath string
	fs.StringVar(&outPath, "out", "", "Output file (optional; default stdout)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if common.listBackends {
		printBackends(out)
		return 0
	}
	if common.key == "" || fs.NArg() != 0 {
		fmt.Fprintln(errOut, "usage: storagectl retrieve [common flags] --key <key> [--out <file>]")
		return 2
	}

	kv, closeFn, err := common.openKV()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if closeFn != nil {
		defer closeFn()
	}
	b, err := kv.Get([]byte(common.key))
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if outPath == "" {
		_, _ = out.Write(b)
		return 0
	}
	if err := os.WriteFile(outPath, b, 0o600); err != nil {
		fmt.Fprintf(errOut, "write %s: %v\n", outPath, err)
		return 1
	}
	return 0
}

func cmdFingerprint(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(errOut, "usage: storagectl fingerprint <file|->")
		return 2
	}
	data, err := readInput(args[0])
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	fp := fingerprint.Of(data)
	_, _ = fmt.Fprintf(out, "%s\t%s\n", fp, fp.Hex())
	return 0
}

// clientRetriever sends every Retrieve to one miner.
type clientRetriever struct{ c *grpckv.Client }

func (r clientRetriever) Retrieve(ctx context.Context, _ directory.Peer, key []byte) ([]byte, error) {
	return r.c.Retrieve(ctx, key)
}

func cmdProve(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("prove", flag.ContinueOnError)
	fs.SetOutput(errOut)
	target := fs.String("grpc-target", "", "Miner gRPC target host:port")
	key := fs.String("key", "", "Key to audit")
	fpStr := fs.String("fingerprint", "", "Expected fingerprint (CID, multihash or sha256 hex)")
	timeout := fs.Duration("timeout", 12*time.Second, "Retrieve timeout")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *target == "" || *key == "" || *fpStr == "" {
		fmt.Fprintln(errOut, "usage: storagectl prove --grpc-target <host:port> --key <key> --fingerprint <fp>")
		return 2
	}
	want, err := fingerprint.ParseString(*fpStr)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	client, err := grpckv.Dial(*target, grpckv.DialOptions{})
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer client.Close()

	o := proof.Check(context.Background(), clientRetriever{client}, directory.Peer{}, *key, want, *timeout)
	if !o.OK {
		_, _ = fmt.Fprintf(out, "FAIL\t%s\t%v\n", *key, o.Err)
		return 1
	}
	_, _ = fmt.Fprintf(out, "PASS\t%s\t%s\n", *key, o.Elapsed.Round(time.Millisecond))
	return 0
}

func cmdKeygen(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	fs.SetOutput(errOut)
	keyFile := fs.String("key-file", "", "Where to write the hex seed")
	force := fs.Bool("force", false, "Overwrite an existing key file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *keyFile == "" {
		fmt.Fprintln(errOut, "usage: storagectl keygen --key-file <path> [--force]")
		return 2
	}
	seed := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, seed); err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if err := keys.SaveSeed(*keyFile, seed, *force); err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	id, err := keys.IdentityFromSeed(seed)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	_, _ = fmt.Fprintln(out, id.ID().String())
	return 0
}

func cmdLedger(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("ledger", flag.ContinueOnError)
	fs.SetOutput(errOut)
	path := fs.String("path", "", "Weight ledger file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *path == "" {
		fmt.Fprintln(errOut, "usage: storagectl ledger --path <weights.jsonl>")
		return 2
	}
	recs, err := weights.ReadLedger(*path)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	code := 0
	for _, r := range recs {
		status := "ok"
		if err := r.Verify(); err != nil {
			status = "BAD: " + err.Error()
			code = 1
		}
		parts := make([]string, len(r.Peers))
		for i, p := range r.Peers {
			w := 0.0
			if i < len(r.Weights) {
				w = r.Weights[i]
			}
			parts[i] = fmt.Sprintf("%s=%.6f", p, w)
		}
		_, _ = fmt.Fprintf(out, "round=%d validator=%s %s [%s]\n", r.Round, r.Validator, status, strings.Join(parts, " "))
	}
	return code
}

// parseKeys expands "a,b,3-5" into individual keys. Ranges are inclusive
// and numeric, matching the validator's key space.
func parseKeys(spec string) ([][]byte, error) {
	var out [][]byte
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(part, "-")
		if !isRange {
			out = append(out, []byte(part))
			continue
		}
		a, errA := strconv.Atoi(lo)
		b, errB := strconv.Atoi(hi)
		if errA != nil || errB != nil || a < 0 || b < a {
			return nil, fmt.Errorf("invalid key range %q", part)
		}
		for i := a; i <= b; i++ {
			out = append(out, []byte(strconv.Itoa(i)))
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no keys given")
	}
	return out, nil
}

func cmdExport(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)
	keySpec := fs.String("keys", "", "Keys to export: comma list and/or inclusive numeric ranges (0-10000)")
	outPath := fs.String("out", "", "Output bundle path")
	strict := fs.Bool("strict", false, "Fail when a key is missing instead of skipping it")
	noIndex := fs.Bool("no-index", false, "Omit index.json")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if common.listBackends {
		printBackends(out)
		return 0
	}
	if *keySpec == "" || *outPath == "" || fs.NArg() != 0 {
		fmt.Fprintln(errOut, "usage: storagectl export [common flags] --keys <keys> --out <bundle.tar>")
		return 2
	}
	ks, err := parseKeys(*keySpec)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}

	kv, closeFn, err := common.openKV()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if closeFn != nil {
		defer closeFn()
	}
	f, err := os.Create(*outPath)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	n, err := bundle.Export(f, kv, ks, bundle.ExportOptions{IncludeIndex: !*noIndex, SkipMissing: !*strict})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(*outPath)
		fmt.Fprintln(errOut, err)
		return 1
	}
	_, _ = fmt.Fprintf(out, "exported %d entries\n", n)
	return 0
}

func cmdImport(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)
	ignoreUnknown := fs.Bool("ignore-unknown", false, "Skip unknown entries in the bundle")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if common.listBackends {
		printBackends(out)
		return 0
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: storagectl import [common flags] <bundle.tar>")
		return 2
	}

	f, err := os.Open(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer f.Close()
	kv, closeFn, err := common.openKV()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if closeFn != nil {
		defer closeFn()
	}
	n, err := bundle.ImportWithOptions(f, kv, bundle.ImportOptions{IgnoreUnknown: *ignoreUnknown})
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	_, _ = fmt.Fprintf(out, "imported %d entries\n", n)
	return 0
}
