package kvregistry

// Usage restricts which programs should accept a given backend.

// In Go, "plugins" are linked at build time: a backend registers itself via init(),
// and is enabled in a binary by importing the backend package (often as a blank import).
type Usage uint8

const (
	// UsageMiner indicates the backend can hold a miner's data at rest.
	UsageMiner Usage = 1 << iota
	// UsageValidator indicates the backend can hold a validator's fingerprint cache.
	UsageValidator
	// UsageCLI indicates the backend should be available in storagectl.
	UsageCLI

	// UsageLocal is every role that opens a store on the local host.
	UsageLocal = UsageMiner | UsageValidator | UsageCLI
)

func (u Usage) allows(want Usage) bool { return u&want != 0 }
