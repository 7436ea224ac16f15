// Package keys manages a node's network identity.
//
// An identity is a 32-byte Ed25519 seed stored as hex in a key file. The seed
// yields the libp2p peer ID the node is known by in the peer directory, and
// signs the weight records a validator commits. A Dilithium3 key derived from
// the same seed can co-sign records.
package keys
