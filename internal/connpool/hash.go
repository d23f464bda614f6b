package connpool

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Hash is a stable fingerprint over a resolved backend URL, user, and the
// subset of effective data-source properties that affect pooling. Two
// clients whose effective configuration hashes equal share one pool;
// clients that differ in any pooling-relevant property do not.
type Hash [32]byte

// String renders the hash as hex, used in log lines and metric labels.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Compute derives a Hash from the resolved backend URL, the connecting
// user, and the pooling-relevant subset of a data-source's properties
// (maximumPoolSize, minimumIdle, idleTimeout, maxLifetime,
// connectionTimeout, poolEnabled) — not the full property set, since two
// sessions that differ only in an unrelated pass-through property (e.g. an
// application name) should still share a pool.
func Compute(backendURL, user string, poolingProps map[string]string) Hash {
	keys := make([]string, 0, len(poolingProps))
	for k := range poolingProps {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(backendURL)
	b.WriteByte('\x00')
	b.WriteString(user)
	for _, k := range keys {
		b.WriteByte('\x00')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(poolingProps[k])
	}

	return sha256.Sum256([]byte(b.String()))
}
