// Package keys computes the content-addressed SHA-256 keys every cacheable
// task in the pipeline is identified by (spec.md §4.2). There is no
// canonical-JSON library anywhere in this module's dependency corpus, so
// this is one of the few places that falls back to the standard library:
// encoding/json.Marshal already serializes Go maps with sorted keys and
// preserves float64 values bit-for-bit (formatted via strconv's shortest
// round-tripping representation), which is exactly the "fixed field order,
// full precision" guarantee spec.md §4.2 requires. Struct field order is
// already fixed by Go's declaration order, so ordinary struct marshaling
// needs no extra treatment.
package keys

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Key is a hex-encoded SHA-256 digest over a canonical input bundle.
type Key string

// Of hashes the canonical JSON encoding of bundle and returns its hex
// digest. bundle should be built from maps/slices/structs with only
// JSON-marshalable fields — the bundle IS the logical input, so two calls
// with value-equal bundles always produce the same Key (spec.md invariant
// 2: equal key ⇒ equal output).
func Of(bundle any) (Key, error) {
	data, err := json.Marshal(bundle)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return Key(hex.EncodeToString(sum[:])), nil
}

// MustOf is Of, panicking on marshal failure. Safe to use only when bundle
// is known to be composed entirely of JSON-marshalable, non-cyclic values
// (true of every bundle this module constructs from score/task data).
func MustOf(bundle any) Key {
	k, err := Of(bundle)
	if err != nil {
		panic(err)
	}
	return k
}
