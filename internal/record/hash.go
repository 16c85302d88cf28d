package record

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
)

// Domain prefixes for content hashing. The version suffix leaves room for
// algorithm migration without ambiguity against old stored hashes.
const (
	domainPayload = "weft/payload/v1"
	domainRecord  = "weft/record/v1"
)

// hashWithDomain computes SHA-256 over domain + 0x00 + data.
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// PayloadHash computes the content hash of a single payload.
// Returns an error if the payload cannot be canonically marshaled.
func PayloadHash(p Object) (string, error) {
	canonical, err := MarshalCanonical(p)
	if err != nil {
		return "", fmt.Errorf("PayloadHash: %w", err)
	}
	return hashWithDomain(domainPayload, canonical), nil
}

// ContentHash computes the full change-detection hash for one SourceRecord
// given all RoutedRecords the DAG produced for it. The per-payload hashes
// are combined order-independently (sorted before the outer hash), so the
// result does not depend on branch evaluation order, only on content.
//
// A change in either the source payload or any transform's output changes
// the result, which is exactly what incremental diffing needs to observe.
func ContentHash(routed []RoutedRecord) (string, error) {
	hashes := make([]string, 0, len(routed))
	for _, r := range routed {
		h, err := PayloadHash(r.Payload)
		if err != nil {
			return "", fmt.Errorf("ContentHash: routed %s: %w", r.Lineage, err)
		}
		// Include targets so re-routing a record to a different
		// destination set is detected as a change.
		for _, t := range slices.Sorted(slices.Values(r.Targets)) {
			h = hashWithDomain(domainRecord, []byte(h+"\x00"+t))
		}
		hashes = append(hashes, h)
	}
	slices.Sort(hashes)

	h := sha256.New()
	h.Write([]byte(domainRecord))
	h.Write([]byte{0x00})
	for _, sub := range hashes {
		h.Write([]byte(sub))
		h.Write([]byte{0x00})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// MustPayloadHash is like PayloadHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustPayloadHash(p Object) string {
	h, err := PayloadHash(p)
	if err != nil {
		panic(err)
	}
	return h
}
