package doc

import (
	"crypto/sha256"
	"encoding/hex"
)

// Domain prefixes for content hashes. The version suffix allows the
// algorithm to change without colliding with stored digests.
const (
	DomainDocument = "nebulite/document/v1"
	DomainTick     = "nebulite/tick/v1"
)

// HashWithDomain computes SHA256(domain + 0x00 + data) as lowercase hex.
// The null separator prevents domain/data boundary ambiguity.
func HashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Digest returns the content hash of the flushed document.
// Two documents with equal trees always have equal digests, and strings
// that differ only in Unicode normalization hash alike.
func (d *Document) Digest() string {
	return HashWithDomain(DomainDocument, marshalDigest(d.Node()))
}
