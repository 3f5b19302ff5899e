package cache

import (
	"encoding/binary"
	"encoding/hex"
	"net/http"
	"net/url"
	"strings"

	"github.com/zeebo/blake3"
)

// BuildEdgeKey builds an EdgeKey from:
//   - the storage key produced by the configured encoder,
//   - the request header and query (only the allow-listed names are read),
//   - generation (gateway version for invalidation).
//
// Every field is length-prefixed before hashing so no two field splits of the
// same bytes hash alike.
func BuildEdgeKey(
	storageKey string,
	header http.Header,
	query url.Values,
	generation string,
) EdgeKey {
	key := EdgeKey{
		Generation: strings.TrimSpace(generation),
		StorageKey: storageKey,
		Origin:     header.Get(VaryHeader),
		Signature:  query.Get(VaryQuery),
	}

	h := blake3.New()
	for _, field := range []string{key.StorageKey, key.Origin, key.Signature} {
		writeField(h, field)
	}
	key.Hash = hex.EncodeToString(h.Sum(nil))

	return key
}

func writeField(h *blake3.Hasher, s string) {
	var n [8]byte
	binary.LittleEndian.PutUint64(n[:], uint64(len(s)))
	_, _ = h.Write(n[:])
	_, _ = h.Write([]byte(s))
}

// ETag returns a strong entity tag for body.
func ETag(body []byte) string {
	sum := blake3.Sum256(body)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}
