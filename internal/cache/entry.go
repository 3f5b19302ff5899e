package cache

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Entry is a response as stored in the edge cache.
type Entry struct {
	Status       int       `cbor:"1,keyasint"`
	ContentType  string    `cbor:"2,keyasint,omitempty"`
	CacheControl string    `cbor:"3,keyasint,omitempty"`
	ETag         string    `cbor:"4,keyasint,omitempty"`
	Decision     string    `cbor:"5,keyasint,omitempty"`
	StoredAt     time.Time `cbor:"6,keyasint"`
	Body         []byte    `cbor:"7,keyasint"`
}

var (
	entryEncMode cbor.EncMode
	entryDecMode cbor.DecMode
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeUnixMicro
	entryEncMode, err = encOptions.EncMode()
	if err != nil {
		panic("cache: CBOR encoder initialization failed: " + err.Error())
	}

	entryDecMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("cache: CBOR decoder initialization failed: " + err.Error())
	}
}

// MarshalEntry encodes e for storage in an EdgeCache.
func MarshalEntry(e *Entry) ([]byte, error) {
	b, err := entryEncMode.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("cache: encode entry: %w", err)
	}
	return b, nil
}

// UnmarshalEntry decodes bytes written by MarshalEntry.
func UnmarshalEntry(b []byte) (*Entry, error) {
	var e Entry
	if err := entryDecMode.Unmarshal(b, &e); err != nil {
		return nil, fmt.Errorf("cache: decode entry: %w", err)
	}
	return &e, nil
}
