package keys

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
)

// Strategy selects how a request path becomes a storage key. One strategy is
// configured per deployment and must not change within a cache generation.
type Strategy int

const (
	Identity Strategy = iota
	FullEncode
	// Sanitize is lossy: paths that differ only in stripped characters
	// share a key.
	Sanitize
	PartialEncode
)

func (s Strategy) String() string {
	switch s {
	case Identity:
		return "identity"
	case FullEncode:
		return "full"
	case Sanitize:
		return "sanitize"
	case PartialEncode:
		return "partial"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// ParseStrategy maps a configuration value to a Strategy.
func ParseStrategy(v string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "partial", "partial_encode":
		return PartialEncode, nil
	case "full", "base64", "full_encode":
		return FullEncode, nil
	case "sanitize":
		return Sanitize, nil
	case "identity", "none":
		return Identity, nil
	default:
		return Identity, fmt.Errorf("keys: unknown encoding strategy %q", v)
	}
}

// UnmarshalText lets Strategy be read straight from config files.
func (s *Strategy) UnmarshalText(text []byte) error {
	v, err := ParseStrategy(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// sanitizer replaces the structurally significant characters.
//
// Not injective: "a:b" and "a/b" both become "a_b", and directive punctuation
// collides with literal '-' and '_' in filenames. Keep it only where existing
// keys must stay byte-compatible.
var sanitizer = strings.NewReplacer(
	":", "_",
	"/", "_",
	"(", "-",
	")", "-",
)

// Encode converts key to a storage key under s. All strategies are total.
func Encode(key string, s Strategy) string {
	switch s {
	case FullEncode:
		return base64.RawURLEncoding.EncodeToString([]byte(key))
	case Sanitize:
		return sanitizer.Replace(key)
	case PartialEncode:
		return directivePattern.ReplaceAllStringFunc(key, url.QueryEscape)
	default:
		return key
	}
}

// DecodeFull reverses FullEncode.
func DecodeFull(encoded string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("keys: decode full-encoded key: %w", err)
	}
	return string(b), nil
}

// Encoder binds a Strategy so callers cannot mix strategies per call.
type Encoder struct {
	strategy Strategy
}

func NewEncoder(s Strategy) Encoder {
	return Encoder{strategy: s}
}

func (e Encoder) Strategy() Strategy {
	return e.strategy
}

// Encode returns the storage key for key.
func (e Encoder) Encode(key string) string {
	return Encode(key, e.strategy)
}
