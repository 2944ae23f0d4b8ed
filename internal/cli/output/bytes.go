package output

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// Encoding is how a binary key or value is spelled on the command line.
type Encoding string

const (
	EncodingRaw    Encoding = "raw"
	EncodingHex    Encoding = "hex"
	EncodingBase64 Encoding = "base64"
)

// ParseEncoding parses s into an Encoding. The empty string selects raw.
func ParseEncoding(s string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "raw", "":
		return EncodingRaw, nil
	case "hex":
		return EncodingHex, nil
	case "base64", "b64":
		return EncodingBase64, nil
	default:
		return "", fmt.Errorf("invalid encoding: %q (valid: raw, hex, base64)", s)
	}
}

// Decode converts a command line argument to bytes.
func (e Encoding) Decode(s string) ([]byte, error) {
	switch e {
	case EncodingHex:
		b, err := hex.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("invalid hex %q: %w", s, err)
		}
		return b, nil
	case EncodingBase64:
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("invalid base64 %q: %w", s, err)
		}
		return b, nil
	default:
		return []byte(s), nil
	}
}

// Encode converts bytes to their command line form.
func (e Encoding) Encode(b []byte) string {
	switch e {
	case EncodingHex:
		return hex.EncodeToString(b)
	case EncodingBase64:
		return base64.StdEncoding.EncodeToString(b)
	default:
		return string(b)
	}
}
