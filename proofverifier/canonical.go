package proofverifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf16"
)

// Canonicalize serializes data the way pullers do before signing: compact JSON,
// object keys sorted at every depth, no HTML escaping and every rune outside
// printable ASCII written as a \u escape. Equal maps always produce the same bytes.
func Canonicalize(data map[string]any) (CanonicalMessage, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(data); err != nil {
		return CanonicalMessage{}, fmt.Errorf("failed to serialize entry data: %w", err)
	}

	payload := asciiEscape(bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}))
	return CanonicalMessage{Payload: payload}, nil
}

// asciiEscape rewrites non-ASCII runes (and DEL) as JSON \u escapes, using
// surrogate pairs above the BMP. The input is valid JSON so such runes can only
// occur inside string literals.
func asciiEscape(raw []byte) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range string(raw) {
		switch {
		case r < 0x7f:
			b.WriteRune(r)
		case r > 0xffff:
			r1, r2 := utf16.EncodeRune(r)
			fmt.Fprintf(&b, `\u%04x\u%04x`, r1, r2)
		default:
			fmt.Fprintf(&b, `\u%04x`, r)
		}
	}
	return b.String()
}
