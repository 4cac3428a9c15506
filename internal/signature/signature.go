// Package signature implements the NOWPayments IPN signing contract: an
// HMAC-SHA512 hex digest over the canonical JSON form of the callback body.
//
// The canonical form is a versioned contract with the signer, not an
// implementation detail: keys sorted lexicographically, compact separators,
// no HTML escaping, number literals preserved byte for byte, and every rune
// outside printable ASCII escaped as \uXXXX (surrogate pairs above the BMP)
// so the canonical string is plain ASCII. Any deviation breaks verification
// for every payload.
package signature

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"unicode/utf16"
)

var ErrNoSecret = errors.New("signing secret is not configured")

// Canonicalize re-serializes a JSON document into the signer's canonical
// form. Numbers round-trip as json.Number so the original literal is
// re-emitted unchanged.
func Canonicalize(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode callback body: %w", err)
	}
	// Trailing garbage after the document is not a valid signed body.
	if dec.More() {
		return nil, errors.New("trailing data after JSON document")
	}

	var buf bytes.Buffer
	if err := writeCanonical(&buf, doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case json.Number:
		buf.WriteString(val.String())
	case string:
		writeCanonicalString(buf, val)
	case []any:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeCanonicalString(buf, k)
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unexpected JSON value of type %T", v)
	}
	return nil
}

// writeCanonicalString emits a JSON string literal in the signer's ASCII
// form: the usual short escapes, \u00XX for remaining control characters,
// and \uXXXX for every rune above 0x7E.
func writeCanonicalString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			switch {
			case r >= 0x20 && r <= 0x7e:
				buf.WriteByte(byte(r))
			case r > 0xffff:
				hi, lo := utf16.EncodeRune(r)
				fmt.Fprintf(buf, `\u%04x\u%04x`, hi, lo)
			default:
				fmt.Fprintf(buf, `\u%04x`, r)
			}
		}
	}
	buf.WriteByte('"')
}

// Sign computes the hex HMAC-SHA512 digest of the canonical form of raw.
func Sign(raw []byte, secret []byte) (string, error) {
	if len(secret) == 0 {
		return "", ErrNoSecret
	}

	canonical, err := Canonicalize(raw)
	if err != nil {
		return "", err
	}

	mac := hmac.New(sha512.New, secret)
	mac.Write(canonical)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify checks a signature header against the digest recomputed from raw.
// The comparison is constant-time.
func Verify(raw []byte, header string, secret []byte) error {
	expected, err := Sign(raw, secret)
	if err != nil {
		return err
	}

	if !hmac.Equal([]byte(header), []byte(expected)) {
		return errors.New("signature mismatch")
	}
	return nil
}
