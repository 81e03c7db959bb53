// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package storage

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// ErrUnknownEncoding is returned for charset names that cannot be resolved.
var ErrUnknownEncoding = errors.New("unknown character encoding")

// Windows code page shorthands used by spreadsheet tools, mapped to their
// IANA names.
var encodingAliases = map[string]string{
	"cp1250": "windows-1250",
	"cp1251": "windows-1251",
	"cp1252": "windows-1252",
	"cp1253": "windows-1253",
	"cp1254": "windows-1254",
	"cp1257": "windows-1257",
}

// LookupEncoding resolves a charset name to an encoding.
//
// # Description
//
// Accepts IANA names and aliases ("windows-1252", "ISO-8859-1", "utf-8")
// plus the "cpNNNN" shorthands. An empty name means UTF-8.
//
// # Inputs
//
//   - name: Charset name, case-insensitive
//
// # Outputs
//
//   - encoding.Encoding: The resolved encoding
//   - error: Wraps ErrUnknownEncoding if the name is not supported
func LookupEncoding(name string) (encoding.Encoding, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	switch normalized {
	case "", "utf-8", "utf8":
		return unicode.UTF8, nil
	}
	if alias, ok := encodingAliases[normalized]; ok {
		normalized = alias
	}

	enc, err := ianaindex.IANA.Encoding(normalized)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEncoding, name)
	}
	// ianaindex knows some names it has no implementation for.
	if enc == nil {
		return nil, fmt.Errorf("%w: %s (no implementation)", ErrUnknownEncoding, name)
	}
	return enc, nil
}

// Decode converts bytes in enc to UTF-8.
func Decode(data []byte, enc encoding.Encoding) ([]byte, error) {
	if enc == unicode.UTF8 {
		return data, nil
	}
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return out, nil
}

// Encode converts UTF-8 text to enc. Characters enc cannot represent, and
// invalid UTF-8, are written as '?'.
func Encode(text []byte, enc encoding.Encoding) ([]byte, error) {
	if enc == unicode.UTF8 {
		return text, nil
	}
	encodable := encodableRune(enc)
	replace := runes.Map(func(r rune) rune {
		if r == utf8.RuneError || !encodable(r) {
			return '?'
		}
		return r
	})
	out, _, err := transform.Bytes(transform.Chain(replace, enc.NewEncoder()), text)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return out, nil
}

// encodableRune reports whether enc has a mapping for a rune. Single-byte
// code pages answer from their table; other encodings try the rune alone.
func encodableRune(enc encoding.Encoding) func(rune) bool {
	if cm, ok := enc.(*charmap.Charmap); ok {
		return func(r rune) bool {
			_, ok := cm.EncodeRune(r)
			return ok
		}
	}
	encoder := enc.NewEncoder()
	return func(r rune) bool {
		_, err := encoder.String(string(r))
		return err == nil
	}
}
