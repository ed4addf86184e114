// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package smpp

import (
	"fmt"
	"strings"
	"unicode/utf8"

	smppenc "github.com/fiorix/go-smpp/smpp/encoding"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// TextCodec converts between PDU body bytes and text. Decoding is
// strict: undecodable bytes are reported, never replaced, so the MO
// pipeline can drop the body and keep the protocol exchange intact.
type TextCodec interface {
	Name() string
	Encode(s string) ([]byte, error)
	Decode(b []byte) (string, error)
}

// defaultCharsets is the base data_coding table, before per-transport
// overrides are applied.
var defaultCharsets = map[int]string{
	0: "gsm0338",
	1: "ascii",
	3: "latin-1",
	8: "utf-16be",
}

var textCodecs = map[string]TextCodec{
	"gsm0338": transformCodec{name: "gsm0338", enc: smppenc.GSM7(false)},
	"ascii":   asciiCodec{},
	"latin1":  transformCodec{name: "latin-1", enc: charmap.ISO8859_1},
	"utf8":    utf8Codec{},
	"utf16be": transformCodec{name: "utf-16be", enc: unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)},
}

// LookupCodec resolves a codec by name. Names are case-insensitive and
// dashes and underscores are ignored, so "latin-1" and "latin1" name
// the same codec.
func LookupCodec(name string) (TextCodec, error) {
	key := strings.ToLower(name)
	key = strings.NewReplacer("-", "", "_", "").Replace(key)
	codec, ok := textCodecs[key]
	if !ok {
		return nil, fmt.Errorf("unknown codec: %q", name)
	}

	return codec, nil
}

// CharsetRegistry resolves data_coding octets to text codecs, applying
// the per-transport data_coding_overrides on top of the base table.
type CharsetRegistry struct {
	codecs map[int]TextCodec
}

// NewCharsetRegistry builds a registry from the base table and the
// configured overrides. Unknown codec names fail construction.
func NewCharsetRegistry(overrides map[int]string) (*CharsetRegistry, error) {
	codecs := make(map[int]TextCodec, len(defaultCharsets)+len(overrides))
	for dc, name := range defaultCharsets {
		codec, err := LookupCodec(name)
		if err != nil {
			return nil, err
		}
		codecs[dc] = codec
	}
	for dc, name := range overrides {
		codec, err := LookupCodec(name)
		if err != nil {
			return nil, fmt.Errorf("data_coding_overrides[%d]: %w", dc, err)
		}
		codecs[dc] = codec
	}

	return &CharsetRegistry{codecs: codecs}, nil
}

// Codec returns the codec registered for a data_coding value.
func (r *CharsetRegistry) Codec(dataCoding int) (TextCodec, error) {
	codec, ok := r.codecs[dataCoding]
	if !ok {
		return nil, fmt.Errorf("unsupported data_coding: %d", dataCoding)
	}

	return codec, nil
}

type transformCodec struct {
	name string
	enc  encoding.Encoding
}

func (c transformCodec) Name() string {
	return c.name
}

func (c transformCodec) Encode(s string) ([]byte, error) {
	b, _, err := transform.Bytes(c.enc.NewEncoder(), []byte(s))
	if err != nil {
		return nil, fmt.Errorf("'%s' codec can't encode %q: %w", c.name, s, err)
	}

	return b, nil
}

func (c transformCodec) Decode(b []byte) (string, error) {
	s, _, err := transform.Bytes(c.enc.NewDecoder(), b)
	if err != nil {
		return "", fmt.Errorf("'%s' codec can't decode: %w", c.name, err)
	}

	return string(s), nil
}

type asciiCodec struct{}

func (asciiCodec) Name() string {
	return "ascii"
}

func (asciiCodec) Encode(s string) ([]byte, error) {
	for i, r := range s {
		if r > 0x7f {
			return nil, fmt.Errorf("'ascii' codec can't encode character %q in position %d", r, i)
		}
	}

	return []byte(s), nil
}

func (asciiCodec) Decode(b []byte) (string, error) {
	for i, c := range b {
		if c > 0x7f {
			return "", fmt.Errorf("'ascii' codec can't decode byte %#x in position %d", c, i)
		}
	}

	return string(b), nil
}

type utf8Codec struct{}

func (utf8Codec) Name() string {
	return "utf-8"
}

func (utf8Codec) Encode(s string) ([]byte, error) {
	return []byte(s), nil
}

func (utf8Codec) Decode(b []byte) (string, error) {
	if !utf8.Valid(b) {
		return "", fmt.Errorf("'utf-8' codec can't decode invalid byte sequence")
	}

	return string(b), nil
}
