package doc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// MarshalPretty renders n as indented JSON with sorted keys.
// This is the document wire format: two-space indentation, keys ordered by
// UTF-16 code units, no HTML escaping. Strings are written byte for byte.
func MarshalPretty(n Node) []byte {
	var buf bytes.Buffer
	w := writer{buf: &buf, pretty: true}
	w.node(n, 0)
	return buf.Bytes()
}

// MarshalCanonical renders n as compact JSON with sorted keys.
// Identical trees always produce identical bytes.
func MarshalCanonical(n Node) []byte {
	var buf bytes.Buffer
	w := writer{buf: &buf}
	w.node(n, 0)
	return buf.Bytes()
}

// marshalDigest is MarshalCanonical with every key and string
// NFC-normalized. It only feeds content hashes and is never decoded.
func marshalDigest(n Node) []byte {
	var buf bytes.Buffer
	w := writer{buf: &buf, nfc: true}
	w.node(n, 0)
	return buf.Bytes()
}

type writer struct {
	buf    *bytes.Buffer
	pretty bool
	nfc    bool
}

func (w writer) node(n Node, depth int) {
	buf := w.buf
	switch v := n.(type) {
	case Number:
		buf.WriteString(FormatNumber(float64(v)))
	case Bool:
		if v {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case String:
		w.str(string(v))
	case Array:
		if len(v) == 0 {
			buf.WriteString("[]")
			return
		}
		buf.WriteByte('[')
		for i, elem := range v {
			if i > 0 {
				buf.WriteByte(',')
			}
			newline(buf, depth+1, w.pretty)
			w.node(elem, depth+1)
		}
		newline(buf, depth, w.pretty)
		buf.WriteByte(']')
	case Object:
		if len(v) == 0 {
			buf.WriteString("{}")
			return
		}
		buf.WriteByte('{')
		for i, k := range v.SortedKeys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			newline(buf, depth+1, w.pretty)
			w.str(k)
			buf.WriteByte(':')
			if w.pretty {
				buf.WriteByte(' ')
			}
			w.node(v[k], depth+1)
		}
		newline(buf, depth, w.pretty)
		buf.WriteByte('}')
	default:
		buf.WriteString("null")
	}
}

// str emits a JSON string without the HTML escaping encoding/json applies
// by default.
func (w writer) str(s string) {
	if w.nfc {
		s = norm.NFC.String(s)
	}
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	w.buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte{'\n'}))
}

func newline(buf *bytes.Buffer, depth int, pretty bool) {
	if !pretty {
		return
	}
	buf.WriteByte('\n')
	buf.WriteString(strings.Repeat("  ", depth))
}

// Decode parses JSON text into a Node. Numbers become Number, null becomes Null.
func Decode(data []byte) (Node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after JSON value")
	}
	return FromAny(raw)
}

// decodePrefix parses the first JSON value in data and returns the number of
// bytes consumed, so callers can inspect whatever follows.
func decodePrefix(data string) (Node, int, error) {
	dec := json.NewDecoder(strings.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, 0, err
	}
	n, err := FromAny(raw)
	if err != nil {
		return nil, 0, err
	}
	return n, int(dec.InputOffset()), nil
}
