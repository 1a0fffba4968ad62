package jsondoc

import (
	"bytes"
	"encoding/json"
	"io"
	"sort"
	"strings"

	"github.com/sidkik/cacs/pkg/errors"
)

const indent = "  "

// Parse decodes a single JSON document.
func Parse(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := parseValue(dec)
	if err != nil {
		return nil, err
	}

	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("unexpected data after top-level value")
	}
	return v, nil
}

// ParseObject decodes data, and returns false if it isn't a JSON object.
func ParseObject(data []byte) (*Object, bool) {
	v, err := Parse(data)
	if err != nil {
		return nil, false
	}
	obj, ok := v.(*Object)
	return obj, ok
}

func parseValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			return parseObject(dec)
		case '[':
			return parseArray(dec)
		}
		return nil, errors.New("unexpected delimiter %q", t)
	case string:
		return String(t), nil
	case json.Number:
		return Number(t), nil
	case bool:
		return Bool(t), nil
	case nil:
		return Null{}, nil
	}
	return nil, errors.New("unexpected token %v", tok)
}

func parseObject(dec *json.Decoder) (*Object, error) {
	obj := NewObject()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}

		key, ok := tok.(string)
		if !ok {
			return nil, errors.New("object key must be a string, got %v", tok)
		}

		val, err := parseValue(dec)
		if err != nil {
			return nil, err
		}
		obj.Set(key, val)
	}

	// Consume the closing brace.
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return obj, nil
}

func parseArray(dec *json.Decoder) (Array, error) {
	arr := Array{}
	for dec.More() {
		val, err := parseValue(dec)
		if err != nil {
			return nil, err
		}
		arr = append(arr, val)
	}

	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return arr, nil
}

// Marshal encodes v with two space indentation and a trailing newline. Keys
// are written in document order, and non-ASCII text is written as is.
func Marshal(v Value) ([]byte, error) {
	e := encoder{pretty: true}
	if err := e.encode(v, 0); err != nil {
		return nil, err
	}
	e.buf.WriteByte('\n')
	return e.buf.Bytes(), nil
}

// Canonical returns a compact encoding of v with sorted keys and normalized
// numbers, suitable for hashing.
func Canonical(v Value) []byte {
	e := encoder{canonical: true}
	// Encoding only fails for types outside the union.
	if err := e.encode(v, 0); err != nil {
		panic(err)
	}
	return e.buf.Bytes()
}

type encoder struct {
	buf       bytes.Buffer
	pretty    bool
	canonical bool
}

func (e *encoder) encode(v Value, depth int) error {
	switch t := v.(type) {
	case Null:
		e.buf.WriteString("null")
	case Bool:
		if t {
			e.buf.WriteString("true")
		} else {
			e.buf.WriteString("false")
		}
	case Number:
		if e.canonical {
			e.buf.WriteString(normalizeNumber(t))
		} else {
			e.buf.WriteString(string(t))
		}
	case String:
		return encodeString(&e.buf, string(t))
	case Array:
		if len(t) == 0 {
			e.buf.WriteString("[]")
			return nil
		}
		e.buf.WriteByte('[')
		for i, elem := range t {
			if i > 0 {
				e.buf.WriteByte(',')
			}
			e.newline(depth + 1)
			if err := e.encode(elem, depth+1); err != nil {
				return err
			}
		}
		e.newline(depth)
		e.buf.WriteByte(']')
	case *Object:
		if t.Len() == 0 {
			e.buf.WriteString("{}")
			return nil
		}
		keys := t.Keys()
		if e.canonical {
			sort.Strings(keys)
		}
		e.buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				e.buf.WriteByte(',')
			}
			e.newline(depth + 1)
			if err := encodeString(&e.buf, k); err != nil {
				return err
			}
			e.buf.WriteByte(':')
			if e.pretty {
				e.buf.WriteByte(' ')
			}
			if err := e.encode(t.values[k], depth+1); err != nil {
				return err
			}
		}
		e.newline(depth)
		e.buf.WriteByte('}')
	default:
		return errors.New("unsupported JSON value %T", v)
	}
	return nil
}

func (e *encoder) newline(depth int) {
	if !e.pretty {
		return
	}
	e.buf.WriteByte('\n')
	e.buf.WriteString(strings.Repeat(indent, depth))
}

func encodeString(buf *bytes.Buffer, s string) error {
	var out bytes.Buffer
	enc := json.NewEncoder(&out)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	buf.Write(bytes.TrimSuffix(out.Bytes(), []byte("\n")))
	return nil
}

func normalizeNumber(n Number) string {
	f, ok := parseNumber(n)
	if !ok {
		return string(n)
	}
	return f.Text('g', -1)
}
