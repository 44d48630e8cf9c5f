// Package record defines the decoded key/value record model shared by the
// partition decoder and the exporters.
package record

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Type tags a record's value kind, using the type vocabulary of the
// downstream partition generator.
type Type string

const (
	TypeU8   Type = "u8"
	TypeI8   Type = "i8"
	TypeU16  Type = "u16"
	TypeI16  Type = "i16"
	TypeU32  Type = "u32"
	TypeI32  Type = "i32"
	TypeU64  Type = "u64"
	TypeI64  Type = "i64"
	TypeStr  Type = "str"
	TypeBlob Type = "blob"
)

// Integer reports whether t is one of the fixed-width integer types.
func (t Type) Integer() bool {
	switch t {
	case TypeU8, TypeI8, TypeU16, TypeI16, TypeU32, TypeI32, TypeU64, TypeI64:
		return true
	default:
		return false
	}
}

// Signed reports whether t is a signed integer type.
func (t Type) Signed() bool {
	switch t {
	case TypeI8, TypeI16, TypeI32, TypeI64:
		return true
	default:
		return false
	}
}

// FileRef points a blob value at bytes stored outside the dump, used when an
// edited dump swaps a blob's contents for a file on disk.
type FileRef struct {
	Path string `json:"file"`
}

// Record is one decoded logical key/value item. Value holds a uint64,
// int64, string, []byte, or FileRef according to Type.
type Record struct {
	Namespace string
	Key       string
	Type      Type
	Value     any
}

type recordJSON struct {
	Namespace string          `json:"namespace"`
	Key       string          `json:"key"`
	Type      Type            `json:"type"`
	Value     json.RawMessage `json:"value"`
}

// MarshalJSON renders the record with its value in the dump encoding:
// integers as numbers, strings as strings, blob bytes as a hex string, and
// file references as {"file": path}.
func (r Record) MarshalJSON() ([]byte, error) {
	var value any = r.Value
	if b, ok := r.Value.([]byte); ok {
		value = hex.EncodeToString(b)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("record %q: %w", r.Key, err)
	}
	return json.Marshal(recordJSON{
		Namespace: r.Namespace,
		Key:       r.Key,
		Type:      r.Type,
		Value:     raw,
	})
}

// UnmarshalJSON is the inverse of MarshalJSON. The value encoding is chosen
// by the record's type tag; blob values accept either a hex string or a
// {"file": path} reference.
func (r *Record) UnmarshalJSON(data []byte) error {
	var rj recordJSON
	if err := json.Unmarshal(data, &rj); err != nil {
		return err
	}
	r.Namespace = rj.Namespace
	r.Key = rj.Key
	r.Type = rj.Type

	switch {
	case rj.Type == TypeBlob:
		var s string
		if err := json.Unmarshal(rj.Value, &s); err == nil {
			b, err := hex.DecodeString(s)
			if err != nil {
				return fmt.Errorf("record %q: bad blob hex: %w", r.Key, err)
			}
			r.Value = b
			return nil
		}
		var ref FileRef
		if err := json.Unmarshal(rj.Value, &ref); err != nil || ref.Path == "" {
			return fmt.Errorf("record %q: blob value is neither hex nor a file reference", r.Key)
		}
		r.Value = ref

	case rj.Type == TypeStr:
		var s string
		if err := json.Unmarshal(rj.Value, &s); err != nil {
			return fmt.Errorf("record %q: %w", r.Key, err)
		}
		r.Value = s

	case rj.Type.Signed():
		var v int64
		if err := json.Unmarshal(rj.Value, &v); err != nil {
			return fmt.Errorf("record %q: %w", r.Key, err)
		}
		r.Value = v

	case rj.Type.Integer():
		var v uint64
		if err := json.Unmarshal(rj.Value, &v); err != nil {
			return fmt.Errorf("record %q: %w", r.Key, err)
		}
		r.Value = v

	default:
		return fmt.Errorf("record %q: unknown type %q", r.Key, rj.Type)
	}
	return nil
}
