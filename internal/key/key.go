package key

import (
	"fmt"
	"strings"
)

// Key identifies a cacheable read as an ordered sequence of segments.
// A key is a prefix of every key that extends it, which is what the
// invalidation cascade matches on.
type Key []string

func New(segments ...string) Key {
	k := make(Key, len(segments))
	copy(k, segments)
	return k
}

// Of builds a key from scalar parts, formatting non-strings with fmt.
func Of(parts ...any) Key {
	k := make(Key, 0, len(parts))
	for _, part := range parts {
		switch v := part.(type) {
		case string:
			k = append(k, v)
		case fmt.Stringer:
			k = append(k, v.String())
		default:
			k = append(k, fmt.Sprint(v))
		}
	}
	return k
}

func (k Key) Equal(other Key) bool {
	if len(k) != len(other) {
		return false
	}
	for i := range k {
		if k[i] != other[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether prefix matches k segment-wise from the start.
// Every key is a prefix of itself; the empty key is a prefix of everything.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}

// Append returns a new key extended with segments. The receiver is not
// modified.
func (k Key) Append(segments ...string) Key {
	next := make(Key, 0, len(k)+len(segments))
	next = append(next, k...)
	next = append(next, segments...)
	return next
}

const separator = '/'

// String returns the canonical encoding used for map lookup. Separator and
// escape characters inside segments are escaped, and an empty segment is
// written as the marker `\0`, so the encoding is injective: distinct
// segment sequences never collide and the empty key stays distinct from a
// key holding one empty segment.
func (k Key) String() string {
	var builder strings.Builder
	size := 0
	for _, segment := range k {
		size += len(segment) + 2
	}
	builder.Grow(size)
	for i, segment := range k {
		if i > 0 {
			builder.WriteByte(separator)
		}
		if segment == "" {
			builder.WriteByte('\\')
			builder.WriteByte('0')
			continue
		}
		for j := 0; j < len(segment); j++ {
			c := segment[j]
			if c == separator || c == '\\' {
				builder.WriteByte('\\')
			}
			builder.WriteByte(c)
		}
	}
	return builder.String()
}

// Parse reverses String. It accepts any output of String and fails on a
// dangling escape.
func Parse(encoded string) (Key, error) {
	if encoded == "" {
		return Key{}, nil
	}
	k := Key{}
	var segment strings.Builder
	for i := 0; i < len(encoded); i++ {
		c := encoded[i]
		switch c {
		case '\\':
			if i+1 >= len(encoded) {
				return nil, fmt.Errorf("key %q ends with dangling escape", encoded)
			}
			i++
			// `\0` marks an empty segment and contributes no bytes; a
			// literal "0" is never escaped.
			if encoded[i] != '0' {
				segment.WriteByte(encoded[i])
			}
		case separator:
			k = append(k, segment.String())
			segment.Reset()
		default:
			segment.WriteByte(c)
		}
	}
	k = append(k, segment.String())
	return k, nil
}
