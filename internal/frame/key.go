package frame

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/zeebo/xxh3"
)

// Value tags for the key encoding. Distinct tags keep "1" (string) and 1
// (int64) apart.
const (
	tagNull byte = iota
	tagString
	tagInt
	tagFloat
	tagTime
)

// appendValue appends a self-delimiting encoding of v to buf. Two values
// produce the same bytes iff they are equal under row equality.
func appendValue(buf []byte, v any) ([]byte, error) {
	switch t := v.(type) {
	case nil:
		return append(buf, tagNull), nil
	case string:
		buf = append(buf, tagString)
		buf = binary.AppendUvarint(buf, uint64(len(t)))
		return append(buf, t...), nil
	case int64:
		buf = append(buf, tagInt)
		return binary.BigEndian.AppendUint64(buf, uint64(t)), nil
	case float64:
		if t == 0 {
			t = 0 // fold -0 into +0
		}
		buf = append(buf, tagFloat)
		return binary.BigEndian.AppendUint64(buf, math.Float64bits(t)), nil
	case time.Time:
		buf = append(buf, tagTime)
		return binary.BigEndian.AppendUint64(buf, uint64(t.UnixNano())), nil
	default:
		return nil, fmt.Errorf("frame: unsupported value type %T", v)
	}
}

// encodeKey encodes the values of r at idx (all of r when idx is nil).
func encodeKey(buf []byte, r Row, idx []int) ([]byte, error) {
	var err error
	if idx == nil {
		for _, v := range r {
			if buf, err = appendValue(buf, v); err != nil {
				return nil, err
			}
		}
		return buf, nil
	}
	for _, i := range idx {
		if buf, err = appendValue(buf, r[i]); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// bucketOf maps an encoded key onto one of n shuffle partitions.
func bucketOf(key []byte, n int) int {
	return int(xxh3.Hash(key) % uint64(n))
}

// HashRow returns the xxh3 hash of the full-row encoding of r.
func HashRow(r Row) (uint64, error) {
	key, err := encodeKey(nil, r, nil)
	if err != nil {
		return 0, err
	}
	return xxh3.Hash(key), nil
}

// CompareValues orders two values: nil first, then by type tag, then by
// natural order within a type.
func CompareValues(a, b any) int {
	ta, tb := tagOf(a), tagOf(b)
	if ta != tb {
		if ta < tb {
			return -1
		}
		return 1
	}
	switch x := a.(type) {
	case string:
		return strings.Compare(x, b.(string))
	case int64:
		y := b.(int64)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
	case float64:
		y := b.(float64)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
	case time.Time:
		return x.Compare(b.(time.Time))
	}
	return 0
}

// CompareRows orders rows lexicographically by CompareValues.
func CompareRows(a, b Row) int {
	for i := range a {
		if i >= len(b) {
			return 1
		}
		if c := CompareValues(a[i], b[i]); c != 0 {
			return c
		}
	}
	if len(a) < len(b) {
		return -1
	}
	return 0
}

func tagOf(v any) byte {
	switch v.(type) {
	case nil:
		return tagNull
	case string:
		return tagString
	case int64:
		return tagInt
	case float64:
		return tagFloat
	case time.Time:
		return tagTime
	default:
		return math.MaxUint8
	}
}
