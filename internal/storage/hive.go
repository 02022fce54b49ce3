package storage

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/anhlhn1/udacity-data-lake/internal/frame"
)

// DefaultPartition names the directory holding rows whose partition value is
// null or empty.
const DefaultPartition = "__HIVE_DEFAULT_PARTITION__"

// needsEscape lists the bytes Hive escapes in partition directory names.
var needsEscape = func() [256]bool {
	var t [256]bool
	for i := 0; i < 0x20; i++ {
		t[i] = true
	}
	for _, c := range "\"#%'*/:=?\\\x7f{[]^" {
		t[c] = true
	}
	return t
}()

// EscapePartitionValue percent-encodes the bytes Hive reserves in path
// segments.
func EscapePartitionValue(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if needsEscape[c] {
			fmt.Fprintf(&b, "%%%02X", c)
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// UnescapePartitionValue reverses EscapePartitionValue. Malformed escapes are
// kept literally.
func UnescapePartitionValue(s string) string {
	if !strings.Contains(s, "%") {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) {
			if v, err := strconv.ParseUint(s[i+1:i+3], 16, 8); err == nil {
				b.WriteByte(byte(v))
				i += 2
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// FormatPartitionValue renders v as a partition directory value.
func FormatPartitionValue(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return DefaultPartition, nil
	case string:
		if t == "" {
			return DefaultPartition, nil
		}
		return EscapePartitionValue(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64), nil
	case time.Time:
		return EscapePartitionValue(t.UTC().Format(time.RFC3339Nano)), nil
	default:
		return "", fmt.Errorf("storage: unsupported partition value %T", v)
	}
}

// ParsePartitionValue converts a directory value back into a value of c's
// type. The default partition yields nil for nullable columns and the zero
// string for non-nullable string columns.
func ParsePartitionValue(s string, c frame.Column) (any, error) {
	if s == DefaultPartition {
		if !c.Nullable && c.Type == frame.String {
			return "", nil
		}
		if !c.Nullable {
			return nil, fmt.Errorf("storage: partition %s: default partition for non-nullable %s column", c.Name, c.Type)
		}
		return nil, nil
	}
	s = UnescapePartitionValue(s)
	switch c.Type {
	case frame.String:
		return s, nil
	case frame.Int64:
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("storage: partition %s=%q: %w", c.Name, s, err)
		}
		return v, nil
	case frame.Float64:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("storage: partition %s=%q: %w", c.Name, s, err)
		}
		return v, nil
	case frame.Timestamp:
		v, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, fmt.Errorf("storage: partition %s=%q: %w", c.Name, s, err)
		}
		return v.UTC(), nil
	}
	return nil, fmt.Errorf("storage: partition %s: unsupported type %s", c.Name, c.Type)
}
