// Package params converts logical parameter values into their wire
// representation for the action API. Lists join with the reserved "|"
// separator, dates render as ISO-8601 timestamps, and numbers use plain
// decimal conversion.
package params

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Separator joins list values on the wire. The API reserves it, so it can
// never appear in a key.
const Separator = "|"

// altSeparator is the unit separator fallback used when a list element
// itself contains "|". The wire format marks its use with a leading
// occurrence of the separator.
const altSeparator = "\x1f"

var (
	// ErrUnsupportedValue indicates a value kind the encoder does not know.
	// This is a programmer error and is never retried.
	ErrUnsupportedValue = errors.New("unsupported parameter value type")

	// ErrBinaryValue indicates a binary blob outside a multipart request.
	// Binary payloads are only encodable as multipart form fields.
	ErrBinaryValue = errors.New("binary value requires a multipart request")
)

// Encode converts a logical value into its wire string. Rules are applied
// recursively for nested lists.
func Encode(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case bool:
		if v {
			return "1", nil
		}
		return "", nil
	case int:
		return strconv.Itoa(v), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case time.Time:
		return v.Format(time.RFC3339), nil
	case []string:
		return joinList(v)
	case []int:
		elems := make([]string, len(v))
		for i, n := range v {
			elems[i] = strconv.Itoa(n)
		}
		return joinList(elems)
	case []int64:
		elems := make([]string, len(v))
		for i, n := range v {
			elems[i] = strconv.FormatInt(n, 10)
		}
		return joinList(elems)
	case []any:
		elems := make([]string, len(v))
		for i, item := range v {
			enc, err := Encode(item)
			if err != nil {
				return "", err
			}
			elems[i] = enc
		}
		return joinList(elems)
	case []byte:
		return "", ErrBinaryValue
	case fmt.Stringer:
		return v.String(), nil
	default:
		return "", fmt.Errorf("%w: %T", ErrUnsupportedValue, value)
	}
}

// joinList joins encoded list elements. When an element contains the
// reserved separator the unit-separator form is used instead: the joined
// string starts with the alternative separator so the server can detect it.
func joinList(elems []string) (string, error) {
	for _, e := range elems {
		if strings.Contains(e, Separator) {
			return altSeparator + strings.Join(elems, altSeparator), nil
		}
	}
	return strings.Join(elems, Separator), nil
}
