package persistence

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"time"
)

// Fields is the schemaless body of a record. Values are limited to strings,
// integers, floats, booleans, nil and time.Time; timestamps are stored as
// RFC 3339 strings.
type Fields map[string]any

// Record is a stored document together with its store-assigned identifier.
type Record struct {
	ID     string
	Fields Fields
}

// String returns the string stored under key, or "" when absent.
func (f Fields) String(key string) string {
	switch v := f[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Int returns the integer stored under key, or 0 when absent.
func (f Fields) Int(key string) int {
	switch v := f[key].(type) {
	case int64:
		return int(v)
	case int:
		return v
	case float64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	default:
		return 0
	}
}

// Time parses the RFC 3339 timestamp stored under key.
func (f Fields) Time(key string) time.Time {
	raw, ok := f[key].(string)
	if !ok || raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

var fieldNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidFieldName reports whether name can be used in queries and ordering.
func ValidFieldName(name string) bool {
	return fieldNamePattern.MatchString(name)
}

// EncodeFields serialises fields to the canonical JSON body shared by all stores.
func EncodeFields(fields Fields) ([]byte, error) {
	normalized := make(map[string]any, len(fields))
	for key, value := range fields {
		if !ValidFieldName(key) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidField, key)
		}
		v, err := normalizeValue(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidField, key, err)
		}
		normalized[key] = v
	}
	return json.Marshal(normalized)
}

// DecodeFields parses a JSON body produced by EncodeFields. Whole numbers come
// back as int64 so values compare equal regardless of the backing store.
func DecodeFields(body []byte) (Fields, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	fields := make(Fields, len(raw))
	for key, value := range raw {
		if num, ok := value.(json.Number); ok {
			fields[key] = numberValue(num)
			continue
		}
		fields[key] = value
	}
	return fields, nil
}

// NormalizeValue converts a query argument to the representation DecodeFields yields.
func NormalizeValue(value any) (any, error) {
	v, err := normalizeValue(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidField, err)
	}
	return v, nil
}

// CloneFields returns a deep copy of fields using the canonical encoding.
func CloneFields(fields Fields) (Fields, error) {
	body, err := EncodeFields(fields)
	if err != nil {
		return nil, err
	}
	return DecodeFields(body)
}

func normalizeValue(value any) (any, error) {
	switch v := value.(type) {
	case nil, string, bool:
		return v, nil
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint:
		return int64(v), nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case float32:
		return floatValue(float64(v)), nil
	case float64:
		return floatValue(v), nil
	case json.Number:
		return numberValue(v), nil
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano), nil
	default:
		return nil, fmt.Errorf("unsupported type %T", value)
	}
}

func floatValue(v float64) any {
	if v == math.Trunc(v) && math.Abs(v) < 1<<53 {
		return int64(v)
	}
	return v
}

func numberValue(num json.Number) any {
	if i, err := num.Int64(); err == nil {
		return i
	}
	if f, err := num.Float64(); err == nil {
		return floatValue(f)
	}
	return num.String()
}
