// Package normalize converts raw native payloads into canonical bridge objects.
//
// Native builds disagree on field names and on whether optional fields are
// omitted, null or zero. Constructors here decode the payload once, apply the
// same presence rules everywhere and fail with a malformed-payload error
// instead of producing half-built objects.
package normalize

import (
	"bytes"
	"fmt"
	"log"
	"math"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/coachpo/pushbridge/errs"
)

const component = "normalize"

func malformed(what string, raw []byte, err error) error {
	opts := []errs.Option{errs.WithMessage(what), errs.WithPayload(raw)}
	if err != nil {
		opts = append(opts, errs.WithCause(err))
	}
	return errs.New(component, errs.CodeMalformed, opts...)
}

// object is a decoded JSON object with numbers kept as json.Number.
type object map[string]any

func decodeAny(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func decodeObject(raw []byte, what string) (object, error) {
	v, err := decodeAny(raw)
	if err != nil {
		return nil, malformed(what, raw, err)
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, malformed(what, raw, fmt.Errorf("expected object, got %s", kindOf(v)))
	}
	return object(m), nil
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case json.Number, float64:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// Truthy applies JavaScript truthiness to a decoded JSON value.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case json.Number:
		f, err := t.Float64()
		return err == nil && f != 0 && !math.IsNaN(f)
	case float64:
		return t != 0 && !math.IsNaN(t)
	default:
		return true
	}
}

func (o object) has(key string) bool {
	_, ok := o[key]
	return ok
}

// defined reports whether key is present with a non-null value.
func (o object) defined(key string) bool {
	v, ok := o[key]
	return ok && v != nil
}

// gated returns the value of key when it is truthy.
func (o object) gated(key string) any {
	if v := o[key]; Truthy(v) {
		return v
	}
	return nil
}

func (o object) str(key string) (*string, error) {
	v, ok := o[key]
	if !ok || v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("field %s: expected string, got %s", key, kindOf(v))
	}
	return &s, nil
}

func (o object) boolean(key string) (*bool, error) {
	v, ok := o[key]
	if !ok || v == nil {
		return nil, nil
	}
	b, ok := v.(bool)
	if !ok {
		return nil, fmt.Errorf("field %s: expected boolean, got %s", key, kindOf(v))
	}
	return &b, nil
}

func (o object) number(key string) (*json.Number, error) {
	v, ok := o[key]
	if !ok || v == nil {
		return nil, nil
	}
	n, ok := v.(json.Number)
	if !ok {
		return nil, fmt.Errorf("field %s: expected number, got %s", key, kindOf(v))
	}
	return &n, nil
}

func (o object) child(key string) (object, error) {
	v, ok := o[key]
	if !ok || v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("field %s: expected object, got %s", key, kindOf(v))
	}
	return object(m), nil
}

// unwrapValue strips the legacy {"value": v} envelope some native builds use
// for scalar results.
func unwrapValue(raw []byte) (any, error) {
	v, err := decodeAny(raw)
	if err != nil {
		return nil, err
	}
	if m, ok := v.(map[string]any); ok {
		if inner, ok := m["value"]; ok {
			return inner, nil
		}
	}
	return v, nil
}

// Bool decodes a boolean query result, bare or wrapped.
func Bool(raw json.RawMessage) (bool, error) {
	v, err := unwrapValue(raw)
	if err != nil {
		return false, malformed("decode boolean result", raw, err)
	}
	b, ok := v.(bool)
	if !ok {
		return false, malformed("decode boolean result", raw, fmt.Errorf("expected boolean, got %s", kindOf(v)))
	}
	return b, nil
}

// String decodes a string query result, bare or wrapped.
func String(raw json.RawMessage) (string, error) {
	v, err := unwrapValue(raw)
	if err != nil {
		return "", malformed("decode string result", raw, err)
	}
	s, ok := v.(string)
	if !ok {
		return "", malformed("decode string result", raw, fmt.Errorf("expected string, got %s", kindOf(v)))
	}
	return s, nil
}

// NullableString decodes a string query result where null means no value.
func NullableString(raw json.RawMessage) (*string, error) {
	v, err := unwrapValue(raw)
	if err != nil {
		return nil, malformed("decode nullable string result", raw, err)
	}
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		return &t, nil
	default:
		return nil, malformed("decode nullable string result", raw, fmt.Errorf("expected string or null, got %s", kindOf(v)))
	}
}

// Int decodes an integer query result, bare or wrapped.
func Int(raw json.RawMessage) (int64, error) {
	v, err := unwrapValue(raw)
	if err != nil {
		return 0, malformed("decode integer result", raw, err)
	}
	n, ok := v.(json.Number)
	if !ok {
		return 0, malformed("decode integer result", raw, fmt.Errorf("expected number, got %s", kindOf(v)))
	}
	i, err := n.Int64()
	if err != nil {
		return 0, malformed("decode integer result", raw, err)
	}
	return i, nil
}

// StringMap decodes an object of string values, such as the tag set.
func StringMap(raw json.RawMessage) (map[string]string, error) {
	v, err := unwrapValue(raw)
	if err != nil {
		return nil, malformed("decode string map", raw, err)
	}
	if v == nil {
		return map[string]string{}, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, malformed("decode string map", raw, fmt.Errorf("expected object, got %s", kindOf(v)))
	}
	out := make(map[string]string, len(m))
	for k, val := range m {
		out[k] = Stringify(val)
	}
	return out, nil
}

// Stringify renders a tag or trigger value the way the native layer expects:
// strings pass through, anything else is JSON encoded.
func Stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

// StringifyValues applies Stringify to every value of m.
func StringifyValues[V any](m map[string]V) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = Stringify(any(v))
	}
	return out
}

// OutcomeValue coerces an outcome value to a JSON number. Values that do not
// parse as a finite number are reported to logger and yield nil, which the
// native side receives as null.
func OutcomeValue(v any, logger *log.Logger) any {
	d, err := toDecimal(v)
	if err != nil {
		if logger != nil {
			logger.Printf("normalize: outcome value %v is not a number: %v", v, err)
		}
		return nil
	}
	return json.Number(d.String())
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch t := v.(type) {
	case decimal.Decimal:
		return t, nil
	case string:
		trimmed := strings.TrimSpace(t)
		if trimmed == "" {
			return decimal.Zero, nil
		}
		return decimal.NewFromString(trimmed)
	case json.Number:
		return decimal.NewFromString(t.String())
	case int:
		return decimal.NewFromInt(int64(t)), nil
	case int32:
		return decimal.NewFromInt32(t), nil
	case int64:
		return decimal.NewFromInt(t), nil
	case float32:
		return floatDecimal(float64(t))
	case float64:
		return floatDecimal(t)
	case bool:
		if t {
			return decimal.NewFromInt(1), nil
		}
		return decimal.Zero, nil
	case nil:
		return decimal.Zero, nil
	default:
		return decimal.Decimal{}, fmt.Errorf("unsupported type %T", v)
	}
}

func floatDecimal(f float64) (decimal.Decimal, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Decimal{}, fmt.Errorf("non-finite value %v", f)
	}
	return decimal.NewFromFloat(f), nil
}
