package persistence

import (
	"bytes"
	"encoding/gob"
)

func init() {
	// Concrete types the stores round-trip through interface payloads.
	gob.Register([]int{})
	gob.Register([]string{})
	gob.Register([]any{})
	gob.Register(map[string]any{})
}

// encodeValue serializes arbitrary Go values using encoding/gob.
// Callers must ensure that values are gob-encodable and that their concrete
// types have been registered with gob.Register where needed.
func encodeValue(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)

	// Encode as interface{} so we can safely decode into interface{}.
	var iv = v
	if err := enc.Encode(&iv); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeValue deserializes a payload produced by encodeValue into T.
func decodeValue[T any](data []byte) (T, error) {
	var zero T
	if len(data) == 0 {
		return zero, nil
	}
	var iv any
	dec := gob.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&iv); err != nil {
		return zero, err
	}
	if iv == nil {
		return zero, nil
	}
	v, ok := iv.(T)
	if !ok {
		return zero, errGobTargetMismatch{}
	}
	return v, nil
}

type errGobTargetMismatch struct{}

func (errGobTargetMismatch) Error() string {
	return "gob: decoded payload not assignable to target type"
}
