package broker

import (
	"bytes"
	"encoding/json"
)

// encodeJSON marshals v without HTML escaping so echoed payloads keep
// their characters.
func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func errorFrame(code, message string) []byte {
	data, err := encodeJSON(ErrorMessage{Error: code, Message: message})
	if err != nil {
		return []byte(`{"error":"server_error","message":"Internal Server Error"}`)
	}
	return data
}
