// Package rpc holds the pieces the connect services share.
package rpc

import (
	"encoding/json"
	"fmt"

	"connectrpc.com/connect"
)

// JSONCodec lets connect handlers exchange plain Go structs as JSON. It is
// registered under the "json" name so application/json requests use it.
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONCodec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

// HandlerOptions returns the options every service is mounted with.
func HandlerOptions(extra ...connect.HandlerOption) []connect.HandlerOption {
	return append([]connect.HandlerOption{connect.WithCodec(JSONCodec{})}, extra...)
}

// Procedure returns the full procedure path of a method.
func Procedure(service, method string) string {
	return "/" + service + "/" + method
}
