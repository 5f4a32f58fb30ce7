//go:build !sonic

// Package jsonx selects the JSON codec at build time: goccy/go-json by
// default, bytedance/sonic with `-tags sonic`.
package jsonx

import (
	"github.com/goccy/go-json"
)

const Codec = "goccy/go-json"

func Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return json.MarshalIndent(v, prefix, indent)
}

func Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
