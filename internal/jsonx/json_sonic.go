//go:build sonic

package jsonx

import (
	"github.com/bytedance/sonic"
)

const Codec = "bytedance/sonic"

// ConfigStd keeps map keys sorted, matching the default codec's output.
var api = sonic.ConfigStd

func Marshal(v any) ([]byte, error) {
	return api.Marshal(v)
}

func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return api.MarshalIndent(v, prefix, indent)
}

func Unmarshal(data []byte, v any) error {
	return api.Unmarshal(data, v)
}
