package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/MichaelMishaev/signals-sub003/internal/domain/gating"
	"gopkg.in/yaml.v3"
)

// LoadPolicy reads a YAML policy file over the default policy. An empty
// path returns the default. Unknown keys are rejected.
func LoadPolicy(path string) (gating.Policy, error) {
	policy := gating.DefaultPolicy()
	if path == "" {
		return policy, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return gating.Policy{}, fmt.Errorf("read policy %s: %w", path, err)
	}
	return ParsePolicy(data)
}

// ParsePolicy decodes YAML policy data over the default policy.
func ParsePolicy(data []byte) (gating.Policy, error) {
	policy := gating.DefaultPolicy()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&policy); err != nil && !errors.Is(err, io.EOF) {
		return gating.Policy{}, fmt.Errorf("decode policy: %w", err)
	}
	if err := policy.Validate(); err != nil {
		return gating.Policy{}, err
	}
	return policy, nil
}

// MarshalPolicy renders a policy as YAML.
func MarshalPolicy(policy gating.Policy) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(policy); err != nil {
		return nil, fmt.Errorf("encode policy: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode policy: %w", err)
	}
	return buf.Bytes(), nil
}
