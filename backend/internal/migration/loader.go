package migration

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	apperrors "relgraph/backend/pkg/errors"
)

// LoadDefinitions reads definitions from a YAML file. An empty path yields
// the built-in tables. The result has derived defaults applied and is
// validated.
func LoadDefinitions(path string) (*Definitions, error) {
	if path == "" {
		defs := DefaultDefinitions()
		return defs, defs.Validate()
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.NewBaseError(apperrors.ErrorTypeConfig, "", fmt.Sprintf("open definitions file %s", path), err)
	}
	defer f.Close()

	return DecodeDefinitions(f)
}

// DecodeDefinitions parses YAML definitions from r. Unknown keys are rejected.
func DecodeDefinitions(r io.Reader) (*Definitions, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var defs Definitions
	if err := dec.Decode(&defs); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, apperrors.NewConfigMissingRequired("entities")
		}
		return nil, apperrors.NewBaseError(apperrors.ErrorTypeConfig, "", "parse definitions", err)
	}

	defs.applyDefaults()
	if err := defs.Validate(); err != nil {
		return nil, err
	}
	return &defs, nil
}

// Encode renders the effective definitions in the file format read by
// LoadDefinitions.
func (d *Definitions) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
