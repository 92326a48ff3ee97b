package sleeper

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const schemaBase = "https://huddle.invalid/sleeper/"

// payload names map to schemas/<name>.json.
const (
	payloadUser    = "user"
	payloadLeague  = "league"
	payloadLeagues = "leagues"
	payloadRosters = "rosters"
)

// validator checks upstream bodies against the documented shapes. Violations
// are advisory: the platform adds and drops optional keys between seasons.
type validator struct {
	schemas map[string]*jsonschema.Schema
}

func newValidator() (*validator, error) {
	names := []string{payloadUser, payloadLeague, payloadLeagues, payloadRosters}

	c := jsonschema.NewCompiler()
	for _, name := range names {
		b, err := schemaFS.ReadFile("schemas/" + name + ".json")
		if err != nil {
			return nil, fmt.Errorf("read %s schema: %w", name, err)
		}
		if err := c.AddResource(schemaBase+name+".json", bytes.NewReader(b)); err != nil {
			return nil, fmt.Errorf("add %s schema: %w", name, err)
		}
	}

	v := &validator{schemas: make(map[string]*jsonschema.Schema, len(names))}
	for _, name := range names {
		s, err := c.Compile(schemaBase + name + ".json")
		if err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", name, err)
		}
		v.schemas[name] = s
	}
	return v, nil
}

// check validates body against the named schema. JSON null is accepted
// because Sleeper answers unknown ids with null.
func (v *validator) check(name string, body []byte) error {
	s, ok := v.schemas[name]
	if !ok {
		return fmt.Errorf("no schema %q", name)
	}
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return err
	}
	if doc == nil {
		return nil
	}
	return s.Validate(doc)
}

// warn logs a schema violation without failing the fetch.
func (v *validator) warn(name, endpoint string, body []byte) {
	err := v.check(name, body)
	if err == nil {
		return
	}
	attrs := []any{slog.String("payload", name), slog.String("endpoint", endpoint)}
	var ve *jsonschema.ValidationError
	if errors.As(err, &ve) {
		leaf := ve
		for len(leaf.Causes) > 0 {
			leaf = leaf.Causes[0]
		}
		attrs = append(attrs,
			slog.String("location", leaf.InstanceLocation),
			slog.String("reason", leaf.Message))
	} else {
		attrs = append(attrs, slog.Any("error", err))
	}
	slog.Warn("sleeper payload does not match schema", attrs...)
}
