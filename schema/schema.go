// Package schema generates JSON Schema descriptions from Go types via
// reflection, for use both as the structured-output contract sent to a
// provider and as the stable cache-key ingredient described in the cache
// package.
package schema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Type enumerates the JSON Schema primitive types this generator emits.
type Type string

const (
	TypeString  Type = "string"
	TypeNumber  Type = "number"
	TypeInteger Type = "integer"
	TypeBoolean Type = "boolean"
	TypeObject  Type = "object"
	TypeArray   Type = "array"
)

// JSONSchema is a trimmed JSON Schema representation: enough to describe
// the Go structured-output types this router ships, and to serialize
// deterministically for cache-key derivation.
type JSONSchema struct {
	Type        Type                   `json:"type,omitempty"`
	Description string                 `json:"description,omitempty"`
	Properties  map[string]*JSONSchema `json:"properties,omitempty"`
	Required    []string               `json:"required,omitempty"`
	Items       *JSONSchema            `json:"items,omitempty"`
	Enum        []any                  `json:"enum,omitempty"`
	MinLength   *int                   `json:"minLength,omitempty"`
	MaxLength   *int                   `json:"maxLength,omitempty"`
	Minimum     *float64               `json:"minimum,omitempty"`
	Maximum     *float64               `json:"maximum,omitempty"`
}

// Schema wraps a Go type T with its generated JSON Schema and an optional
// human description, giving Task[T] a typed, serializable structured-output
// contract without the router having to import reflect at the call site.
type Schema[T any] struct {
	json *JSONSchema
	desc string
}

// For generates a Schema for T. description, if non-empty, is preferred by
// Description() over the generated schema's own description field — this
// matches the cache key derivation's preference for an explicit prompt-level
// schema label over a structural one.
func For[T any](description string) (Schema[T], error) {
	var zero T
	g := newGenerator()
	js, err := g.generate(reflect.TypeOf(zero))
	if err != nil {
		return Schema[T]{}, fmt.Errorf("schema: generate for %T: %w", zero, err)
	}
	return Schema[T]{json: js, desc: description}, nil
}

// JSONSchema returns the generated schema, usable by provider adapters that
// need to send a structured-output contract (e.g. OpenAI's json_schema
// response_format or Anthropic's forced tool_choice).
func (s Schema[T]) JSONSchema() *JSONSchema { return s.json }

// Description returns a stable string identifying this schema for cache-key
// purposes: the explicit description if one was supplied to For, otherwise
// the schema's canonical JSON serialization.
func (s Schema[T]) Description() string {
	if s.desc != "" {
		return s.desc
	}
	if s.json == nil {
		return ""
	}
	b, err := json.Marshal(s.json)
	if err != nil {
		return ""
	}
	return string(b)
}

// Decode unmarshals raw JSON produced by a provider into T.
func (s Schema[T]) Decode(raw []byte) (T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("schema: decode into %T: %w", v, err)
	}
	return v, nil
}

type generator struct {
	visited map[reflect.Type]bool
}

func newGenerator() *generator {
	return &generator{visited: make(map[reflect.Type]bool)}
}

func (g *generator) generate(t reflect.Type) (*JSONSchema, error) {
	if t == nil {
		return nil, fmt.Errorf("cannot generate schema for nil type")
	}
	if t.Kind() == reflect.Ptr {
		return g.generate(t.Elem())
	}
	if g.visited[t] {
		return &JSONSchema{Type: TypeObject}, nil
	}

	switch t.Kind() {
	case reflect.String:
		return &JSONSchema{Type: TypeString}, nil
	case reflect.Bool:
		return &JSONSchema{Type: TypeBoolean}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &JSONSchema{Type: TypeInteger}, nil
	case reflect.Float32, reflect.Float64:
		return &JSONSchema{Type: TypeNumber}, nil
	case reflect.Slice, reflect.Array:
		elem, err := g.generate(t.Elem())
		if err != nil {
			return nil, fmt.Errorf("array element: %w", err)
		}
		return &JSONSchema{Type: TypeArray, Items: elem}, nil
	case reflect.Map:
		// Maps flatten to a generic object; the router's structured-output
		// types are expected to use concrete structs for anything cached.
		return &JSONSchema{Type: TypeObject}, nil
	case reflect.Struct:
		return g.generateStruct(t)
	case reflect.Interface:
		return &JSONSchema{}, nil
	default:
		return nil, fmt.Errorf("unsupported type: %s", t.Kind())
	}
}

func (g *generator) generateStruct(t reflect.Type) (*JSONSchema, error) {
	g.visited[t] = true
	defer func() { g.visited[t] = false }()

	out := &JSONSchema{Type: TypeObject, Properties: make(map[string]*JSONSchema)}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name := jsonFieldName(field)
		if name == "-" {
			continue
		}

		fs, err := g.generate(field.Type)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", field.Name, err)
		}
		applyTag(fs, field)
		if required(field) {
			out.Required = append(out.Required, name)
		}
		out.Properties[name] = fs
	}
	return out, nil
}

func jsonFieldName(field reflect.StructField) string {
	tag := field.Tag.Get("json")
	if tag == "" {
		return field.Name
	}
	name := strings.Split(tag, ",")[0]
	if name == "" {
		return field.Name
	}
	return name
}

func required(field reflect.StructField) bool {
	opts := tagOptions(field.Tag.Get("jsonschema"))
	_, ok := opts["required"]
	return ok
}

func applyTag(s *JSONSchema, field reflect.StructField) {
	opts := tagOptions(field.Tag.Get("jsonschema"))
	if len(opts) == 0 {
		return
	}
	if desc, ok := opts["description"]; ok {
		s.Description = desc
	}
	if enumStr, ok := opts["enum"]; ok {
		for _, v := range strings.Split(enumStr, ",") {
			s.Enum = append(s.Enum, strings.TrimSpace(v))
		}
	}
	if v, ok := opts["minLength"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			s.MinLength = &n
		}
	}
	if v, ok := opts["maxLength"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			s.MaxLength = &n
		}
	}
	if v, ok := opts["minimum"]; ok {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			s.Minimum = &n
		}
	}
	if v, ok := opts["maximum"]; ok {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			s.Maximum = &n
		}
	}
}

// tagOptions parses "key1,key2=value2,key3=value3" into a map. Unlike the
// richer struct-tag grammar elsewhere in the corpus, enum values here are
// expected not to contain commas — this generator only needs to round-trip
// the router's own structured-output types.
func tagOptions(tag string) map[string]string {
	opts := make(map[string]string)
	if tag == "" {
		return opts
	}
	for _, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if idx := strings.Index(part, "="); idx > 0 {
			opts[part[:idx]] = part[idx+1:]
		} else {
			opts[part] = ""
		}
	}
	return opts
}
