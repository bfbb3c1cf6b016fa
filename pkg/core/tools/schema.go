package tools

import (
	"reflect"
	"strings"

	"github.com/voxloop-go/voxloop/pkg/core/types"
)

// SchemaForType generates a JSON schema from a Go type, honoring struct
// tags:
//
//	json:"name"        - field name in JSON
//	desc:"description" - field description
//	enum:"a,b,c"       - enum values
func SchemaForType(t reflect.Type) *types.JSONSchema {
	if t == nil {
		return &types.JSONSchema{}
	}
	return schemaFromType(t)
}

func schemaFromType(t reflect.Type) *types.JSONSchema {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	switch t.Kind() {
	case reflect.Struct:
		return objectSchema(t)
	case reflect.Slice, reflect.Array:
		return &types.JSONSchema{Type: "array", Items: schemaFromType(t.Elem())}
	case reflect.String:
		return &types.JSONSchema{Type: "string"}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &types.JSONSchema{Type: "integer"}
	case reflect.Float32, reflect.Float64:
		return &types.JSONSchema{Type: "number"}
	case reflect.Bool:
		return &types.JSONSchema{Type: "boolean"}
	case reflect.Map:
		return &types.JSONSchema{Type: "object"}
	case reflect.Interface:
		return &types.JSONSchema{}
	default:
		return &types.JSONSchema{Type: "string"}
	}
}

func objectSchema(t reflect.Type) *types.JSONSchema {
	schema := &types.JSONSchema{
		Type:       "object",
		Properties: make(map[string]types.JSONSchema),
		Required:   []string{},
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		jsonTag := field.Tag.Get("json")
		if jsonTag == "-" {
			continue
		}

		name := field.Name
		omitempty := false
		if jsonTag != "" {
			parts := strings.Split(jsonTag, ",")
			if parts[0] != "" {
				name = parts[0]
			}
			for _, part := range parts[1:] {
				if part == "omitempty" {
					omitempty = true
				}
			}
		}

		fieldSchema := schemaFromType(field.Type)
		if desc := field.Tag.Get("desc"); desc != "" {
			fieldSchema.Description = desc
		}
		if enum := field.Tag.Get("enum"); enum != "" {
			fieldSchema.Enum = splitEnum(enum)
		}
		schema.Properties[name] = *fieldSchema

		if field.Type.Kind() != reflect.Ptr && !omitempty {
			schema.Required = append(schema.Required, name)
		}
	}
	return schema
}

func splitEnum(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
