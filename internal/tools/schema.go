package tools

// Property describes one field of a tool's JSON Schema input shape.
type Property struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
	Default     any      `json:"default,omitempty"`
}

// SchemaBuilder assembles a JSON Schema object for a tool's InputSchema(),
// the same incremental-builder shape detent uses in heal/tools/schema.go
// so the Executor's prompt construction (§4.6b: "JSON schema of the four
// tools") can render all four tool schemas uniformly.
type SchemaBuilder struct {
	properties map[string]Property
	required   []string
	order      []string
}

// NewSchema starts a new SchemaBuilder.
func NewSchema() *SchemaBuilder {
	return &SchemaBuilder{properties: make(map[string]Property)}
}

func (b *SchemaBuilder) add(name string, prop Property, required bool) *SchemaBuilder {
	if _, exists := b.properties[name]; !exists {
		b.order = append(b.order, name)
	}
	b.properties[name] = prop
	if required {
		b.required = append(b.required, name)
	}
	return b
}

// AddString adds a required string property.
func (b *SchemaBuilder) AddString(name, description string) *SchemaBuilder {
	return b.add(name, Property{Type: "string", Description: description}, true)
}

// AddOptionalString adds an optional string property.
func (b *SchemaBuilder) AddOptionalString(name, description string) *SchemaBuilder {
	return b.add(name, Property{Type: "string", Description: description}, false)
}

// AddInteger adds a required integer property.
func (b *SchemaBuilder) AddInteger(name, description string) *SchemaBuilder {
	return b.add(name, Property{Type: "integer", Description: description}, true)
}

// AddOptionalInteger adds an optional integer property with a default.
func (b *SchemaBuilder) AddOptionalInteger(name, description string, def int) *SchemaBuilder {
	return b.add(name, Property{Type: "integer", Description: description, Default: def}, false)
}

// AddOptionalEnum adds an optional string property restricted to values.
func (b *SchemaBuilder) AddOptionalEnum(name, description string, values []string) *SchemaBuilder {
	return b.add(name, Property{Type: "string", Description: description, Enum: values}, false)
}

// Build finalizes the schema into the map[string]any shape the Anthropic
// tool-use API (and the prompt preamble) expects.
func (b *SchemaBuilder) Build() map[string]any {
	props := make(map[string]any, len(b.order))
	for _, name := range b.order {
		props[name] = b.properties[name]
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(b.required) > 0 {
		schema["required"] = b.required
	}
	return schema
}
