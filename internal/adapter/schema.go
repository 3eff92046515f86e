package adapter

// PropertyType 枚举参数的 JSON 类型。
type PropertyType string

const (
	TypeString  PropertyType = "string"
	TypeNumber  PropertyType = "number"
	TypeBoolean PropertyType = "boolean"
	TypeObject  PropertyType = "object"
	TypeArray   PropertyType = "array"
)

// Property 描述单个参数字段，Description 面向 LLM 运行时展示。
type Property struct {
	Type        PropertyType `json:"type"`
	Description string       `json:"description"`
	Enum        []string     `json:"enum,omitempty"`
	Default     any          `json:"default,omitempty"`
}

// Schema 是工具参数的 JSON Schema 描述。
type Schema struct {
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}
