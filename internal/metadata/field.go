package metadata

type Field struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Required  bool   `json:"required,omitempty"`
	Unique    bool   `json:"unique,omitempty"`
	Nullable  bool   `json:"nullable,omitempty"`
	Precision int    `json:"precision,omitempty"`
}
