package profile

import _ "embed"

//go:embed profiles/production.yaml
var productionYAML []byte

//go:embed profiles/field-dev.yaml
var fieldDevYAML []byte

// builtinProfiles maps profile names to their embedded YAML content.
var builtinProfiles = map[string][]byte{
	"production": productionYAML,
	"field-dev":  fieldDevYAML,
}
