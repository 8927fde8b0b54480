// internal/assets/schema.go
package assets

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Payload schemas per cache type. Updates are rejected when the new payload
// would break the consumers of that dataset.
var cacheTypeSchemas = map[CacheType]string{
	PersonalityData: `{
		"type": "object",
		"required": ["archetypes", "affinity"],
		"properties": {
			"archetypes": {"type": "array", "items": {"type": "string"}, "minItems": 1},
			"affinity": {"type": "object", "minProperties": 1}
		}
	}`,
	AlgorithmConfig: `{
		"type": "object",
		"required": ["algorithms"],
		"properties": {
			"algorithms": {"type": "object", "minProperties": 1}
		}
	}`,
	ScoringWeights: `{
		"type": "object",
		"minProperties": 1
	}`,
	StaticData: `{
		"type": "object",
		"minProperties": 1
	}`,
}

func validatePayload(cacheType CacheType, payload []byte) error {
	schema, ok := cacheTypeSchemas[cacheType]
	if !ok {
		return fmt.Errorf("no schema registered for cache type %q", cacheType)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schema),
		gojsonschema.NewBytesLoader(payload),
	)
	if err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}

	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("payload invalid: %s", strings.Join(msgs, "; "))
	}
	return nil
}
