// internal/common/validation/schemas.go
package validation

// EvaluateRequestSchema describes the body of an evaluation request. Values
// may be strings, numbers or booleans; anything else is rejected before it
// reaches the engine.
const EvaluateRequestSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["responses"],
  "properties": {
    "responses": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["fieldId"],
        "properties": {
          "fieldId": {"type": "string", "minLength": 1},
          "value": {"type": ["string", "number", "boolean", "null"]}
        }
      }
    },
    "callerTier": {"type": ["string", "null"]},
    "includeUpgradePrompts": {"type": ["boolean", "null"]}
  }
}`

// DefinitionSchema checks the document shape of a rule-set definition. Value
// level rules (range ordering, numeric base score, tier names) belong to
// engine.NewRuleSet.
const DefinitionSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["projectId", "fields", "ranges"],
  "properties": {
    "projectId": {"type": "string", "minLength": 1},
    "version": {"type": "integer", "minimum": 0},
    "baseScore": {},
    "weights": {"type": "object", "additionalProperties": {"type": "number"}},
    "authorEmail": {"type": "string"},
    "fields": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["id", "kind"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "kind": {"enum": ["choice", "numeric", "scale"]},
          "weight": {"type": "number"},
          "requiredTier": {"type": "string"},
          "upgradeMessage": {"type": "string"},
          "min": {"type": "number"},
          "max": {"type": "number"},
          "choices": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["value"],
              "properties": {
                "id": {"type": "string"},
                "value": {"type": "string"},
                "weight": {"type": "number"},
                "explanation": {"type": "string"},
                "payload": {"type": "object"}
              }
            }
          }
        }
      }
    },
    "ranges": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["min", "max", "label"],
        "properties": {
          "min": {"type": "number"},
          "max": {"type": "number"},
          "label": {"type": "string", "minLength": 1},
          "explanation": {"type": "string"}
        }
      }
    }
  }
}`

var (
	EvaluateRequest = MustValidator(EvaluateRequestSchema)
	Definition      = MustValidator(DefinitionSchema)
)
