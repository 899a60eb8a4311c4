package kernel

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Kind names one of the Signed-Object Kernel's known entity shapes. Each
// Kind has its own bundled JSON Schema and supported schema_version range,
// checked as a structural phase of its own — a structurally invalid or
// unsupported-version object is never reported valid, whatever its signature.
type Kind string

const (
	KindIdentity     Kind = "identity"
	KindCredential   Kind = "credential"
	KindPresentation Kind = "presentation"
)

// schemaSource holds the raw JSON Schema text for each Kind, bundled into
// the binary rather than loaded from disk, so a deployed server always
// structurally validates against the schema it was built with.
var schemaSource = map[Kind]string{
	KindIdentity:     identitySchemaJSON,
	KindCredential:   credentialSchemaJSON,
	KindPresentation: presentationSchemaJSON,
}

// supportedVersionRange is the semver constraint a Kind's schema_version
// field must satisfy. A server built against the 1.x shape of a credential
// rejects a 2.x document rather than silently misreading fields it was
// never taught to parse.
var supportedVersionRange = map[Kind]string{
	KindIdentity:     ">= 1.0.0, < 2.0.0",
	KindCredential:   ">= 1.0.0, < 2.0.0",
	KindPresentation: ">= 1.0.0, < 2.0.0",
}

var (
	compileOnce sync.Once
	compiled    map[Kind]*jsonschema.Schema
	compileErr  error
)

func compileSchemas() (map[Kind]*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		c := jsonschema.NewCompiler()
		for kind, src := range schemaSource {
			name := string(kind) + ".json"
			if err := c.AddResource(name, bytes.NewReader([]byte(src))); err != nil {
				compileErr = fmt.Errorf("kernel: add schema resource %s: %w", name, err)
				return
			}
		}
		out := make(map[Kind]*jsonschema.Schema, len(schemaSource))
		for kind := range schemaSource {
			name := string(kind) + ".json"
			s, err := c.Compile(name)
			if err != nil {
				compileErr = fmt.Errorf("kernel: compile schema %s: %w", name, err)
				return
			}
			out[kind] = s
		}
		compiled = out
	})
	return compiled, compileErr
}

// ValidateStructure runs the structural-check phase for object: it must
// conform to kind's bundled JSON Schema, and its schema_version field —
// when present — must fall inside the range this build supports. Callers
// run this before kernel.Verify and report it as a separate structure_valid
// check; an object that fails it is never reported valid.
func ValidateStructure(kind Kind, object map[string]any) error {
	schemas, err := compileSchemas()
	if err != nil {
		return fmt.Errorf("kernel: schema compilation: %w", err)
	}
	schema, ok := schemas[kind]
	if !ok {
		return fmt.Errorf("kernel: unknown structural-check kind %q", kind)
	}

	data, err := json.Marshal(object)
	if err != nil {
		return fmt.Errorf("kernel: marshal candidate object: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("kernel: decode candidate object: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("kernel: structural check failed: %w", err)
	}

	return validateVersionRange(kind, object)
}

func validateVersionRange(kind Kind, object map[string]any) error {
	raw, ok := fieldAny(object, "schema_version", "schemaVersion")
	if !ok {
		return nil // not every stored revision carries an explicit schema_version
	}
	vs, ok := raw.(string)
	if !ok {
		return fmt.Errorf("kernel: schema_version must be a string")
	}
	v, err := semver.NewVersion(vs)
	if err != nil {
		return fmt.Errorf("kernel: invalid schema_version %q: %w", vs, err)
	}
	constraint, err := semver.NewConstraint(supportedVersionRange[kind])
	if err != nil {
		return fmt.Errorf("kernel: invalid supported-range constraint for %s: %w", kind, err)
	}
	if !constraint.Check(v) {
		return fmt.Errorf("kernel: schema_version %s is outside the supported range %s for %s", vs, supportedVersionRange[kind], kind)
	}
	return nil
}

func fieldAny(object map[string]any, names ...string) (any, bool) {
	for _, name := range names {
		if v, ok := object[name]; ok {
			return v, true
		}
	}
	return nil, false
}

const identitySchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["agent_id", "display_name", "issuer", "created_at", "expires_at", "signature"],
  "properties": {
    "agent_id": {"type": "string", "minLength": 1},
    "display_name": {"type": "string", "minLength": 1},
    "source_protocol": {"type": "string"},
    "capabilities": {"type": "array", "items": {"type": "string"}},
    "issuer": {
      "type": "object",
      "required": ["did"],
      "properties": {
        "name": {"type": "string"},
        "did": {"type": "string", "minLength": 1}
      }
    },
    "created_at": {"type": "string"},
    "expires_at": {"type": "string"},
    "signature": {"type": "string", "minLength": 1},
    "schema_version": {"type": "string"}
  }
}`

const credentialSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["id", "type", "issuer", "credentialSubject", "proof"],
  "properties": {
    "@context": {"type": "array", "items": {"type": "string"}},
    "id": {"type": "string", "minLength": 1},
    "type": {"type": "array", "items": {"type": "string"}, "minItems": 1},
    "issuer": {
      "type": "object",
      "required": ["id"],
      "properties": {
        "id": {"type": "string", "minLength": 1},
        "name": {"type": "string"}
      }
    },
    "credentialSubject": {
      "type": "object",
      "required": ["id"],
      "properties": {
        "id": {"type": "string", "minLength": 1},
        "claims": {"type": "object"}
      }
    },
    "proof": {
      "type": "object",
      "required": ["type", "proofValue"],
      "properties": {
        "type": {"type": "string"},
        "proofValue": {"type": "string", "minLength": 1}
      }
    },
    "schemaVersion": {"type": "string"}
  }
}`

const presentationSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["id", "type", "holder", "verifiableCredential", "proof"],
  "properties": {
    "@context": {"type": "array", "items": {"type": "string"}},
    "id": {"type": "string", "minLength": 1},
    "type": {"type": "string"},
    "holder": {"type": "string", "minLength": 1},
    "verifiableCredential": {"type": "array", "minItems": 1},
    "proof": {
      "type": "object",
      "required": ["type", "proofValue"],
      "properties": {
        "type": {"type": "string"},
        "proofValue": {"type": "string", "minLength": 1}
      }
    }
  }
}`
