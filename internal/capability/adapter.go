package capability

import (
	"fmt"

	"github.com/vsmcore/vsmcore/internal/errs"
)

// adapter forwards invocations of a local capability to an external
// tool, validating inputs against the tool's schema before the remote
// ever sees them.
type adapter struct {
	connector Connector
	server    string
	tool      ExternalTool
}

func newAdapter(connector Connector, server string, tool ExternalTool) *adapter {
	return &adapter{connector: connector, server: server, tool: tool}
}

// Invoke validates args against the tool's input schema, calls the
// remote, and returns its result unchanged — the VSM capability result
// shape is just "whatever the remote returned, or an error".
func (a *adapter) Invoke(args map[string]any) (any, error) {
	if field, reason := validateAgainstSchema(args, a.tool.InputSchema); reason != "" {
		return nil, errs.New(errs.KindValidationFailed, fmt.Errorf("%w: %s", ErrValidation, reason), map[string]string{"field": field, "reason": reason})
	}
	return a.connector.Call(a.server, a.tool.Name, args)
}

// validateAgainstSchema checks the subset of JSON Schema this system
// needs: a top-level object schema naming required properties. A nil
// or property-less schema always passes. Returns the offending field
// name and a human-readable reason, or ("", "") when args validate.
func validateAgainstSchema(args map[string]any, schema map[string]any) (field, reason string) {
	if schema == nil {
		return "", ""
	}
	required, _ := schema["required"].([]any)
	for _, r := range required {
		name, ok := r.(string)
		if !ok {
			continue
		}
		if _, present := args[name]; !present {
			return name, fmt.Sprintf("missing required field %q", name)
		}
	}
	return "", ""
}
