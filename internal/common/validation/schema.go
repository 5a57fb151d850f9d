// Package validation checks job variables against the activity input
// schemas of the registry and provides the field-level helpers shared by
// the dispatch operations.
package validation

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"notification-workers/internal/common/errors"
	"notification-workers/pkg/registry"

	"github.com/xeipuuv/gojsonschema"
)

// Message returned with every schema violation.
const InvalidInputMessage = "Erreur de validation"

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// Validator holds one compiled input schema per task type.
type Validator struct {
	schemas map[string]*gojsonschema.Schema
}

// NewValidator compiles the input schema of every activity in reg.
func NewValidator(reg *registry.ActivityRegistry) (*Validator, error) {
	v := &Validator{schemas: make(map[string]*gojsonschema.Schema, len(reg.Activities))}
	for _, a := range reg.Activities {
		if len(a.InputSchema) == 0 {
			continue
		}
		schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(a.InputSchema))
		if err != nil {
			return nil, fmt.Errorf("compile input schema of %s: %w", a.TaskType, err)
		}
		v.schemas[a.TaskType] = schema
	}
	return v, nil
}

// ValidateJob checks vars against the input schema of taskType. A task type
// without a schema accepts anything.
func (v *Validator) ValidateJob(taskType string, vars map[string]interface{}) error {
	schema, ok := v.schemas[taskType]
	if !ok {
		return nil
	}
	if vars == nil {
		vars = map[string]interface{}{}
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(vars))
	if err != nil {
		return errors.NewValidationError(InvalidInputMessage, errors.FieldError{
			Field:   "(root)",
			Message: err.Error(),
		})
	}
	if result.Valid() {
		return nil
	}

	fields := make([]errors.FieldError, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		fields = append(fields, errors.FieldError{
			Field:   fieldPath(re),
			Message: re.Description(),
		})
	}
	sort.SliceStable(fields, func(i, j int) bool { return fields[i].Field < fields[j].Field })
	return errors.NewValidationError(InvalidInputMessage, fields...)
}

// HasSchema reports whether taskType is known to the validator.
func (v *Validator) HasSchema(taskType string) bool {
	_, ok := v.schemas[taskType]
	return ok
}

// fieldPath turns gojsonschema's dotted context (emails.0.to) into the
// bracketed form used in responses (emails[0].to). Missing required
// properties are reported on the property itself.
func fieldPath(re gojsonschema.ResultError) string {
	field := re.Field()
	if re.Type() == "required" {
		if prop, ok := re.Details()["property"].(string); ok {
			if field == "(root)" {
				field = prop
			} else {
				field = field + "." + prop
			}
		}
	}
	return JoinPath(strings.Split(field, ".")...)
}

// JoinPath builds emails[0].to from ("emails", "0", "to").
func JoinPath(parts ...string) string {
	var b strings.Builder
	for _, p := range parts {
		if p == "" {
			continue
		}
		if isIndex(p) && b.Len() > 0 {
			b.WriteString("[" + p + "]")
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(p)
	}
	return b.String()
}

func isIndex(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// IsEmail reports whether s is a bare, well-formed mailbox address.
func IsEmail(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || !emailPattern.MatchString(s) {
		return false
	}
	return gojsonschema.FormatCheckers.IsFormat("email", s)
}

// IsBlank reports whether s is empty after trimming.
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
