package validation

import (
	"testing"

	"notification-workers/internal/common/errors"
	"notification-workers/pkg/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newValidator(t *testing.T) *Validator {
	t.Helper()
	reg, err := registry.Default()
	require.NoError(t, err)
	v, err := NewValidator(reg)
	require.NoError(t, err)
	return v
}

func fieldNames(t *testing.T, err error) []string {
	t.Helper()
	se, ok := errors.AsStandard(err)
	require.True(t, ok)
	require.Equal(t, errors.ErrCodeValidation, se.Code)
	names := make([]string, 0, len(se.Fields))
	for _, f := range se.Fields {
		names = append(names, f.Field)
	}
	return names
}

// ==========================
// ValidateJob
// ==========================

func TestValidateJob_SendEmail(t *testing.T) {
	v := newValidator(t)

	err := v.ValidateJob("notification-send-email", map[string]interface{}{
		"userId":    "u-1",
		"companyId": "c-1",
		"email": map[string]interface{}{
			"to":       []interface{}{map[string]interface{}{"email": "a@example.com"}},
			"subject":  "Hello",
			"priority": float64(5),
		},
	})
	assert.NoError(t, err)
}

func TestValidateJob_ReportsFieldPaths(t *testing.T) {
	v := newValidator(t)

	err := v.ValidateJob("notification-send-email", map[string]interface{}{
		"userId": "u-1",
		"email": map[string]interface{}{
			"to":       []interface{}{map[string]interface{}{"name": "No address"}},
			"priority": float64(42),
		},
	})

	require.Error(t, err)
	names := fieldNames(t, err)
	assert.Contains(t, names, "companyId")
	assert.Contains(t, names, "email.subject")
	assert.Contains(t, names, "email.to[0].email")
	assert.Contains(t, names, "email.priority")
}

func TestValidateJob_BulkDocumentsKind(t *testing.T) {
	v := newValidator(t)

	err := v.ValidateJob("notification-send-bulk-documents", map[string]interface{}{
		"userId":    "u-1",
		"companyId": "c-1",
		"documents": []interface{}{
			map[string]interface{}{"kind": "invoice", "documentId": "inv-1"},
			map[string]interface{}{"kind": "receipt", "documentId": "r-1"},
		},
	})

	require.Error(t, err)
	assert.Equal(t, []string{"documents[1].kind"}, fieldNames(t, err))
}

func TestValidateJob_ReadOperationsAcceptEmptyInput(t *testing.T) {
	v := newValidator(t)

	assert.NoError(t, v.ValidateJob("notification-stats", nil))
	assert.NoError(t, v.ValidateJob("notification-history", map[string]interface{}{"page": float64(2)}))

	err := v.ValidateJob("notification-history", map[string]interface{}{"status": "archived"})
	require.Error(t, err)
	assert.Equal(t, []string{"status"}, fieldNames(t, err))
}

func TestValidateJob_UnknownTaskTypeAccepted(t *testing.T) {
	v := newValidator(t)
	assert.False(t, v.HasSchema("something-else"))
	assert.NoError(t, v.ValidateJob("something-else", map[string]interface{}{"x": 1}))
}

// ==========================
// Helpers
// ==========================

func TestJoinPath(t *testing.T) {
	tests := []struct {
		parts []string
		want  string
	}{
		{[]string{"emails", "0", "to"}, "emails[0].to"},
		{[]string{"email", "to", "3", "email"}, "email.to[3].email"},
		{[]string{"(root)"}, "(root)"},
		{[]string{"subject"}, "subject"},
		{[]string{"", "page"}, "page"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, JoinPath(tt.parts...))
		})
	}
}

func TestIsEmail(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"jane@example.com", true},
		{"jane.doe+billing@sub.example.fr", true},
		{" jane@example.com ", true},
		{"", false},
		{"jane", false},
		{"jane@", false},
		{"@example.com", false},
		{"Jane <jane@example.com>", false},
		{"jane@example", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, IsEmail(tt.in))
		})
	}
}

func TestIsBlank(t *testing.T) {
	assert.True(t, IsBlank("   "))
	assert.False(t, IsBlank(" a "))
}
