package errors

import (
	"database/sql"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTaxonomyStatusAndCode(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"unauthorized", NewUnauthorizedError(""), http.StatusUnauthorized, "UNAUTHORIZED"},
		{"no parameters", NewNoParametersError("default_autocrud_things_create"), http.StatusBadRequest, "NO_PARAMETERS"},
		{"not found", NewNotFoundError("module", "nope"), http.StatusNotFound, "NOT_FOUND"},
		{"introspection", NewSchemaIntrospectionError("default", sql.ErrConnDone), http.StatusInternalServerError, "SCHEMA_INTROSPECTION"},
		{"generation", NewModuleGenerationError("x", sql.ErrNoRows), http.StatusInternalServerError, "MODULE_GENERATION"},
		{"plain", fmt.Errorf("boom"), http.StatusInternalServerError, "UNKNOWN_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, GetHTTPStatus(tt.err))
			assert.Equal(t, tt.code, GetErrorCode(tt.err))
		})
	}
}

func TestHelpersSeeThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("invoking: %w", NewUnauthorizedError("denied"))
	assert.True(t, IsUnauthorized(wrapped))
	assert.False(t, IsNoParameters(wrapped))
	assert.Equal(t, http.StatusUnauthorized, GetHTTPStatus(wrapped))

	cause := NewSchemaIntrospectionError("default", sql.ErrConnDone)
	assert.ErrorIs(t, cause, sql.ErrConnDone)
	assert.True(t, IsSchemaIntrospection(fmt.Errorf("open: %w", cause)))
	assert.True(t, IsModuleGeneration(NewModuleGenerationError("x", nil)))

	assert.True(t, IsNotFound(fmt.Errorf("route: %w", NewNotFoundError("module", "nope"))))
	assert.False(t, IsNotFound(wrapped))
	assert.True(t, IsValidation(fmt.Errorf("body: %w", NewValidationError("body", "not json"))))
	assert.False(t, IsValidation(NewNotFoundError("module", "nope")))
}

func TestUnauthorizedMessage(t *testing.T) {
	assert.Equal(t, "Unauthorized", NewUnauthorizedError("").Error())
	assert.Equal(t, "Unauthorized: nope", NewUnauthorizedError("nope").Error())
}

func TestToResponse(t *testing.T) {
	resp := ToResponse(NewNoParametersError("m"))
	assert.Equal(t, "NO_PARAMETERS", resp.Code)
	assert.Equal(t, "no parameters passed to m", resp.Message)
}
