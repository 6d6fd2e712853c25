package errors

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatForUser_BasicError(t *testing.T) {
	err := New(ErrCodeNotFound, "memory 'abc123' not found", nil)

	result := FormatForUser(err)

	assert.Contains(t, result, "memory 'abc123' not found")
	assert.Contains(t, result, "[ERR_404_NOT_FOUND]")
}

func TestFormatForUser_WithCause(t *testing.T) {
	err := New(ErrCodeStorageFailure, "failed to open database", errors.New("disk full"))

	result := FormatForUser(err)

	assert.Contains(t, result, "cause: disk full")
}

func TestFormatForUser_StandardError(t *testing.T) {
	err := errors.New("something went wrong")

	result := FormatForUser(err)

	assert.Contains(t, result, "something went wrong")
}

func TestFormatForUser_NilError(t *testing.T) {
	result := FormatForUser(nil)

	assert.Empty(t, result)
}

func TestFormatJSON_BasicError(t *testing.T) {
	err := New(ErrCodeNotFound, "memory not found", nil).
		WithDetail("id", "abc123")

	data, jsonErr := FormatJSON(err)
	require.NoError(t, jsonErr)

	var result map[string]any
	require.NoError(t, json.Unmarshal(data, &result))

	assert.Equal(t, ErrCodeNotFound, result["code"])
	assert.Equal(t, "memory not found", result["message"])
	assert.Equal(t, string(CategoryNotFound), result["category"])

	details, ok := result["details"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "abc123", details["id"])
}

func TestFormatJSON_StandardError(t *testing.T) {
	err := errors.New("generic error")

	data, jsonErr := FormatJSON(err)
	require.NoError(t, jsonErr)

	var result map[string]any
	require.NoError(t, json.Unmarshal(data, &result))

	assert.Equal(t, ErrCodeStorageFailure, result["code"])
	assert.Equal(t, "generic error", result["message"])
}

func TestFormatJSON_NilError(t *testing.T) {
	data, err := FormatJSON(nil)

	assert.NoError(t, err)
	assert.JSONEq(t, "null", string(data))
}

func TestFormatJSON_WithCause(t *testing.T) {
	cause := errors.New("underlying error")
	err := New(ErrCodeStorageFailure, "operation failed", cause)

	data, jsonErr := FormatJSON(err)
	require.NoError(t, jsonErr)

	var result map[string]any
	require.NoError(t, json.Unmarshal(data, &result))

	assert.Equal(t, "underlying error", result["cause"])
}

func TestFormatForLog_BasicError(t *testing.T) {
	err := New(ErrCodeIndexDegraded, "ann index unavailable", nil).
		WithDetail("component", "vector_index")

	attrs := FormatForLog(err)

	assert.Equal(t, ErrCodeIndexDegraded, attrs["error_code"])
	assert.Equal(t, "ann index unavailable", attrs["message"])
	assert.Equal(t, string(CategoryIndexDegraded), attrs["category"])
	assert.Equal(t, "vector_index", attrs["detail_component"])
}

func TestFormatForLog_NilError(t *testing.T) {
	assert.Nil(t, FormatForLog(nil))
}

func TestFormatForLog_StandardError(t *testing.T) {
	attrs := FormatForLog(errors.New("plain error"))

	assert.Equal(t, "plain error", attrs["error"])
}
