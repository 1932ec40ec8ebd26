package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	err := NewAppError(ErrCodeInvalidInput, "test error", 400)
	expected := "INVALID_INPUT: test error"
	if err.Error() != expected {
		t.Errorf("Error() = %v, want %v", err.Error(), expected)
	}
}

func TestAppError_WithCause(t *testing.T) {
	originalErr := errors.New("original error")
	err := WrapError(originalErr, ErrCodeInternal, "wrapped error", 500)

	if err.Cause != originalErr {
		t.Errorf("Cause = %v, want %v", err.Cause, originalErr)
	}
	if !strings.Contains(err.Error(), "original error") {
		t.Errorf("Error() should contain cause, got: %v", err.Error())
	}
	if !errors.Is(err, originalErr) {
		t.Errorf("errors.Is should see the cause through Unwrap")
	}
}

func TestAppError_WithContext(t *testing.T) {
	err := NewAppError(ErrCodeInvalidInput, "test error", 400)
	err.WithContext("field", "value").WithContext("count", 42)

	if err.Context["field"] != "value" {
		t.Errorf("Context[field] = %v, want 'value'", err.Context["field"])
	}
	if err.Context["count"] != 42 {
		t.Errorf("Context[count] = %v, want 42", err.Context["count"])
	}
}

func TestNewNotFoundError(t *testing.T) {
	err := NewNotFoundError("Player")
	if err.Code != ErrCodeNotFound {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeNotFound)
	}
	if err.HTTPStatus != http.StatusNotFound {
		t.Errorf("HTTPStatus = %v, want 404", err.HTTPStatus)
	}
	if err.Message != "Player not found" {
		t.Errorf("Message = %q", err.Message)
	}
}

func TestNewValidationError(t *testing.T) {
	err := NewValidationError([]FieldError{{Field: "name", Message: "is required"}})
	if err.HTTPStatus != http.StatusBadRequest {
		t.Errorf("HTTPStatus = %v, want 400", err.HTTPStatus)
	}
	fields, ok := err.Context["fields"].([]FieldError)
	if !ok || len(fields) != 1 || fields[0].Field != "name" {
		t.Errorf("unexpected fields context: %#v", err.Context["fields"])
	}
}

func TestNewInternalError_HidesCause(t *testing.T) {
	err := NewInternalError(errors.New("pq: connection refused"))
	if err.Message != "Internal server error" {
		t.Errorf("Message = %q, cause leaked", err.Message)
	}
}

func TestGetAppError(t *testing.T) {
	appErr := NewForbiddenError("Sem permissão")
	wrapped := fmt.Errorf("handler: %w", appErr)

	if got := GetAppError(wrapped); got != appErr {
		t.Errorf("GetAppError() = %v, want %v", got, appErr)
	}
	if GetAppError(errors.New("plain")) != nil {
		t.Errorf("GetAppError() should return nil for plain errors")
	}
	if !HasCode(wrapped, ErrCodeForbidden) {
		t.Errorf("HasCode() should match wrapped forbidden error")
	}
	if IsAppError(nil) {
		t.Errorf("IsAppError(nil) should be false")
	}
}
