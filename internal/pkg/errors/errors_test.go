package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "without wrapped error",
			err:  New(CodeSystemNotFound, "system not found", http.StatusNotFound),
			want: "SYSTEM_NOT_FOUND: system not found",
		},
		{
			name: "with wrapped error",
			err:  Wrap(fmt.Errorf("db error"), "DB_ERROR", "database failure", http.StatusInternalServerError),
			want: "DB_ERROR: database failure: db error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsAppError_Wrapped(t *testing.T) {
	appErr := ErrAssessmentNotFound()
	wrapped := fmt.Errorf("load draft: %w", appErr)

	got, ok := IsAppError(wrapped)
	if !ok {
		t.Fatal("IsAppError should return true for wrapped AppError")
	}
	if got.Code != CodeAssessmentNotFound {
		t.Errorf("Code = %q, want %q", got.Code, CodeAssessmentNotFound)
	}
}

func TestForbidden_MatchesSentinel(t *testing.T) {
	err := fmt.Errorf("edit: %w", Forbidden(CodeCrossOrganisation, "not your organisation"))

	if !errors.Is(err, ErrForbidden) {
		t.Fatal("errors.Is(err, ErrForbidden) = false, want true")
	}
	if !IsForbidden(err) {
		t.Fatal("IsForbidden() = false, want true")
	}
	if IsForbidden(NotFound(CodeSystemNotFound, "missing")) {
		t.Fatal("IsForbidden(NotFound) = true, want false")
	}
}

func TestValidation(t *testing.T) {
	err := Validation(
		FieldError{Field: "name", Code: CodeFieldDuplicate, Message: "A system with this name Prod already exists."},
		FieldError{Field: "hosting_type", Code: CodeFieldRequired, Message: "This field is required."},
	)

	if err.HTTPStatus != http.StatusOK {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusOK)
	}
	if got := err.FieldMessage("name"); got != "A system with this name Prod already exists." {
		t.Errorf("FieldMessage(name) = %q", got)
	}
	if got := err.FieldMessage("missing"); got != "" {
		t.Errorf("FieldMessage(missing) = %q, want empty", got)
	}

	got, ok := IsValidation(fmt.Errorf("save: %w", err))
	if !ok || len(got.FieldErrors) != 2 {
		t.Fatalf("IsValidation() = (%v, %v), want two field errors", got, ok)
	}
	if _, ok := IsValidation(ErrPermissionDenied("nope")); ok {
		t.Fatal("IsValidation(permission error) = true, want false")
	}
}

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		wantStatus int
	}{
		{"NotFound", NotFound("C", "m"), http.StatusNotFound},
		{"BadRequest", BadRequest("C", "m"), http.StatusBadRequest},
		{"Forbidden", Forbidden("C", "m"), http.StatusForbidden},
		{"Conflict", Conflict("C", "m"), http.StatusConflict},
		{"Internal", Internal("C", "m"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.HTTPStatus != tt.wantStatus {
				t.Errorf("HTTPStatus = %d, want %d", tt.err.HTTPStatus, tt.wantStatus)
			}
		})
	}
}

func TestWithParams_NilSafe(t *testing.T) {
	var nilErr *AppError
	if nilErr.WithParams(map[string]interface{}{"a": 1}) != nil {
		t.Fatal("WithParams on nil receiver should return nil")
	}

	err := NotFound(CodeProfileNotFound, "missing").WithParams(map[string]interface{}{"id": int64(4)})
	if err.Params["id"] != int64(4) {
		t.Fatalf("Params[id] = %v, want 4", err.Params["id"])
	}
}

func TestIsNotFound(t *testing.T) {
	if !IsNotFound(NotFound(CodeSystemNotFound, "missing")) {
		t.Fatal("IsNotFound(NotFound) = false, want true")
	}
	if !IsNotFound(fmt.Errorf("load: %w", ErrNotFound)) {
		t.Fatal("IsNotFound(wrapped sentinel) = false, want true")
	}
	if IsNotFound(Forbidden(CodePermissionDenied, "no")) {
		t.Fatal("IsNotFound(Forbidden) = true, want false")
	}
}
