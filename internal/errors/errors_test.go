package errors

import (
	"fmt"
	"testing"
)

func TestChronicleError_Error(t *testing.T) {
	err := &ChronicleError{
		Code:    ErrNotFound,
		Status:  404,
		Message: "note not found",
	}

	expected := "NOT_FOUND: note not found"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestNewInvalidRequest(t *testing.T) {
	err := NewInvalidRequest("event name is required")

	if err.Code != ErrInvalidRequest {
		t.Errorf("Code = %q, want %q", err.Code, ErrInvalidRequest)
	}
	if err.Status != 400 {
		t.Errorf("Status = %d, want 400", err.Status)
	}
	if err.Message != "event name is required" {
		t.Errorf("Message = %q, want %q", err.Message, "event name is required")
	}
}

func TestNewNotFound(t *testing.T) {
	err := NewNotFound("Events/Battle_of_Midway.md")

	if err.Code != ErrNotFound {
		t.Errorf("Code = %q, want %q", err.Code, ErrNotFound)
	}
	if err.Status != 404 {
		t.Errorf("Status = %d, want 404", err.Status)
	}
	if err.Details["identifier"] != "Events/Battle_of_Midway.md" {
		t.Errorf("Details[identifier] = %v, want %q", err.Details["identifier"], "Events/Battle_of_Midway.md")
	}
}

func TestNewCancelled(t *testing.T) {
	err := NewCancelled("collect")

	if err.Code != ErrCancelled {
		t.Errorf("Code = %q, want %q", err.Code, ErrCancelled)
	}
	if err.Status != 499 {
		t.Errorf("Status = %d, want 499", err.Status)
	}
	if err.Message != "operation cancelled: collect" {
		t.Errorf("Message = %q", err.Message)
	}
}

func TestNewConfig(t *testing.T) {
	err := NewConfig("R1_API_KEY is not set")

	if err.Code != ErrConfig {
		t.Errorf("Code = %q, want %q", err.Code, ErrConfig)
	}
	if err.Status != 500 {
		t.Errorf("Status = %d, want 500", err.Status)
	}
}

func TestNewFile(t *testing.T) {
	t.Run("with error", func(t *testing.T) {
		err := NewFile("/vault/Events/x.md", fmt.Errorf("permission denied"))

		if err.Code != ErrFile {
			t.Errorf("Code = %q, want %q", err.Code, ErrFile)
		}
		if err.Message != "permission denied" {
			t.Errorf("Message = %q, want %q", err.Message, "permission denied")
		}
		if err.Details["path"] != "/vault/Events/x.md" {
			t.Errorf("Details[path] = %v", err.Details["path"])
		}
	})

	t.Run("with nil", func(t *testing.T) {
		err := NewFile("/vault/Events/x.md", nil)
		if err.Message != "file error" {
			t.Errorf("Message = %q, want %q", err.Message, "file error")
		}
	})
}

func TestNewAPI(t *testing.T) {
	t.Run("with upstream status", func(t *testing.T) {
		err := NewAPI(429, "rate limited")

		if err.Code != ErrAPI {
			t.Errorf("Code = %q, want %q", err.Code, ErrAPI)
		}
		if err.Status != 502 {
			t.Errorf("Status = %d, want 502", err.Status)
		}
		if err.Details["upstream_status"] != 429 {
			t.Errorf("Details[upstream_status] = %v, want 429", err.Details["upstream_status"])
		}
	})

	t.Run("transport failure", func(t *testing.T) {
		err := NewAPI(0, "connection refused")
		if _, ok := err.Details["upstream_status"]; ok {
			t.Error("Details[upstream_status] should be absent for status 0")
		}
	})
}

func TestNewInternal(t *testing.T) {
	t.Run("with error", func(t *testing.T) {
		originalErr := fmt.Errorf("database connection failed")
		err := NewInternal(originalErr)

		if err.Code != ErrInternal {
			t.Errorf("Code = %q, want %q", err.Code, ErrInternal)
		}
		if err.Status != 500 {
			t.Errorf("Status = %d, want 500", err.Status)
		}
		// Message should be generic (not leak internal details)
		if err.Message != "an internal error occurred" {
			t.Errorf("Message = %q, want %q", err.Message, "an internal error occurred")
		}
		// Original error should be stored in Details for logging
		if err.Details["internal_error"] != "database connection failed" {
			t.Errorf("Details[internal_error] = %q, want %q", err.Details["internal_error"], "database connection failed")
		}
	})

	t.Run("with nil", func(t *testing.T) {
		err := NewInternal(nil)

		if err.Message != "an internal error occurred" {
			t.Errorf("Message = %q, want %q", err.Message, "an internal error occurred")
		}
		// Details should be empty but not nil
		if err.Details == nil {
			t.Error("Details should not be nil")
		}
	})
}

func TestIs(t *testing.T) {
	t.Run("matching code", func(t *testing.T) {
		err := NewNotFound("test")
		if !Is(err, ErrNotFound) {
			t.Error("Is() = false, want true")
		}
	})

	t.Run("non-matching code", func(t *testing.T) {
		err := NewNotFound("test")
		if Is(err, ErrAPI) {
			t.Error("Is() = true, want false")
		}
	})

	t.Run("non-ChronicleError", func(t *testing.T) {
		err := fmt.Errorf("plain error")
		if Is(err, ErrNotFound) {
			t.Error("Is() = true, want false for non-ChronicleError")
		}
	})

	t.Run("wrapped ChronicleError", func(t *testing.T) {
		inner := NewNotFound("test")
		wrapped := fmt.Errorf("refs[0]: %w", inner)
		if !Is(wrapped, ErrNotFound) {
			t.Error("Is() = false, want true for wrapped ChronicleError")
		}
		if Is(wrapped, ErrAPI) {
			t.Error("Is() = true, want false for wrong code on wrapped ChronicleError")
		}
	})
}
