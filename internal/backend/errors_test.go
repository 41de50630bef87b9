package backend

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   Kind
	}{
		{"unauthorized", 401, "", KindAuthorizationDenied},
		{"forbidden by policy", 403, `{"message":"permission denied for table messages"}`, KindAuthorizationDenied},
		{"missing row", 404, "", KindNotFound},
		{"not acceptable", 406, "", KindNotFound},
		{"conflict status", 409, "", KindConflict},
		{"unique violation in body", 400, `{"code":"23505","message":"duplicate key"}`, KindConflict},
		{"fk violation in body", 400, `{"code":"23503","message":"violates foreign key"}`, KindConflict},
		{"server error", 500, "", KindTransient},
		{"bad gateway", 502, "", KindTransient},
		{"plain bad request", 400, `{"message":"invalid input"}`, KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.status, tt.body)
			if got != tt.want {
				t.Errorf("classify(%d, %q) = %v, want %v", tt.status, tt.body, got, tt.want)
			}
		})
	}
}

func TestIsKindHelpers(t *testing.T) {
	err := httpError("GET chats", 403, "denied")
	if !IsAuthorizationDenied(err) {
		t.Error("IsAuthorizationDenied = false, want true")
	}
	if IsNotFound(err) {
		t.Error("IsNotFound = true for an authorization error")
	}

	// Wrapped errors must still classify.
	wrapped := fmt.Errorf("load chat: %w", httpError("GET chats", 404, ""))
	if !IsNotFound(wrapped) {
		t.Error("IsNotFound = false for wrapped not-found")
	}

	if IsConflict(errors.New("plain")) {
		t.Error("IsConflict = true for a non-backend error")
	}
	if IsConflict(nil) {
		t.Error("IsConflict = true for nil")
	}
}
