package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"
)

func TestGenerateAndParseToken(t *testing.T) {
	manager := NewJWTManager("test-secret", time.Hour)

	token, err := manager.GenerateToken("user-1", RoleDriver)
	if err != nil {
		t.Fatalf("GenerateToken() returned error: %v", err)
	}

	claims, err := manager.ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken() returned error: %v", err)
	}
	if claims.UserID != "user-1" {
		t.Errorf("expected user_id 'user-1', got %s", claims.UserID)
	}
	if claims.Role != RoleDriver {
		t.Errorf("expected role driver, got %s", claims.Role)
	}
	if claims.Issuer != "ridepool" {
		t.Errorf("expected issuer 'ridepool', got %s", claims.Issuer)
	}
}

func TestParseToken_WrongSecret(t *testing.T) {
	token, err := NewJWTManager("secret-a", time.Hour).GenerateToken("user-1", RolePassenger)
	if err != nil {
		t.Fatalf("GenerateToken() returned error: %v", err)
	}

	if _, err := NewJWTManager("secret-b", time.Hour).ParseToken(token); err == nil {
		t.Errorf("expected error for token signed with another secret")
	}
}

func TestParseToken_Expired(t *testing.T) {
	manager := NewJWTManager("test-secret", -time.Minute)
	token, err := manager.GenerateToken("user-1", RolePassenger)
	if err != nil {
		t.Fatalf("GenerateToken() returned error: %v", err)
	}

	if _, err := manager.ParseToken(token); err == nil {
		t.Errorf("expected error for expired token")
	}
}

func TestRequire(t *testing.T) {
	manager := NewJWTManager("test-secret", time.Hour)
	token, err := manager.GenerateToken("user-1", RolePassenger)
	if err != nil {
		t.Fatalf("GenerateToken() returned error: %v", err)
	}

	tests := []struct {
		name           string
		header         string
		expectedStatus int
	}{
		{"valid token", "Bearer " + token, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"not a bearer token", "Basic dXNlcjpwYXNz", http.StatusUnauthorized},
		{"malformed token", "Bearer not-a-jwt", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotPrincipal Principal
			handler := manager.Require(func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
				gotPrincipal, _ = FromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/api/v1/bookings", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler(rec, req, nil)

			if rec.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d", tt.expectedStatus, rec.Code)
			}
			if tt.expectedStatus == http.StatusOK {
				if gotPrincipal.ID != "user-1" || gotPrincipal.Role != RolePassenger {
					t.Errorf("handler saw principal %+v", gotPrincipal)
				}
			}
		})
	}
}

func TestFromContext(t *testing.T) {
	if _, ok := FromContext(context.Background()); ok {
		t.Errorf("expected no principal in empty context")
	}

	ctx := WithPrincipal(context.Background(), Principal{ID: "user-1", Role: RoleAdmin})
	principal, ok := FromContext(ctx)
	if !ok {
		t.Fatalf("expected principal in context")
	}
	if !principal.IsAdmin() {
		t.Errorf("expected admin principal")
	}
}
