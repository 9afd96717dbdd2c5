package auth

import (
	"context"
	"errors"
	"testing"
)

func TestRoleAuthorizer(t *testing.T) {
	a := NewRoleAuthorizer(map[string][]string{
		ActionDump:  {"admin", "ops"},
		ActionBatch: {},
	})
	admin := &Identity{Principal: "root", Roles: []string{"admin"}}
	reader := &Identity{Principal: "app", Roles: []string{"reader"}}

	tests := []struct {
		name    string
		id      *Identity
		action  string
		allowed bool
	}{
		{"role matches", admin, ActionDump, true},
		{"role missing", reader, ActionDump, false},
		{"no rule", reader, ActionQuery, true},
		{"empty rule ignored", reader, ActionBatch, true},
		{"no identity", nil, ActionQuery, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := a.Authorize(context.Background(), tt.id, tt.action)
			if tt.allowed {
				if err != nil {
					t.Errorf("Authorize = %v, want nil", err)
				}
				return
			}
			var ae *AuthzError
			if !errors.Is(err, ErrForbidden) || !errors.As(err, &ae) || ae.Action != tt.action {
				t.Errorf("Authorize = %v, want *AuthzError for %s", err, tt.action)
			}
		})
	}
}
