package auth

import (
	"context"
	"fmt"
	"slices"
)

// Actions checked by the substitute backend.
const (
	ActionQuery = "query"
	ActionBatch = "batch"
	ActionDump  = "dump"
	ActionAsk   = "ask"
)

// Authorizer decides whether an identity may perform an action.
type Authorizer interface {
	// Authorize returns nil when permitted, otherwise an error matching
	// ErrForbidden (typically *AuthzError).
	Authorize(ctx context.Context, id *Identity, action string) error
}

// AuthzError represents an authorization failure.
type AuthzError struct {
	Principal string
	Action    string
	Reason    string
}

func (e *AuthzError) Error() string {
	return fmt.Sprintf("auth: %q may not %s: %s", e.Principal, e.Action, e.Reason)
}

// Is matches ErrForbidden.
func (e *AuthzError) Is(target error) bool {
	return target == ErrForbidden
}

// RoleAuthorizer maps actions to the roles allowed to perform them.
// Actions without a rule are open to every authenticated identity.
type RoleAuthorizer struct {
	rules map[string][]string
}

// NewRoleAuthorizer creates a RoleAuthorizer. Empty role lists are ignored.
func NewRoleAuthorizer(rules map[string][]string) *RoleAuthorizer {
	a := &RoleAuthorizer{rules: make(map[string][]string, len(rules))}
	for action, roles := range rules {
		if len(roles) > 0 {
			a.rules[action] = slices.Clone(roles)
		}
	}
	return a
}

// Authorize checks id against the rule for action.
func (a *RoleAuthorizer) Authorize(_ context.Context, id *Identity, action string) error {
	if id == nil {
		return &AuthzError{Action: action, Reason: "no identity"}
	}
	allowed, ok := a.rules[action]
	if !ok {
		return nil
	}
	for _, role := range allowed {
		if id.HasRole(role) {
			return nil
		}
	}
	return &AuthzError{
		Principal: id.Principal,
		Action:    action,
		Reason:    fmt.Sprintf("requires one of %v", allowed),
	}
}

// AuthorizerFunc adapts a function to an Authorizer.
type AuthorizerFunc func(ctx context.Context, id *Identity, action string) error

func (f AuthorizerFunc) Authorize(ctx context.Context, id *Identity, action string) error {
	return f(ctx, id, action)
}

var (
	_ Authorizer = (*RoleAuthorizer)(nil)
	_ Authorizer = AuthorizerFunc(nil)
)
