package auth

import (
	"fmt"
	"slices"

	"github.com/go-faster/errors"

	"github.com/nikhilbhutani/crmgateway/internal/tenant"
)

type Permission = string

const (
	PermRead   Permission = "read"
	PermWrite  Permission = "write"
	PermDelete Permission = "delete"
	PermAdmin  Permission = "admin"
)

type Scope = string

const (
	ScopeContacts      Scope = "contacts"
	ScopeConversations Scope = "conversations"
	ScopeMessages      Scope = "messages"
	ScopeDeals         Scope = "deals"
	ScopeTasks         Scope = "tasks"
	ScopeWebhooks      Scope = "webhooks"
	ScopeWildcard      Scope = "*"
)

var ErrForbidden = errors.New("forbidden")

// Authorize checks that ac holds every scope in scopes and, when perm is not
// empty, the permission perm. Reads pass an empty perm. The admin permission
// satisfies any perm; the wildcard scope satisfies any scope.
func Authorize(ac *tenant.AuthContext, scopes []Scope, perm Permission) error {
	if ac == nil {
		return fmt.Errorf("%w: no credential", ErrForbidden)
	}

	if !slices.Contains(ac.Scopes, ScopeWildcard) {
		for _, s := range scopes {
			if !slices.Contains(ac.Scopes, s) {
				return fmt.Errorf("%w: API key lacks scope %q", ErrForbidden, s)
			}
		}
	}

	if perm == "" || slices.Contains(ac.Permissions, PermAdmin) {
		return nil
	}
	if !slices.Contains(ac.Permissions, perm) {
		return fmt.Errorf("%w: API key lacks permission %q", ErrForbidden, perm)
	}
	return nil
}
