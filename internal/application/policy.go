package application

import "strings"

// AuthorizationPolicy decides which identities may run administrator operations.
type AuthorizationPolicy interface {
	IsAdministrator(identity Identity) bool
}

// PolicyFunc adapts a function to AuthorizationPolicy.
type PolicyFunc func(identity Identity) bool

// IsAdministrator implements AuthorizationPolicy.
func (f PolicyFunc) IsAdministrator(identity Identity) bool {
	return f(identity)
}

// AdminAllowlist grants administrator rights to a fixed set of emails,
// compared case-insensitively.
type AdminAllowlist struct {
	emails map[string]struct{}
}

// NewAdminAllowlist builds an allowlist from emails. Blank entries are ignored.
func NewAdminAllowlist(emails ...string) AdminAllowlist {
	set := make(map[string]struct{}, len(emails))
	for _, email := range emails {
		if normalized := normalizeEmail(email); normalized != "" {
			set[normalized] = struct{}{}
		}
	}
	return AdminAllowlist{emails: set}
}

// IsAdministrator implements AuthorizationPolicy.
func (a AdminAllowlist) IsAdministrator(identity Identity) bool {
	_, ok := a.emails[normalizeEmail(identity.Email)]
	return ok
}

// Len returns the number of administrators.
func (a AdminAllowlist) Len() int {
	return len(a.emails)
}

func requireIdentity(caller Identity) error {
	if !caller.Present() {
		return ErrUnauthenticated
	}
	return nil
}

// requireAdmin must run before any administrator mutation.
func requireAdmin(policy AuthorizationPolicy, caller Identity) error {
	if err := requireIdentity(caller); err != nil {
		return err
	}
	if policy == nil || !policy.IsAdministrator(caller) {
		return ErrUnauthorized
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
