// README: Actor identity shared by all modules.
package types

import "fmt"

// ID identifies users, orders and payments across the system.
type ID string

// Role discriminates the authenticated principal performing an operation.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleVendor   Role = "vendor"
	RoleRider    Role = "rider"
	RoleAdmin    Role = "admin"
	// RoleSystem is used for internally driven transitions (webhook settlement);
	// it never appears in a client token.
	RoleSystem Role = "system"
)

// ParseRole converts a token claim into a Role, rejecting unknown values.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleCustomer, RoleVendor, RoleRider, RoleAdmin:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Actor is the authenticated principal behind a request.
type Actor struct {
	ID   ID
	Role Role
}
