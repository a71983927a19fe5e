package domain

// Role is the caller's role as asserted by the identity token.
type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleOwner    Role = "OWNER"
)

// Principal is the authenticated caller.
type Principal struct {
	UserID   string
	Role     Role
	StoreIDs []string // Stores controlled by an owner
}

// IsOwner reports whether the caller acts as a store owner.
func (p Principal) IsOwner() bool {
	return p.Role == RoleOwner
}

// IsCustomer reports whether the caller acts as a customer.
func (p Principal) IsCustomer() bool {
	return p.Role == RoleCustomer
}

// ControlsStore reports whether an owner principal controls the given store.
func (p Principal) ControlsStore(storeID string) bool {
	if !p.IsOwner() {
		return false
	}
	for _, id := range p.StoreIDs {
		if id == storeID {
			return true
		}
	}
	return false
}
