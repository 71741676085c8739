// Package identity models the acting principal for order operations.
package identity

// Role distinguishes customers from pharmacy staff
type Role string

const (
	RoleCustomer   Role = "customer"
	RolePharmacist Role = "pharmacist"
)

// Actor is the resolved caller of an operation
type Actor struct {
	ID   int64
	Role Role
}

// CanReview reports whether the actor holds the reviewer capability
func (a Actor) CanReview() bool {
	return a.Role == RolePharmacist
}
