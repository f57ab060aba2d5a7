package domain

import "time"

type Role string

const (
	RoleUser   Role = "USER"
	RoleAdmin  Role = "ADMIN"
	RoleSystem Role = "SYSTEM"
)

// rank orders roles for "required role <= actor role" checks.
func (r Role) rank() int {
	switch r {
	case RoleUser:
		return 1
	case RoleAdmin:
		return 2
	case RoleSystem:
		return 3
	default:
		return 0
	}
}

// AtLeast reports whether r satisfies the required role.
func (r Role) AtLeast(required Role) bool {
	return r.rank() >= required.rank()
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r.rank() > 0
}

type Tier string

const (
	TierFree         Tier = "free"
	TierStarter      Tier = "starter"
	TierProfessional Tier = "professional"
	TierEnterprise   Tier = "enterprise"
)

// Unmetered reports whether the tier has no monthly usage cap.
func (t Tier) Unmetered() bool { return t == TierEnterprise }

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierStarter, TierProfessional, TierEnterprise:
		return true
	}
	return false
}

// DefaultMaxUsage is the monthly generation cap for each tier. Enterprise is
// unmetered; the stored max_usage value is ignored for it.
func (t Tier) DefaultMaxUsage() int {
	switch t {
	case TierStarter:
		return 100
	case TierProfessional:
		return 1000
	case TierEnterprise:
		return 0
	default:
		return 5 // free
	}
}

// UserRecord is the subscription/role record for a subject. Created lazily on
// first authenticated access with USER/free defaults.
type UserRecord struct {
	SubjectID     string
	Email         string
	Role          Role
	Tier          Tier
	MonthlyUsage  int
	MaxUsage      int    // ignored when Tier is enterprise
	BillingPeriod string // YYYY-MM
	Status        string
	CreatedAt     time.Time
	LastActiveAt  time.Time
	CreatedBy     string
	UpdatedBy     string
}

// BillingPeriodOf formats t as the YYYY-MM billing period key.
func BillingPeriodOf(t time.Time) string {
	return t.UTC().Format("2006-01")
}
