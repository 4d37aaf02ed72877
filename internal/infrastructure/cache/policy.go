package cache

import (
	"fmt"
	"time"
)

// PolicyKind selects when a cached value is considered stale
type PolicyKind int

const (
	PolicyPeriodic PolicyKind = iota
	PolicyPerpetual
	PolicyOnLoginLogout
	PolicyOnSubscription
)

// Policy is the refresh policy of a cached value
type Policy struct {
	Kind   PolicyKind
	Period time.Duration
}

// Periodic refetches once a value is older than d
func Periodic(d time.Duration) Policy { return Policy{Kind: PolicyPeriodic, Period: d} }

// Perpetual keeps a value until it is invalidated
func Perpetual() Policy { return Policy{Kind: PolicyPerpetual} }

// OnLoginLogout keeps a value until the next login or logout event
func OnLoginLogout() Policy { return Policy{Kind: PolicyOnLoginLogout} }

// OnSubscription refetches for the first subscriber after the value was idle
func OnSubscription() Policy { return Policy{Kind: PolicyOnSubscription} }

func (p Policy) fresh(fetchedAt, now time.Time) bool {
	if p.Kind != PolicyPeriodic {
		return true
	}
	return now.Sub(fetchedAt) < p.Period
}

// storeTTL lets the store evict entries that can no longer be fresh
func (p Policy) storeTTL() time.Duration {
	if p.Kind == PolicyPeriodic {
		return p.Period
	}
	return 0
}

func (p Policy) String() string {
	switch p.Kind {
	case PolicyPeriodic:
		return fmt.Sprintf("periodic(%s)", p.Period)
	case PolicyPerpetual:
		return "perpetual"
	case PolicyOnLoginLogout:
		return "onLoginLogout"
	default:
		return "onSubscription"
	}
}
