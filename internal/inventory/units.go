package inventory

import (
	"sort"

	"github.com/google/uuid"

	"github.com/angelmondragon/vibes-market-backend/pkg/enums"
)

// Unit is one independently tracked stock counter.
type Unit struct {
	Kind enums.UnitKind `json:"kind"`
	ID   uuid.UUID      `json:"id"`
}

func ProductUnit(id uuid.UUID) Unit       { return Unit{Kind: enums.UnitKindProduct, ID: id} }
func ParameterSetUnit(id uuid.UUID) Unit  { return Unit{Kind: enums.UnitKindParameterSet, ID: id} }
func SessionTicketUnit(id uuid.UUID) Unit { return Unit{Kind: enums.UnitKindSessionTicket, ID: id} }

// Item is a requested quantity of a product (optionally a variant) or of a
// session ticket. Exactly one of ProductID and SessionTicketID is set.
type Item struct {
	ProductID       uuid.UUID
	ParameterSetID  *uuid.UUID
	SessionTicketID uuid.UUID
	Quantity        int64
}

// IsTicket reports whether the item reserves a session ticket.
func (i Item) IsTicket() bool {
	return i.SessionTicketID != uuid.Nil
}

// Units lists the counters the item draws from. A variant purchase consumes
// both the parameter set and its product.
func (i Item) Units() []Unit {
	if i.IsTicket() {
		return []Unit{SessionTicketUnit(i.SessionTicketID)}
	}
	units := []Unit{ProductUnit(i.ProductID)}
	if i.ParameterSetID != nil && *i.ParameterSetID != uuid.Nil {
		units = append(units, ParameterSetUnit(*i.ParameterSetID))
	}
	return units
}

// UnitsOf flattens and de-duplicates the units of items, preserving order.
func UnitsOf(items []Item) []Unit {
	seen := make(map[Unit]struct{})
	out := make([]Unit, 0, len(items))
	for _, item := range items {
		for _, unit := range item.Units() {
			if _, ok := seen[unit]; ok {
				continue
			}
			seen[unit] = struct{}{}
			out = append(out, unit)
		}
	}
	return out
}

// Scope selects the lock table a sweep runs against.
type Scope string

const (
	ScopeItems       Scope = "items"
	ScopeExperiences Scope = "experiences"
)

// LockEntry is the slice of a lock row the availability check needs.
type LockEntry struct {
	ID       int64
	UserID   uuid.UUID
	Quantity int64
}

// Remaining is the displayable stock of a unit.
type Remaining struct {
	Quantity  int64 `json:"quantity"`
	Unlimited bool  `json:"unlimited"`
}

// EvaluateLocks decides whether userID may hold its lock on a unit with the
// given static quantity. Capacity is granted first-come-first-served by lock
// id: the user is blocked only when the locks placed up to and including its
// own already exceed the quantity.
func EvaluateLocks(quantity *int64, locks []LockEntry, userID uuid.UUID) enums.StockStatus {
	if quantity == nil {
		return enums.StockStatusInStock
	}
	if *quantity <= 0 {
		return enums.StockStatusOutOfStock
	}

	var total int64
	for _, lock := range locks {
		total += lock.Quantity
	}
	if total <= *quantity {
		return enums.StockStatusInStock
	}

	ordered := append([]LockEntry(nil), locks...)
	sort.Slice(ordered, func(a, b int) bool { return ordered[a].ID < ordered[b].ID })

	var partial int64
	for _, lock := range ordered {
		partial += lock.Quantity
		if lock.UserID == userID {
			break
		}
	}
	if partial > *quantity {
		return enums.StockStatusInsufficient
	}
	return enums.StockStatusInStock
}

// remainingFor subtracts the locks of everyone but excludingUserID.
func remainingFor(quantity *int64, locks []LockEntry, excludingUserID *uuid.UUID) Remaining {
	if quantity == nil {
		return Remaining{Unlimited: true}
	}
	left := *quantity
	for _, lock := range locks {
		if excludingUserID != nil && lock.UserID == *excludingUserID {
			continue
		}
		left -= lock.Quantity
	}
	return Remaining{Quantity: max(left, 0)}
}
