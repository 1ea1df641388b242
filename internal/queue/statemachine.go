package queue

// Item lifecycle transition rules.
//
//	READY ─────────┐
//	               ▼
//	            LEASED ──────────► CONFIRMED
//	               ▲    │           (ConfirmTake)
//	               │    ▼
//	           REDELIVERY
//	         (lease expired)

// ValidTransition reports whether moving an item from → to is a legal state
// change.
//
// Production code drives transitions through Take, ConfirmTake and the expiry
// sweeper, which already enforce the rules; tests use this to check what they
// observe.
func ValidTransition(from, to Status) bool {
	switch from {
	case StatusReady, StatusRedelivery:
		// Both ready containers feed Take only.
		return to == StatusLeased
	case StatusLeased:
		// LEASED can:
		//   → CONFIRMED   consumer confirmed in time
		//   → REDELIVERY  the sweeper found the lease expired
		return to == StatusConfirmed || to == StatusRedelivery
	case StatusConfirmed:
		// Terminal. Re-adding the same id creates a new READY item.
		return false
	}
	return false
}
