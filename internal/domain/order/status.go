package order

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusPaid       Status = "paid"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// transitions is the single source of truth for permitted status changes.
// Delivered and cancelled are terminal: they have no outgoing edges.
var transitions = map[Status][]Status{
	StatusPending:    {StatusPaid, StatusCancelled},
	StatusPaid:       {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered},
	StatusDelivered:  {},
	StatusCancelled:  {},
}

// Valid reports whether s is one of the defined order states.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether s admits no further transitions.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0 && s.Valid()
}

// Cancellable reports whether an order in state s may still be cancelled
// by its owner.
func (s Status) Cancellable() bool {
	switch s {
	case StatusPending, StatusPaid, StatusProcessing:
		return true
	default:
		return false
	}
}

// CanTransitionTo validates the move from s to next against the transition
// table. It returns an *InvalidTransitionError naming both states when the
// move is not permitted.
func (s Status) CanTransitionTo(next Status) error {
	for _, allowed := range transitions[s] {
		if next == allowed {
			return nil
		}
	}
	return &InvalidTransitionError{From: s, To: next}
}

// States returns all defined order states.
func States() []Status {
	return []Status{
		StatusPending, StatusPaid, StatusProcessing,
		StatusShipped, StatusDelivered, StatusCancelled,
	}
}
