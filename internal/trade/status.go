package trade

// edges is the trade state graph. Any transition not listed here is refused.
var edges = map[Status][]Status{
	StatusPending:            {StatusAccepted, StatusRejected, StatusCountered, StatusCancelled},
	StatusAccepted:           {StatusInitiatorShipped, StatusReceiverShipped, StatusCancelled},
	StatusInitiatorShipped:   {StatusBothShipped, StatusInitiatorDelivered, StatusDisputed},
	StatusReceiverShipped:    {StatusBothShipped, StatusReceiverDelivered, StatusDisputed},
	StatusInitiatorDelivered: {StatusBothShipped, StatusDisputed},
	StatusReceiverDelivered:  {StatusBothShipped, StatusDisputed},
	StatusBothShipped:        {StatusCompleted, StatusDisputed},
	StatusDisputed:           {StatusResolved},
}

// CanTransition reports whether from -> to is an edge of the state graph.
// Staying in the same status is always allowed.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, s := range edges[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (s Status) Valid() bool {
	for _, v := range Statuses {
		if v == s {
			return true
		}
	}
	return false
}

// IsTerminal reports completed, cancelled, rejected and resolved.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusRejected, StatusResolved:
		return true
	}
	return false
}

// IsActive reports whether the trade still holds item locks.
// A countered offer is superseded and no longer active.
func (s Status) IsActive() bool {
	return !s.IsTerminal() && s != StatusCountered
}

// Disputable reports the shipped and delivered statuses.
func (s Status) Disputable() bool {
	switch s {
	case StatusInitiatorShipped, StatusReceiverShipped, StatusBothShipped,
		StatusInitiatorDelivered, StatusReceiverDelivered:
		return true
	}
	return false
}

// shippable reports statuses in which an unshipped leg may still be shipped.
func (s Status) shippable() bool {
	switch s {
	case StatusAccepted, StatusInitiatorShipped, StatusReceiverShipped,
		StatusInitiatorDelivered, StatusReceiverDelivered:
		return true
	}
	return false
}

// inTransit reports statuses in which receipts may be confirmed.
func (s Status) inTransit() bool {
	return s == StatusAccepted || s.Disputable()
}

func shippedStatus(p Party) Status {
	if p == PartyInitiator {
		return StatusInitiatorShipped
	}
	return StatusReceiverShipped
}

func deliveredStatus(shipper Party) Status {
	if shipper == PartyInitiator {
		return StatusInitiatorDelivered
	}
	return StatusReceiverDelivered
}

// afterShipment computes the status once p's leg is recorded.
func afterShipment(t *Trade, p Party) Status {
	if t.ShipmentOf(p.Other()) != nil {
		return StatusBothShipped
	}
	return shippedStatus(p)
}

// afterReceipt computes the status once p confirms receipt of the other party's leg.
func afterReceipt(t *Trade, p Party) Status {
	if t.InitiatorReceipt != nil && t.ReceiverReceipt != nil {
		return StatusCompleted
	}
	if t.Status == StatusBothShipped {
		return StatusBothShipped
	}
	return deliveredStatus(p.Other())
}
