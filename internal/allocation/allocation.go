// Package allocation implements the requested/approved/rejected/issued
// quantity bookkeeping shared by requisitions and production orders.
package allocation

import "fms/internal/apperr"

// Status is an approval decision for a single line or a whole document.
type Status string

const (
	Pending           Status = "pending"
	Approved          Status = "approved"
	Rejected          Status = "rejected"
	PartiallyApproved Status = "partially_approved"
)

// Line is one allocatable row. Approved+Rejected never exceeds Requested and
// Issued never exceeds Approved.
type Line struct {
	ID        int64
	ItemID    int64
	Requested int64
	Approved  int64
	Rejected  int64
	Issued    int64
}

// Remaining is the approved quantity not yet issued.
func (l Line) Remaining() int64 {
	return l.Approved - l.Issued
}

// ValidateDecision checks an approval decision against the requested bound.
func ValidateDecision(entity string, line Line, approved, rejected int64) error {
	if approved < 0 {
		return apperr.Invalid(entity, line.ID, "approved_quantity", 0, "must not be negative, got %d", approved)
	}
	if rejected < 0 {
		return apperr.Invalid(entity, line.ID, "rejected_quantity", 0, "must not be negative, got %d", rejected)
	}
	if approved+rejected > line.Requested {
		return apperr.Invalid(entity, line.ID, "quantity", line.Requested,
			"approved %d + rejected %d exceeds requested quantity", approved, rejected)
	}
	if approved < line.Issued {
		return apperr.Invalid(entity, line.ID, "approved_quantity", line.Issued,
			"cannot approve less than the %d already issued", line.Issued)
	}
	return nil
}

// Classify maps a decision to a line status. A full approval or full
// rejection needs the other side to be zero.
func Classify(requested, approved, rejected int64) Status {
	switch {
	case approved == 0 && rejected == 0:
		return Pending
	case approved == requested && rejected == 0:
		return Approved
	case rejected == requested && approved == 0:
		return Rejected
	default:
		return PartiallyApproved
	}
}

// Aggregate derives a document status from its line statuses. The result
// does not depend on the order of statuses.
func Aggregate(statuses []Status) Status {
	if len(statuses) == 0 {
		return Pending
	}
	var approved, rejected, partial int
	for _, s := range statuses {
		switch s {
		case Approved:
			approved++
		case Rejected:
			rejected++
		case PartiallyApproved:
			partial++
		}
	}
	switch {
	case partial > 0:
		return PartiallyApproved
	case approved == len(statuses):
		return Approved
	case rejected == len(statuses):
		return Rejected
	default:
		// includes a mix of fully approved and fully rejected lines
		return Pending
	}
}

// Request asks to issue Quantity against the line with id LineID.
type Request struct {
	LineID   int64 `json:"line_id"`
	Quantity int64 `json:"quantity"`
}

// Allocation is a validated issuance of Quantity against Line.
type Allocation struct {
	Line        Line
	Quantity    int64
	NewIssued   int64
	FullyIssued bool
}

// PlanIssuance validates every request before anything is written. Each
// quantity must be positive, fit the line's remaining approved amount and
// fit the stock on hand for its inventory item. Both bounds are cumulative
// across requests in the batch. The first violation fails the whole batch.
func PlanIssuance(entity string, lines map[int64]Line, requests []Request, stock map[int64]int64) ([]Allocation, error) {
	if len(requests) == 0 {
		return nil, apperr.Invalid(entity, 0, "items", 1, "at least one line is required")
	}
	issued := make(map[int64]int64, len(requests))
	drawn := make(map[int64]int64, len(requests))
	out := make([]Allocation, 0, len(requests))

	for _, req := range requests {
		line, ok := lines[req.LineID]
		if !ok {
			return nil, &apperr.NotFoundError{Entity: entity, ID: req.LineID, Detail: "line does not belong to this document"}
		}
		if req.Quantity <= 0 {
			return nil, apperr.Invalid(entity, line.ID, "quantity", 0, "must be positive, got %d", req.Quantity)
		}
		already := line.Issued + issued[line.ID]
		remaining := line.Approved - already
		if req.Quantity > remaining {
			return nil, apperr.Invalid(entity, line.ID, "quantity", remaining,
				"requested %d exceeds remaining approved quantity", req.Quantity)
		}
		available := stock[line.ItemID] - drawn[line.ItemID]
		if req.Quantity > available {
			return nil, apperr.Invalid("inventory_item", line.ItemID, "quantity", available,
				"insufficient stock for %s line %d: requested %d", entity, line.ID, req.Quantity)
		}

		issued[line.ID] += req.Quantity
		drawn[line.ItemID] += req.Quantity
		newIssued := already + req.Quantity
		out = append(out, Allocation{
			Line:        line,
			Quantity:    req.Quantity,
			NewIssued:   newIssued,
			FullyIssued: newIssued == line.Approved,
		})
	}
	return out, nil
}

// IssuedStatus reports whether every line with an approved quantity has
// been issued in full.
func IssuedStatus(lines []Line) (complete bool) {
	for _, l := range lines {
		if l.Approved > 0 && l.Issued < l.Approved {
			return false
		}
	}
	return true
}
