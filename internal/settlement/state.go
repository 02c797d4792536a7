package settlement

import (
	"fmt"

	"github.com/farmlink/farmlink/internal/shared"
)

// State is the single lifecycle state of a settlement. The audit and payment
// statuses shown to clients are projections of it, so they cannot disagree.
type State string

const (
	StatePending   State = "pending"
	StateRejected  State = "rejected"
	StateApproved  State = "approved"
	StatePaying    State = "paying"
	StateCompleted State = "completed"
	StateDeleted   State = "deleted"
)

// AuditStatus is the audit projection of a State.
type AuditStatus string

const (
	AuditPending  AuditStatus = "pending"
	AuditApproved AuditStatus = "approved"
	AuditRejected AuditStatus = "rejected"
)

// PaymentStatus is the payment projection of a State.
type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "unpaid"
	PaymentPaying PaymentStatus = "paying"
	PaymentPaid   PaymentStatus = "paid"
)

// Transition names a state machine edge.
type Transition string

const (
	TransitionCreate          Transition = "create"
	TransitionApprove         Transition = "approve"
	TransitionReject          Transition = "reject"
	TransitionResubmit        Transition = "resubmit"
	TransitionMarkPaying      Transition = "mark_paying"
	TransitionCompletePayment Transition = "complete_payment"
	TransitionDelete          Transition = "delete"
)

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StatePending, StateRejected, StateApproved, StatePaying, StateCompleted, StateDeleted:
		return true
	}
	return false
}

// AuditStatus projects the audit status. A deleted settlement reports the
// status it had when it was deleted, given as from.
func (s State) AuditStatus(from State) AuditStatus {
	switch s {
	case StatePending:
		return AuditPending
	case StateRejected:
		return AuditRejected
	case StateApproved, StatePaying, StateCompleted:
		return AuditApproved
	case StateDeleted:
		if from == StateDeleted || !from.Valid() {
			return AuditPending
		}
		return from.AuditStatus(StateDeleted)
	}
	panic(fmt.Sprintf("settlement: unknown state %q", s))
}

// PaymentStatus projects the payment status.
func (s State) PaymentStatus(from State) PaymentStatus {
	switch s {
	case StatePending, StateRejected, StateApproved:
		return PaymentUnpaid
	case StatePaying:
		return PaymentPaying
	case StateCompleted:
		return PaymentPaid
	case StateDeleted:
		if from == StateDeleted || !from.Valid() {
			return PaymentUnpaid
		}
		return from.PaymentStatus(StateDeleted)
	}
	panic(fmt.Sprintf("settlement: unknown state %q", s))
}

// Frozen reports whether the deduction breakdown has been fixed by approval.
func (s State) Frozen() bool {
	switch s {
	case StateApproved, StatePaying, StateCompleted:
		return true
	}
	return false
}

// Next returns the state reached by applying t to s, or the domain error
// describing why t is not allowed.
func (s State) Next(t Transition) (State, error) {
	if s == StateDeleted {
		return s, shared.ErrAlreadyDeleted
	}
	switch t {
	case TransitionApprove, TransitionReject:
		if s != StatePending {
			return s, shared.Errorf(shared.CodeAlreadyAudited, "settlement is already %s", s)
		}
		if t == TransitionApprove {
			return StateApproved, nil
		}
		return StateRejected, nil
	case TransitionResubmit:
		if s != StateRejected {
			return s, shared.ErrNotRejected
		}
		return StatePending, nil
	case TransitionMarkPaying:
		switch s {
		case StateApproved:
			return StatePaying, nil
		case StatePaying:
			return s, shared.Errorf(shared.CodeInvalidStateTransition, "settlement is already being paid")
		case StateCompleted:
			return s, shared.ErrAlreadyPaid
		default:
			return s, shared.ErrNotApproved
		}
	case TransitionCompletePayment:
		switch s {
		case StateApproved, StatePaying:
			return StateCompleted, nil
		case StateCompleted:
			return s, shared.ErrAlreadyPaid
		default:
			return s, shared.ErrNotApproved
		}
	case TransitionDelete:
		if s == StateCompleted {
			return s, shared.Errorf(shared.CodeAlreadyPaid, "a paid settlement cannot be deleted")
		}
		return StateDeleted, nil
	}
	return s, shared.Errorf(shared.CodeInvalidStateTransition, "unknown transition %q", t)
}
