package settlement

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/farmlink/farmlink/internal/shared"
)

func TestStateTransitions(t *testing.T) {
	cases := []struct {
		from State
		t    Transition
		want State
		err  error
	}{
		{StatePending, TransitionApprove, StateApproved, nil},
		{StatePending, TransitionReject, StateRejected, nil},
		{StateApproved, TransitionApprove, StateApproved, shared.ErrAlreadyAudited},
		{StateRejected, TransitionReject, StateRejected, shared.ErrAlreadyAudited},
		{StateCompleted, TransitionReject, StateCompleted, shared.ErrAlreadyAudited},
		{StateRejected, TransitionResubmit, StatePending, nil},
		{StatePending, TransitionResubmit, StatePending, shared.ErrNotRejected},
		{StateApproved, TransitionMarkPaying, StatePaying, nil},
		{StatePaying, TransitionMarkPaying, StatePaying, shared.ErrInvalidStateTransition},
		{StateCompleted, TransitionMarkPaying, StateCompleted, shared.ErrAlreadyPaid},
		{StatePending, TransitionMarkPaying, StatePending, shared.ErrNotApproved},
		{StateRejected, TransitionCompletePayment, StateRejected, shared.ErrNotApproved},
		{StateApproved, TransitionCompletePayment, StateCompleted, nil},
		{StatePaying, TransitionCompletePayment, StateCompleted, nil},
		{StateCompleted, TransitionCompletePayment, StateCompleted, shared.ErrAlreadyPaid},
		{StatePaying, TransitionDelete, StateDeleted, nil},
		{StateCompleted, TransitionDelete, StateCompleted, shared.ErrAlreadyPaid},
		{StateDeleted, TransitionDelete, StateDeleted, shared.ErrAlreadyDeleted},
		{StateDeleted, TransitionApprove, StateDeleted, shared.ErrAlreadyDeleted},
	}
	for _, tc := range cases {
		got, err := tc.from.Next(tc.t)
		require.Equal(t, tc.want, got, "%s --%s-->", tc.from, tc.t)
		if tc.err == nil {
			require.NoError(t, err)
		} else {
			require.ErrorIs(t, err, tc.err, "%s --%s-->", tc.from, tc.t)
		}
	}
}

func TestStateProjections(t *testing.T) {
	cases := []struct {
		s       State
		from    State
		audit   AuditStatus
		payment PaymentStatus
	}{
		{StatePending, "", AuditPending, PaymentUnpaid},
		{StateRejected, "", AuditRejected, PaymentUnpaid},
		{StateApproved, "", AuditApproved, PaymentUnpaid},
		{StatePaying, "", AuditApproved, PaymentPaying},
		{StateCompleted, "", AuditApproved, PaymentPaid},
		{StateDeleted, StatePaying, AuditApproved, PaymentPaying},
		{StateDeleted, "", AuditPending, PaymentUnpaid},
	}
	for _, tc := range cases {
		require.Equal(t, tc.audit, tc.s.AuditStatus(tc.from), tc.s)
		require.Equal(t, tc.payment, tc.s.PaymentStatus(tc.from), tc.s)
	}
	require.True(t, StatePaying.Frozen())
	require.False(t, StateRejected.Frozen())
}
