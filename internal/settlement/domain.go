// Package settlement drives the audit and payment workflow of the
// settlement issued for each acquisition.
package settlement

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/farmlink/farmlink/internal/acquisition"
	"github.com/farmlink/farmlink/internal/deduction"
	"github.com/farmlink/farmlink/internal/ledger"
)

// Module is the approvals and idempotency namespace of this package.
const Module = "SETTLEMENT"

// Settlement is the financial instrument for one acquisition.
type Settlement struct {
	ID              uuid.UUID
	No              string
	AcquisitionID   uuid.UUID
	AcquisitionNo   string
	FarmerID        int64
	WarehouseID     int64
	GrossAmount     decimal.Decimal
	Deductions      deduction.Breakdown
	ActualPayment   decimal.Decimal
	State           State
	DeletedFrom     State
	AuditedBy       int64
	AuditedAt       *time.Time
	AuditRemark     string
	RejectReason    string
	PaymentMethod   string
	PaymentRemark   string
	PayingBy        int64
	PayingAt        *time.Time
	PaidBy          int64
	PaidAt          *time.Time
	LedgerAppliedAt *time.Time
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Balanced reports whether gross equals total deduction plus actual payment.
func (s Settlement) Balanced() bool {
	b := s.Deductions
	parts := b.Advance.Add(b.Seed).Add(b.Agricultural)
	return parts.Equal(b.Total) && s.GrossAmount.Equal(b.Total.Add(s.ActualPayment)) && !s.ActualPayment.IsNegative()
}

// resetDeductions discards any breakdown, leaving the full gross payable.
func (s *Settlement) resetDeductions() {
	s.Deductions = deduction.Breakdown{Advance: decimal.Zero, Seed: decimal.Zero, Agricultural: decimal.Zero, Total: decimal.Zero}
	s.ActualPayment = s.GrossAmount
}

// footprint is the statistics an acquisition contributes to the ledger.
func footprint(a acquisition.Acquisition) ledger.StatsDelta {
	return ledger.StatsDelta{Count: 1, Weight: a.NetWeight, Amount: a.TotalAmount}
}

// View is the client representation of a settlement.
type View struct {
	SettlementID          string        `json:"settlementId"`
	AcquisitionID         string        `json:"acquisitionId"`
	FarmerID              int64         `json:"farmerId"`
	WarehouseID           int64         `json:"warehouseId"`
	GrossAmount           string        `json:"grossAmount"`
	AdvanceDeduction      string        `json:"advanceDeduction"`
	SeedDeduction         string        `json:"seedDeduction"`
	AgriculturalDeduction string        `json:"agriculturalDeduction"`
	TotalDeduction        string        `json:"totalDeduction"`
	ActualPayment         string        `json:"actualPayment"`
	Status                State         `json:"status"`
	AuditStatus           AuditStatus   `json:"auditStatus"`
	PaymentStatus         PaymentStatus `json:"paymentStatus"`
	AuditRemark           string        `json:"auditRemark,omitempty"`
	RejectReason          string        `json:"rejectReason,omitempty"`
	PaymentMethod         string        `json:"paymentMethod,omitempty"`
	AuditedAt             *time.Time    `json:"auditedAt,omitempty"`
	PaidAt                *time.Time    `json:"paidAt,omitempty"`
}

// ViewOf renders s for clients; money is fixed to two places.
func ViewOf(s Settlement) View {
	return View{
		SettlementID:          s.No,
		AcquisitionID:         s.AcquisitionNo,
		FarmerID:              s.FarmerID,
		WarehouseID:           s.WarehouseID,
		GrossAmount:           s.GrossAmount.StringFixed(2),
		AdvanceDeduction:      s.Deductions.Advance.StringFixed(2),
		SeedDeduction:         s.Deductions.Seed.StringFixed(2),
		AgriculturalDeduction: s.Deductions.Agricultural.StringFixed(2),
		TotalDeduction:        s.Deductions.Total.StringFixed(2),
		ActualPayment:         s.ActualPayment.StringFixed(2),
		Status:                s.State,
		AuditStatus:           s.State.AuditStatus(s.DeletedFrom),
		PaymentStatus:         s.State.PaymentStatus(s.DeletedFrom),
		AuditRemark:           s.AuditRemark,
		RejectReason:          s.RejectReason,
		PaymentMethod:         s.PaymentMethod,
		AuditedAt:             s.AuditedAt,
		PaidAt:                s.PaidAt,
	}
}

// DeductionView is the money part of a preview or approval result.
type DeductionView struct {
	AdvanceDeduction      string `json:"advanceDeduction"`
	SeedDeduction         string `json:"seedDeduction"`
	AgriculturalDeduction string `json:"agriculturalDeduction"`
	TotalDeduction        string `json:"totalDeduction"`
}

func deductionView(b deduction.Breakdown) DeductionView {
	return DeductionView{
		AdvanceDeduction:      b.Advance.StringFixed(2),
		SeedDeduction:         b.Seed.StringFixed(2),
		AgriculturalDeduction: b.Agricultural.StringFixed(2),
		TotalDeduction:        b.Total.StringFixed(2),
	}
}
