// Package acquisition models a single crop purchase: the raw weighing inputs
// and the weight and amount figures derived from them.
package acquisition

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/farmlink/farmlink/internal/money"
	"github.com/farmlink/farmlink/internal/shared"
)

// Status enumerates acquisition lifecycle states.
type Status string

const (
	StatusConfirmed     Status = "confirmed"
	StatusAuditRejected Status = "audit_rejected"
	StatusDeleted       Status = "deleted"
)

// MinDeleteReasonLength is the minimum number of characters a deletion reason needs.
const MinDeleteReasonLength = 5

var hundred = decimal.NewFromInt(100)

// Measurement holds the four raw inputs captured at the weighbridge.
type Measurement struct {
	GrossWeight  decimal.Decimal `json:"grossWeight"`
	TareWeight   decimal.Decimal `json:"tareWeight"`
	MoistureRate decimal.Decimal `json:"moistureRate"`
	UnitPrice    decimal.Decimal `json:"unitPrice"`
}

// Figures are derived from a Measurement and never edited directly.
type Figures struct {
	MoistureWeight decimal.Decimal `json:"moistureWeight"`
	NetWeight      decimal.Decimal `json:"netWeight"`
	TotalAmount    decimal.Decimal `json:"totalAmount"`
}

// Validate checks the raw inputs.
func (m Measurement) Validate() error {
	switch {
	case !m.GrossWeight.IsPositive():
		return shared.Errorf(shared.CodeInvalidInput, "gross weight must be positive")
	case m.TareWeight.IsNegative():
		return shared.Errorf(shared.CodeInvalidInput, "tare weight must not be negative")
	case m.GrossWeight.LessThan(m.TareWeight):
		return shared.ErrInvalidWeight
	case m.MoistureRate.IsNegative() || m.MoistureRate.GreaterThan(hundred):
		return shared.Errorf(shared.CodeInvalidInput, "moisture rate must be between 0 and 100")
	case m.UnitPrice.IsNegative():
		return shared.Errorf(shared.CodeInvalidInput, "unit price must not be negative")
	}
	return nil
}

// Compute derives the figures from the raw inputs. Intermediate values keep
// full precision and each figure is rounded once.
func (m Measurement) Compute() Figures {
	base := m.GrossWeight.Sub(m.TareWeight)
	moisture := base.Mul(m.MoistureRate).Div(hundred)
	net := base.Sub(moisture)
	return Figures{
		MoistureWeight: money.Round(moisture),
		NetWeight:      money.Round(net),
		TotalAmount:    money.Round(net.Mul(m.UnitPrice)),
	}
}

// Correction carries the fields an operator may amend on a rejected acquisition.
// Nil fields are left unchanged.
type Correction struct {
	GrossWeight  *decimal.Decimal `json:"grossWeight,omitempty"`
	TareWeight   *decimal.Decimal `json:"tareWeight,omitempty"`
	MoistureRate *decimal.Decimal `json:"moistureRate,omitempty"`
	UnitPrice    *decimal.Decimal `json:"unitPrice,omitempty"`
}

// IsEmpty reports whether no field is set.
func (c Correction) IsEmpty() bool {
	return c.GrossWeight == nil && c.TareWeight == nil && c.MoistureRate == nil && c.UnitPrice == nil
}

// ApplyTo returns m with the correction applied.
func (c Correction) ApplyTo(m Measurement) Measurement {
	if c.GrossWeight != nil {
		m.GrossWeight = *c.GrossWeight
	}
	if c.TareWeight != nil {
		m.TareWeight = *c.TareWeight
	}
	if c.MoistureRate != nil {
		m.MoistureRate = *c.MoistureRate
	}
	if c.UnitPrice != nil {
		m.UnitPrice = *c.UnitPrice
	}
	return m
}

// Acquisition is one physical crop purchase.
type Acquisition struct {
	ID          uuid.UUID `json:"id"`
	No          string    `json:"acquisitionId"`
	FarmerID    int64     `json:"farmerId"`
	WarehouseID int64     `json:"warehouseId"`
	Measurement
	Figures
	EstimatedWeight decimal.Decimal `json:"estimatedWeight"`
	IsAbnormal      bool            `json:"isAbnormal"`
	Status          Status          `json:"status"`
	CreatedBy       int64           `json:"createdBy"`
	UpdatedBy       int64           `json:"updatedBy,omitempty"`
	DeletedBy       int64           `json:"deletedBy,omitempty"`
	DeleteReason    string          `json:"deleteReason,omitempty"`
	DeletedAt       *time.Time      `json:"deletedAt,omitempty"`
	Version         int64           `json:"version"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// Recompute refreshes the derived figures and the advisory annotation.
func (a *Acquisition) Recompute() {
	a.Figures = a.Measurement.Compute()
	a.IsAbnormal = IsAbnormal(a.NetWeight, a.EstimatedWeight)
}

// ValidateDeleteReason checks the reason supplied for a soft delete.
func ValidateDeleteReason(reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return shared.ErrReasonRequired
	}
	if utf8.RuneCountInString(reason) < MinDeleteReasonLength {
		return shared.ErrReasonTooShort
	}
	return nil
}
