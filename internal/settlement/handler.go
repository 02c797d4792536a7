package settlement

import (
	"context"
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/farmlink/farmlink/internal/acquisition"
	"github.com/farmlink/farmlink/internal/platform/httpx"
)

// Handler exposes the acquisition and settlement resources.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers the action endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Method("POST", "/acquisition", httpx.Dispatcher{
		Resource: "acquisition",
		Logger:   h.logger,
		Actions: map[string]httpx.ActionFunc{
			"create":  h.createAcquisition,
			"correct": h.correctAcquisition,
			"delete":  h.deleteAcquisition,
			"get":     h.getAcquisition,
		},
	})
	r.Method("POST", "/settlement", httpx.Dispatcher{
		Resource: "settlement",
		Logger:   h.logger,
		Actions: map[string]httpx.ActionFunc{
			"preview":         h.preview,
			"audit":           h.audit,
			"markPaying":      h.markPaying,
			"completePayment": h.completePayment,
			"get":             h.getSettlement,
			"history":         h.history,
		},
	})
}

type createRequest struct {
	FarmerID     int64           `json:"farmerId" validate:"required,gt=0"`
	WarehouseID  int64           `json:"warehouseId" validate:"required,gt=0"`
	GrossWeight  decimal.Decimal `json:"grossWeight"`
	TareWeight   decimal.Decimal `json:"tareWeight"`
	MoistureRate decimal.Decimal `json:"moistureRate"`
	UnitPrice    decimal.Decimal `json:"unitPrice"`
}

type acquisitionRequest struct {
	AcquisitionID string `json:"acquisitionId" validate:"required"`
}

type correctRequest struct {
	AcquisitionID string                 `json:"acquisitionId" validate:"required"`
	Updates       acquisition.Correction `json:"updates"`
}

type deleteRequest struct {
	AcquisitionID string `json:"acquisitionId" validate:"required"`
	Reason        string `json:"reason"`
}

type settlementRequest struct {
	SettlementID string `json:"settlementId" validate:"required"`
}

type auditRequest struct {
	SettlementID string `json:"settlementId" validate:"required"`
	Approved     *bool  `json:"approved" validate:"required"`
	Remark       string `json:"remark" validate:"max=500"`
}

type paymentRequest struct {
	SettlementID  string `json:"settlementId" validate:"required"`
	PaymentMethod string `json:"paymentMethod" validate:"max=50"`
	Remark        string `json:"remark" validate:"max=500"`
}

func (h *Handler) createAcquisition(ctx context.Context, call httpx.Call) (any, error) {
	var req createRequest
	if err := httpx.Bind(call.Data, &req); err != nil {
		return nil, err
	}
	return h.service.CreateAcquisition(ctx, call.ActorID, call.IdempotencyKey, CreateInput{
		FarmerID:    req.FarmerID,
		WarehouseID: req.WarehouseID,
		Measurement: acquisition.Measurement{
			GrossWeight:  req.GrossWeight,
			TareWeight:   req.TareWeight,
			MoistureRate: req.MoistureRate,
			UnitPrice:    req.UnitPrice,
		},
	})
}

func (h *Handler) correctAcquisition(ctx context.Context, call httpx.Call) (any, error) {
	var req correctRequest
	if err := httpx.Bind(call.Data, &req); err != nil {
		return nil, err
	}
	return h.service.CorrectAcquisition(ctx, call.ActorID, call.IdempotencyKey, req.AcquisitionID, req.Updates)
}

func (h *Handler) deleteAcquisition(ctx context.Context, call httpx.Call) (any, error) {
	var req deleteRequest
	if err := httpx.Bind(call.Data, &req); err != nil {
		return nil, err
	}
	return h.service.DeleteAcquisition(ctx, call.ActorID, call.IdempotencyKey, req.AcquisitionID, req.Reason)
}

func (h *Handler) getAcquisition(ctx context.Context, call httpx.Call) (any, error) {
	var req acquisitionRequest
	if err := httpx.Bind(call.Data, &req); err != nil {
		return nil, err
	}
	acq, err := h.service.GetAcquisition(ctx, call.ActorID, req.AcquisitionID)
	if err != nil {
		return nil, err
	}
	return acquisition.ViewOf(acq), nil
}

func (h *Handler) preview(ctx context.Context, call httpx.Call) (any, error) {
	var req settlementRequest
	if err := httpx.Bind(call.Data, &req); err != nil {
		return nil, err
	}
	return h.service.PreviewDeduction(ctx, call.ActorID, req.SettlementID)
}

func (h *Handler) audit(ctx context.Context, call httpx.Call) (any, error) {
	var req auditRequest
	if err := httpx.Bind(call.Data, &req); err != nil {
		return nil, err
	}
	return h.service.Audit(ctx, call.ActorID, call.IdempotencyKey, AuditInput{
		SettlementID: req.SettlementID,
		Approved:     *req.Approved,
		Remark:       req.Remark,
	})
}

func (h *Handler) markPaying(ctx context.Context, call httpx.Call) (any, error) {
	var req paymentRequest
	if err := httpx.Bind(call.Data, &req); err != nil {
		return nil, err
	}
	return h.service.MarkPaying(ctx, call.ActorID, call.IdempotencyKey, PaymentInput(req))
}

func (h *Handler) completePayment(ctx context.Context, call httpx.Call) (any, error) {
	var req paymentRequest
	if err := httpx.Bind(call.Data, &req); err != nil {
		return nil, err
	}
	return h.service.CompletePayment(ctx, call.ActorID, call.IdempotencyKey, PaymentInput(req))
}

func (h *Handler) getSettlement(ctx context.Context, call httpx.Call) (any, error) {
	var req settlementRequest
	if err := httpx.Bind(call.Data, &req); err != nil {
		return nil, err
	}
	stl, err := h.service.Get(ctx, call.ActorID, req.SettlementID)
	if err != nil {
		return nil, err
	}
	return ViewOf(stl), nil
}

func (h *Handler) history(ctx context.Context, call httpx.Call) (any, error) {
	var req settlementRequest
	if err := httpx.Bind(call.Data, &req); err != nil {
		return nil, err
	}
	return h.service.History(ctx, call.ActorID, req.SettlementID)
}
