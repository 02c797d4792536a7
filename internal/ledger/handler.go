package ledger

import (
	"context"
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/farmlink/farmlink/internal/platform/httpx"
)

// Handler exposes the ledger resource.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers the ledger action endpoint.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Method("POST", "/ledger", httpx.Dispatcher{
		Resource: "ledger",
		Logger:   h.logger,
		Actions: map[string]httpx.ActionFunc{
			"getBalances":     h.getBalances,
			"distributeSeed":  h.distribute(DistributeSeed),
			"distributeInput": h.distribute(DistributeInput),
			"issueAdvance":    h.distribute(DistributeAdvance),
		},
	})
}

type farmerRequest struct {
	FarmerID int64 `json:"farmerId" validate:"required,gt=0"`
}

type distributionRequest struct {
	FarmerID int64           `json:"farmerId" validate:"required,gt=0"`
	Amount   decimal.Decimal `json:"amount"`
	Note     string          `json:"note" validate:"max=200"`
}

// balancesView renders money as fixed two-place strings.
type balancesView struct {
	FarmerID               int64  `json:"farmerId"`
	AdvancePayment         string `json:"advancePayment"`
	SeedDebt               string `json:"seedDebt"`
	AgriculturalDebt       string `json:"agriculturalDebt"`
	TotalSeedAmount        string `json:"totalSeedAmount"`
	TotalAcquisitionCount  int64  `json:"totalAcquisitionCount"`
	TotalAcquisitionWeight string `json:"totalAcquisitionWeight"`
	TotalAcquisitionAmount string `json:"totalAcquisitionAmount"`
	TotalPaidAmount        string `json:"totalPaidAmount"`
}

func viewOf(f Farmer) balancesView {
	return balancesView{
		FarmerID:               f.ID,
		AdvancePayment:         f.AdvancePayment.StringFixed(2),
		SeedDebt:               f.SeedDebt.StringFixed(2),
		AgriculturalDebt:       f.AgriculturalDebt.StringFixed(2),
		TotalSeedAmount:        f.TotalSeedAmount.StringFixed(2),
		TotalAcquisitionCount:  f.AcquisitionCount,
		TotalAcquisitionWeight: f.AcquisitionWeight.StringFixed(2),
		TotalAcquisitionAmount: f.AcquisitionAmount.StringFixed(2),
		TotalPaidAmount:        f.TotalPaidAmount.StringFixed(2),
	}
}

func (h *Handler) getBalances(ctx context.Context, call httpx.Call) (any, error) {
	var req farmerRequest
	if err := httpx.Bind(call.Data, &req); err != nil {
		return nil, err
	}
	farmer, err := h.service.GetBalances(ctx, call.ActorID, req.FarmerID)
	if err != nil {
		return nil, err
	}
	return viewOf(farmer), nil
}

func (h *Handler) distribute(kind DistributionKind) httpx.ActionFunc {
	return func(ctx context.Context, call httpx.Call) (any, error) {
		var req distributionRequest
		if err := httpx.Bind(call.Data, &req); err != nil {
			return nil, err
		}
		farmer, err := h.service.RecordDistribution(ctx, call.ActorID, DistributionInput{
			FarmerID: req.FarmerID,
			Kind:     kind,
			Amount:   req.Amount,
			Note:     req.Note,
		})
		if err != nil {
			return nil, err
		}
		return viewOf(farmer), nil
	}
}
