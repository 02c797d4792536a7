package acquisition

import "time"

// View is the client representation of an acquisition; weights and money are
// fixed to two places.
type View struct {
	AcquisitionID   string     `json:"acquisitionId"`
	FarmerID        int64      `json:"farmerId"`
	WarehouseID     int64      `json:"warehouseId"`
	GrossWeight     string     `json:"grossWeight"`
	TareWeight      string     `json:"tareWeight"`
	MoistureRate    string     `json:"moistureRate"`
	MoistureWeight  string     `json:"moistureWeight"`
	NetWeight       string     `json:"netWeight"`
	UnitPrice       string     `json:"unitPrice"`
	TotalAmount     string     `json:"totalAmount"`
	EstimatedWeight string     `json:"estimatedWeight"`
	IsAbnormal      bool       `json:"isAbnormal"`
	Status          Status     `json:"status"`
	CreatedBy       int64      `json:"createdBy"`
	DeleteReason    string     `json:"deleteReason,omitempty"`
	DeletedAt       *time.Time `json:"deletedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// ViewOf renders a.
func ViewOf(a Acquisition) View {
	return View{
		AcquisitionID:   a.No,
		FarmerID:        a.FarmerID,
		WarehouseID:     a.WarehouseID,
		GrossWeight:     a.GrossWeight.StringFixed(2),
		TareWeight:      a.TareWeight.StringFixed(2),
		MoistureRate:    a.MoistureRate.StringFixed(2),
		MoistureWeight:  a.MoistureWeight.StringFixed(2),
		NetWeight:       a.NetWeight.StringFixed(2),
		UnitPrice:       a.UnitPrice.StringFixed(2),
		TotalAmount:     a.TotalAmount.StringFixed(2),
		EstimatedWeight: a.EstimatedWeight.StringFixed(2),
		IsAbnormal:      a.IsAbnormal,
		Status:          a.Status,
		CreatedBy:       a.CreatedBy,
		DeleteReason:    a.DeleteReason,
		DeletedAt:       a.DeletedAt,
		CreatedAt:       a.CreatedAt,
	}
}
