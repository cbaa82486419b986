package cabinet

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"fms/internal/apperr"
	"fms/internal/bom"
	"fms/internal/models"
)

var (
	sqInchesPerSqft = decimal.NewFromInt(144)
	two             = decimal.NewFromInt(2)
	sixty           = decimal.NewFromInt(60)
)

// Dimensions are cabinet sizes in inches.
type Dimensions struct {
	Width  decimal.Decimal `json:"width"`
	Height decimal.Decimal `json:"height"`
	Depth  decimal.Decimal `json:"depth"`
}

// SurfaceArea is the box surface in square feet, summed in square inches
// and converted once.
func (d Dimensions) SurfaceArea() decimal.Decimal {
	w, h, dp := d.Width, d.Height, d.Depth
	return two.Mul(w.Mul(dp).Add(h.Mul(dp)).Add(w.Mul(h))).Div(sqInchesPerSqft)
}

type MaterialLine struct {
	ItemID        int64           `json:"item_id"`
	Name          string          `json:"name"`
	AreaSqft      decimal.Decimal `json:"area_sqft"`
	FactorPerSqft decimal.Decimal `json:"cost_factor_per_sqft"`
	Cost          decimal.Decimal `json:"cost"`
}

type AccessoryLine struct {
	ItemID     int64           `json:"item_id"`
	Name       string          `json:"name"`
	Quantity   int64           `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	CostFactor decimal.Decimal `json:"cost_factor_per_unit"`
	Cost       decimal.Decimal `json:"cost"`
}

// Breakdown is the itemized price of one cabinet.
type Breakdown struct {
	ModelID        int64           `json:"model_id"`
	ModelName      string          `json:"model_name"`
	Dimensions     Dimensions      `json:"dimensions"`
	BaseCost       decimal.Decimal `json:"base_cost"`
	Material       MaterialLine    `json:"material"`
	Accessories    []AccessoryLine `json:"accessories"`
	AccessoryTotal decimal.Decimal `json:"accessory_total"`
	Total          decimal.Decimal `json:"total"`
}

// Rounded returns a copy with every money field rounded to cents.
func (b Breakdown) Rounded() Breakdown {
	out := b
	out.BaseCost = b.BaseCost.Round(2)
	out.Material.AreaSqft = b.Material.AreaSqft.Round(4)
	out.Material.Cost = b.Material.Cost.Round(2)
	out.Accessories = make([]AccessoryLine, len(b.Accessories))
	for i, a := range b.Accessories {
		a.Cost = a.Cost.Round(2)
		out.Accessories[i] = a
	}
	out.AccessoryTotal = b.AccessoryTotal.Round(2)
	out.Total = b.Total.Round(2)
	return out
}

func checkRange(modelID int64, field string, v, min, max decimal.Decimal) error {
	if v.LessThan(min) || v.GreaterThan(max) {
		return apperr.Invalid("cabinet_model", modelID, field, fmt.Sprintf("%s-%s", min, max),
			"%s %s is outside the allowed range %s to %s", field, v, min, max)
	}
	return nil
}

// Price computes the cost of one cabinet from a catalog snapshot. It does no
// I/O, so the same model, dimensions and selections always give the same
// breakdown, whatever order the accessories come in.
func Price(m models.CabinetModel, dims Dimensions, materialID int64, selections []models.AccessorySelection) (Breakdown, error) {
	if err := checkRange(m.ID, "width", dims.Width, m.MinWidth, m.MaxWidth); err != nil {
		return Breakdown{}, err
	}
	if err := checkRange(m.ID, "height", dims.Height, m.MinHeight, m.MaxHeight); err != nil {
		return Breakdown{}, err
	}
	if err := checkRange(m.ID, "depth", dims.Depth, m.MinDepth, m.MaxDepth); err != nil {
		return Breakdown{}, err
	}

	var material *models.CabinetMaterial
	for i := range m.Materials {
		if m.Materials[i].ItemID == materialID {
			material = &m.Materials[i]
		}
	}
	if material == nil {
		return Breakdown{}, &apperr.NotFoundError{Entity: "cabinet_material", ID: materialID,
			Detail: fmt.Sprintf("not registered for model %d", m.ID)}
	}

	area := dims.SurfaceArea()
	b := Breakdown{
		ModelID:    m.ID,
		ModelName:  m.Name,
		Dimensions: dims,
		BaseCost:   m.BaseCost,
		Material:   MaterialLine{
			ItemID:        material.ItemID,
			Name:          material.ItemName,
			AreaSqft:      area,
			FactorPerSqft: material.CostFactorPerSqft,
			Cost:          area.Mul(material.CostFactorPerSqft),
		},
		Accessories:    []AccessoryLine{},
		AccessoryTotal: decimal.Zero,
	}

	links := make(map[int64]models.CabinetAccessory, len(m.Accessories))
	for _, a := range m.Accessories {
		links[a.ItemID] = a
	}
	for _, sel := range selections {
		link, ok := links[sel.ItemID]
		if !ok {
			return Breakdown{}, &apperr.NotFoundError{Entity: "cabinet_accessory", ID: sel.ItemID,
				Detail: fmt.Sprintf("not registered for model %d", m.ID)}
		}
		qty := link.QuantityPerCabinet
		if sel.Quantity != nil {
			qty = *sel.Quantity
		}
		if qty < 0 {
			return Breakdown{}, apperr.Invalid("cabinet_accessory", sel.ItemID, "quantity", 0, "must not be negative, got %d", qty)
		}
		cost := decimal.NewFromInt(qty).Mul(link.UnitPrice.Add(link.CostFactorPerUnit))
		b.Accessories = append(b.Accessories, AccessoryLine{
			ItemID:     link.ItemID,
			Name:       link.ItemName,
			Quantity:   qty,
			UnitPrice:  link.UnitPrice,
			CostFactor: link.CostFactorPerUnit,
			Cost:       cost,
		})
		b.AccessoryTotal = b.AccessoryTotal.Add(cost)
	}
	sort.SliceStable(b.Accessories, func(i, j int) bool {
		if b.Accessories[i].ItemID != b.Accessories[j].ItemID {
			return b.Accessories[i].ItemID < b.Accessories[j].ItemID
		}
		return b.Accessories[i].Quantity < b.Accessories[j].Quantity
	})

	b.Total = b.BaseCost.Add(b.Material.Cost).Add(b.AccessoryTotal)
	return b, nil
}

// CalculateCost prices one cabinet against the current catalog.
func (s *Service) CalculateCost(ctx context.Context, modelID int64, dims Dimensions, materialID int64, selections []models.AccessorySelection) (Breakdown, error) {
	m, err := s.GetModel(ctx, modelID)
	if err != nil {
		return Breakdown{}, err
	}
	b, err := Price(m, dims, materialID, selections)
	if err != nil {
		s.metrics.Rejected("cabinet")
		return Breakdown{}, err
	}
	s.metrics.Quote()
	return b, nil
}

// Standard routing for a configured cabinet, in minutes.
var routing = []struct {
	name    string
	minutes int64
}{
	{"cut", 30},
	{"assemble", 45},
	{"install hardware", 20},
	{"finish", 40},
}

type VirtualComponent struct {
	Kind     string          `json:"kind"`
	ItemID   int64           `json:"item_id"`
	Name     string          `json:"name"`
	Quantity decimal.Decimal `json:"quantity"`
	UnitCost decimal.Decimal `json:"unit_cost"`
	Cost     decimal.Decimal `json:"cost"`
}

type VirtualOperation struct {
	Sequence  int64           `json:"sequence"`
	Name      string          `json:"name"`
	Minutes   decimal.Decimal `json:"minutes"`
	LaborRate decimal.Decimal `json:"labor_rate"`
	Cost      decimal.Decimal `json:"cost"`
}

// VirtualBOM is a BOM for one configured cabinet that has not been stored.
type VirtualBOM struct {
	Name         string             `json:"name"`
	ModelID      int64              `json:"model_id"`
	Components   []VirtualComponent `json:"components"`
	Operations   []VirtualOperation `json:"operations"`
	MaterialCost decimal.Decimal    `json:"material_cost"`
	LaborCost    decimal.Decimal    `json:"labor_cost"`
	TotalCost    decimal.Decimal    `json:"total_cost"`
}

// Draft converts the virtual BOM into something bom.Materialize can store.
func (v VirtualBOM) Draft() bom.Draft {
	d := bom.Draft{Name: v.Name, OutputQuantity: 1, Notes: fmt.Sprintf("generated from cabinet model %d", v.ModelID)}
	for i, c := range v.Components {
		item := c.ItemID
		d.Components = append(d.Components, bom.ComponentInput{Sequence: int64(i + 1), ItemID: &item, Quantity: c.Quantity})
	}
	for _, op := range v.Operations {
		d.Operations = append(d.Operations, bom.OperationInput{Sequence: op.Sequence, Name: op.Name, EstimatedMinutes: op.Minutes, LaborRate: op.LaborRate})
	}
	return d
}

// BuildBOM derives the virtual BOM of one cabinet from its priced breakdown.
// Accessories with a zero quantity are left out.
func BuildBOM(b Breakdown, laborRate decimal.Decimal) VirtualBOM {
	v := VirtualBOM{
		Name:       fmt.Sprintf("%s %sx%sx%s", b.ModelName, b.Dimensions.Width, b.Dimensions.Height, b.Dimensions.Depth),
		ModelID:    b.ModelID,
		Components: []VirtualComponent{{
			Kind:     "material",
			ItemID:   b.Material.ItemID,
			Name:     b.Material.Name,
			Quantity: b.Material.AreaSqft.Round(4),
			UnitCost: b.Material.FactorPerSqft,
			Cost:     b.Material.Cost,
		}},
		MaterialCost: b.Material.Cost.Add(b.AccessoryTotal),
		LaborCost:    decimal.Zero,
	}
	for _, a := range b.Accessories {
		if a.Quantity == 0 {
			continue
		}
		v.Components = append(v.Components, VirtualComponent{
			Kind:     "accessory",
			ItemID:   a.ItemID,
			Name:     a.Name,
			Quantity: decimal.NewFromInt(a.Quantity),
			UnitCost: a.UnitPrice.Add(a.CostFactor),
			Cost:     a.Cost,
		})
	}
	for i, step := range routing {
		minutes := decimal.NewFromInt(step.minutes)
		cost := minutes.Div(sixty).Mul(laborRate)
		v.Operations = append(v.Operations, VirtualOperation{
			Sequence:  int64(i + 1),
			Name:      step.name,
			Minutes:   minutes,
			LaborRate: laborRate,
			Cost:      cost,
		})
		v.LaborCost = v.LaborCost.Add(cost)
	}
	v.TotalCost = v.MaterialCost.Add(v.LaborCost)
	return v
}

// GenerateBOM prices a cabinet and returns its virtual BOM. A zero labor
// rate falls back to the configured default.
func (s *Service) GenerateBOM(ctx context.Context, modelID int64, dims Dimensions, materialID int64, selections []models.AccessorySelection, laborRate decimal.Decimal) (VirtualBOM, error) {
	if laborRate.IsNegative() {
		return VirtualBOM{}, apperr.Invalid("cabinet_model", modelID, "labor_rate", 0, "must not be negative")
	}
	if laborRate.IsZero() {
		laborRate = s.laborRate
	}
	b, err := s.CalculateCost(ctx, modelID, dims, materialID, selections)
	if err != nil {
		return VirtualBOM{}, err
	}
	return BuildBOM(b, laborRate), nil
}
