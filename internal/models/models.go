package models

import "github.com/shopspring/decimal"

// APIResponse is the standard JSON envelope for all API responses.
type APIResponse struct {
	Data interface{} `json:"data"`
	Meta *Meta       `json:"meta,omitempty"`
}

// Meta contains pagination metadata.
type Meta struct {
	Total int `json:"total,omitempty"`
	Page  int `json:"page,omitempty"`
	Limit int `json:"limit,omitempty"`
}

// Actor is the authenticated caller an engine operation runs on behalf of.
type Actor struct {
	UserID     int64  `json:"user_id"`
	Username   string `json:"username"`
	Role       string `json:"role"`
	CanApprove bool   `json:"can_approve"`
}

// System is the actor used by seeding and background jobs.
var System = Actor{Username: "system", Role: "admin", CanApprove: true}

type User struct {
	ID          int64   `json:"id"`
	Username    string  `json:"username"`
	DisplayName string  `json:"display_name"`
	Role        string  `json:"role"`
	Active      bool    `json:"active"`
	LastLogin   *string `json:"last_login"`
	CreatedAt   string  `json:"created_at"`
}

type Unit struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Abbreviation string `json:"abbreviation"`
	CreatedAt    string `json:"created_at"`
}

type InventoryItem struct {
	ID          int64           `json:"id"`
	SKU         string          `json:"sku"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	ItemType    string          `json:"item_type"`
	UnitID      *int64          `json:"unit_id"`
	UnitName    string          `json:"unit_name,omitempty"`
	Quantity    int64           `json:"quantity"`
	MinQuantity int64           `json:"min_quantity"`
	MaxQuantity int64           `json:"max_quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Location    string          `json:"location"`
	CreatedAt   string          `json:"created_at"`
	UpdatedAt   string          `json:"updated_at"`
}

// LowStock reports whether the on-hand quantity is at or below the minimum.
func (i InventoryItem) LowStock() bool {
	return i.MinQuantity > 0 && i.Quantity <= i.MinQuantity
}

type StockMovement struct {
	ID            int64  `json:"id"`
	ItemID        int64  `json:"item_id"`
	SKU           string `json:"sku,omitempty"`
	MovementType  string `json:"movement_type"`
	Quantity      int64  `json:"quantity"`
	ReferenceType string `json:"reference_type"`
	ReferenceID   *int64 `json:"reference_id"`
	Notes         string `json:"notes"`
	UserID        *int64 `json:"user_id"`
	CreatedAt     string `json:"created_at"`
}

type Requisition struct {
	ID                int64             `json:"id"`
	RequisitionNumber string            `json:"requisition_number"`
	Title             string            `json:"title"`
	Department        string            `json:"department"`
	Notes             string            `json:"notes"`
	Status            string            `json:"status"`
	RequesterID       int64             `json:"requester_id"`
	ApproverID        *int64            `json:"approver_id"`
	ApprovalDate      *string           `json:"approval_date"`
	ApprovalNotes     *string           `json:"approval_notes"`
	CreatedAt         string            `json:"created_at"`
	UpdatedAt         string            `json:"updated_at"`
	Items             []RequisitionItem `json:"items,omitempty"`
}

type RequisitionItem struct {
	ID               int64  `json:"id"`
	RequisitionID    int64  `json:"requisition_id"`
	ItemID           int64  `json:"item_id"`
	SKU              string `json:"sku,omitempty"`
	ItemName         string `json:"item_name,omitempty"`
	Quantity         int64  `json:"quantity"`
	ApprovedQuantity int64  `json:"approved_quantity"`
	RejectedQuantity int64  `json:"rejected_quantity"`
	IssuedQuantity   int64  `json:"issued_quantity"`
	Status           string `json:"status"`
	Notes            string `json:"notes"`
}

type CabinetModel struct {
	ID            int64              `json:"id"`
	Name          string             `json:"name"`
	Description   string             `json:"description"`
	Category      string             `json:"category"`
	DefaultWidth  decimal.Decimal    `json:"default_width"`
	MinWidth      decimal.Decimal    `json:"min_width"`
	MaxWidth      decimal.Decimal    `json:"max_width"`
	DefaultHeight decimal.Decimal    `json:"default_height"`
	MinHeight     decimal.Decimal    `json:"min_height"`
	MaxHeight     decimal.Decimal    `json:"max_height"`
	DefaultDepth  decimal.Decimal    `json:"default_depth"`
	MinDepth      decimal.Decimal    `json:"min_depth"`
	MaxDepth      decimal.Decimal    `json:"max_depth"`
	BaseCost      decimal.Decimal    `json:"base_cost"`
	Active        bool               `json:"active"`
	CreatedAt     string             `json:"created_at"`
	UpdatedAt     string             `json:"updated_at"`
	Materials     []CabinetMaterial  `json:"materials"`
	Accessories   []CabinetAccessory `json:"accessories"`
}

type CabinetMaterial struct {
	ID                int64           `json:"id"`
	ModelID           int64           `json:"model_id"`
	ItemID            int64           `json:"item_id"`
	ItemName          string          `json:"item_name,omitempty"`
	CostFactorPerSqft decimal.Decimal `json:"cost_factor_per_sqft"`
}

type CabinetAccessory struct {
	ID                 int64           `json:"id"`
	ModelID            int64           `json:"model_id"`
	ItemID             int64           `json:"item_id"`
	ItemName           string          `json:"item_name,omitempty"`
	UnitPrice          decimal.Decimal `json:"unit_price"`
	QuantityPerCabinet int64           `json:"quantity_per_cabinet"`
	CostFactorPerUnit  decimal.Decimal `json:"cost_factor_per_unit"`
}

// AccessorySelection picks an accessory for a configured cabinet. A nil
// Quantity falls back to the model's quantity_per_cabinet.
type AccessorySelection struct {
	ItemID   int64  `json:"item_id"`
	Quantity *int64 `json:"quantity,omitempty"`
}

type KitchenProject struct {
	ID           int64                   `json:"id"`
	Name         string                  `json:"name"`
	CustomerName string                  `json:"customer_name"`
	Notes        string                  `json:"notes"`
	Status       string                  `json:"status"`
	CreatedBy    *int64                  `json:"created_by"`
	CreatedAt    string                  `json:"created_at"`
	UpdatedAt    string                  `json:"updated_at"`
	Cabinets     []KitchenProjectCabinet `json:"cabinets,omitempty"`
	TotalCost    decimal.Decimal         `json:"total_cost"`
}

type KitchenProjectCabinet struct {
	ID             int64                `json:"id"`
	ProjectID      int64                `json:"project_id"`
	ModelID        int64                `json:"model_id"`
	ModelName      string               `json:"model_name,omitempty"`
	Width          decimal.Decimal      `json:"width"`
	Height         decimal.Decimal      `json:"height"`
	Depth          decimal.Decimal      `json:"depth"`
	MaterialID     int64                `json:"material_id"`
	Accessories    []AccessorySelection `json:"accessories"`
	Quantity       int64                `json:"quantity"`
	CalculatedCost decimal.Decimal      `json:"calculated_cost"`
	CostBreakdown  any                  `json:"cost_breakdown"`
	BOMID          *int64               `json:"bom_id"`
	Notes          string               `json:"notes"`
	CreatedAt      string               `json:"created_at"`
	UpdatedAt      string               `json:"updated_at"`
}

type BOM struct {
	ID             int64           `json:"id"`
	BOMNumber      string          `json:"bom_number"`
	Name           string          `json:"name"`
	ProductItemID  *int64          `json:"product_item_id"`
	Version        string          `json:"version"`
	Status         string          `json:"status"`
	OutputQuantity int64           `json:"output_quantity"`
	MaterialCost   decimal.Decimal `json:"material_cost"`
	LaborCost      decimal.Decimal `json:"labor_cost"`
	TotalCost      decimal.Decimal `json:"total_cost"`
	Notes          string          `json:"notes"`
	CreatedBy      *int64          `json:"created_by"`
	CreatedAt      string          `json:"created_at"`
	UpdatedAt      string          `json:"updated_at"`
	Components     []BOMComponent  `json:"components,omitempty"`
	Operations     []BOMOperation  `json:"operations,omitempty"`
}

type BOMComponent struct {
	ID          int64           `json:"id"`
	BOMID       int64           `json:"bom_id"`
	Sequence    int64           `json:"sequence"`
	ItemID      *int64          `json:"item_id"`
	SubBOMID    *int64          `json:"sub_bom_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	WasteFactor decimal.Decimal `json:"waste_factor"`
	Notes       string          `json:"notes"`
}

type BOMOperation struct {
	ID               int64           `json:"id"`
	BOMID            int64           `json:"bom_id"`
	Sequence         int64           `json:"sequence"`
	Name             string          `json:"name"`
	Description      string          `json:"description"`
	EstimatedMinutes decimal.Decimal `json:"estimated_minutes"`
	LaborRate        decimal.Decimal `json:"labor_rate"`
}

// ProductionOrder is a work order built from a BOM. ReadyForCompletion is
// derived from the status and the operations, never stored.
type ProductionOrder struct {
	ID                 int64                      `json:"id"`
	OrderNumber        string                     `json:"order_number"`
	BOMID              int64                      `json:"bom_id"`
	ProductItemID      *int64                     `json:"product_item_id"`
	Quantity           int64                      `json:"quantity"`
	Status             string                     `json:"status"`
	Priority           string                     `json:"priority"`
	PlannedCost        decimal.Decimal            `json:"planned_cost"`
	ActualCost         decimal.NullDecimal        `json:"actual_cost"`
	StartDate          string                     `json:"start_date"`
	DueDate            string                     `json:"due_date"`
	Notes              string                     `json:"notes"`
	CreatedBy          *int64                     `json:"created_by"`
	StartedAt          *string                    `json:"started_at"`
	CompletedAt        *string                    `json:"completed_at"`
	CreatedAt          string                     `json:"created_at"`
	UpdatedAt          string                     `json:"updated_at"`
	ReadyForCompletion bool                       `json:"ready_for_completion"`
	Items              []ProductionOrderItem      `json:"items,omitempty"`
	Operations         []ProductionOrderOperation `json:"operations,omitempty"`
}

type ProductionOrderItem struct {
	ID               int64  `json:"id"`
	OrderID          int64  `json:"order_id"`
	ItemID           int64  `json:"item_id"`
	SKU              string `json:"sku,omitempty"`
	RequiredQuantity int64  `json:"required_quantity"`
	IssuedQuantity   int64  `json:"issued_quantity"`
}

type ProductionOrderOperation struct {
	ID             int64           `json:"id"`
	OrderID        int64           `json:"order_id"`
	Sequence       int64           `json:"sequence"`
	Name           string          `json:"name"`
	PlannedMinutes decimal.Decimal `json:"planned_minutes"`
	LaborRate      decimal.Decimal `json:"labor_rate"`
	Status         string          `json:"status"`
	OperatorID     *int64          `json:"operator_id"`
	Notes          string          `json:"notes"`
	StartedAt      *string         `json:"started_at"`
	CompletedAt    *string         `json:"completed_at"`
}

type ProductionCompletion struct {
	ID                 int64  `json:"id"`
	OrderID            int64  `json:"order_id"`
	QuantityProduced   int64  `json:"quantity_produced"`
	QualityCheckPassed bool   `json:"quality_check_passed"`
	Notes              string `json:"notes"`
	CompletedBy        *int64 `json:"completed_by"`
	CreatedAt          string `json:"created_at"`
}

type Supplier struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	ContactName string `json:"contact_name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Active      bool   `json:"active"`
	CreatedAt   string `json:"created_at"`
}

type PurchaseOrder struct {
	ID           int64               `json:"id"`
	PONumber     string              `json:"po_number"`
	SupplierID   int64               `json:"supplier_id"`
	SupplierName string              `json:"supplier_name,omitempty"`
	Status       string              `json:"status"`
	OrderDate    string              `json:"order_date"`
	ExpectedDate string              `json:"expected_date"`
	TotalAmount  decimal.Decimal     `json:"total_amount"`
	Notes        string              `json:"notes"`
	CreatedBy    *int64              `json:"created_by"`
	ApprovedBy   *int64              `json:"approved_by"`
	CreatedAt    string              `json:"created_at"`
	UpdatedAt    string              `json:"updated_at"`
	Items        []PurchaseOrderItem `json:"items,omitempty"`
}

type PurchaseOrderItem struct {
	ID               int64           `json:"id"`
	POID             int64           `json:"po_id"`
	ItemID           int64           `json:"item_id"`
	SKU              string          `json:"sku,omitempty"`
	Quantity         int64           `json:"quantity"`
	ReceivedQuantity int64           `json:"received_quantity"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	LineTotal        decimal.Decimal `json:"line_total"`
}

type PurchaseReceipt struct {
	ID         int64  `json:"id"`
	POID       int64  `json:"po_id"`
	POItemID   int64  `json:"po_item_id"`
	Quantity   int64  `json:"quantity"`
	ReceivedBy *int64 `json:"received_by"`
	Notes      string `json:"notes"`
	CreatedAt  string `json:"created_at"`
}

type AuditEntry struct {
	ID        int64   `json:"id"`
	TableName string  `json:"table_name"`
	RecordID  int64   `json:"record_id"`
	Action    string  `json:"action"`
	OldValues *string `json:"old_values"`
	NewValues *string `json:"new_values"`
	UserID    *int64  `json:"user_id"`
	CreatedAt string  `json:"created_at"`
}
