package validation

// Common enum values - these MUST match DB CHECK constraints in the migrations.
var (
	ValidItemTypes              = []string{"raw_material", "semi_finished_product", "finished_product", "sheet_material", "hardware_accessory"}
	ValidMovementTypes          = []string{"in", "out", "adjust"}
	ValidRequisitionStatuses    = []string{"pending", "approved", "rejected", "partially_approved", "issued", "partially_issued"}
	ValidBOMStatuses            = []string{"draft", "active", "inactive", "archived"}
	ValidProductionStatuses     = []string{"draft", "planned", "in_progress", "completed", "cancelled"}
	ValidProductionPriorities   = []string{"low", "normal", "high", "urgent"}
	ValidOperationStatuses      = []string{"pending", "in_progress", "completed", "skipped"}
	ValidPOStatuses             = []string{"draft", "submitted", "approved", "ordered", "partially_received", "received", "cancelled"}
	ValidKitchenProjectStatuses = []string{"draft", "quoted", "approved", "in_production", "completed", "cancelled"}
	ValidRoles                  = []string{"admin", "manager", "storekeeper", "user"}
)
