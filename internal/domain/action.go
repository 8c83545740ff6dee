package domain

// Action classifies what caused a stock ledger entry
type Action string

const (
	// Log-only actions record the movement but never write product stock;
	// the upstream document (sale, purchase order, transfer) owns the change
	ActionSale       Action = "sale"
	ActionSaleReturn Action = "sale_return"
	ActionPurchase   Action = "purchase"
	ActionTransfer   Action = "transfer"

	// Direct-adjustment actions converge the product's stock quantity to
	// the entry's quantityAfter
	ActionManualAdjustment Action = "manual_adjustment"
	ActionQuickIncrease    Action = "quick_increase"
	ActionQuickDecrease    Action = "quick_decrease"
	ActionBulkIncrease     Action = "bulk_increase"
	ActionBulkDecrease     Action = "bulk_decrease"
)

var validActions = map[Action]bool{
	ActionSale:             true,
	ActionSaleReturn:       true,
	ActionPurchase:         true,
	ActionTransfer:         true,
	ActionManualAdjustment: true,
	ActionQuickIncrease:    true,
	ActionQuickDecrease:    true,
	ActionBulkIncrease:     true,
	ActionBulkDecrease:     true,
}

var stockMutatingActions = map[Action]bool{
	ActionManualAdjustment: true,
	ActionQuickIncrease:    true,
	ActionQuickDecrease:    true,
	ActionBulkIncrease:     true,
	ActionBulkDecrease:     true,
}

// String returns the string representation
func (a Action) String() string {
	return string(a)
}

// IsValid reports whether the action is a member of the defined action set
func (a Action) IsValid() bool {
	return validActions[a]
}

// MutatesStock reports whether entries with this action write the product's
// stock quantity. Log-only actions always return false.
func (a Action) MutatesStock() bool {
	return stockMutatingActions[a]
}
