package core

// DefaultCategories is the starter category template offered to an empty workspace.
func DefaultCategories() []Category {
	return []Category{
		{Name: "Business Promotion & Advertising", Color: "#ef4444", Type: Expense},
		{Name: "Other Marketing Expense", Color: "#f59e0b", Type: Expense},
		{Name: "Software/SaaS", Color: "#3b82f6", Type: Expense},
		{Name: "Events", Color: "#8b5cf6", Type: Expense},
		{Name: "Quarterly Budget", Color: "#059669", Type: Allocation},
		{Name: "Extra Grant", Color: "#0ea5e9", Type: Allocation},
		{Name: "ROI Reinvestment", Color: "#14b8a6", Type: Allocation},
	}
}

// DefaultBudgets pairs with DefaultCategories.
func DefaultBudgets() []CategoryBudget {
	return []CategoryBudget{
		{Category: "Business Promotion & Advertising", MonthlyLimit: Money{Cents: 600000000}, Rollover: true},
		{Category: "Other Marketing Expense", MonthlyLimit: Money{Cents: 20000000}, Rollover: true},
		{Category: "Software/SaaS", MonthlyLimit: Money{Cents: 50000000}},
		{Category: "Events", MonthlyLimit: Money{Cents: 100000000}, Rollover: true},
	}
}
