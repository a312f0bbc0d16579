package core

import (
	"sort"
	"strings"
)

// Fixed expense categories. Other is a placeholder the user can replace with
// a free-text label at entry time.
const (
	CategoryFood      = "Food"
	CategoryTransport = "Transport"
	CategoryShopping  = "Shopping"
	CategoryBills     = "Bills"
	CategoryOther     = "Other"
)

// FixedCategories lists the built-in categories in display order.
func FixedCategories() []string {
	return []string{CategoryFood, CategoryTransport, CategoryShopping, CategoryBills, CategoryOther}
}

// IsFixedCategory reports whether s is one of the built-in categories.
func IsFixedCategory(s string) bool {
	switch s {
	case CategoryFood, CategoryTransport, CategoryShopping, CategoryBills, CategoryOther:
		return true
	}
	return false
}

// ResolveCategory finalizes the category stored on a record. Selecting Other
// with a non-empty custom label stores the trimmed label; Other without a
// label stays the literal Other. Any other selection passes through unchanged.
func ResolveCategory(selection, customLabel string) string {
	if selection == CategoryOther {
		if label := strings.TrimSpace(customLabel); label != "" {
			return label
		}
	}
	return selection
}

// CustomLabels scans a snapshot and returns every category value outside the
// fixed set, sorted and deduplicated. It is recomputed from each snapshot
// rather than cached, so it can never drift from the ledger.
func CustomLabels(records Snapshot) []string {
	seen := map[string]struct{}{}
	var labels []string
	for _, e := range records {
		if IsFixedCategory(e.Category) {
			continue
		}
		if _, ok := seen[e.Category]; ok {
			continue
		}
		seen[e.Category] = struct{}{}
		labels = append(labels, e.Category)
	}
	sort.Strings(labels)
	return labels
}
