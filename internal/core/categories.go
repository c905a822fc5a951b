package core

// Fixed category sets, keyed by transaction type. The UI offers these as a
// closed list; anything else fails validation before reaching a store.
var (
	incomeCategories = []string{
		"salary",
		"bonus",
		"contract",
		"other",
	}

	expenseCategories = []string{
		"materials",
		"outsourcing",
		"labor",
		"equipment",
		"transport",
		"food",
		"utilities",
		"other",
	}
)

// Categories returns the allowed category names for a transaction type.
// The returned slice is a copy; callers may reorder it freely.
func Categories(ty TxType) []string {
	var src []string
	switch ty {
	case Income:
		src = incomeCategories
	case Expense:
		src = expenseCategories
	default:
		return nil
	}
	out := make([]string, len(src))
	copy(out, src)
	return out
}

// ValidCategory reports whether name is an allowed category for ty.
func ValidCategory(ty TxType, name string) bool {
	var src []string
	switch ty {
	case Income:
		src = incomeCategories
	case Expense:
		src = expenseCategories
	default:
		return false
	}
	for _, c := range src {
		if c == name {
			return true
		}
	}
	return false
}
