package forecast

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Invoice is the raw ingestion input. None of its identity fields are
// guaranteed; Month may arrive in any encoding NormalizeMonth accepts.
// Invoices are not persisted by this layer, only their effect on cells.
type Invoice struct {
	LineItemID  string          `json:"line_item_id,omitempty"`
	RubroID     string          `json:"rubro_id,omitempty"`
	Description string          `json:"description,omitempty"`
	Month       any             `json:"month"`
	Amount      decimal.Decimal `json:"amount"`
}

// NormalizeDescription folds a free-text description for tier-3 matching:
// trimmed, lower-cased, internal whitespace runs collapsed to one space.
func NormalizeDescription(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Matches reports whether an invoice identifies a cell, via an ordered
// cascade with no scoring: line-item identity first, rubro identity
// second, normalized description equality as last resort. A nil invoice
// matches nothing.
func Matches(inv *Invoice, cell *ForecastCell) bool {
	if inv == nil {
		return false
	}
	return matchTier(inv, cell, 1) || matchTier(inv, cell, 2) || matchTier(inv, cell, 3)
}

func matchTier(inv *Invoice, cell *ForecastCell, tier int) bool {
	switch tier {
	case 1:
		return inv.LineItemID != "" && inv.LineItemID == cell.LineItemID.String()
	case 2:
		return inv.RubroID != "" && inv.RubroID == cell.RubroID
	case 3:
		d := NormalizeDescription(inv.Description)
		return d != "" && d == NormalizeDescription(cell.Description)
	}
	return false
}

// MatchInvoice finds the cell an invoice belongs to. Tier precedence is
// global: a line-item match on any cell beats a rubro or description match
// on an earlier cell. Within a tier, candidates are scanned in ascending
// (line_item_id, month) order, so shared descriptions resolve
// deterministically to the first cell under that ordering. Returns -1
// when nothing matches.
func MatchInvoice(inv *Invoice, cells []ForecastCell) int {
	if inv == nil || len(cells) == 0 {
		return -1
	}

	order := make([]int, len(cells))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ca, cb := cells[order[a]], cells[order[b]]
		if ca.LineItemID != cb.LineItemID {
			return ca.LineItemID.String() < cb.LineItemID.String()
		}
		return ca.Month < cb.Month
	})

	for tier := 1; tier <= 3; tier++ {
		for _, idx := range order {
			if matchTier(inv, &cells[idx], tier) {
				return idx
			}
		}
	}
	return -1
}
