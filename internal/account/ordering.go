package account

import (
	"cmp"
	"slices"

	"github.com/callbroker/callbroker/internal/database/models"
)

// Compare orders two accounts by dialing priority. Network subscription
// accounts come before everything else, ordered by ascending slot index.
// Remaining ties break on owning component, then label, then the stable
// database sequence so the order is a total one.
func Compare(a, b *models.Account) int {
	aSub := a.HasCapability(models.CapabilitySubscription)
	bSub := b.HasCapability(models.CapabilitySubscription)
	if aSub != bSub {
		if aSub {
			return -1
		}
		return 1
	}
	if aSub && bSub {
		if c := cmp.Compare(a.SlotIndex, b.SlotIndex); c != 0 {
			return c
		}
	}
	if c := cmp.Compare(a.Component, b.Component); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Label, b.Label); c != 0 {
		return c
	}
	return cmp.Compare(a.Sequence, b.Sequence)
}

// SortByPriority sorts accounts in place into dialing priority order.
func SortByPriority(accounts []models.Account) {
	slices.SortFunc(accounts, func(a, b models.Account) int {
		return Compare(&a, &b)
	})
}
