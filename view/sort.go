package view

import (
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/dzeckelev/gift-ledger/data"
)

// SortKey selects the field a list is ordered by.
type SortKey string

// Sort keys.
const (
	ByName        SortKey = "name"
	ByGiftCount   SortKey = "giftCount"
	ByTotalAmount SortKey = "totalAmount"
)

// Order is a sort direction.
type Order string

// Sort directions.
const (
	Asc  Order = "asc"
	Desc Order = "desc"
)

func newCollator() *collate.Collator {
	return collate.New(language.Und, collate.IgnoreCase)
}

// SortFavorites orders favorites in place. Names compare by collation,
// counts and amounts as exact integers.
func SortFavorites(list []data.Favorite, key SortKey, order Order) {
	col := newCollator()

	cmp := func(a, b *data.Favorite) int {
		switch key {
		case ByGiftCount:
			switch {
			case a.GiftCount < b.GiftCount:
				return -1
			case a.GiftCount > b.GiftCount:
				return 1
			}
			return 0
		case ByTotalAmount:
			return a.TotalAmount.Cmp(b.TotalAmount)
		default:
			return col.CompareString(a.Name, b.Name)
		}
	}

	sort.SliceStable(list, func(i, j int) bool {
		c := cmp(&list[i], &list[j])
		if order == Desc {
			return c > 0
		}
		return c < 0
	})
}

// SortCharities orders charities by name in place.
func SortCharities(list []data.Charity, order Order) {
	col := newCollator()

	sort.SliceStable(list, func(i, j int) bool {
		c := col.CompareString(list[i].Name, list[j].Name)
		if order == Desc {
			return c > 0
		}
		return c < 0
	})
}

// ParseSort reads a sort key and direction, falling back to name ascending.
func ParseSort(key, order string) (SortKey, Order) {
	k := SortKey(key)
	switch k {
	case ByName, ByGiftCount, ByTotalAmount:
	default:
		k = ByName
	}

	o := Order(order)
	if o != Desc {
		o = Asc
	}

	return k, o
}
