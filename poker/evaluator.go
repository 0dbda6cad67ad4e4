package poker

import (
	"fmt"
	"slices"
)

// Category enumerates hand categories from weakest to strongest.
type Category uint8

const (
	HighCard Category = iota + 1
	Pair
	TwoPair
	ThreeOfAKind
	Straight
	Flush
	FullHouse
	FourOfAKind
	StraightFlush
)

func (c Category) String() string {
	switch c {
	case HighCard:
		return "HighCard"
	case Pair:
		return "Pair"
	case TwoPair:
		return "TwoPair"
	case ThreeOfAKind:
		return "ThreeOfAKind"
	case Straight:
		return "Straight"
	case Flush:
		return "Flush"
	case FullHouse:
		return "FullHouse"
	case FourOfAKind:
		return "FourOfAKind"
	case StraightFlush:
		return "StraightFlush"
	default:
		return "Unknown"
	}
}

// HandValue is an evaluated hand. Tiebreak holds rank values (2-14) compared
// element by element when categories are equal.
type HandValue struct {
	Category Category
	Tiebreak []int
}

func (h HandValue) String() string {
	return fmt.Sprintf("%s%v", h.Category, h.Tiebreak)
}

// Compare returns a positive number if a beats b, negative if b beats a and
// zero for an exact tie.
func Compare(a, b HandValue) int {
	if a.Category != b.Category {
		return int(a.Category) - int(b.Category)
	}
	n := min(len(a.Tiebreak), len(b.Tiebreak))
	for i := range n {
		if a.Tiebreak[i] != b.Tiebreak[i] {
			return a.Tiebreak[i] - b.Tiebreak[i]
		}
	}
	return 0
}

type rankGroup struct {
	rank  int
	count int
}

// Evaluate returns the best five-card value found in 5 to 7 cards. Any other
// card count is a programming error and panics.
func Evaluate(cards []Card) HandValue {
	if len(cards) < 5 || len(cards) > 7 {
		panic(fmt.Sprintf("poker: Evaluate needs 5 to 7 cards, got %d", len(cards)))
	}

	ranks := make([]int, 0, len(cards))
	var counts [15]int
	for _, c := range cards {
		ranks = append(ranks, int(c.Rank))
		counts[c.Rank]++
	}
	slices.SortFunc(ranks, func(a, b int) int { return b - a })

	var bySuit [4][]int
	for _, c := range sortedDesc(cards) {
		bySuit[c.Suit] = append(bySuit[c.Suit], int(c.Rank))
	}

	var flushRanks []int
	for _, sr := range bySuit {
		if len(sr) >= 5 {
			flushRanks = sr
			break
		}
	}

	if flushRanks != nil {
		if hi := highestStraight(flushRanks); hi > 0 {
			return HandValue{Category: StraightFlush, Tiebreak: []int{hi}}
		}
	}

	groups := make([]rankGroup, 0, len(cards))
	for r := int(Ace); r >= int(Two); r-- {
		if counts[r] > 0 {
			groups = append(groups, rankGroup{rank: r, count: counts[r]})
		}
	}
	// Stable so equal counts stay ordered by rank, highest first.
	slices.SortStableFunc(groups, func(a, b rankGroup) int { return b.count - a.count })

	top := groups[0]
	switch {
	case top.count == 4:
		return HandValue{Category: FourOfAKind, Tiebreak: append([]int{top.rank}, kickers(ranks, 1, top.rank)...)}
	case top.count == 3 && len(groups) > 1 && groups[1].count >= 2:
		return HandValue{Category: FullHouse, Tiebreak: []int{top.rank, groups[1].rank}}
	case flushRanks != nil:
		return HandValue{Category: Flush, Tiebreak: slices.Clone(flushRanks[:5])}
	}

	if hi := highestStraight(ranks); hi > 0 {
		return HandValue{Category: Straight, Tiebreak: []int{hi}}
	}

	switch {
	case top.count == 3:
		return HandValue{Category: ThreeOfAKind, Tiebreak: append([]int{top.rank}, kickers(ranks, 2, top.rank)...)}
	case top.count == 2 && len(groups) > 1 && groups[1].count == 2:
		hi, lo := top.rank, groups[1].rank
		return HandValue{Category: TwoPair, Tiebreak: append([]int{hi, lo}, kickers(ranks, 1, hi, lo)...)}
	case top.count == 2:
		return HandValue{Category: Pair, Tiebreak: append([]int{top.rank}, kickers(ranks, 3, top.rank)...)}
	}

	return HandValue{Category: HighCard, Tiebreak: slices.Clone(ranks[:5])}
}

// kickers returns the n highest ranks from a descending list, skipping excluded ranks.
func kickers(ranks []int, n int, exclude ...int) []int {
	out := make([]int, 0, n)
	for _, r := range ranks {
		if len(out) == n {
			break
		}
		if !slices.Contains(exclude, r) {
			out = append(out, r)
		}
	}
	return out
}

// highestStraight returns the high card of the best five-rank run, 5 for the
// wheel, or 0 when there is none.
func highestStraight(ranks []int) int {
	var present [15]bool
	for _, r := range ranks {
		present[r] = true
	}
	present[1] = present[Ace]

	for hi := int(Ace); hi >= 5; hi-- {
		run := true
		for r := hi; r > hi-5; r-- {
			if !present[r] {
				run = false
				break
			}
		}
		if run {
			return hi
		}
	}
	return 0
}

func sortedDesc(cards []Card) []Card {
	out := slices.Clone(cards)
	slices.SortStableFunc(out, func(a, b Card) int { return int(b.Rank) - int(a.Rank) })
	return out
}
