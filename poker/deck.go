package poker

import "errors"

// ErrDeckExhausted is returned by Draw once all 52 cards have been dealt.
var ErrDeckExhausted = errors.New("poker: deck exhausted")

// Source supplies uniform integers in [0, n). *rand.Rand from math/rand/v2
// satisfies it.
type Source interface {
	IntN(n int) int
}

// Deck represents a standard 52-card deck. Cards are drawn from the end of
// the slice, which is the top of the deck.
type Deck struct {
	cards []Card
}

// NewShuffledDeck builds all 52 cards and shuffles them with Fisher-Yates.
func NewShuffledDeck(src Source) *Deck {
	d := &Deck{cards: make([]Card, 0, 52)}
	for r := Two; r <= Ace; r++ {
		for s := Clubs; s <= Spades; s++ {
			d.cards = append(d.cards, NewCard(r, s))
		}
	}

	for i := len(d.cards) - 1; i > 0; i-- {
		j := src.IntN(i + 1)
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	}
	return d
}

// NewDeckFromCards returns a deck whose next draws are cards[0], cards[1], ...
// Used to stack a deck in tests.
func NewDeckFromCards(cards []Card) *Deck {
	d := &Deck{cards: make([]Card, len(cards))}
	for i, c := range cards {
		d.cards[len(cards)-1-i] = c
	}
	return d
}

// Draw removes and returns the top card.
func (d *Deck) Draw() (Card, error) {
	if len(d.cards) == 0 {
		return Card{}, ErrDeckExhausted
	}
	c := d.cards[len(d.cards)-1]
	d.cards = d.cards[:len(d.cards)-1]
	return c, nil
}

// Remaining returns the number of cards left.
func (d *Deck) Remaining() int {
	return len(d.cards)
}
