// File: game/card.go
package game

import (
	"errors"
	"fmt"
	"math/rand"
)

// Symbol is the unit of matching. Identity is the integer ID; Display is an
// opaque token the client renders. The server never interprets Display.
type Symbol struct {
	ID      int    `json:"id"`
	Display string `json:"display"`
}

// Card is an immutable set of symbols. Every generated card carries exactly
// order+1 distinct symbols.
type Card struct {
	ID      int      `json:"id"`
	Symbols []Symbol `json:"symbols"`
}

// HasSymbol reports whether the card carries the symbol with the given ID.
func (c *Card) HasSymbol(symbolID int) bool {
	for _, s := range c.Symbols {
		if s.ID == symbolID {
			return true
		}
	}
	return false
}

// Deck is an ordered sequence of cards. Invariant: any two cards share
// exactly one symbol.
type Deck []Card

var (
	ErrInsufficientSymbols = errors.New("symbol pool too small for requested order")
	ErrOrderNotPrime       = errors.New("deck order must be prime")
)

// Difficulty selects the prime order of the projective plane the deck is
// built from, which fixes the number of symbols per card (order+1).
type Difficulty string

const (
	DifficultyEasy   Difficulty = "EASY"
	DifficultyMedium Difficulty = "MEDIUM"
	DifficultyHard   Difficulty = "HARD"
	DifficultyInsane Difficulty = "INSANE"
)

// Order maps a difficulty to its prime plane order. Every order is >= 7 so
// that all supported game durations (up to 50 cards) fit in the deck.
func (d Difficulty) Order() int {
	switch d {
	case DifficultyEasy:
		return 7
	case DifficultyMedium:
		return 11
	case DifficultyHard:
		return 13
	case DifficultyInsane:
		return 17
	default:
		return 0
	}
}

// Valid reports whether d is one of the four supported difficulties.
func (d Difficulty) Valid() bool {
	return d.Order() != 0
}

func isPrime(n int) bool {
	if n < 2 {
		return false
	}
	for f := 2; f*f <= n; f++ {
		if n%f == 0 {
			return false
		}
	}
	return true
}

// DeckSize returns the number of cards (and minimum pool size) for a plane
// of the given order: order^2 + order + 1.
func DeckSize(order int) int {
	return order*order + order + 1
}

// DefaultSymbolPool produces a pool of opaque display tokens namespaced by
// card set. Asset resolution happens client-side.
func DefaultSymbolPool(size int, cardSetID string) []Symbol {
	pool := make([]Symbol, size)
	for i := range pool {
		pool[i] = Symbol{ID: i, Display: fmt.Sprintf("%s/%d", cardSetID, i)}
	}
	return pool
}

// GenerateDeck builds a deck from the projective plane of prime order n over
// Z/nZ. The resulting deck has n^2+n+1 cards of n+1 symbols each, and any
// two cards share exactly one symbol.
func GenerateDeck(order int, pool []Symbol) (Deck, error) {
	if !isPrime(order) {
		return nil, fmt.Errorf("%w: got %d", ErrOrderNotPrime, order)
	}
	required := DeckSize(order)
	if len(pool) < required {
		return nil, fmt.Errorf("%w: need %d, have %d", ErrInsufficientSymbols, required, len(pool))
	}

	n := order
	deck := make(Deck, 0, required)
	cardID := 0

	// Horizon cards: card i holds symbol 0 plus the i-th block of n symbols.
	for i := 0; i <= n; i++ {
		indices := make([]int, 0, n+1)
		indices = append(indices, 0)
		for j := 0; j < n; j++ {
			indices = append(indices, 1+j+i*n)
		}
		deck = append(deck, newCard(cardID, indices, pool))
		cardID++
	}

	// Body cards: card (i,j) holds symbol i+1 plus one symbol per block,
	// picked by the line y = i*x + j over Z/nZ.
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			indices := make([]int, 0, n+1)
			indices = append(indices, i+1)
			for k := 0; k < n; k++ {
				indices = append(indices, n+1+n*k+((i*k+j)%n))
			}
			deck = append(deck, newCard(cardID, indices, pool))
			cardID++
		}
	}

	if err := ValidateDeck(deck, order); err != nil {
		return nil, err
	}
	return deck, nil
}

func newCard(id int, indices []int, pool []Symbol) Card {
	symbols := make([]Symbol, len(indices))
	for i, idx := range indices {
		symbols[i] = pool[idx]
	}
	return Card{ID: id, Symbols: symbols}
}

// ValidateDeck checks the pairwise-unique-match property. It is a
// post-condition of generation, not an optimization: a deck that fails it is
// never dealt.
func ValidateDeck(deck Deck, order int) error {
	expectedCards := DeckSize(order)
	if len(deck) != expectedCards {
		return fmt.Errorf("deck has %d cards, want %d", len(deck), expectedCards)
	}
	sets := make([]map[int]bool, len(deck))
	for i, card := range deck {
		if len(card.Symbols) != order+1 {
			return fmt.Errorf("card %d has %d symbols, want %d", card.ID, len(card.Symbols), order+1)
		}
		set := make(map[int]bool, len(card.Symbols))
		for _, s := range card.Symbols {
			if set[s.ID] {
				return fmt.Errorf("card %d repeats symbol %d", card.ID, s.ID)
			}
			set[s.ID] = true
		}
		sets[i] = set
	}
	for i := 0; i < len(deck); i++ {
		for j := i + 1; j < len(deck); j++ {
			shared := 0
			for id := range sets[i] {
				if sets[j][id] {
					shared++
				}
			}
			if shared != 1 {
				return fmt.Errorf("cards %d and %d share %d symbols, want exactly 1", deck[i].ID, deck[j].ID, shared)
			}
		}
	}
	return nil
}

// ShuffleDeck performs a uniform Fisher-Yates shuffle in place using the
// room's seeded generator.
func ShuffleDeck(deck Deck, rng *rand.Rand) {
	for i := len(deck) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		deck[i], deck[j] = deck[j], deck[i]
	}
}

// CommonSymbol returns the single symbol two cards share, or false when they
// share none. Useful for tests and for validating match attempts.
func CommonSymbol(a, b *Card) (Symbol, bool) {
	for _, s := range a.Symbols {
		if b.HasSymbol(s.ID) {
			return s, true
		}
	}
	return Symbol{}, false
}
