// File: game/card_test.go
package game

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateDeck_AllDifficulties(t *testing.T) {
	for _, difficulty := range []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard, DifficultyInsane} {
		t.Run(string(difficulty), func(t *testing.T) {
			order := difficulty.Order()
			require.NotZero(t, order)

			pool := DefaultSymbolPool(DeckSize(order), "classic")
			deck, err := GenerateDeck(order, pool)
			require.NoError(t, err)
			assert.Len(t, deck, DeckSize(order))

			for _, card := range deck {
				assert.Len(t, card.Symbols, order+1)
			}
			// GenerateDeck already validates; run it again to pin the property.
			assert.NoError(t, ValidateDeck(deck, order))
		})
	}
}

func TestGenerateDeck_PairwiseSingleMatch(t *testing.T) {
	order := DifficultyEasy.Order()
	deck, err := GenerateDeck(order, DefaultSymbolPool(DeckSize(order), "classic"))
	require.NoError(t, err)

	for i := 0; i < len(deck); i++ {
		for j := i + 1; j < len(deck); j++ {
			_, ok := CommonSymbol(&deck[i], &deck[j])
			assert.True(t, ok, "cards %d and %d share no symbol", i, j)
		}
	}
}

func TestGenerateDeck_OrderNotPrime(t *testing.T) {
	_, err := GenerateDeck(6, DefaultSymbolPool(DeckSize(6), "classic"))
	assert.ErrorIs(t, err, ErrOrderNotPrime)
}

func TestGenerateDeck_PoolTooSmall(t *testing.T) {
	_, err := GenerateDeck(7, DefaultSymbolPool(10, "classic"))
	assert.ErrorIs(t, err, ErrInsufficientSymbols)
}

func TestShuffleDeck_DeterministicPerSeed(t *testing.T) {
	order := DifficultyEasy.Order()
	pool := DefaultSymbolPool(DeckSize(order), "classic")

	a, err := GenerateDeck(order, pool)
	require.NoError(t, err)
	b, err := GenerateDeck(order, pool)
	require.NoError(t, err)

	ShuffleDeck(a, rand.New(rand.NewSource(42)))
	ShuffleDeck(b, rand.New(rand.NewSource(42)))
	assert.Equal(t, a, b, "same seed must give the same order")

	c, err := GenerateDeck(order, pool)
	require.NoError(t, err)
	ShuffleDeck(c, rand.New(rand.NewSource(43)))
	assert.NotEqual(t, a, c, "different seeds should give different orders")
}

func TestShuffleDeck_PreservesCards(t *testing.T) {
	order := DifficultyEasy.Order()
	deck, err := GenerateDeck(order, DefaultSymbolPool(DeckSize(order), "classic"))
	require.NoError(t, err)

	seen := make(map[int]bool, len(deck))
	ShuffleDeck(deck, rand.New(rand.NewSource(7)))
	for _, card := range deck {
		assert.False(t, seen[card.ID], "card %d appears twice", card.ID)
		seen[card.ID] = true
	}
	assert.Len(t, seen, DeckSize(order))
}

func TestCardHasSymbol(t *testing.T) {
	card := Card{ID: 0, Symbols: []Symbol{{ID: 3}, {ID: 9}}}
	assert.True(t, card.HasSymbol(3))
	assert.True(t, card.HasSymbol(9))
	assert.False(t, card.HasSymbol(4))
}

func TestDifficulty_Order(t *testing.T) {
	assert.Equal(t, 7, DifficultyEasy.Order())
	assert.Equal(t, 11, DifficultyMedium.Order())
	assert.Equal(t, 13, DifficultyHard.Order())
	assert.Equal(t, 17, DifficultyInsane.Order())
	assert.False(t, Difficulty("NIGHTMARE").Valid())
}

func TestRoomConfig_Validate(t *testing.T) {
	cfg := DefaultRoomConfig()
	assert.NoError(t, cfg.Validate())

	bad := cfg
	bad.GameDuration = 30
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.CardDifficulty = "IMPOSSIBLE"
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.CardSetID = ""
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.TargetPlayers = 1
	assert.Error(t, bad.Validate())

	good := cfg
	good.TargetPlayers = 4
	assert.NoError(t, good.Validate())
}
