// File: game/room_actor_match.go
package game

import (
	"fmt"
	"time"
)

// --- Countdown ---

func (a *RoomActor) startCountdown() {
	a.phase = PhaseCountdown
	a.cancelTimer(timerRoomIdle, "")
	a.countdownRemaining = a.cfg.CountdownSeconds
	fmt.Printf("RoomActor %s: countdown started (%d s).\n", a.code, a.countdownRemaining)
	a.broadcastFrame(CountdownMessage{Type: MsgCountdown, Seconds: a.countdownRemaining})
	a.armTimer(timerCountdown, "", a.cfg.CountdownTickInterval)
}

func (a *RoomActor) handleCountdownTick() {
	if a.phase != PhaseCountdown {
		return
	}
	if a.connectedCount() < 2 {
		a.cancelCountdown()
		return
	}
	a.countdownRemaining--
	if a.countdownRemaining > 0 {
		a.broadcastFrame(CountdownMessage{Type: MsgCountdown, Seconds: a.countdownRemaining})
		a.armTimer(timerCountdown, "", a.cfg.CountdownTickInterval)
		return
	}
	a.startPlaying()
}

// cancelCountdown drops back to WAITING. Clients see countdown(-1) and then
// a fresh room_state carrying the rearmed expiry.
func (a *RoomActor) cancelCountdown() {
	if a.phase != PhaseCountdown {
		return
	}
	a.cancelTimer(timerCountdown, "")
	a.phase = PhaseWaiting
	fmt.Printf("RoomActor %s: countdown cancelled.\n", a.code)
	a.broadcastFrame(CountdownMessage{Type: MsgCountdown, Seconds: -1})
	a.armRoomIdleTimer()
	a.broadcastRoomState()
}

// --- Dealing ---

// startPlaying generates and validates a deck, deals, and opens round 1.
// A deck that fails validation is an invariant violation: the room refuses
// to deal it and terminates locally.
func (a *RoomActor) startPlaying() {
	order := a.config.CardDifficulty.Order()
	pool := DefaultSymbolPool(DeckSize(order), a.config.CardSetID)
	deck, err := GenerateDeck(order, pool)
	if err != nil {
		fmt.Printf("RoomActor %s: deck generation failed: %v\n", a.code, err)
		a.destroyRoom("internal", nil)
		return
	}
	ShuffleDeck(deck, a.rng)

	size := a.config.GameDuration
	if size > len(deck) {
		size = len(deck)
	}
	play := deck[:size]

	// Deal one card per roster player (disconnected players in grace keep
	// their seat and get a hand too), then the center.
	if len(play) < len(a.joinOrder)+1 {
		fmt.Printf("RoomActor %s: play deck too small for %d players.\n", a.code, len(a.joinOrder))
		a.destroyRoom("internal", nil)
		return
	}
	idx := 0
	for _, id := range a.joinOrder {
		player := a.players[id]
		card := play[idx]
		player.Hand = &card
		player.Score = 0
		player.PenaltyUntil = time.Time{}
		idx++
	}
	center := play[idx]
	a.centerCard = &center
	idx++

	a.deck = append(Deck(nil), play[idx:]...)
	a.dealtCount = size
	a.roundNumber = 1
	a.phase = PhasePlaying
	a.playersWantRematch = make(map[string]bool)

	fmt.Printf("RoomActor %s: game started (order=%d, deck=%d, players=%d).\n", a.code, order, size, len(a.joinOrder))
	a.broadcastRoundStart()
}

// --- Arbitration ---

// handleMatchAttempt adjudicates one claim. The room mailbox serializes all
// attempts, so the first valid one wins by arrival order; client timestamps
// never influence the outcome.
func (a *RoomActor) handleMatchAttempt(player *Player, symbolID *int, clientTimestamp int64) {
	if a.phase != PhasePlaying {
		return
	}
	if symbolID == nil {
		a.sendErrorToPlayer(player, ErrCodeBadMessage, "match_attempt requires a symbolId")
		return
	}
	now := time.Now()
	if now.Before(player.PenaltyUntil) {
		return
	}
	if player.Hand == nil || a.centerCard == nil {
		return
	}

	valid := player.Hand.HasSymbol(*symbolID) && a.centerCard.HasSymbol(*symbolID)
	if !valid {
		player.PenaltyUntil = now.Add(a.cfg.PenaltyDuration)
		a.sendToPlayer(player, PenaltyMessage{
			Type:            MsgPenalty,
			DurationMs:      a.cfg.PenaltyDuration.Milliseconds(),
			ServerTimestamp: now.UnixMilli(),
		})
		return
	}

	// First valid attempt wins: the handler is serialized.
	player.Score++
	a.centerCard = player.Hand
	if len(a.deck) > 0 {
		next := a.deck[0]
		a.deck = a.deck[1:]
		player.Hand = &next
	} else {
		player.Hand = nil
	}

	a.phase = PhaseRoundEnd
	fmt.Printf("RoomActor %s: round %d won by %s (symbol %d).\n", a.code, a.roundNumber, player.Name, *symbolID)
	a.broadcastFrame(RoundWinnerMessage{
		Type:        MsgRoundWinner,
		WinnerID:    player.ID,
		SymbolID:    *symbolID,
		RoundNumber: a.roundNumber,
		Scores:      a.scoreboard(),
	})
	a.armTimer(timerInterRound, "", a.cfg.InterRoundDelay)
}

// handleInterRoundExpired advances to the next round, ends the game on deck
// exhaustion, or stalls until a pending grace period resolves.
func (a *RoomActor) handleInterRoundExpired() {
	if a.phase != PhaseRoundEnd {
		return
	}
	if len(a.deck) == 0 {
		a.endGameDeckExhausted()
		return
	}
	if a.connectedCount() < 2 {
		// A grace period is pending. Either the player comes back (which
		// rearms this timer) or grace expiry escalates to game over.
		return
	}
	a.roundNumber++
	a.phase = PhasePlaying
	a.broadcastRoundStart()
}

// --- Game over ---

func (a *RoomActor) endGameDeckExhausted() {
	a.enterGameOver()
	fmt.Printf("RoomActor %s: game over, deck exhausted.\n", a.code)
	a.broadcastFrame(GameOverMessage{
		Type:           MsgGameOver,
		Reason:         ReasonDeckExhausted,
		FinalScores:    a.scoreboard(),
		RejoinWindowMs: a.cfg.RejoinWindow.Milliseconds(),
	})
}

// endGameLastPlayerStanding terminates play when fewer than two players
// remain connected. The survivor collects one point per undealt card.
func (a *RoomActor) endGameLastPlayerStanding() {
	bonus := len(a.deck)
	var survivor *Player
	for _, id := range a.joinOrder {
		if p := a.players[id]; p != nil && p.Connected() {
			survivor = p
			break
		}
	}
	if survivor == nil {
		// Everyone is gone; nothing left to award or announce.
		a.destroyRoom("abandoned", nil)
		return
	}

	survivor.Score += bonus
	a.gameOverBonus = bonus
	a.enterGameOver()
	fmt.Printf("RoomActor %s: game over, last player standing (%s, bonus %d).\n", a.code, survivor.Name, bonus)
	a.broadcastFrame(GameOverMessage{
		Type:           MsgGameOver,
		Reason:         ReasonLastPlayerStanding,
		FinalScores:    a.scoreboard(),
		BonusAwarded:   bonus,
		RejoinWindowMs: a.cfg.RejoinWindow.Milliseconds(),
	})
}

// enterGameOver switches phase and swaps the play clocks for the rejoin
// window.
func (a *RoomActor) enterGameOver() {
	a.cancelTimer(timerInterRound, "")
	a.cancelTimer(timerCountdown, "")
	a.phase = PhaseGameOver
	a.playersWantRematch = make(map[string]bool)
	a.armTimer(timerRejoin, "", a.cfg.RejoinWindow)
}

// --- Rematch ---

func (a *RoomActor) handlePlayAgain(player *Player) {
	if a.phase != PhaseGameOver {
		a.sendErrorToPlayer(player, ErrCodeInvalidState, "play_again is only valid after game over")
		return
	}
	a.playersWantRematch[player.ID] = true
	a.broadcastFrame(PlayAgainAckMessage{Type: MsgPlayAgainAck, PlayerID: player.ID})
}

// handleRejoinWindowExpired settles the room's fate after game over: reset
// for a rematch, boot a lone straggler, or expire outright.
func (a *RoomActor) handleRejoinWindowExpired() {
	if a.phase != PhaseGameOver {
		return
	}

	votes := 0
	for id := range a.playersWantRematch {
		if p := a.players[id]; p != nil && p.Connected() {
			votes++
		}
	}

	if votes >= 2 {
		a.resetForRematch()
		return
	}

	if a.connectedCount() == 1 {
		for _, p := range a.players {
			if p.Connected() {
				a.destroyRoom("rejoin_window_expired", p.Conn)
				return
			}
		}
	}
	a.destroyRoom("rejoin_window_expired", nil)
}

// resetForRematch returns the room to WAITING with the roster (minus anyone
// who never came back) and fresh game state.
func (a *RoomActor) resetForRematch() {
	fmt.Printf("RoomActor %s: rematch, resetting to waiting.\n", a.code)

	for _, id := range append([]string(nil), a.joinOrder...) {
		player := a.players[id]
		if player == nil {
			continue
		}
		if !player.Connected() {
			a.removePlayer(player)
			continue
		}
		player.Score = 0
		player.Hand = nil
		player.PenaltyUntil = time.Time{}
	}

	a.deck = nil
	a.centerCard = nil
	a.dealtCount = 0
	a.roundNumber = 0
	a.gameOverBonus = 0
	a.playersWantRematch = make(map[string]bool)
	a.phase = PhaseWaiting
	a.ensureHost()
	a.armRoomIdleTimer()
	a.broadcastRoomState()
}
