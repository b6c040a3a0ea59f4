package utils

import "time"

const (
	MaxPlayers = 8
	MinPlayers = 2

	RoomCodeLength = 4
	// No 0/O/1/I: codes are read aloud and typed on phones.
	RoomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	CountdownSeconds = 3

	CountdownTickInterval = 1 * time.Second
	InterRoundDelay       = 2 * time.Second
	PenaltyDuration       = 3 * time.Second
	DisconnectGrace       = 5 * time.Second
	RejoinWindow          = 10 * time.Second
	RoomIdleTimeout       = 60 * time.Second
	OutboundBufferSize    = 256
)
