package utils

import "math/rand"

// NewRoomCode draws RoomCodeLength characters from the ambiguity-free alphabet.
func NewRoomCode(rng *rand.Rand) string {
	code := make([]byte, RoomCodeLength)
	for i := range code {
		code[i] = RoomCodeAlphabet[rng.Intn(len(RoomCodeAlphabet))]
	}
	return string(code)
}

// IsValidRoomCode reports whether code is a well-formed room code.
func IsValidRoomCode(code string) bool {
	if len(code) != RoomCodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		found := false
		for j := 0; j < len(RoomCodeAlphabet); j++ {
			if code[i] == RoomCodeAlphabet[j] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
