package domain

import "fmt"

// GameMode is a snake rule variant. Each mode has its own leaderboard.
type GameMode string

const (
	GameModePassThrough GameMode = "pass-through"
	GameModeWalls       GameMode = "walls"
)

// AllModes lists every supported game mode in display order
var AllModes = []GameMode{GameModePassThrough, GameModeWalls}

// ParseGameMode converts user input into a GameMode
func ParseGameMode(s string) (GameMode, error) {
	switch GameMode(s) {
	case GameModePassThrough, GameModeWalls:
		return GameMode(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// Valid reports whether m is one of the known modes
func (m GameMode) Valid() bool {
	_, err := ParseGameMode(string(m))
	return err == nil
}

func (m GameMode) String() string {
	return string(m)
}
