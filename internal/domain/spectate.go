package domain

// Direction is the heading of a snake
type Direction string

const (
	DirectionUp    Direction = "UP"
	DirectionDown  Direction = "DOWN"
	DirectionLeft  Direction = "LEFT"
	DirectionRight Direction = "RIGHT"
)

// Position is a cell on the game grid
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// GameState is a snapshot of a running game
type GameState struct {
	Snake      []Position `json:"snake"`
	Food       Position   `json:"food"`
	Direction  Direction  `json:"direction"`
	Score      int64      `json:"score"`
	IsGameOver bool       `json:"isGameOver"`
	IsPaused   bool       `json:"isPaused"`
	Mode       GameMode   `json:"mode"`
	Speed      int        `json:"speed"`
}

// ActivePlayer is a player currently in a game that others can spectate
type ActivePlayer struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Score     int64     `json:"score"`
	Mode      GameMode  `json:"mode"`
	GameState GameState `json:"gameState"`
}
