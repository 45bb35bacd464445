package game

// PlayerMark represents the mark of a player (X, O) or an empty cell.
type PlayerMark string

// Status is the phase of a game.
type Status string

const (
	// Player marks
	None    PlayerMark = ""
	PlayerX PlayerMark = "X"
	PlayerO PlayerMark = "O"

	// Game statuses
	StatusInProgress Status = "in_progress"
	StatusWon        Status = "won"
	StatusDraw       Status = "draw"

	// Board boundaries
	BorderMin = 0
	BorderMax = 2

	// BoardSize is the number of cells on the board.
	BoardSize = 9
)

// Board is the 3x3 grid stored row-major: index = row*3 + col.
type Board [BoardSize]PlayerMark

// State is a snapshot of a game. It is a plain value; mutating a copy never
// affects the Game it was taken from.
type State struct {
	Board  Board      `json:"board"`
	Turn   PlayerMark `json:"turn"`
	Status Status     `json:"status"`
	Winner PlayerMark `json:"winner,omitempty"`
}

// Game owns a single game state. It is not safe for concurrent use.
type Game struct {
	state State
}

// NewGame returns a game in the initial configuration.
func NewGame() *Game {
	return &Game{state: initialState()}
}

// Restore returns a game continuing from a previously taken snapshot.
func Restore(s State) *Game {
	return &Game{state: s}
}

func initialState() State {
	return State{
		Board:  Board{},
		Turn:   PlayerX,
		Status: StatusInProgress,
		Winner: None,
	}
}

// Snapshot returns a copy of the current state.
func (g *Game) Snapshot() State {
	return g.state
}

// ApplyMove places the current turn's mark at index.
// On any error the state is left untouched and the unchanged snapshot is returned.
func (g *Game) ApplyMove(index int) (State, error) {
	if index < 0 || index >= BoardSize {
		return g.state, ErrInvalidIndex
	}
	if g.state.IsOver() {
		return g.state, &MoveRejectedError{Reason: ReasonGameOver, Index: index}
	}
	if g.state.Board[index] != None {
		return g.state, &MoveRejectedError{Reason: ReasonCellOccupied, Index: index}
	}

	mark := g.state.Turn
	g.state.Board[index] = mark

	if winner, _, ok := CheckWinner(g.state.Board); ok {
		g.state.Status = StatusWon
		g.state.Winner = winner
		return g.state, nil
	}
	if IsBoardFull(g.state.Board) {
		g.state.Status = StatusDraw
		return g.state, nil
	}

	g.state.Turn = Opponent(mark)
	return g.state, nil
}

// Reset puts the game back into the initial configuration.
func (g *Game) Reset() State {
	g.state = initialState()
	return g.state
}

// IsOver reports whether the game reached a terminal status.
func (s State) IsOver() bool {
	return s.Status == StatusWon || s.Status == StatusDraw
}

// Playable reports whether a move at index would currently be accepted.
func (s State) Playable(index int) bool {
	if index < 0 || index >= BoardSize {
		return false
	}
	return !s.IsOver() && s.Board[index] == None
}

// OpenCells returns the indexes that would accept a move, in ascending order.
func (s State) OpenCells() []int {
	cells := make([]int, 0, BoardSize)
	for i := range BoardSize {
		if s.Playable(i) {
			cells = append(cells, i)
		}
	}
	return cells
}

// Headline is the result line shown under the board.
func (s State) Headline() string {
	switch s.Status {
	case StatusWon:
		return "Player " + string(s.Winner) + " wins!"
	case StatusDraw:
		return "It's a draw!"
	default:
		return ""
	}
}

// TurnText is the line shown above the board.
func (s State) TurnText() string {
	if s.IsOver() {
		return "Game Over"
	}
	return "Turn: " + string(s.Turn)
}

// Opponent returns the other player's mark.
func Opponent(mark PlayerMark) PlayerMark {
	if mark == PlayerX {
		return PlayerO
	}
	return PlayerX
}
