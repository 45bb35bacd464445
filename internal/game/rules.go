package game

// Line is one of the eight index triples that win the game when uniformly marked.
type Line [3]int

// WinningLines is scanned in this order. The first matching line wins.
var WinningLines = [8]Line{
	// Rows
	{0, 1, 2},
	{3, 4, 5},
	{6, 7, 8},
	// Columns
	{0, 3, 6},
	{1, 4, 7},
	{2, 5, 8},
	// Diagonals
	{0, 4, 8},
	{2, 4, 6},
}

// CheckWinner returns the mark and line of the first winning line in
// WinningLines order. With alternating single moves on a 3x3 board two lines
// can only be completed together by the same mark, so first-match is enough.
func CheckWinner(board Board) (PlayerMark, Line, bool) {
	for _, line := range WinningLines {
		if matches(board, line) {
			return board[line[0]], line, true
		}
	}
	return None, Line{}, false
}

// MatchedLines returns every uniformly marked line on the board.
func MatchedLines(board Board) []Line {
	var lines []Line
	for _, line := range WinningLines {
		if matches(board, line) {
			lines = append(lines, line)
		}
	}
	return lines
}

func matches(board Board, line Line) bool {
	a := board[line[0]]
	return a != None && a == board[line[1]] && a == board[line[2]]
}

// IsBoardFull checks if every cell holds a mark.
func IsBoardFull(board Board) bool {
	for _, cell := range board {
		if cell == None {
			return false
		}
	}
	return true
}

// Index converts a row and column into a board index. ok is false when either
// coordinate is outside the board.
func Index(row, col int) (int, bool) {
	if row < BorderMin || row > BorderMax || col < BorderMin || col > BorderMax {
		return -1, false
	}
	return row*3 + col, true
}

// Position converts a board index into its row and column.
func Position(index int) (row, col int) {
	return index / 3, index % 3
}

// Rows returns the board as three rows, the shape the web client renders.
func (b Board) Rows() [][]PlayerMark {
	rows := make([][]PlayerMark, 3)
	for r := range 3 {
		rows[r] = make([]PlayerMark, 3)
		copy(rows[r], b[r*3:r*3+3])
	}
	return rows
}
