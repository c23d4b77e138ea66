package rules

import (
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// Color identifies a side.
type Color uint8

const (
	White Color = iota
	Black
)

func (c Color) Other() Color {
	if c == White {
		return Black
	}
	return White
}

func (c Color) String() string {
	if c == White {
		return "white"
	}
	return "black"
}

// ParseColor accepts "white"/"w" and "black"/"b".
func ParseColor(s string) (Color, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "white", "w":
		return White, true
	case "black", "b":
		return Black, true
	}
	return White, false
}

// PieceType is a colorless piece kind.
type PieceType uint8

const (
	NoPieceType PieceType = iota
	Pawn
	Knight
	Bishop
	Rook
	Queen
	King
)

const pieceLetters = " PNBRQK"

// Letter returns the upper-case SAN letter ("" for pawns and none).
func (t PieceType) Letter() string {
	if t <= Pawn || t > King {
		return ""
	}
	return string(pieceLetters[t])
}

func pieceTypeFromLetter(b byte) PieceType {
	switch b {
	case 'P', 'p':
		return Pawn
	case 'N', 'n':
		return Knight
	case 'B', 'b':
		return Bishop
	case 'R', 'r':
		return Rook
	case 'Q', 'q':
		return Queen
	case 'K', 'k':
		return King
	}
	return NoPieceType
}

// Piece packs color and type; the zero value is an empty square.
type Piece uint8

const NoPiece Piece = 0

func NewPiece(c Color, t PieceType) Piece { return Piece(uint8(c)<<3 | uint8(t)) }

func (p Piece) Type() PieceType { return PieceType(p & 7) }
func (p Piece) Color() Color    { return Color(p >> 3) }

// Square indexes the board, a1=0, b1=1 ... h8=63.
type Square int8

const NoSquare Square = -1

func NewSquare(file, rank int) Square { return Square(rank*8 + file) }

func (s Square) File() int { return int(s) % 8 }
func (s Square) Rank() int { return int(s) / 8 }

func (s Square) String() string {
	if s < 0 || s > 63 {
		return "-"
	}
	return string([]byte{byte('a' + s.File()), byte('1' + s.Rank())})
}

// ParseSquare parses algebraic coordinates like "e4".
func ParseSquare(s string) (Square, bool) {
	if len(s) != 2 {
		return NoSquare, false
	}
	f := int(s[0]) - 'a'
	r := int(s[1]) - '1'
	if f < 0 || f > 7 || r < 0 || r > 7 {
		return NoSquare, false
	}
	return NewSquare(f, r), true
}

// Castling is a bitmask of remaining castling rights.
type Castling uint8

const (
	WhiteKingside Castling = 1 << iota
	WhiteQueenside
	BlackKingside
	BlackQueenside
)

func (c Castling) String() string {
	if c == 0 {
		return "-"
	}
	var b strings.Builder
	if c&WhiteKingside != 0 {
		b.WriteByte('K')
	}
	if c&WhiteQueenside != 0 {
		b.WriteByte('Q')
	}
	if c&BlackKingside != 0 {
		b.WriteByte('k')
	}
	if c&BlackQueenside != 0 {
		b.WriteByte('q')
	}
	return b.String()
}

// Move is a candidate transition. Promotion is NoPieceType unless a pawn
// reaches the last rank.
type Move struct {
	From      Square
	To        Square
	Promotion PieceType
}

// UCI renders the move in long algebraic form, e.g. "e7e8q".
func (m Move) UCI() string {
	s := m.From.String() + m.To.String()
	if m.Promotion != NoPieceType {
		s += strings.ToLower(m.Promotion.Letter())
	}
	return s
}

func (m Move) String() string { return m.UCI() }

// Flags are derived from a move relative to the position it was played in.
type Flags struct {
	Capture   bool `json:"capture,omitempty"`
	Check     bool `json:"check,omitempty"`
	Castle    bool `json:"castle,omitempty"`
	EnPassant bool `json:"en_passant,omitempty"`
	Promotion bool `json:"promotion,omitempty"`
}

// Terminal reports whether and how a game ended after a move.
type Terminal uint8

const (
	Ongoing Terminal = iota
	Checkmate
	Stalemate
	InsufficientMaterial
	ThreefoldRepetition
	FiftyMoveRule
)

func (t Terminal) String() string {
	switch t {
	case Checkmate:
		return "checkmate"
	case Stalemate:
		return "stalemate"
	case InsufficientMaterial:
		return "insufficient_material"
	case ThreefoldRepetition:
		return "threefold_repetition"
	case FiftyMoveRule:
		return "fifty_move_rule"
	}
	return "ongoing"
}

// IsDraw is true for the draw causes (stalemate excluded).
func (t Terminal) IsDraw() bool {
	return t == InsufficientMaterial || t == ThreefoldRepetition || t == FiftyMoveRule
}

var (
	toLib   = [...]nchess.PieceType{nchess.NoPieceType, nchess.Pawn, nchess.Knight, nchess.Bishop, nchess.Rook, nchess.Queen, nchess.King}
	fromLib = map[nchess.PieceType]PieceType{
		nchess.Pawn: Pawn, nchess.Knight: Knight, nchess.Bishop: Bishop,
		nchess.Rook: Rook, nchess.Queen: Queen, nchess.King: King,
	}
)

func (c Color) lib() nchess.Color {
	if c == White {
		return nchess.White
	}
	return nchess.Black
}

func colorOf(c nchess.Color) Color {
	if c == nchess.Black {
		return Black
	}
	return White
}

func pieceOf(p nchess.Piece) Piece {
	if p == nchess.NoPiece {
		return NoPiece
	}
	return NewPiece(colorOf(p.Color()), fromLib[p.Type()])
}

func moveOf(m *nchess.Move) Move {
	return Move{From: Square(m.S1()), To: Square(m.S2()), Promotion: fromLib[m.Promo()]}
}

// same reports whether the library move m is the move mv.
func (mv Move) same(m *nchess.Move) bool {
	return Square(m.S1()) == mv.From && Square(m.S2()) == mv.To && m.Promo() == toLib[mv.Promotion]
}
