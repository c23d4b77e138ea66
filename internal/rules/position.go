package rules

import (
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// StartFEN is the standard initial position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// Position is an immutable board state backed by corentings/chess. Use
// ParseFEN or StartingPosition to obtain one; Apply returns new positions.
type Position struct {
	pos *nchess.Position
}

func StartingPosition() Position {
	p, err := ParseFEN(StartFEN)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Position) Turn() Color        { return colorOf(p.pos.Turn()) }
func (p Position) HalfMoveClock() int { return p.pos.HalfMoveClock() }

func (p Position) PieceAt(s Square) Piece {
	if s < 0 || s > 63 {
		return NoPiece
	}
	return pieceOf(p.pos.Board().Piece(nchess.Square(s)))
}

func (p Position) CastlingRights() Castling {
	cr := p.pos.CastleRights()
	var c Castling
	if cr.CanCastle(nchess.White, nchess.KingSide) {
		c |= WhiteKingside
	}
	if cr.CanCastle(nchess.White, nchess.QueenSide) {
		c |= WhiteQueenside
	}
	if cr.CanCastle(nchess.Black, nchess.KingSide) {
		c |= BlackKingside
	}
	if cr.CanCastle(nchess.Black, nchess.QueenSide) {
		c |= BlackQueenside
	}
	return c
}

// EnPassant returns the en-passant target only while a capture onto it is
// legal, so repetition keys do not depend on an unusable target.
func (p Position) EnPassant() Square {
	if p.pos.EnPassantSquare() == nchess.NoSquare {
		return NoSquare
	}
	for _, m := range p.pos.ValidMoves() {
		if m.HasTag(nchess.EnPassant) {
			return Square(p.pos.EnPassantSquare())
		}
	}
	return NoSquare
}

// ParseFEN parses a FEN string. Half-move and full-move fields are optional.
// Castling rights whose king or rook is not on its home square are dropped.
func ParseFEN(fen string) (Position, error) {
	fields := strings.Fields(strings.TrimSpace(fen))
	if len(fields) < 4 || len(fields) > 6 {
		return Position{}, fmt.Errorf("fen: expected 4 to 6 fields, got %d", len(fields))
	}
	if len(fields) == 4 {
		fields = append(fields, "0")
	}
	if len(fields) == 5 {
		fields = append(fields, "1")
	}
	p, err := decode(fields)
	if err != nil {
		return Position{}, err
	}
	if err := p.validate(); err != nil {
		return Position{}, err
	}
	if c := p.sanitizeCastling(); c != p.CastlingRights() {
		fields[2] = c.String()
		if p, err = decode(fields); err != nil {
			return Position{}, err
		}
	}
	return p, nil
}

// decode uses UnmarshalText, which also evaluates check on the root
// position.
func decode(fields []string) (Position, error) {
	lp := new(nchess.Position)
	if err := lp.UnmarshalText([]byte(strings.Join(fields, " "))); err != nil {
		return Position{}, fmt.Errorf("fen: %w", err)
	}
	return Position{pos: lp}, nil
}

func (p Position) validate() error {
	kings := [2]int{}
	for sq, pc := range p.pos.Board().SquareMap() {
		switch pc.Type() {
		case nchess.King:
			kings[colorOf(pc.Color())]++
		case nchess.Pawn:
			if r := Square(sq).Rank(); r == 0 || r == 7 {
				return fmt.Errorf("fen: pawn on rank %d", r+1)
			}
		}
	}
	if kings[White] != 1 || kings[Black] != 1 {
		return fmt.Errorf("fen: need exactly one king per side")
	}
	return p.validateEnPassant()
}

// validateEnPassant accepts a target only when the enemy pawn that just
// double-pushed stands in front of it and its origin square is empty.
func (p Position) validateEnPassant() error {
	lib := p.pos.EnPassantSquare()
	if lib == nchess.NoSquare {
		return nil
	}
	ep := Square(lib)
	rank, dir, enemy := 5, -8, NewPiece(Black, Pawn)
	if p.Turn() == Black {
		rank, dir, enemy = 2, 8, NewPiece(White, Pawn)
	}
	switch {
	case ep.Rank() != rank:
		return fmt.Errorf("fen: en passant square %s is not on rank %d", ep, rank+1)
	case p.PieceAt(ep) != NoPiece:
		return fmt.Errorf("fen: en passant square %s is occupied", ep)
	case p.PieceAt(ep+Square(dir)) != enemy:
		return fmt.Errorf("fen: no pawn in front of en passant square %s", ep)
	case p.PieceAt(ep-Square(dir)) != NoPiece:
		return fmt.Errorf("fen: origin of the double push onto %s is occupied", ep)
	}
	return nil
}

func (p Position) sanitizeCastling() Castling {
	c := p.CastlingRights()
	wk, bk := NewPiece(White, King), NewPiece(Black, King)
	wr, br := NewPiece(White, Rook), NewPiece(Black, Rook)
	if p.PieceAt(sqE1) != wk {
		c &^= WhiteKingside | WhiteQueenside
	}
	if p.PieceAt(sqE8) != bk {
		c &^= BlackKingside | BlackQueenside
	}
	if p.PieceAt(sqH1) != wr {
		c &^= WhiteKingside
	}
	if p.PieceAt(sqA1) != wr {
		c &^= WhiteQueenside
	}
	if p.PieceAt(sqH8) != br {
		c &^= BlackKingside
	}
	if p.PieceAt(sqA8) != br {
		c &^= BlackQueenside
	}
	return c
}

// FEN serializes the position.
func (p Position) FEN() string {
	f := strings.Fields(p.pos.String())
	return p.Key() + " " + f[4] + " " + f[5]
}

// Key is the repetition identity: placement, side to move, castling rights
// and en-passant target (the first four FEN fields).
func (p Position) Key() string {
	side := "w"
	if p.Turn() == Black {
		side = "b"
	}
	return p.pos.Board().String() + " " + side + " " + p.CastlingRights().String() + " " + p.EnPassant().String()
}

// KeyOf returns the repetition key of a FEN string, or the trimmed input
// when it carries fewer than four fields.
func KeyOf(fen string) string {
	fields := strings.Fields(fen)
	if len(fields) < 4 {
		return strings.TrimSpace(fen)
	}
	return strings.Join(fields[:4], " ")
}

// LegalMoves lists every legal move of the side to move.
func (p Position) LegalMoves() []Move {
	libs := p.pos.ValidMoves()
	out := make([]Move, 0, len(libs))
	for i := range libs {
		out = append(out, moveOf(&libs[i]))
	}
	return out
}

// find returns the tagged library move matching mv.
func (p Position) find(mv Move) (*nchess.Move, bool) {
	libs := p.pos.ValidMoves()
	for i := range libs {
		if mv.same(&libs[i]) {
			return &libs[i], true
		}
	}
	return nil, false
}

func (p Position) play(m *nchess.Move) Position {
	return Position{pos: p.pos.Update(m)}
}

const (
	sqA1 Square = 0
	sqE1 Square = 4
	sqH1 Square = 7
	sqA8 Square = 56
	sqE8 Square = 60
	sqH8 Square = 63
)
