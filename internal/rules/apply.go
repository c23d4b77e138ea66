package rules

import (
	"fmt"

	nchess "github.com/corentings/chess/v2"

	"github.com/park285/cheese-arena/pkg/arenadto"
)

// Result is the outcome of a legal move.
type Result struct {
	Position Position
	Move     Move
	SAN      string
	Flags    Flags
	Terminal Terminal
}

func invalidMove(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{arenadto.ErrInvalidMove}, args...)...)
}

// Apply validates mv for side in pos and returns the resulting position and
// signals. history holds the repetition keys (Position.Key) of every
// position that occurred before the one produced by this move, including
// pos itself. Neither pos nor history is modified.
func Apply(pos Position, mv Move, side Color, history []string) (*Result, error) {
	if side != pos.Turn() {
		return nil, invalidMove("%s is not to move", side)
	}
	if mv.From < 0 || mv.From > 63 || mv.To < 0 || mv.To > 63 {
		return nil, invalidMove("square out of range")
	}
	pc := pos.PieceAt(mv.From)
	if pc == NoPiece {
		return nil, invalidMove("no piece on %s", mv.From)
	}
	if pc.Color() != side {
		return nil, invalidMove("piece on %s belongs to %s", mv.From, pc.Color())
	}
	if mv.Promotion == King || mv.Promotion == Pawn {
		return nil, invalidMove("cannot promote to %s", mv.Promotion.Letter())
	}

	norm := autoQueen(pos, mv)
	lib, ok := pos.find(norm)
	if !ok {
		return nil, invalidMove("%s is not legal here", mv.UCI())
	}

	next := pos.play(lib)
	return &Result{
		Position: next,
		Move:     norm,
		SAN:      nchess.AlgebraicNotation{}.Encode(pos.pos, lib),
		Flags:    flagsOf(lib),
		Terminal: terminal(next, history),
	}, nil
}

// 승급 기물이 없으면 퀸
func autoQueen(pos Position, mv Move) Move {
	if mv.Promotion == NoPieceType && pos.PieceAt(mv.From).Type() == Pawn && (mv.To.Rank() == 0 || mv.To.Rank() == 7) {
		mv.Promotion = Queen
	}
	return mv
}

func flagsOf(m *nchess.Move) Flags {
	return Flags{
		Capture:   m.HasTag(nchess.Capture) || m.HasTag(nchess.EnPassant),
		Check:     m.HasTag(nchess.Check),
		Castle:    m.HasTag(nchess.KingSideCastle) || m.HasTag(nchess.QueenSideCastle),
		EnPassant: m.HasTag(nchess.EnPassant),
		Promotion: m.Promo() != nchess.NoPieceType,
	}
}

// Status evaluates terminal conditions of pos given the keys of prior
// positions (excluding pos).
func Status(pos Position, history []string) Terminal {
	return terminal(pos, history)
}

// terminal ranks mate and stalemate first, then dead positions, then the
// claimable draws. Repetition is counted over stored keys because a session
// keeps keys rather than a move tree.
func terminal(pos Position, history []string) Terminal {
	g := pos.game()
	switch g.Method() {
	case nchess.Checkmate:
		return Checkmate
	case nchess.Stalemate:
		return Stalemate
	case nchess.InsufficientMaterial:
		return InsufficientMaterial
	}
	key := pos.Key()
	seen := 0
	for _, h := range history {
		if h == key {
			seen++
		}
	}
	if seen >= 2 {
		return ThreefoldRepetition
	}
	for _, d := range g.EligibleDraws() {
		if d == nchess.FiftyMoveRule {
			return FiftyMoveRule
		}
	}
	return Ongoing
}

// InsufficientMaterial reports whether neither side can possibly mate:
// bare kings, a single minor piece, or only bishops all on one color.
func (p Position) InsufficientMaterial() bool {
	return p.game().Method() == nchess.InsufficientMaterial
}

// game roots a library game at p so its automatic draw checks run.
func (p Position) game() *nchess.Game {
	opt, err := nchess.FEN(p.pos.String())
	if err != nil {
		// String of a decoded position always decodes again.
		panic(fmt.Sprintf("rules: re-decode %q: %v", p.pos.String(), err))
	}
	return nchess.NewGame(opt)
}
