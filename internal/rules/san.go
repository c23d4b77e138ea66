package rules

import (
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// SAN renders a legal move in standard algebraic notation, or "" when m is
// not legal in pos.
func SAN(pos Position, m Move) string {
	lib, ok := pos.find(m)
	if !ok {
		return ""
	}
	return nchess.AlgebraicNotation{}.Encode(pos.pos, lib)
}

// ParseMove reads a move in UCI ("e2e4", "e7e8q") or SAN ("Nf3", "exd5",
// "O-O", "e8=Q+") relative to pos. The result is a legal move of pos.
func ParseMove(pos Position, text string) (Move, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return Move{}, invalidMove("empty move")
	}
	if m, ok := parseUCI(s); ok {
		norm := autoQueen(pos, m)
		if _, ok := pos.find(norm); ok {
			return norm, nil
		}
		return Move{}, invalidMove("%s is not legal here", s)
	}
	return parseSAN(pos, s)
}

func parseUCI(s string) (Move, bool) {
	if len(s) != 4 && len(s) != 5 {
		return Move{}, false
	}
	ls := strings.ToLower(s)
	from, ok1 := ParseSquare(ls[0:2])
	to, ok2 := ParseSquare(ls[2:4])
	if !ok1 || !ok2 {
		return Move{}, false
	}
	m := Move{From: from, To: to}
	if len(ls) == 5 {
		switch ls[4] {
		case 'q', 'r', 'b', 'n':
			m.Promotion = pieceTypeFromLetter(ls[4])
		default:
			return Move{}, false
		}
	}
	return m, true
}

// parseSAN matches loosely written SAN against the legal moves: capture and
// check marks may be missing, "0-0" stands for "O-O", extra origin
// coordinates are tolerated and a bare pawn move to the last rank promotes
// to a queen. Ambiguous input is rejected.
func parseSAN(pos Position, raw string) (Move, error) {
	s := strings.Map(func(r rune) rune {
		switch r {
		case 'x', 'X', '=', '+', '#', '!', '?', ':':
			return -1
		case '0':
			return 'O'
		}
		return r
	}, raw)
	s = strings.TrimSuffix(s, "e.p.")

	legal := pos.pos.ValidMoves()
	if s == "O-O" || s == "O-O-O" {
		tag := nchess.KingSideCastle
		if s == "O-O-O" {
			tag = nchess.QueenSideCastle
		}
		for i := range legal {
			if legal[i].HasTag(tag) {
				return moveOf(&legal[i]), nil
			}
		}
		return Move{}, invalidMove("castling not available")
	}

	piece := Pawn
	if len(s) > 0 && strings.IndexByte("NBRQK", s[0]) >= 0 {
		piece = pieceTypeFromLetter(s[0])
		s = s[1:]
	}
	promo := NoPieceType
	if piece == Pawn && len(s) > 0 && strings.IndexByte("QRBNqrbn", s[len(s)-1]) >= 0 {
		promo = pieceTypeFromLetter(s[len(s)-1])
		s = s[:len(s)-1]
	}
	if len(s) < 2 {
		return Move{}, invalidMove("cannot read %q", raw)
	}
	to, ok := ParseSquare(s[len(s)-2:])
	if !ok {
		return Move{}, invalidMove("cannot read %q", raw)
	}
	fromFile, fromRank := -1, -1
	for i := 0; i < len(s)-2; i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'h':
			fromFile = int(c - 'a')
		case c >= '1' && c <= '8':
			fromRank = int(c - '1')
		default:
			return Move{}, invalidMove("cannot read %q", raw)
		}
	}
	if promo == NoPieceType && piece == Pawn && (to.Rank() == 0 || to.Rank() == 7) {
		promo = Queen
	}

	var match Move
	n := 0
	for i := range legal {
		m := moveOf(&legal[i])
		if pos.PieceAt(m.From).Type() != piece || m.To != to || m.Promotion != promo {
			continue
		}
		if fromFile >= 0 && m.From.File() != fromFile {
			continue
		}
		if fromRank >= 0 && m.From.Rank() != fromRank {
			continue
		}
		match = m
		n++
	}
	switch n {
	case 0:
		return Move{}, invalidMove("%s is not legal here", raw)
	case 1:
		return match, nil
	}
	return Move{}, invalidMove("%s is ambiguous", raw)
}
