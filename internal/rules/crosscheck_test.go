package rules

import (
	"math/rand"
	"sort"
	"strings"
	"testing"

	nchess "github.com/corentings/chess/v2"
	"github.com/google/go-cmp/cmp"
)

func referenceMoves(g *nchess.Game) []string {
	var out []string
	for _, mv := range g.ValidMoves() {
		out = append(out, mv.String())
	}
	sort.Strings(out)
	return out
}

func ourMoves(p Position) []string {
	var out []string
	for _, m := range p.LegalMoves() {
		out = append(out, m.UCI())
	}
	sort.Strings(out)
	return out
}

// placement keeps the board, side and clocks, dropping castling and en
// passant which are normalised differently.
func placement(fen string) string {
	f := strings.Fields(fen)
	return strings.Join([]string{f[0], f[1], f[4], f[5]}, " ")
}

// Random playouts compared move-for-move against corentings/chess.
func TestLegalMovesMatchReferenceGenerator(t *testing.T) {
	starts := []string{
		StartFEN,
		"r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1",
		"8/2p5/3p4/KP5r/1R3p1k/8/4P1P1/8 w - - 0 1",
		"rnbq1k1r/pp1Pbppp/2p5/8/2B5/8/PPP1NnPP/RNBQK2R w KQ - 1 8",
	}
	rng := rand.New(rand.NewSource(20261014))
	for _, fen := range starts {
		for game := 0; game < 8; game++ {
			opt, err := nchess.FEN(fen)
			if err != nil {
				t.Fatalf("reference FEN: %v", err)
			}
			ref := nchess.NewGame(opt)
			pos := mustFEN(t, fen)
			history := []string{pos.Key()}

			for ply := 0; ply < 120; ply++ {
				want := referenceMoves(ref)
				got := ourMoves(pos)
				if diff := cmp.Diff(want, got); diff != "" {
					t.Fatalf("legal moves differ at %s (-ref +ours):\n%s", pos.FEN(), diff)
				}
				if len(got) == 0 || ref.Outcome() != nchess.NoOutcome {
					break
				}
				uci := got[rng.Intn(len(got))]
				mv, err := ParseMove(pos, uci)
				if err != nil {
					t.Fatalf("ParseMove(%s): %v", uci, err)
				}
				res, err := Apply(pos, mv, pos.Turn(), history)
				if err != nil {
					t.Fatalf("Apply(%s) at %s: %v", uci, pos.FEN(), err)
				}
				if err := ref.PushNotationMove(uci, nchess.UCINotation{}, nil); err != nil {
					t.Fatalf("reference rejected %s at %s: %v", uci, pos.FEN(), err)
				}
				if got, want := placement(res.Position.FEN()), placement(ref.Position().String()); got != want {
					t.Fatalf("after %s: placement %s want %s", uci, got, want)
				}
				pos = res.Position
				history = append(history, pos.Key())
				if res.Terminal != Ongoing {
					break
				}
			}
		}
	}
}
