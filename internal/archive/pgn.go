package archive

import (
	"fmt"
	"strings"
	"time"

	nchess "github.com/corentings/chess/v2"
)

const startFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// BuildPGN replays the UCI move list through corentings/chess and renders
// a PGN document with the game's headers. The SAN written to the movetext
// is the library's, so a corrupt move list fails here rather than producing
// an unreadable file.
func BuildPGN(g *Game) (string, error) {
	if g == nil {
		return "", nil
	}
	var opts []func(*nchess.Game)
	custom := strings.TrimSpace(g.InitialFEN) != "" && g.InitialFEN != startFEN
	if custom {
		opt, err := nchess.FEN(g.InitialFEN)
		if err != nil {
			return "", fmt.Errorf("initial fen: %w", err)
		}
		opts = append(opts, opt)
	}
	game := nchess.NewGame(opts...)
	notationUCI := nchess.UCINotation{}
	sans := make([]string, 0, len(g.MovesUCI))
	for i, uci := range g.MovesUCI {
		pos := game.Position()
		mv, err := notationUCI.Decode(pos, uci)
		if err != nil {
			return "", fmt.Errorf("move %d %q: %w", i+1, uci, err)
		}
		sans = append(sans, nchess.AlgebraicNotation{}.Encode(pos, mv))
		if err := game.Move(mv, nil); err != nil {
			return "", fmt.Errorf("move %d %q: %w", i+1, uci, err)
		}
	}

	result := PGNResult(g.WinnerColor)
	date := g.EndedAt
	if date.IsZero() {
		date = time.Now()
	}
	var b strings.Builder
	b.WriteString("[Event \"Cheese Arena\"]\n")
	b.WriteString("[Site \"cheese-arena\"]\n")
	b.WriteString(fmt.Sprintf("[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day()))
	b.WriteString(fmt.Sprintf("[White \"%s\"]\n", sanitizePGN(nameOr(g.WhiteName, g.WhiteID))))
	b.WriteString(fmt.Sprintf("[Black \"%s\"]\n", sanitizePGN(nameOr(g.BlackName, g.BlackID))))
	b.WriteString(fmt.Sprintf("[Result \"%s\"]\n", result))
	if g.Rated {
		b.WriteString(fmt.Sprintf("[WhiteElo \"%d\"]\n", g.WhiteRating))
		b.WriteString(fmt.Sprintf("[BlackElo \"%d\"]\n", g.BlackRating))
	}
	if strings.TrimSpace(g.TimeControl) != "" {
		b.WriteString(fmt.Sprintf("[TimeControl \"%s\"]\n", sanitizePGN(g.TimeControl)))
	}
	if term := termination(g); term != "" {
		b.WriteString(fmt.Sprintf("[Termination \"%s\"]\n", sanitizePGN(term)))
	}
	if custom {
		b.WriteString("[SetUp \"1\"]\n")
		b.WriteString(fmt.Sprintf("[FEN \"%s\"]\n", g.InitialFEN))
	}
	b.WriteString("\n")

	// black-to-move starts need "1..." numbering
	ply := 0
	num := 1
	if custom && strings.Contains(g.InitialFEN, " b ") {
		if len(sans) > 0 {
			b.WriteString(fmt.Sprintf("%d... %s ", num, sans[0]))
		}
		ply, num = 1, 2
	}
	for ; ply < len(sans); ply += 2 {
		b.WriteString(fmt.Sprintf("%d. %s", num, sans[ply]))
		if ply+1 < len(sans) {
			b.WriteString(" ")
			b.WriteString(sans[ply+1])
		}
		b.WriteString(" ")
		num++
	}
	b.WriteString(result)
	return b.String(), nil
}

func termination(g *Game) string {
	switch g.Result {
	case "timeout":
		return "time forfeit"
	case "resignation":
		return "resignation"
	case "draw":
		if g.Reason != "" {
			return "draw by " + strings.ReplaceAll(g.Reason, "_", " ")
		}
		return "draw"
	}
	return g.Result
}

func nameOr(name, id string) string {
	if strings.TrimSpace(name) != "" {
		return name
	}
	return id
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
