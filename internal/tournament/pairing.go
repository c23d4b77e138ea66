package tournament

import (
	"math/bits"
	"math/rand/v2"
	"sort"
)

// Shuffler permutes n elements through swap, with the rand.Shuffle contract.
type Shuffler func(n int, swap func(i, j int))

// Seed shuffles participants uniformly and numbers them 1..n in the new order.
func Seed(ps []Participant, shuffle Shuffler) []Participant {
	out := append([]Participant(nil), ps...)
	if shuffle == nil {
		shuffle = rand.Shuffle
	}
	shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	for i := range out {
		out[i].Seed = i + 1
	}
	return out
}

// PairAdjacent pairs 1v2, 3v4, ... An odd element out is returned as bye.
func PairAdjacent(ids []string) (pairs [][2]string, bye string) {
	for i := 0; i+1 < len(ids); i += 2 {
		pairs = append(pairs, [2]string{ids[i], ids[i+1]})
	}
	if len(ids)%2 == 1 {
		bye = ids[len(ids)-1]
	}
	return pairs, bye
}

// RoundRobinPairings returns every unordered pair, C(n,2) in total, in seed order.
func RoundRobinPairings(ids []string) [][2]string {
	out := make([][2]string, 0, len(ids)*(len(ids)-1)/2)
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			out = append(out, [2]string{ids[i], ids[j]})
		}
	}
	return out
}

// SwissRounds is ceil(log2 n).
func SwissRounds(n int) int {
	if n <= 1 {
		return 0
	}
	return bits.Len(uint(n - 1))
}

func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "\x00" + b
}

// History records who has met whom and who has had a bye.
type History struct {
	played map[string]bool
	byes   map[string]bool
}

func NewHistory() *History {
	return &History{played: make(map[string]bool), byes: make(map[string]bool)}
}

func (h *History) AddGame(a, b string) { h.played[pairKey(a, b)] = true }
func (h *History) AddBye(id string)   { h.byes[id] = true }
func (h *History) Played(a, b string) bool {
	return h.played[pairKey(a, b)]
}
func (h *History) HadBye(id string) bool { return h.byes[id] }

// SwissRound is one round of Swiss pairings. Unpaired lists players the
// rematch-free search could not place; they sit the round out.
type SwissRound struct {
	Pairs    [][2]string
	Bye      string
	Unpaired []string
}

// pairing search gives up after this many steps and falls back to greedy
const searchBudget = 200000

// SwissPairings pairs order (ranked best first) without rematches. With an
// odd count the bye goes to the lowest ranked player who has not had one.
// When no rematch-free pairing exists, players are taken in score order
// against the first unplayed opponent left, and anyone stranded sits out.
func SwissPairings(order []string, h *History) SwissRound {
	if h == nil {
		h = NewHistory()
	}
	if len(order)%2 == 0 {
		budget := searchBudget
		if pairs, ok := pairUp(order, h, &budget); ok {
			return SwissRound{Pairs: pairs}
		}
		pairs, left := greedyPairs(order, h)
		return SwissRound{Pairs: pairs, Unpaired: left}
	}

	candidates := make([]int, 0, len(order))
	for i := len(order) - 1; i >= 0; i-- {
		if !h.HadBye(order[i]) {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		for i := len(order) - 1; i >= 0; i-- {
			candidates = append(candidates, i)
		}
	}
	budget := searchBudget
	for _, i := range candidates {
		rest := without(order, i)
		if pairs, ok := pairUp(rest, h, &budget); ok {
			return SwissRound{Pairs: pairs, Bye: order[i]}
		}
		if budget <= 0 {
			break
		}
	}
	bye := candidates[0]
	pairs, left := greedyPairs(without(order, bye), h)
	return SwissRound{Pairs: pairs, Bye: order[bye], Unpaired: left}
}

func without(ids []string, i int) []string {
	out := make([]string, 0, len(ids)-1)
	out = append(out, ids[:i]...)
	return append(out, ids[i+1:]...)
}

// pairUp pairs the top player with the first eligible opponent and
// backtracks when that choice strands someone further down.
func pairUp(ids []string, h *History, budget *int) ([][2]string, bool) {
	if len(ids) == 0 {
		return nil, true
	}
	*budget--
	if *budget <= 0 {
		return nil, false
	}
	first := ids[0]
	for j := 1; j < len(ids); j++ {
		if h.Played(first, ids[j]) {
			continue
		}
		rest := make([]string, 0, len(ids)-2)
		rest = append(rest, ids[1:j]...)
		rest = append(rest, ids[j+1:]...)
		if sub, ok := pairUp(rest, h, budget); ok {
			return append([][2]string{{first, ids[j]}}, sub...), true
		}
		if *budget <= 0 {
			return nil, false
		}
	}
	return nil, false
}

func greedyPairs(ids []string, h *History) ([][2]string, []string) {
	used := make([]bool, len(ids))
	var pairs [][2]string
	var left []string
	for i := range ids {
		if used[i] {
			continue
		}
		used[i] = true
		found := false
		for j := i + 1; j < len(ids); j++ {
			if !used[j] && !h.Played(ids[i], ids[j]) {
				used[j] = true
				pairs = append(pairs, [2]string{ids[i], ids[j]})
				found = true
				break
			}
		}
		if !found {
			left = append(left, ids[i])
		}
	}
	return pairs, left
}

// Standings computes the points table from completed matches. Wins count
// 1, draws 0.5, byes byePoints. Rows are ordered by placement when set,
// then points, wins, rating (higher first) and seed.
func Standings(t *Tournament) []Standing {
	byePoints := 0.0
	if t.Format == FormatSwiss {
		byePoints = t.SwissByePoints
	}
	rows := make(map[string]*Standing, len(t.Participants))
	out := make([]Standing, 0, len(t.Participants))
	for _, p := range t.Participants {
		rows[p.PlayerID] = &Standing{PlayerID: p.PlayerID, Name: p.Name, Seed: p.Seed, Rating: p.Rating, Placement: p.Placement}
	}
	for _, m := range t.Matches {
		if m.Status != MatchCompleted {
			continue
		}
		if m.Bye {
			if r := rows[m.Player1]; r != nil {
				r.Byes++
				r.Points += byePoints
			}
			continue
		}
		a, b := rows[m.Player1], rows[m.Player2]
		if a == nil || b == nil {
			continue
		}
		switch {
		case m.Draw && m.WinnerID == "":
			a.Draws++
			b.Draws++
			a.Points += 0.5
			b.Points += 0.5
		case m.WinnerID == m.Player1:
			a.Wins++
			a.Points++
			b.Losses++
		case m.WinnerID == m.Player2:
			b.Wins++
			b.Points++
			a.Losses++
		}
	}
	for _, p := range t.Participants {
		out = append(out, *rows[p.PlayerID])
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if (a.Placement > 0) != (b.Placement > 0) {
			return a.Placement > 0
		}
		if a.Placement != b.Placement {
			return a.Placement < b.Placement
		}
		if a.Points != b.Points {
			return a.Points > b.Points
		}
		if a.Wins != b.Wins {
			return a.Wins > b.Wins
		}
		if a.Rating != b.Rating {
			return a.Rating > b.Rating
		}
		return a.Seed < b.Seed
	})
	return out
}
