package tournament

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/park285/cheese-arena/pkg/arenadto"
)

var t0 = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func keepOrder(int, func(i, j int)) {}

func field(t *testing.T, format Format, ids ...string) *Tournament {
	t.Helper()
	tr, err := newTournament(CreateRequest{Name: "spring open", OrganizerID: "org", Format: format}, "t1", t0)
	if err != nil {
		t.Fatalf("newTournament: %v", err)
	}
	for _, id := range ids {
		if err := join(tr, JoinRequest{PlayerID: id, Rating: 1200}, t0); err != nil {
			t.Fatalf("join %s: %v", id, err)
		}
	}
	return tr
}

func begin(t *testing.T, tr *Tournament) []int {
	t.Helper()
	playable, err := start(tr, "org", keepOrder, t0)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	for _, i := range playable {
		tr.Matches[i].SessionID = tr.Matches[i].Player1 + "-" + tr.Matches[i].Player2
		tr.Matches[i].Status = MatchInProgress
	}
	return playable
}

// finishRound records results for every open match of the current round.
// winners maps "p1-p2" to the winner, "" for a draw.
func finishRound(t *testing.T, tr *Tournament, winners map[string]string) advanced {
	t.Helper()
	for _, m := range tr.RoundMatches(tr.CurrentRound) {
		if m.Bye || m.Status == MatchCompleted {
			continue
		}
		w, ok := winners[m.SessionID]
		if !ok {
			t.Fatalf("no result given for %s", m.SessionID)
		}
		if !record(tr, m.SessionID, w) {
			t.Fatalf("record %s rejected", m.SessionID)
		}
	}
	adv := advance(tr, t0)
	for _, i := range adv.playable {
		tr.Matches[i].SessionID = tr.Matches[i].Player1 + "-" + tr.Matches[i].Player2
		tr.Matches[i].Status = MatchInProgress
	}
	return adv
}

func roundPairs(tr *Tournament, r int) (pairs []string, bye string) {
	for _, m := range tr.RoundMatches(r) {
		if m.Bye {
			bye = m.Player1
			continue
		}
		pairs = append(pairs, m.Player1+"-"+m.Player2)
	}
	return pairs, bye
}

func TestSwissRounds(t *testing.T) {
	cases := map[int]int{1: 0, 2: 1, 3: 2, 4: 2, 5: 3, 8: 3, 9: 4, 16: 4, 17: 5}
	for n, want := range cases {
		if got := SwissRounds(n); got != want {
			t.Fatalf("SwissRounds(%d)=%d want %d", n, got, want)
		}
	}
}

func TestPairAdjacentOdd(t *testing.T) {
	pairs, bye := PairAdjacent([]string{"a", "b", "c", "d", "e"})
	if diff := cmp.Diff([][2]string{{"a", "b"}, {"c", "d"}}, pairs); diff != "" {
		t.Fatalf("pairs (-want +got):\n%s", diff)
	}
	if bye != "e" {
		t.Fatalf("bye=%q", bye)
	}
}

func TestRoundRobinCoversEveryPairOnce(t *testing.T) {
	ids := []string{"a", "b", "c", "d", "e"}
	pairs := RoundRobinPairings(ids)
	if len(pairs) != 10 {
		t.Fatalf("got %d pairs want 10", len(pairs))
	}
	seen := map[string]bool{}
	for _, p := range pairs {
		k := pairKey(p[0], p[1])
		if seen[k] || p[0] == p[1] {
			t.Fatalf("bad pair %v", p)
		}
		seen[k] = true
	}
}

func TestSeedNumbersInShuffledOrder(t *testing.T) {
	ps := []Participant{{PlayerID: "a"}, {PlayerID: "b"}, {PlayerID: "c"}}
	reverse := func(n int, swap func(i, j int)) {
		for i := 0; i < n/2; i++ {
			swap(i, n-1-i)
		}
	}
	got := Seed(ps, reverse)
	if got[0].PlayerID != "c" || got[0].Seed != 1 || got[2].PlayerID != "a" || got[2].Seed != 3 {
		t.Fatalf("seeded %+v", got)
	}
	if ps[0].Seed != 0 {
		t.Fatalf("input was modified")
	}
}

func TestSwissFivePlayersAvoidsRematches(t *testing.T) {
	tr := field(t, FormatSwiss, "p1", "p2", "p3", "p4", "p5")
	begin(t, tr)
	if tr.TotalRounds != 3 {
		t.Fatalf("total rounds=%d", tr.TotalRounds)
	}
	pairs, bye := roundPairs(tr, 1)
	if diff := cmp.Diff([]string{"p1-p2", "p3-p4"}, pairs); diff != "" || bye != "p5" {
		t.Fatalf("round 1 pairs=%v bye=%s", pairs, bye)
	}

	adv := finishRound(t, tr, map[string]string{"p1-p2": "p1", "p3-p4": "p3"})
	if !adv.newRound || tr.CurrentRound != 2 {
		t.Fatalf("expected round 2, got %+v round=%d", adv, tr.CurrentRound)
	}
	pairs, bye = roundPairs(tr, 2)
	for _, p := range pairs {
		if p == "p1-p2" || p == "p2-p1" || p == "p3-p4" || p == "p4-p3" {
			t.Fatalf("rematch %s in round 2", p)
		}
	}
	if diff := cmp.Diff([]string{"p1-p3", "p2-p5"}, pairs); diff != "" {
		t.Fatalf("round 2 pairs (-want +got):\n%s", diff)
	}
	if bye != "p4" {
		t.Fatalf("round 2 bye=%s, p5 already had one", bye)
	}

	// p1 cannot meet p2 again, and p1-p4 would strand p2 with p5
	finishRound(t, tr, map[string]string{"p1-p3": "p1", "p2-p5": "p2"})
	pairs, bye = roundPairs(tr, 3)
	if diff := cmp.Diff([]string{"p1-p5", "p2-p4"}, pairs); diff != "" || bye != "p3" {
		t.Fatalf("round 3 pairs=%v bye=%s", pairs, bye)
	}

	adv = finishRound(t, tr, map[string]string{"p1-p5": "p1", "p2-p4": ""})
	if !adv.completed || tr.Status != StatusCompleted || tr.WinnerID != "p1" {
		t.Fatalf("expected p1 to win, status=%s winner=%s", tr.Status, tr.WinnerID)
	}
	for _, p := range tr.Participants {
		if p.Status != ParticipantCompleted || p.Placement != 0 {
			t.Fatalf("participant %+v", p)
		}
	}
}

func TestSwissFallsBackWhenRematchFreeIsImpossible(t *testing.T) {
	h := NewHistory()
	h.AddGame("a", "b")
	h.AddGame("a", "c")
	h.AddGame("a", "d")
	r := SwissPairings([]string{"a", "b", "c", "d"}, h)
	if diff := cmp.Diff([][2]string{{"b", "c"}}, r.Pairs); diff != "" {
		t.Fatalf("pairs (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a", "d"}, r.Unpaired); diff != "" {
		t.Fatalf("unpaired (-want +got):\n%s", diff)
	}
}

func TestSingleEliminationConverges(t *testing.T) {
	tr := field(t, FormatSingleElimination, "p1", "p2", "p3", "p4", "p5")
	begin(t, tr)
	if tr.TotalRounds != 3 {
		t.Fatalf("total rounds=%d", tr.TotalRounds)
	}
	finishRound(t, tr, map[string]string{"p1-p2": "p1", "p3-p4": "p3"})
	if tr.participant("p2").Placement != 4 || tr.participant("p2").Status != ParticipantEliminated {
		t.Fatalf("p2=%+v", tr.participant("p2"))
	}
	pairs, bye := roundPairs(tr, 2)
	if diff := cmp.Diff([]string{"p1-p3"}, pairs); diff != "" || bye != "p5" {
		t.Fatalf("round 2 pairs=%v bye=%s", pairs, bye)
	}
	finishRound(t, tr, map[string]string{"p1-p3": "p1"})
	if tr.participant("p3").Placement != 3 {
		t.Fatalf("p3 placement=%d", tr.participant("p3").Placement)
	}
	adv := finishRound(t, tr, map[string]string{"p1-p5": "p5"})
	if !adv.completed || tr.WinnerID != "p5" {
		t.Fatalf("winner=%s completed=%v", tr.WinnerID, adv.completed)
	}
	if tr.participant("p5").Placement != 1 || tr.participant("p1").Placement != 2 {
		t.Fatalf("placements p5=%d p1=%d", tr.participant("p5").Placement, tr.participant("p1").Placement)
	}

	st := Standings(tr)
	order := []string{}
	for _, s := range st {
		order = append(order, s.PlayerID)
	}
	if diff := cmp.Diff([]string{"p5", "p1", "p3", "p2", "p4"}, order); diff != "" {
		t.Fatalf("standings (-want +got):\n%s", diff)
	}
}

func TestKnockoutDrawWaitsForDecision(t *testing.T) {
	tr := field(t, FormatSingleElimination, "p1", "p2")
	begin(t, tr)
	adv := finishRound(t, tr, map[string]string{"p1-p2": ""})
	if adv.newRound || adv.completed {
		t.Fatalf("draw must not advance: %+v", adv)
	}
	m := tr.RoundMatches(1)[0]
	if !m.NeedsDecision || m.Status != MatchInProgress {
		t.Fatalf("match=%+v", m)
	}
	if record(tr, m.SessionID, "p1") {
		t.Fatalf("a pending decision must not be overwritten by a result")
	}
	if err := decide(tr, "p1", 1, 1, "p2"); err == nil {
		t.Fatalf("only the organizer decides")
	}
	if err := decide(tr, "org", 1, 1, "p9"); err == nil {
		t.Fatalf("winner must have played the match")
	}
	if err := decide(tr, "org", 1, 1, ""); !errors.Is(err, arenadto.ErrInvalidArgs) {
		t.Fatalf("knockout cannot be decided as a draw: %v", err)
	}
	if err := decide(tr, "org", 1, 1, "p2"); err != nil {
		t.Fatalf("decide: %v", err)
	}
	if adv := advance(tr, t0); !adv.completed || tr.WinnerID != "p2" {
		t.Fatalf("winner=%s", tr.WinnerID)
	}
}

func TestLostGameBlocksRoundUntilDecided(t *testing.T) {
	tr := field(t, FormatSwiss, "p1", "p2", "p3", "p4")
	begin(t, tr)
	first := tr.RoundMatches(1)[0]
	if !lost(tr, first.SessionID) {
		t.Fatalf("lost did not flag the match")
	}
	if lost(tr, first.SessionID) || record(tr, first.SessionID, first.Player1) {
		t.Fatalf("a flagged match must stay flagged")
	}
	second := tr.RoundMatches(1)[1]
	record(tr, second.SessionID, second.Player2)
	if adv := advance(tr, t0); adv.newRound {
		t.Fatalf("round advanced past an undecided match")
	}
	if err := decide(tr, "org", 1, first.Number, ""); err != nil {
		t.Fatalf("decide draw: %v", err)
	}
	if adv := advance(tr, t0); !adv.newRound || tr.CurrentRound != 2 {
		t.Fatalf("round=%d adv=%+v", tr.CurrentRound, adv)
	}
	for _, st := range Standings(tr) {
		if st.PlayerID == first.Player1 && st.Points != 0.5 {
			t.Fatalf("drawn decision scores half a point, got %v", st.Points)
		}
	}
}

func TestRoundRobinCompletesAfterAllGames(t *testing.T) {
	tr := field(t, FormatRoundRobin, "p1", "p2", "p3")
	playable := begin(t, tr)
	if len(playable) != 3 || tr.TotalRounds != 1 {
		t.Fatalf("playable=%d total=%d", len(playable), tr.TotalRounds)
	}
	if _, bye := roundPairs(tr, 1); bye != "" {
		t.Fatalf("round robin has no byes")
	}
	record(tr, "p1-p2", "p2")
	if adv := advance(tr, t0); adv.completed || adv.newRound {
		t.Fatalf("advanced with games outstanding")
	}
	adv := finishRound(t, tr, map[string]string{"p1-p2": "p2", "p1-p3": "", "p2-p3": "p3"})
	if !adv.completed {
		t.Fatalf("round robin should be complete")
	}
	st := Standings(tr)
	// p3 beat p2 and drew p1
	if st[0].PlayerID != "p3" || st[0].Points != 1.5 || tr.WinnerID != "p3" {
		t.Fatalf("standings=%+v", st)
	}
}

func TestStandingsTieBreaks(t *testing.T) {
	tr := &Tournament{
		Format:         FormatSwiss,
		SwissByePoints: 1,
		Participants: []Participant{
			{PlayerID: "a", Seed: 1, Rating: 1500},
			{PlayerID: "b", Seed: 2, Rating: 1600},
			{PlayerID: "c", Seed: 3, Rating: 1600},
			{PlayerID: "d", Seed: 4, Rating: 1400},
		},
		Matches: []Match{
			{Round: 1, Player1: "a", Player2: "d", Status: MatchCompleted, Draw: true},
			{Round: 1, Player1: "b", Player2: "c", Status: MatchCompleted, WinnerID: "c"},
			{Round: 2, Player1: "b", Status: MatchCompleted, WinnerID: "b", Bye: true},
			{Round: 2, Player1: "a", Player2: "c", Status: MatchInProgress},
		},
	}
	var got []string
	for _, s := range Standings(tr) {
		got = append(got, s.PlayerID)
	}
	// c and b have 1 point; c has the win. a and d share 0.5; a rates higher.
	if diff := cmp.Diff([]string{"c", "b", "a", "d"}, got); diff != "" {
		t.Fatalf("order (-want +got):\n%s", diff)
	}
}

func TestStartGuards(t *testing.T) {
	tr := field(t, FormatSwiss, "p1")
	if _, err := start(tr, "p1", keepOrder, t0); err == nil {
		t.Fatalf("non organizer started")
	}
	if _, err := start(tr, "org", keepOrder, t0); err == nil {
		t.Fatalf("started with one participant")
	}
	if err := join(tr, JoinRequest{PlayerID: "p1"}, t0); err != ErrAlreadyJoined {
		t.Fatalf("duplicate join err=%v", err)
	}
	if err := join(tr, JoinRequest{PlayerID: "p2"}, t0); err != nil {
		t.Fatalf("join: %v", err)
	}
	begin(t, tr)
	if err := join(tr, JoinRequest{PlayerID: "p3"}, t0); err == nil {
		t.Fatalf("joined after start")
	}
}
