package rating

import "testing"

func TestEqualRatingsWin(t *testing.T) {
	ch := Compute(Player{Rating: 1500}, Player{Rating: 1500}, "white")
	if ch.White != 16 || ch.Black != -16 {
		t.Fatalf("change=%+v want +16/-16", ch)
	}
}

func TestDrawBetweenEqualsIsZero(t *testing.T) {
	ch := Compute(Player{Rating: 1800, GamesPlayed: 200}, Player{Rating: 1800, GamesPlayed: 5}, "")
	if ch.White != 0 || ch.Black != 0 {
		t.Fatalf("change=%+v", ch)
	}
}

func TestKFactorByExperience(t *testing.T) {
	if got := NewRating(Player{Rating: 1500, GamesPlayed: 50}, 1500, Win); got != 1512 {
		t.Fatalf("active K: got %d", got)
	}
	if got := NewRating(Player{Rating: 1500, GamesPlayed: 150}, 1500, Win); got != 1508 {
		t.Fatalf("expert K: got %d", got)
	}
}

func TestBounds(t *testing.T) {
	if got := NewRating(Player{Rating: 105}, 100, Loss); got != MinRating {
		t.Fatalf("min clamp: %d", got)
	}
	if got := NewRating(Player{Rating: 2995}, 3000, Win); got != MaxRating {
		t.Fatalf("max clamp: %d", got)
	}
}

func TestUnratedDefaults(t *testing.T) {
	ch := Compute(Player{}, Player{}, "black")
	if ch.White != -16 || ch.Black != 16 {
		t.Fatalf("change=%+v", ch)
	}
}
