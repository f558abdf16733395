package cards

import (
	"testing"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in   string
		want Card
	}{
		{"Ah", Card{Ace, Hearts}},
		{"ah", Card{Ace, Hearts}},
		{"Td", Card{Ten, Diamonds}},
		{"10s", Card{Ten, Spades}},
		{"2c", Card{Two, Clubs}},
		{" Kh ", Card{King, Hearts}},
	}
	for _, c := range cases {
		got, err := Parse(c.in)
		if err != nil {
			t.Errorf("Parse(%q): unexpected error %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("Parse(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, in := range []string{"", "A", "Ax", "1h", "Ahh", "??"} {
		if _, err := Parse(in); err == nil {
			t.Errorf("Parse(%q): expected error", in)
		}
	}
}

func TestStringRoundTrip(t *testing.T) {
	for rank := Two; rank <= Ace; rank++ {
		for suit := Clubs; suit <= Spades; suit++ {
			c := Card{Rank: rank, Suit: suit}
			parsed, err := Parse(c.String())
			if err != nil {
				t.Fatalf("Parse(%q): %v", c.String(), err)
			}
			if parsed != c {
				t.Fatalf("round trip %v -> %q -> %v", c, c.String(), parsed)
			}
		}
	}
}

func TestParseList(t *testing.T) {
	got, err := ParseList("Ah Kd 7c")
	if err != nil {
		t.Fatalf("ParseList: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("want 3 cards, got %d", len(got))
	}
	if Format(got) != "Ah Kd 7c" {
		t.Errorf("Format = %q", Format(got))
	}

	if _, err := ParseList("Ah Xx"); err == nil {
		t.Error("expected error for invalid member")
	}
}

func TestIsRed(t *testing.T) {
	if !(Card{Ace, Hearts}).IsRed() || !(Card{Two, Diamonds}).IsRed() {
		t.Error("hearts and diamonds are red")
	}
	if (Card{Ace, Spades}).IsRed() || (Card{Two, Clubs}).IsRed() {
		t.Error("spades and clubs are black")
	}
}

func TestEqualIsOrderSensitive(t *testing.T) {
	a, _ := ParseList("Ah Kd")
	b, _ := ParseList("Kd Ah")
	if Equal(a, b) {
		t.Error("different order should not be Equal")
	}
	if !Equal(a, a) {
		t.Error("identical lists should be Equal")
	}
	if Equal(a, a[:1]) {
		t.Error("different lengths should not be Equal")
	}
}

func TestSortedCanonicalOrder(t *testing.T) {
	in, _ := ParseList("7c Ah Kd Ac")
	out := Sorted(in)
	if Format(out) != "Ac Ah Kd 7c" {
		t.Errorf("Sorted = %q", Format(out))
	}
	// input untouched
	if Format(in) != "7c Ah Kd Ac" {
		t.Errorf("input mutated: %q", Format(in))
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(Ace, Spades); err != nil {
		t.Errorf("valid card rejected: %v", err)
	}
	if _, err := New(Rank(1), Spades); err == nil {
		t.Error("rank below Two accepted")
	}
	if _, err := New(Ace, Suit(9)); err == nil {
		t.Error("invalid suit accepted")
	}
}
