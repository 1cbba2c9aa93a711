package trigger

import "testing"

func TestMatcherCaseSensitive(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		phrase string
		topic  string
		want   bool
	}{
		{name: "exact substring", phrase: "OPEN", topic: "Status: OPEN", want: true},
		{name: "case mismatch", phrase: "OPEN", topic: "status: open", want: false},
		{name: "substring inside word", phrase: "ONLINE", topic: "ONLINEMODE enabled", want: true},
		{name: "no occurrence", phrase: "OPEN", topic: "general chat", want: false},
		{name: "empty topic", phrase: "OPEN", topic: "", want: false},
		{name: "special characters", phrase: "[maint]", topic: "now in [maint] window", want: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewMatcher(tt.phrase, true)
			if err != nil {
				t.Fatalf("NewMatcher(%q) error: %v", tt.phrase, err)
			}
			if got := m.Match(tt.topic); got != tt.want {
				t.Fatalf("Match(%q) = %v, want %v", tt.topic, got, tt.want)
			}
		})
	}
}

func TestMatcherCaseInsensitive(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		phrase string
		topic  string
		want   bool
	}{
		{name: "folded match", phrase: "OPEN", topic: "status: open", want: true},
		{name: "mixed case", phrase: "open", topic: "Status: OpEn today", want: true},
		{name: "unicode fold", phrase: "CAFÉ", topic: "café hours posted", want: true},
		{name: "no occurrence", phrase: "open", topic: "closed until further notice", want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewMatcher(tt.phrase, false)
			if err != nil {
				t.Fatalf("NewMatcher(%q) error: %v", tt.phrase, err)
			}
			if got := m.Match(tt.topic); got != tt.want {
				t.Fatalf("Match(%q) = %v, want %v", tt.topic, got, tt.want)
			}
		})
	}
}

// A sensitive match must always hold under folding, never the other way round.
func TestSensitiveMatchImpliesInsensitive(t *testing.T) {
	t.Parallel()
	pairs := []struct {
		topic  string
		phrase string
	}{
		{topic: "Status: OPEN", phrase: "OPEN"},
		{topic: "deploy window [now]", phrase: "[now]"},
		{topic: "שלום עולם", phrase: "עולם"},
	}

	for _, p := range pairs {
		cs, err := NewMatcher(p.phrase, true)
		if err != nil {
			t.Fatalf("NewMatcher error: %v", err)
		}
		ci, err := NewMatcher(p.phrase, false)
		if err != nil {
			t.Fatalf("NewMatcher error: %v", err)
		}
		if cs.Match(p.topic) && !ci.Match(p.topic) {
			t.Fatalf("sensitive match without insensitive match for topic %q phrase %q", p.topic, p.phrase)
		}
	}
}

func TestMatcherRejectsEmptyPhrase(t *testing.T) {
	t.Parallel()
	if _, err := NewMatcher("", true); err == nil {
		t.Fatal("expected error for empty phrase")
	}
	if _, err := NewMatcher("", false); err == nil {
		t.Fatal("expected error for empty phrase")
	}
}
