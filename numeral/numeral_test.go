package numeral

import "testing"

// ---------------------------------------------------------------------------
// Normalize
// ---------------------------------------------------------------------------

func TestNormalize(t *testing.T) {
	tests := []struct {
		token string
		kind  Kind
		value int
		core  string
	}{
		{"१.", DevanagariDigit, 1, "१"},
		{"३", DevanagariDigit, 3, "३"},
		{"१४", DevanagariDigit, 14, "१४"},
		{"12", LatinDigit, 12, "12"},
		{"(क)", DevanagariLetter, 1, "क"},
		{"(ग)", DevanagariLetter, 3, "ग"},
		{"(ह)", DevanagariLetter, 33, "ह"},
		{"(a)", LatinLetter, 1, "a"},
		{"(C)", LatinLetter, 3, "C"},
		{"(३)", DevanagariDigit, 3, "३"},
		{"५।", DevanagariDigit, 5, "५"},
		{"१2", DevanagariDigit, 12, "१2"},
	}
	for _, tt := range tests {
		n, ok := Normalize(tt.token)
		if !ok {
			t.Errorf("Normalize(%q) not recognised", tt.token)
			continue
		}
		if n.Kind != tt.kind || n.Value != tt.value || n.Token != tt.core {
			t.Errorf("Normalize(%q) = %+v, want kind=%v value=%d token=%q",
				tt.token, n, tt.kind, tt.value, tt.core)
		}
	}
}

func TestNormalizeRejectsWords(t *testing.T) {
	for _, tok := range []string{"", "()", "दफा", "Section", "ab", "कख", "1a", "१२३४५६७"} {
		if n, ok := Normalize(tok); ok {
			t.Errorf("Normalize(%q) = %+v, want not recognised", tok, n)
		}
	}
}

func TestNormalizeRoman(t *testing.T) {
	n, ok := NormalizeRoman("(iv)")
	if !ok || n.Value != 4 || n.Kind != Roman {
		t.Fatalf("NormalizeRoman(iv) = %+v, %v", n, ok)
	}
	if _, ok := NormalizeRoman("(q)"); ok {
		t.Error("NormalizeRoman(q) should fail")
	}
	// Without opting in, "i" is the ninth Latin letter.
	n, _ = Normalize("(i)")
	if n.Kind != LatinLetter || n.Value != 9 {
		t.Errorf("Normalize(i) = %+v, want latin letter 9", n)
	}
}

// ---------------------------------------------------------------------------
// Rendering keeps the source shape
// ---------------------------------------------------------------------------

func TestRenderKeepsSourceShape(t *testing.T) {
	n, _ := Normalize("३")
	if got := Render(n); got != "३" {
		t.Errorf("Render(३) = %q, want %q", got, "३")
	}
	if n.Value != 3 {
		t.Errorf("value = %d, want 3", n.Value)
	}

	l, _ := Normalize("3")
	if !n.Equal(l) {
		t.Error("३ and 3 should be equal by value")
	}
	if Render(l) != "3" {
		t.Errorf("Render(3) = %q", Render(l))
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		kind Kind
		v    int
		want string
	}{
		{DevanagariDigit, 14, "१४"},
		{LatinDigit, 14, "14"},
		{DevanagariLetter, 3, "ग"},
		{LatinLetter, 2, "b"},
		{Roman, 9, "ix"},
		{DevanagariLetter, 99, "99"},
	}
	for _, tt := range tests {
		if got := Format(tt.kind, tt.v); got != tt.want {
			t.Errorf("Format(%v, %d) = %q, want %q", tt.kind, tt.v, got, tt.want)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	for _, kind := range []Kind{DevanagariDigit, LatinDigit, DevanagariLetter, LatinLetter} {
		for v := 1; v <= 20; v++ {
			s := Format(kind, v)
			n, ok := Normalize(s)
			if !ok {
				t.Fatalf("Normalize(Format(%v,%d)=%q) failed", kind, v, s)
			}
			if n.Value != v || n.Kind != kind || Render(n) != s {
				t.Errorf("round trip %v/%d: got %+v render %q", kind, v, n, Render(n))
			}
		}
	}
}
