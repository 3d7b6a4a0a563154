package shared

import (
	"strings"
	"testing"
)

func TestSanitizeFilename(t *testing.T) {
	tc := []struct {
		name string
		in   string
		want string
	}{
		{name: "reserved characters", in: `a<b>c:d"e/f\g|h?i*j`, want: "a_b_c_d_e_f_g_h_i_j"},
		{name: "control characters", in: "line\none\ttab", want: "line_one_tab"},
		{name: "collapses whitespace", in: "  many    spaces  ", want: "many spaces"},
		{name: "caps length", in: strings.Repeat("x", 150), want: strings.Repeat("x", 100)},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeFilename(tt.in); got != tt.want {
				t.Errorf("SanitizeFilename() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestArtifactFilename(t *testing.T) {
	tc := []struct {
		name   string
		id     int
		prompt string
		want   string
	}{
		{name: "short prompt", id: 1, prompt: "A cat on a boat", want: "1_A cat on a boat.mp4"},
		{name: "trims prompt to fifty characters", id: 12, prompt: strings.Repeat("a", 80), want: "12_" + strings.Repeat("a", 50) + ".mp4"},
		{name: "sanitizes", id: 3, prompt: "what/why?", want: "3_what_why_.mp4"},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := ArtifactFilename(tt.id, tt.prompt); got != tt.want {
				t.Errorf("ArtifactFilename() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGenerateID(t *testing.T) {
	a, b := GenerateID(), GenerateID()
	if a == b {
		t.Error("expected distinct ids")
	}
	if len(a) != 36 {
		t.Errorf("expected uuid string, got %q", a)
	}
}

func TestMarshalJSON(t *testing.T) {
	data, err := MarshalJSON(map[string]int{"a": 1}, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(data), "\n  \"a\": 1") {
		t.Errorf("expected indented output, got %s", data)
	}
}
