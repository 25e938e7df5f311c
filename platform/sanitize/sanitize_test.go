package sanitize

import "testing"

func TestText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"plain", "Furnace not heating", 0, "Furnace not heating"},
		{"tags", "<b>Gate</b> code <script>x</script>1234", 0, "Gate code x1234"},
		{"encoded tags", "&lt;img src=x&gt;Hi", 0, "Hi"},
		{"blanks", "  side   door\t\tplease  ", 0, "side door please"},
		{"keeps lines", "line one\n   line   two", 0, "line one\nline two"},
		{"truncates runes", "ñandú ñandú", 5, "ñandú"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Text(tt.in, tt.max); got != tt.want {
				t.Fatalf("Text(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
