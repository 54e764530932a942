package status

import "testing"

func TestIsValid(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{Running, true},
		{Succeeded, true},
		{Empty, true},
		{Failed, true},
		{"SUCCEEDED", false},
		{OK, false},
		{Stale, false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			if got := IsValid(tt.status); got != tt.want {
				t.Errorf("IsValid(%q) = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestIsTerminal(t *testing.T) {
	if IsTerminal(Running) {
		t.Error("IsTerminal(Running) = true")
	}
	for _, s := range []string{Succeeded, Empty, Failed} {
		if !IsTerminal(s) {
			t.Errorf("IsTerminal(%q) = false", s)
		}
	}
}
