package server

import (
	"fmt"
	"testing"
)

func TestHistoryRange(t *testing.T) {
	h := NewHistory(4)
	for seq := uint64(1); seq <= 6; seq++ {
		h.Add(seq, []byte(fmt.Sprint(seq)))
	}
	if h.Len() != 4 {
		t.Fatalf("Len = %d, want 4", h.Len())
	}

	tests := []struct {
		name      string
		after, to uint64
		want      string
		ok        bool
	}{
		{"full window", 2, 6, "3456", true},
		{"tail", 4, 6, "56", true},
		{"middle", 3, 5, "45", true},
		{"empty", 6, 6, "", true},
		{"evicted", 1, 6, "", false},
		{"future", 5, 7, "", false},
		{"backwards", 6, 5, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frames, ok := h.Range(tt.after, tt.to)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			got := ""
			for _, f := range frames {
				got += string(f)
			}
			if got != tt.want {
				t.Errorf("frames = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHistoryEmpty(t *testing.T) {
	h := NewHistory(0)
	if _, ok := h.Range(0, 1); ok {
		t.Error("empty history cannot serve a range")
	}
	if _, ok := h.Range(3, 3); !ok {
		t.Error("an empty range needs no frames")
	}
}
