package gcode

import (
	"testing"

	"gorbl/protocol"
)

func TestParseBasicCommands(t *testing.T) {
	tests := []struct {
		input string
		words []Word
	}{
		{"G0 X10 Y20", []Word{{'G', 0}, {'X', 10}, {'Y', 20}}},
		{"g1x100.5y200.25f3000", []Word{{'G', 1}, {'X', 100.5}, {'Y', 200.25}, {'F', 3000}}},
		{"G38.2 Z-5", []Word{{'G', 38.2}, {'Z', -5}}},
		{"M3 S1000 ; spindle on", []Word{{'M', 3}, {'S', 1000}}},
		{"G92 X0 (zero) Y.5", []Word{{'G', 92}, {'X', 0}, {'Y', 0.5}}},
		{"N10 G1 X -1", []Word{{'N', 10}, {'G', 1}, {'X', -1}}},
		{"", nil},
	}

	for _, test := range tests {
		blk, status := Parse(test.input)
		if status != protocol.StatusOK {
			t.Errorf("Parse(%q) status %v", test.input, status)
			continue
		}
		if len(blk.Words) != len(test.words) {
			t.Errorf("Parse(%q) got %d words, want %d", test.input, len(blk.Words), len(test.words))
			continue
		}
		for i, w := range test.words {
			got := blk.Words[i]
			if got.Letter != w.Letter || got.Value < w.Value-1e-9 || got.Value > w.Value+1e-9 {
				t.Errorf("Parse(%q) word %d = %c%v, want %c%v", test.input, i, got.Letter, got.Value, w.Letter, w.Value)
			}
		}
	}
}

func TestParseComments(t *testing.T) {
	blk, status := Parse("(only a comment)")
	if status != protocol.StatusOK || len(blk.Words) != 0 || blk.Comment != "only a comment" {
		t.Errorf("unexpected parse: %+v %v", blk, status)
	}

	blk, _ = Parse("/G0 X1")
	if !blk.Deleted {
		t.Error("expected block delete flag")
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		input  string
		status protocol.StatusCode
	}{
		{"G", protocol.StatusBadNumberFormat},
		{"X.", protocol.StatusBadNumberFormat},
		{"G1 X-", protocol.StatusBadNumberFormat},
		{"10", protocol.StatusExpectedCommandLetter},
		{"G1 #5", protocol.StatusExpectedCommandLetter},
		{"G1 (unterminated", protocol.StatusExpectedCommandLetter},
	}
	for _, test := range tests {
		if _, status := Parse(test.input); status != test.status {
			t.Errorf("Parse(%q) status %v, want %v", test.input, status, test.status)
		}
	}
}
