// Package gcode parses and executes G-code blocks for the standalone
// controller.
package gcode

import (
	"gorbl/protocol"
)

// Word is one letter/value pair
type Word struct {
	Letter byte
	Value  float64
}

// Block is a parsed input line
type Block struct {
	Words   []Word
	Deleted bool // line started with '/'
	Comment string
}

// Parse splits a line into words. Whitespace and comments are skipped and
// letters are upper-cased.
func Parse(line string) (Block, protocol.StatusCode) {
	var blk Block
	i := skipSpace(line, 0)
	if i < len(line) && line[i] == '/' {
		blk.Deleted = true
		i++
	}

	for {
		i = skipSpace(line, i)
		if i >= len(line) {
			return blk, protocol.StatusOK
		}

		switch c := line[i]; {
		case c == ';':
			blk.Comment = line[i+1:]
			return blk, protocol.StatusOK
		case c == '(':
			end := i + 1
			for end < len(line) && line[end] != ')' {
				end++
			}
			if end >= len(line) {
				return blk, protocol.StatusExpectedCommandLetter
			}
			blk.Comment = line[i+1 : end]
			i = end + 1
		case isLetter(c):
			value, next := parseFloat(line, skipSpace(line, i+1))
			if next < 0 {
				return blk, protocol.StatusBadNumberFormat
			}
			blk.Words = append(blk.Words, Word{Letter: toUpper(c), Value: value})
			i = next
		default:
			return blk, protocol.StatusExpectedCommandLetter
		}
	}
}

func skipSpace(s string, pos int) int {
	for pos < len(s) && (s[pos] == ' ' || s[pos] == '\t') {
		pos++
	}
	return pos
}

// parseFloat parses a number starting at pos. It returns -1 as the new
// position when no digits are found.
func parseFloat(s string, pos int) (float64, int) {
	negative := false
	if pos < len(s) && (s[pos] == '-' || s[pos] == '+') {
		negative = s[pos] == '-'
		pos++
	}

	var value float64
	digits := 0
	for pos < len(s) && s[pos] >= '0' && s[pos] <= '9' {
		value = value*10 + float64(s[pos]-'0')
		pos++
		digits++
	}

	if pos < len(s) && s[pos] == '.' {
		pos++
		scale := 0.1
		for pos < len(s) && s[pos] >= '0' && s[pos] <= '9' {
			value += float64(s[pos]-'0') * scale
			scale /= 10
			pos++
			digits++
		}
	}

	if digits == 0 {
		return 0, -1
	}
	if negative {
		value = -value
	}
	return value, pos
}

func isLetter(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

func toUpper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - ('a' - 'A')
	}
	return c
}
