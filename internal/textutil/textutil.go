// Package textutil holds small string helpers shared by the provider clients.
package textutil

import "strings"

// Truncate shortens s to at most maxChars bytes, ending with "...". It never
// splits a multi-byte rune. maxChars <= 0 disables the cap.
func Truncate(s string, maxChars int) string {
	if maxChars <= 0 || len(s) <= maxChars {
		return s
	}
	if maxChars <= 3 {
		return s[:runeStartAtOrBefore(s, maxChars)]
	}
	return s[:runeStartAtOrBefore(s, maxChars-3)] + "..."
}

// runeStartAtOrBefore returns the largest i <= cut where s[i] begins a rune.
// cut must be less than len(s).
func runeStartAtOrBefore(s string, cut int) int {
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return cut
}

// Normalize lowercases s and collapses runs of whitespace to single spaces.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
