package game

import (
	"strings"

	"github.com/jason-s-yu/imposter/internal/randutil"
)

// CodeAlphabet omits I, O, 0 and 1.
const CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	CodeLength      = 6
	maxCodeAttempts = 5
)

// GenerateCode draws CodeLength symbols uniformly from CodeAlphabet.
func GenerateCode(src randutil.Source) string {
	var b strings.Builder
	b.Grow(CodeLength)
	for i := 0; i < CodeLength; i++ {
		b.WriteByte(CodeAlphabet[src.IntN(len(CodeAlphabet))])
	}
	return b.String()
}

// NormalizeCode upper-cases and trims user input.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidCode reports whether code could have been produced by GenerateCode.
func ValidCode(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(CodeAlphabet, code[i]) < 0 {
			return false
		}
	}
	return true
}
