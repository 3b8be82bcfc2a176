package blastout

import (
	"strings"
)

// Protein similarity classes used for the '+' mark in computed match lines.
// Residue pairs drawn from the same class score positively under the common
// substitution matrices.
var similarityClasses = []string{
	"ILVMC",
	"DE",
	"KRH",
	"FYW",
	"ST",
	"NQ",
	"AG",
}

var similarityClassOf = func() map[byte]int {
	m := make(map[byte]int)
	for i, class := range similarityClasses {
		for j := 0; j < len(class); j++ {
			m[class[j]] = i
		}
	}
	return m
}()

const gapChar = '-'

// ComputeMatchLine derives the line between two aligned sequences position
// by position: a gap on either side yields a blank, identical residues a
// '|', and for protein alignments a pair from the same similarity class a
// '+'. Both inputs must already be aligned (equal length, gaps included);
// on a length mismatch the comparison stops at the shorter sequence.
func ComputeMatchLine(query, subject string, protein bool) string {
	n := len(query)
	if len(subject) < n {
		n = len(subject)
	}

	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		q, s := upperByte(query[i]), upperByte(subject[i])
		switch {
		case q == gapChar || s == gapChar:
			b.WriteByte(' ')
		case q == s:
			b.WriteByte('|')
		case protein && sameSimilarityClass(q, s):
			b.WriteByte('+')
		default:
			b.WriteByte(' ')
		}
	}
	return b.String()
}

func sameSimilarityClass(a, b byte) bool {
	ca, ok := similarityClassOf[a]
	if !ok {
		return false
	}
	cb, ok := similarityClassOf[b]
	return ok && ca == cb
}

func upperByte(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - ('a' - 'A')
	}
	return c
}
