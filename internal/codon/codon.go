// Package codon holds the standard genetic code and the nucleotide helpers
// shared by the transcript model, the descriptor parser and the mapper.
package codon

import (
	"sort"
	"strings"
)

// Standard genetic code: DNA codon to amino acid (single letter).
var codonTable = map[string]byte{
	"TTT": 'F', "TTC": 'F', "TTA": 'L', "TTG": 'L',
	"TCT": 'S', "TCC": 'S', "TCA": 'S', "TCG": 'S',
	"TAT": 'Y', "TAC": 'Y', "TAA": '*', "TAG": '*',
	"TGT": 'C', "TGC": 'C', "TGA": '*', "TGG": 'W',

	"CTT": 'L', "CTC": 'L', "CTA": 'L', "CTG": 'L',
	"CCT": 'P', "CCC": 'P', "CCA": 'P', "CCG": 'P',
	"CAT": 'H', "CAC": 'H', "CAA": 'Q', "CAG": 'Q',
	"CGT": 'R', "CGC": 'R', "CGA": 'R', "CGG": 'R',

	"ATT": 'I', "ATC": 'I', "ATA": 'I', "ATG": 'M',
	"ACT": 'T', "ACC": 'T', "ACA": 'T', "ACG": 'T',
	"AAT": 'N', "AAC": 'N', "AAA": 'K', "AAG": 'K',
	"AGT": 'S', "AGC": 'S', "AGA": 'R', "AGG": 'R',

	"GTT": 'V', "GTC": 'V', "GTA": 'V', "GTG": 'V',
	"GCT": 'A', "GCC": 'A', "GCA": 'A', "GCG": 'A',
	"GAT": 'D', "GAC": 'D', "GAA": 'E', "GAG": 'E',
	"GGT": 'G', "GGC": 'G', "GGA": 'G', "GGG": 'G',
}

// synonyms maps each amino acid to its codons in lexical order.
var synonyms map[byte][]string

func init() {
	synonyms = make(map[byte][]string, 21)
	for c, aa := range codonTable {
		synonyms[aa] = append(synonyms[aa], c)
	}
	for aa := range synonyms {
		sort.Strings(synonyms[aa])
	}
}

// Translate translates a DNA codon to its amino acid.
// Returns 'X' for unknown codons and '*' for stop codons.
func Translate(codon string) byte {
	if len(codon) != 3 {
		return 'X'
	}
	if aa, ok := codonTable[codon]; ok {
		return aa
	}
	if aa, ok := codonTable[strings.ToUpper(codon)]; ok {
		return aa
	}
	return 'X'
}

// Synonyms returns the codons encoding aa, sorted. The slice must not be modified.
func Synonyms(aa byte) []string {
	return synonyms[aa]
}

// TranslateSequence translates a DNA sequence to amino acids.
// A trailing partial codon is ignored.
func TranslateSequence(seq string) string {
	n := (len(seq) / 3) * 3

	var result strings.Builder
	result.Grow(n / 3)
	for i := 0; i < n; i += 3 {
		result.WriteByte(Translate(seq[i : i+3]))
	}
	return result.String()
}

// TranslateToStop translates seq until and including the first stop codon.
// The boolean reports whether a stop was reached.
func TranslateToStop(seq string) (string, bool) {
	var result strings.Builder
	result.Grow(len(seq) / 3)
	for i := 0; i+3 <= len(seq); i += 3 {
		aa := Translate(seq[i : i+3])
		result.WriteByte(aa)
		if aa == '*' {
			return result.String(), true
		}
	}
	return result.String(), false
}

// Differences counts the positions at which two codons differ.
func Differences(a, b string) int {
	n := 0
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			n++
		}
	}
	return n
}

// ReverseComplement returns the reverse complement of a DNA sequence.
func ReverseComplement(seq string) string {
	n := len(seq)
	// Stack-allocate for typical allele lengths.
	var buf [64]byte
	var result []byte
	if n <= len(buf) {
		result = buf[:n]
	} else {
		result = make([]byte, n)
	}
	for i := 0; i < n; i++ {
		result[i] = Complement(seq[n-1-i])
	}
	return string(result)
}

// Complement returns the complement of a single base.
func Complement(base byte) byte {
	switch base {
	case 'A':
		return 'T'
	case 'T':
		return 'A'
	case 'G':
		return 'C'
	case 'C':
		return 'G'
	case 'a':
		return 't'
	case 't':
		return 'a'
	case 'g':
		return 'c'
	case 'c':
		return 'g'
	default:
		return 'N'
	}
}

// IsBase reports whether b is an uppercase nucleotide code accepted in alleles.
func IsBase(b byte) bool {
	switch b {
	case 'A', 'C', 'G', 'T', 'N':
		return true
	}
	return false
}

// IsAminoAcid reports whether b is a single-letter residue code or the stop '*'.
func IsAminoAcid(b byte) bool {
	_, ok := SingleToThree[b]
	return ok && b != 'X'
}

// SingleToThree converts single letter amino acid to three letter code.
var SingleToThree = map[byte]string{
	'A': "Ala", 'C': "Cys", 'D': "Asp", 'E': "Glu",
	'F': "Phe", 'G': "Gly", 'H': "His", 'I': "Ile",
	'K': "Lys", 'L': "Leu", 'M': "Met", 'N': "Asn",
	'P': "Pro", 'Q': "Gln", 'R': "Arg", 'S': "Ser",
	'T': "Thr", 'V': "Val", 'W': "Trp", 'Y': "Tyr",
	'*': "Ter", 'X': "Xaa",
}

// ThreeToSingle converts three letter amino acid codes to single letter.
var ThreeToSingle map[string]byte

func init() {
	ThreeToSingle = make(map[string]byte, len(SingleToThree))
	for k, v := range SingleToThree {
		ThreeToSingle[v] = k
	}
}

// Three returns the three-letter code for a residue, or the residue itself when unknown.
func Three(aa byte) string {
	if s, ok := SingleToThree[aa]; ok {
		return s
	}
	return string(aa)
}
