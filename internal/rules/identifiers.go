package rules

import "strings"

// reserved words and type names that are never profile fields.
var reserved = map[string]bool{
	"true": true, "false": true, "null": true, "in": true,
	"as": true, "break": true, "const": true, "continue": true, "else": true,
	"for": true, "function": true, "if": true, "import": true, "let": true,
	"loop": true, "package": true, "namespace": true, "return": true,
	"var": true, "void": true, "while": true,
	"int": true, "uint": true, "double": true, "bool": true, "string": true,
	"bytes": true, "list": true, "map": true, "type": true, "dyn": true,
	"null_type": true,
}

// freeIdentifiers returns the identifiers of expr that refer to profile
// fields, in order of first appearance. Function names, member selections,
// string literals and reserved words are skipped.
func freeIdentifiers(expr string) []string {
	var out []string
	seen := make(map[string]bool)
	var prev byte

	for i := 0; i < len(expr); {
		c := expr[i]
		switch {
		case c == '"' || c == '\'':
			i = skipString(expr, i)
			prev = '"'
		case isDigit(c):
			for i < len(expr) && (isIdentChar(expr[i]) || expr[i] == '.') {
				i++
			}
			prev = '0'
		case isIdentStart(c):
			j := i
			for j < len(expr) && isIdentChar(expr[j]) {
				j++
			}
			word := expr[i:j]
			if j < len(expr) && (expr[j] == '"' || expr[j] == '\'') && isStringPrefix(word) {
				i = skipString(expr, j)
				prev = '"'
				continue
			}
			if prev != '.' && nextSignificant(expr, j) != '(' && !reserved[word] && !seen[word] {
				seen[word] = true
				out = append(out, word)
			}
			i = j
			prev = 'a'
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		default:
			prev = c
			i++
		}
	}

	return out
}

// skipString returns the index just past the string literal starting at i.
func skipString(s string, i int) int {
	q := s[i]
	triple := strings.Repeat(string(q), 3)
	if strings.HasPrefix(s[i:], triple) {
		end := strings.Index(s[i+3:], triple)
		if end < 0 {
			return len(s)
		}
		return i + 3 + end + 3
	}
	for j := i + 1; j < len(s); j++ {
		switch s[j] {
		case '\\':
			j++
		case q:
			return j + 1
		}
	}
	return len(s)
}

func nextSignificant(s string, i int) byte {
	for ; i < len(s); i++ {
		switch s[i] {
		case ' ', '\t', '\n', '\r':
			continue
		}
		return s[i]
	}
	return 0
}

func isStringPrefix(word string) bool {
	switch strings.ToLower(word) {
	case "r", "b", "rb", "br":
		return true
	}
	return false
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool { return isIdentStart(c) || isDigit(c) }

// normalizeNumbers rewrites plain integer literals of expr as doubles, so
// that arithmetic between profile fields (always bound as doubles) and
// literals resolves to a CEL overload. Literals in strings, identifiers,
// decimals, exponents, hex and unsigned literals are left alone.
func normalizeNumbers(expr string) string {
	var b strings.Builder
	b.Grow(len(expr) + 8)

	for i := 0; i < len(expr); {
		c := expr[i]
		switch {
		case c == '"' || c == '\'':
			j := skipString(expr, i)
			b.WriteString(expr[i:j])
			i = j
		case isIdentStart(c):
			j := i
			for j < len(expr) && isIdentChar(expr[j]) {
				j++
			}
			if j < len(expr) && (expr[j] == '"' || expr[j] == '\'') && isStringPrefix(expr[i:j]) {
				j = skipString(expr, j)
			}
			b.WriteString(expr[i:j])
			i = j
		case isDigit(c):
			j := i
			for j < len(expr) && (isIdentChar(expr[j]) || expr[j] == '.' || isExponentSign(expr, j)) {
				j++
			}
			b.WriteString(expr[i:j])
			if allDigits(expr[i:j]) {
				b.WriteString(".0")
			}
			i = j
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String()
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return false
		}
	}
	return s != ""
}

func isExponentSign(s string, i int) bool {
	return (s[i] == '+' || s[i] == '-') && i > 0 && (s[i-1] == 'e' || s[i-1] == 'E')
}
