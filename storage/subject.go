package storage

import "strings"

const (
	tokenSeparator = "."
	wildcardOne    = "*"
	wildcardTail   = ">"
)

// ValidSubject reports whether subject is a well formed subject. Wildcard
// tokens are only accepted when wildcards is true, and > must be the last token.
func ValidSubject(subject string, wildcards bool) bool {
	if subject == "" || strings.ContainsAny(subject, " \t\r\n") {
		return false
	}

	tokens := strings.Split(subject, tokenSeparator)

	for i, token := range tokens {
		switch token {
		case "":
			return false

		case wildcardOne:
			if !wildcards {
				return false
			}

		case wildcardTail:
			if !wildcards || i != len(tokens)-1 {
				return false
			}
		}
	}

	return true
}

// MatchSubject reports whether the literal subject is covered by pattern.
func MatchSubject(pattern, subject string) bool {
	for {
		pt, prest, pmore := cutToken(pattern)
		st, srest, smore := cutToken(subject)

		if pt == wildcardTail {
			return st != ""
		}

		if pt != wildcardOne && pt != st {
			return false
		}

		if !pmore || !smore {
			return pmore == smore
		}

		pattern, subject = prest, srest
	}
}

func cutToken(s string) (token, rest string, more bool) {
	i := strings.Index(s, tokenSeparator)
	if i < 0 {
		return s, "", false
	}

	return s[:i], s[i+1:], true
}
