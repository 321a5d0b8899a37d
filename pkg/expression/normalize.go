package expression

import "strings"

// Normalize rewrites spreadsheet-style operators into expr syntax:
// "=" becomes "==", "<>" becomes "!=", and a single "&" becomes "+".
// Quoted string literals are copied unchanged.
func Normalize(input string) string {
	var sb strings.Builder
	sb.Grow(len(input) + 8)

	runes := []rune(input)
	var quote rune
	for i := 0; i < len(runes); i++ {
		c := runes[i]

		if quote != 0 {
			sb.WriteRune(c)
			if c == '\\' && i+1 < len(runes) {
				i++
				sb.WriteRune(runes[i])
				continue
			}
			if c == quote {
				quote = 0
			}
			continue
		}

		var prev, next rune
		if i > 0 {
			prev = runes[i-1]
		}
		if i+1 < len(runes) {
			next = runes[i+1]
		}

		switch {
		case c == '\'' || c == '"' || c == '`':
			quote = c
			sb.WriteRune(c)
		case c == '<' && next == '>':
			sb.WriteString("!=")
			i++
		case c == '=' && next == '=':
			sb.WriteString("==")
			i++
		case c == '=' && !strings.ContainsRune("!<>=", prev):
			sb.WriteString("==")
		case c == '&' && next == '&':
			sb.WriteString("&&")
			i++
		case c == '&':
			sb.WriteRune('+')
		default:
			sb.WriteRune(c)
		}
	}
	return sb.String()
}

// LiteralValue reports whether an identifier is a spelled-out literal such as
// TRUE, False or NULL, and returns its value.
func LiteralValue(name string) (interface{}, bool) {
	switch strings.ToLower(name) {
	case "true":
		return true, true
	case "false":
		return false, true
	case "null", "nil":
		return nil, true
	}
	return nil, false
}
