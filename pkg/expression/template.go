package expression

import (
	"fmt"
	"strings"
)

// Substitute replaces every `{{NAME}}` occurrence in s with the
// stringification of vars[NAME]. Unknown names are left as-is. Substitution
// is a single, non-recursive pass: the replacement text is never itself
// re-scanned for further `{{...}}` tokens.
func Substitute(s string, vars map[string]interface{}) string {
	var b strings.Builder
	i := 0
	for i < len(s) {
		open := strings.Index(s[i:], "{{")
		if open < 0 {
			b.WriteString(s[i:])
			break
		}
		open += i
		close := strings.Index(s[open:], "}}")
		if close < 0 {
			b.WriteString(s[i:])
			break
		}
		close += open
		name := strings.TrimSpace(s[open+2 : close])
		b.WriteString(s[i:open])
		if v, ok := vars[name]; ok {
			b.WriteString(stringify(v))
		} else {
			b.WriteString(s[open : close+2])
		}
		i = close + 2
	}
	return b.String()
}

func stringify(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}
