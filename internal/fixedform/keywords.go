package fixedform

import (
	"strings"

	"github.com/mayflower/rpg-explainer/internal/model"
)

var fileTypeUsage = map[string][]string{
	"I": {"*INPUT"},
	"O": {"*OUTPUT"},
	"U": {"*UPDATE"},
	"C": {"*INPUT", "*OUTPUT"},
}

// FileDeclaration builds a file declaration from an F spec so fixed-form
// files take part in file-reference lookups. It returns false for comment
// lines and specs without a name.
func FileDeclaration(spec model.FixedSpec) (model.FileDeclaration, bool) {
	if spec.Kind != model.FileSpec || spec.Name == nil {
		return model.FileDeclaration{}, false
	}
	keywords := ParseKeywords(Column(spec, "keywords"))
	if device := Column(spec, "device"); device != "" {
		if _, ok := keywords[strings.ToLower(device)]; !ok {
			keywords[strings.ToLower(device)] = []string{}
		}
	}
	if _, ok := keywords["usage"]; !ok {
		if usage, ok := fileTypeUsage[strings.ToUpper(Column(spec, "type"))]; ok {
			keywords["usage"] = append([]string(nil), usage...)
		}
	}
	return model.FileDeclaration{Name: *spec.Name, Keywords: keywords}, true
}

// ParseKeywords parses a keyword area such as "usage(*input) extfile('A/B')"
// into lower-cased keywords and their colon-separated arguments.
func ParseKeywords(s string) map[string][]string {
	keywords := make(map[string][]string)
	i := 0
	for i < len(s) {
		if s[i] == ' ' || s[i] == '\t' {
			i++
			continue
		}
		start := i
		for i < len(s) && isKeywordChar(s[i]) {
			i++
		}
		if i == start {
			// Stray punctuation.
			i++
			continue
		}
		name := strings.ToLower(s[start:i])
		args := []string{}

		j := i
		for j < len(s) && s[j] == ' ' {
			j++
		}
		if j < len(s) && s[j] == '(' {
			var end int
			args, end = parseArgs(s, j)
			i = end
		}
		keywords[name] = args
	}
	return keywords
}

// parseArgs splits the parenthesized list starting at s[open] on top-level
// colons. It returns the arguments and the index after the closing paren.
func parseArgs(s string, open int) ([]string, int) {
	args := []string{}
	depth := 0
	inQuote := false
	var cur strings.Builder
	flush := func() {
		if arg := strings.TrimSpace(cur.String()); arg != "" {
			args = append(args, arg)
		}
		cur.Reset()
	}

	i := open
	for ; i < len(s); i++ {
		c := s[i]
		if inQuote {
			cur.WriteByte(c)
			if c == '\'' {
				inQuote = false
			}
			continue
		}
		switch c {
		case '\'':
			inQuote = true
			cur.WriteByte(c)
		case '(':
			depth++
			if depth > 1 {
				cur.WriteByte(c)
			}
		case ')':
			depth--
			if depth == 0 {
				flush()
				return args, i + 1
			}
			cur.WriteByte(c)
		case ':':
			if depth == 1 {
				flush()
			} else {
				cur.WriteByte(c)
			}
		default:
			cur.WriteByte(c)
		}
	}
	flush()
	return args, i
}

func isKeywordChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' ||
		c == '_' || c == '-' || c == '#' || c == '@' || c == '$' || c == '*'
}
