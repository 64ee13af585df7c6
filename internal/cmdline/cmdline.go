// Package cmdline turns configured queue and solver command strings into
// argv slices without going through a shell.
package cmdline

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// InputPlaceholder, when it forms a whole token, expands to the sorted list
// of files matching the "input" variable's glob.
const InputPlaceholder = "{input}"

// ErrNoInputs is returned by Expand when the input glob matches nothing.
var ErrNoInputs = errors.New("no input files match")

var placeholderRE = regexp.MustCompile(`\{[a-z_]+\}`)

// Vars maps placeholder names (without braces) to their values.
type Vars map[string]string

// Template is a tokenized command with {name} placeholders.
type Template struct {
	raw  string
	args []string
}

// Parse tokenizes raw with shell-like quoting and rejects constructs that
// only make sense to a shell.
func Parse(raw string) (Template, error) {
	args, err := tokenize(raw)
	if err != nil {
		return Template{}, err
	}
	if err := validateArgs(args); err != nil {
		return Template{}, err
	}
	return Template{raw: raw, args: args}, nil
}

// MustParse is Parse for compile-time constant templates.
func MustParse(raw string) Template {
	t, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return t
}

func (t Template) String() string { return t.raw }

// Args returns a copy of the unexpanded tokens.
func (t Template) Args() []string {
	return append([]string(nil), t.args...)
}

// Expand substitutes vars into every token. A token that expands to the
// empty string is dropped, together with a literal flag right before it,
// so "--class {class}" disappears when class is unset.
func (t Template) Expand(vars Vars) ([]string, error) {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	replacer := strings.NewReplacer(pairs...)

	out := make([]string, 0, len(t.args))
	lastLiteralFlag := -1
	for _, arg := range t.args {
		if arg == InputPlaceholder {
			files, err := globInputs(vars["input"])
			if err != nil {
				return nil, err
			}
			out = append(out, files...)
			lastLiteralFlag = -1
			continue
		}

		hasPlaceholder := placeholderRE.MatchString(arg)
		expanded := replacer.Replace(arg)
		if unknown := placeholderRE.FindString(expanded); unknown != "" {
			return nil, fmt.Errorf("unknown placeholder %s in %q", unknown, t.raw)
		}
		if hasPlaceholder && expanded == "" {
			if lastLiteralFlag == len(out)-1 && lastLiteralFlag >= 0 {
				out = out[:lastLiteralFlag]
			}
			lastLiteralFlag = -1
			continue
		}
		out = append(out, expanded)
		if !hasPlaceholder && strings.HasPrefix(arg, "-") {
			lastLiteralFlag = len(out) - 1
		} else {
			lastLiteralFlag = -1
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("command %q expands to nothing", t.raw)
	}
	return out, nil
}

func globInputs(pattern string) ([]string, error) {
	if pattern == "" {
		return nil, fmt.Errorf("%w: empty pattern", ErrNoInputs)
	}
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("input pattern %q: %w", pattern, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoInputs, pattern)
	}
	sort.Strings(matches)
	return matches, nil
}

func tokenize(cmd string) ([]string, error) {
	var args []string
	var token strings.Builder
	tokenStarted := false
	inSingleQuote := false
	inDoubleQuote := false
	escaped := false

	flush := func() {
		if !tokenStarted {
			return
		}
		args = append(args, token.String())
		token.Reset()
		tokenStarted = false
	}

	for i := 0; i < len(cmd); i++ {
		ch := cmd[i]

		if escaped {
			token.WriteByte(ch)
			tokenStarted = true
			escaped = false
			continue
		}

		if !inSingleQuote && !inDoubleQuote {
			if reason, unsafe := shellConstruct(cmd, i); unsafe {
				return nil, fmt.Errorf("invalid command %q: %s", cmd, reason)
			}
		}

		switch {
		case inSingleQuote:
			if ch == '\'' {
				inSingleQuote = false
			} else {
				token.WriteByte(ch)
			}
		case inDoubleQuote:
			switch ch {
			case '"':
				inDoubleQuote = false
			case '\\':
				escaped = true
			default:
				token.WriteByte(ch)
			}
		default:
			switch ch {
			case ' ', '\t', '\n', '\r', '\f', '\v':
				flush()
			case '\'':
				tokenStarted = true
				inSingleQuote = true
			case '"':
				tokenStarted = true
				inDoubleQuote = true
			case '\\':
				tokenStarted = true
				escaped = true
			default:
				token.WriteByte(ch)
				tokenStarted = true
			}
		}
	}

	if escaped {
		return nil, fmt.Errorf("invalid command %q: trailing escape", cmd)
	}
	if inSingleQuote || inDoubleQuote {
		return nil, fmt.Errorf("invalid command %q: unterminated quote", cmd)
	}

	flush()
	if len(args) == 0 {
		return nil, fmt.Errorf("invalid command: empty")
	}
	return args, nil
}

func shellConstruct(cmd string, i int) (string, bool) {
	switch cmd[i] {
	case ';':
		return "disallowed token ';'", true
	case '|':
		if i+1 < len(cmd) && cmd[i+1] == '|' {
			return "disallowed token '||'", true
		}
		return "disallowed token '|'", true
	case '&':
		if i+1 < len(cmd) && cmd[i+1] == '&' {
			return "disallowed token '&&'", true
		}
		return "disallowed token '&'", true
	case '<':
		return "disallowed token '<'", true
	case '>':
		return "disallowed token '>'", true
	case '`':
		return "disallowed token '`'", true
	case '$':
		if i+1 < len(cmd) && cmd[i+1] == '(' {
			return "disallowed token '$('", true
		}
		return "disallowed token '$'", true
	}
	return "", false
}

var shells = map[string]struct{}{
	"sh": {}, "bash": {}, "zsh": {}, "dash": {}, "ksh": {},
	"csh": {}, "tcsh": {}, "fish": {}, "cmd": {}, "powershell": {}, "pwsh": {},
}

func validateArgs(args []string) error {
	base := executableName(args[0])
	if _, bad := shells[base]; bad {
		return fmt.Errorf("invalid command: disallowed executable %q", base)
	}
	if (base == "env" || base == "busybox") && len(args) > 1 {
		for _, next := range args[1:] {
			if strings.HasPrefix(next, "-") || strings.Contains(next, "=") {
				continue
			}
			if _, bad := shells[executableName(next)]; bad {
				return fmt.Errorf("invalid command: disallowed executable %q", executableName(next))
			}
			break
		}
	}
	return nil
}

func executableName(execName string) string {
	base := strings.ToLower(filepath.Base(execName))
	return strings.TrimSuffix(base, ".exe")
}
