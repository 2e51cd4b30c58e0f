// Package resolver implements the Value Resolver (spec §4.1): a
// hand-written scanner/parser for `${name}` and `{name}` variable
// references inside node config strings, including bracketed list/dict
// accessors and nested (variable-in-accessor) references.
//
// Grounded on original_source/backend/app/executors/base.py's
// resolve_value/resolve_nested_variables/resolve_access_path trio, which
// documents the exact grammar this package implements; rewritten here as
// a character scanner instead of the original's regular expressions,
// since a hand-rolled lexer is what the teacher's own graph/expression
// packages favor over ad hoc regex parsing.
package resolver

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/rpacore/engine/pkg/value"
)

// VariableGetter is the minimal surface the resolver needs from whatever
// variable store backs a run. pkg/store's Store satisfies this directly.
type VariableGetter interface {
	GetVariable(name string) (interface{}, bool)
}

// ResolveError reports malformed reference syntax: an unterminated
// ${...} span. Unknown variable names and out-of-range accessors are not
// errors — per spec they resolve to a no-op (the literal text is left in
// place for embedded references, nil for a bare reference).
type ResolveError struct {
	Expr string
	Msg  string
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("resolve error in %q: %s", e.Expr, e.Msg)
}

const (
	maxNestedDepth   = 5 // spec §4.1: {name} nesting re-entrant resolution depth
	maxAccessorDepth = 3 // nested variable-in-accessor resolution depth
)

// Resolve substitutes every ${name} and {name} reference found in text,
// returning text unchanged if it contains none. ${...} references are
// resolved in a single right-to-left pass; {...} references are resolved
// recursively up to maxNestedDepth to support forms like
// `{listName[{indexVar}]}` where the accessor itself is a reference.
func Resolve(text string, vars VariableGetter) (string, error) {
	afterDollar, err := resolveDollarBraces(text, vars)
	if err != nil {
		return "", err
	}
	return resolveNestedBraces(afterDollar, vars, maxNestedDepth)
}

// ResolveValue mirrors resolve_value: non-string values pass through
// unchanged, since only string config fields carry template syntax.
func ResolveValue(v interface{}, vars VariableGetter) (interface{}, error) {
	s, ok := v.(string)
	if !ok {
		return v, nil
	}
	return Resolve(s, vars)
}

// ResolveReference resolves a single reference wrapped in ${...} or
// {...} directly to its underlying value rather than a stringified
// substitution, returning nil when the variable or accessor path does
// not resolve, per spec "missing vars -> null". A string with neither
// wrapper is not a reference at all — it passes through unchanged, the
// same as any other literal config value.
func ResolveReference(expr string, vars VariableGetter) (interface{}, error) {
	trimmed := strings.TrimSpace(expr)
	var inner string
	switch {
	case strings.HasPrefix(trimmed, "${") && strings.HasSuffix(trimmed, "}"):
		inner = trimmed[2 : len(trimmed)-1]
	case strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}"):
		inner = trimmed[1 : len(trimmed)-1]
	default:
		return expr, nil
	}
	resolved, _, err := resolveAccessPath(strings.TrimSpace(inner), vars, maxAccessorDepth)
	if err != nil {
		return nil, err
	}
	return resolved, nil
}

type span struct {
	start, end int // [start,end) covers the full reference including delimiters
	inner      string
}

// findDollarBraces scans for `${...}` spans where the inner text contains
// no `}`. An opening `${` with no closing `}` before the end of text is
// malformed and reported via ResolveError.
func findDollarBraces(text string) ([]span, error) {
	var spans []span
	i := 0
	for i < len(text) {
		if text[i] == '$' && i+1 < len(text) && text[i+1] == '{' {
			j := i + 2
			for j < len(text) && text[j] != '}' {
				j++
			}
			if j >= len(text) {
				return nil, &ResolveError{Expr: text[i:], Msg: "unterminated ${...} reference"}
			}
			spans = append(spans, span{start: i, end: j + 1, inner: text[i+2 : j]})
			i = j + 1
			continue
		}
		i++
	}
	return spans, nil
}

// findPlainBraces scans for `{...}` spans not preceded by `$`, where the
// inner text contains no further `{` or `}`. Unlike `${...}`, a bare `{`
// with no matching `}` is common in passthrough text (stray JSON, user
// prose) and is left untouched rather than treated as malformed.
func findPlainBraces(text string) []span {
	var spans []span
	i := 0
	for i < len(text) {
		if text[i] == '{' && (i == 0 || text[i-1] != '$') {
			j := i + 1
			clean := true
			for j < len(text) && text[j] != '}' {
				if text[j] == '{' {
					clean = false
					break
				}
				j++
			}
			if clean && j < len(text) {
				spans = append(spans, span{start: i, end: j + 1, inner: text[i+1 : j]})
				i = j + 1
				continue
			}
		}
		i++
	}
	return spans
}

func resolveDollarBraces(text string, vars VariableGetter) (string, error) {
	spans, err := findDollarBraces(text)
	if err != nil {
		return "", err
	}
	for k := len(spans) - 1; k >= 0; k-- {
		sp := spans[k]
		resolved, found, err := resolveAccessPath(strings.TrimSpace(sp.inner), vars, maxAccessorDepth)
		if err != nil {
			return "", err
		}
		if !found {
			continue
		}
		repl, err := stringify(resolved)
		if err != nil {
			return "", err
		}
		text = text[:sp.start] + repl + text[sp.end:]
	}
	return text, nil
}

func resolveNestedBraces(text string, vars VariableGetter, depth int) (string, error) {
	if depth <= 0 {
		return text, nil
	}
	spans := findPlainBraces(text)
	if len(spans) == 0 {
		return text, nil
	}
	for k := len(spans) - 1; k >= 0; k-- {
		sp := spans[k]
		resolved, found, err := resolveAccessPath(strings.TrimSpace(sp.inner), vars, maxAccessorDepth)
		if err != nil {
			return "", err
		}
		if !found {
			continue
		}
		repl, err := stringify(resolved)
		if err != nil {
			return "", err
		}
		text = text[:sp.start] + repl + text[sp.end:]
	}
	if len(findPlainBraces(text)) > 0 {
		return resolveNestedBraces(text, vars, depth-1)
	}
	return text, nil
}

// resolveAccessPath resolves one `base[accessor][accessor]...` expression,
// first resolving any nested references inside the expression itself
// (e.g. the `{idx}` in `rows[{idx}]`) up to accessorDepth.
func resolveAccessPath(expr string, vars VariableGetter, accessorDepth int) (interface{}, bool, error) {
	resolvedExpr, err := resolveNestedBraces(expr, vars, accessorDepth)
	if err != nil {
		return nil, false, err
	}
	baseName, accessors, ok := parseAccessPath(resolvedExpr)
	if !ok {
		return nil, false, nil
	}
	base, found := vars.GetVariable(baseName)
	if !found {
		return nil, false, nil
	}
	result := value.DeepCopy(base)
	for _, accessor := range accessors {
		result, found = applyAccessor(result, accessor)
		if !found {
			return nil, false, nil
		}
	}
	return result, true, nil
}

// parseAccessPath splits "name[a][b]" into ("name", []string{"a","b"}).
// Identifiers may contain CJK characters, matching the original grammar.
// Returns ok=false if s does not begin with a valid identifier or any
// accessor bracket is left unterminated.
func parseAccessPath(s string) (string, []string, bool) {
	runes := []rune(s)
	i := 0
	if i >= len(runes) || !isIdentStart(runes[i]) {
		return "", nil, false
	}
	start := i
	i++
	for i < len(runes) && isIdentRune(runes[i]) {
		i++
	}
	base := string(runes[start:i])

	var accessors []string
	for i < len(runes) && runes[i] == '[' {
		j := i + 1
		for j < len(runes) && runes[j] != ']' {
			j++
		}
		if j >= len(runes) {
			return "", nil, false
		}
		accessors = append(accessors, trimAccessorQuotes(strings.TrimSpace(string(runes[i+1:j]))))
		i = j + 1
	}
	return base, accessors, true
}

func isIdentStart(r rune) bool { return r == '_' || unicode.IsLetter(r) }
func isIdentRune(r rune) bool  { return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) }

func trimAccessorQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// applyAccessor indexes into a list (supporting negative indices) or
// looks up a key in a dict. Any other base type, or an out-of-range
// index, resolves to (nil, false) rather than an error.
func applyAccessor(result interface{}, accessor string) (interface{}, bool) {
	switch r := result.(type) {
	case []interface{}:
		idx, err := strconv.Atoi(accessor)
		if err != nil {
			return nil, false
		}
		n := len(r)
		if idx < 0 {
			idx += n
		}
		if idx < 0 || idx >= n {
			return nil, false
		}
		return r[idx], true
	case map[string]interface{}:
		v, ok := r[accessor]
		return v, ok
	default:
		return nil, false
	}
}

func stringify(v interface{}) (string, error) {
	if v == nil {
		return "null", nil
	}
	if value.IsCompound(v) {
		return value.Encode(v)
	}
	return fmt.Sprint(v), nil
}
