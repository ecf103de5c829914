// Package sqlguard is the static safety gate between SQL generation and
// execution. Only single-statement, read-only, result-bounded queries pass.
package sqlguard

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rendis/reportpipe/pkg/schema"
)

// Limits bound what the validator accepts and what it injects.
type Limits struct {
	MaxQueryLength int
	MaxResultLimit int
	DefaultLimit   int
}

// DefaultLimits returns the standard safety limits.
func DefaultLimits() Limits {
	return Limits{
		MaxQueryLength: 5000,
		MaxResultLimit: 10000,
		DefaultLimit:   1000,
	}
}

// Validator checks SQL text against a fixed read-only policy.
// It is deterministic, side-effect free and safe for concurrent use.
type Validator struct {
	limits Limits
}

// New creates a Validator with the given limits. Zero or negative limit
// values fall back to the defaults.
func New(limits Limits) *Validator {
	def := DefaultLimits()
	if limits.MaxQueryLength <= 0 {
		limits.MaxQueryLength = def.MaxQueryLength
	}
	if limits.MaxResultLimit <= 0 {
		limits.MaxResultLimit = def.MaxResultLimit
	}
	if limits.DefaultLimit <= 0 {
		limits.DefaultLimit = def.DefaultLimit
	}
	return &Validator{limits: limits}
}

// dangerousPatterns flag idioms that have no place in a generated read query.
// The non-terminal semicolon is checked separately so a trailing terminator
// stays legal.
var dangerousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`--`),
	regexp.MustCompile(`(?s)/\*.*?\*/`),
	regexp.MustCompile(`(?i)xp_cmdshell`),
	regexp.MustCompile(`(?i)sp_`),
	regexp.MustCompile(`(?i)exec\s*\(`),
	regexp.MustCompile(`(?i)eval\s*\(`),
	regexp.MustCompile(`\$\$`),
}

var limitClauseRe = regexp.MustCompile(`(?i)LIMIT\s+(\d+)`)

// Validate runs every check in order and returns a fresh verdict.
// valid == no errors; SanitizedQuery is set only when valid.
func (v *Validator) Validate(sqlText string) *schema.ValidationVerdict {
	var errs, warns []string

	clean := strings.TrimSpace(sqlText)

	if len(sqlText) > v.limits.MaxQueryLength {
		errs = append(errs, fmt.Sprintf("query too long (maximum %d characters)", v.limits.MaxQueryLength))
	}
	if clean == "" {
		errs = append(errs, "empty query")
	}

	for _, p := range dangerousPatterns {
		if p.MatchString(sqlText) {
			errs = append(errs, fmt.Sprintf("dangerous pattern detected: %s", p.String()))
		}
	}

	// A semicolon anywhere but the final character means a second statement.
	if idx := strings.Index(clean, ";"); idx >= 0 && idx != len(clean)-1 {
		errs = append(errs, "dangerous pattern detected: non-terminal ';'")
		errs = append(errs, "multiple statements not permitted")
	}

	if clean != "" {
		errs = append(errs, v.checkGrammar(clean)...)
		kwErrs := v.checkKeywords(clean)
		errs = append(errs, kwErrs...)
		warns = append(warns, v.checkComplexity(clean)...)
	}

	limErrs, limWarns := v.checkLimit(sqlText)
	errs = append(errs, limErrs...)
	warns = append(warns, limWarns...)

	verdict := &schema.ValidationVerdict{
		Valid:         len(errs) == 0,
		OriginalQuery: sqlText,
		Errors:        errs,
		Warnings:      warns,
		SecurityScore: v.securityScore(sqlText, len(errs), len(warns)),
	}
	if verdict.Valid {
		verdict.SanitizedQuery = v.ensureLimit(sqlText)
	}
	return verdict
}

// checkGrammar requires the leading keyword to be SELECT, or WITH as a
// read-only CTE introducer. Anything else is rejected outright.
func (v *Validator) checkGrammar(clean string) []string {
	toks := tokenize(clean)
	if len(toks) == 0 {
		return []string{"only SELECT queries are permitted"}
	}
	switch toks[0].upper {
	case "SELECT", "WITH":
		return nil
	default:
		return []string{"only SELECT queries are permitted"}
	}
}

// checkKeywords walks every word token. Forbidden verbs are hard errors
// wherever they appear; names in call position must belong to the allow or
// known-function sets. Bare names elsewhere are identifiers and pass.
func (v *Validator) checkKeywords(clean string) []string {
	var errs []string
	for _, tok := range tokenize(clean) {
		if _, bad := forbiddenKeywords[tok.upper]; bad {
			errs = append(errs, fmt.Sprintf("forbidden keyword: %s", tok.upper))
			continue
		}
		if !tok.callPos {
			continue
		}
		if _, ok := allowedKeywords[tok.upper]; ok {
			continue
		}
		if _, ok := knownFunctions[tok.upper]; ok {
			continue
		}
		errs = append(errs, fmt.Sprintf("unrecognized keyword: %s", tok.upper))
	}
	return errs
}

// checkComplexity warns on deeply nested statements.
func (v *Validator) checkComplexity(clean string) []string {
	upper := strings.ToUpper(clean)
	nesting := strings.Count(upper, "(") + strings.Count(upper, "SELECT")
	if nesting > 10 {
		return []string{"highly complex query with multiple subqueries"}
	}
	return nil
}

func (v *Validator) checkLimit(sqlText string) (errs, warns []string) {
	m := limitClauseRe.FindStringSubmatch(sqlText)
	if m == nil {
		warns = append(warns, fmt.Sprintf("LIMIT %d will be added for safety", v.limits.DefaultLimit))
		return nil, warns
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n > v.limits.MaxResultLimit {
		errs = append(errs, fmt.Sprintf("LIMIT too high (maximum %d)", v.limits.MaxResultLimit))
	}
	return errs, warns
}

// ensureLimit appends the default LIMIT before the trailing terminator when
// the query carries none. Queries with an explicit LIMIT pass through
// unchanged, which keeps re-validation of a sanitized query idempotent.
func (v *Validator) ensureLimit(sqlText string) string {
	if limitClauseRe.MatchString(sqlText) {
		return sqlText
	}
	clean := strings.TrimSpace(sqlText)
	clean = strings.TrimSuffix(clean, ";")
	return fmt.Sprintf("%s LIMIT %d;", clean, v.limits.DefaultLimit)
}

func (v *Validator) securityScore(sqlText string, errCount, warnCount int) float64 {
	score := 10.0
	score -= float64(errCount) * 3.0
	score -= float64(warnCount) * 0.5
	if len(sqlText) > 1000 {
		score -= 1.0
	}
	joins := strings.Count(strings.ToUpper(sqlText), "JOIN")
	if joins > 5 {
		score -= float64(joins) * 0.2
	}
	if score < 0 {
		return 0
	}
	if score > 10 {
		return 10
	}
	return score
}

// token is one bare word in the statement, outside string literals and
// quoted identifiers. callPos marks a word immediately followed by '('.
type token struct {
	upper   string
	callPos bool
}

func tokenize(s string) []token {
	var out []token
	i := 0
	n := len(s)
	for i < n {
		c := s[i]
		switch {
		case c == '\'':
			// String literal; '' escapes a quote.
			i++
			for i < n {
				if s[i] == '\'' {
					if i+1 < n && s[i+1] == '\'' {
						i += 2
						continue
					}
					i++
					break
				}
				i++
			}
		case c == '"':
			// Quoted identifier.
			i++
			for i < n && s[i] != '"' {
				i++
			}
			if i < n {
				i++
			}
		case isWordStart(c):
			start := i
			for i < n && isWordChar(s[i]) {
				i++
			}
			word := s[start:i]
			j := i
			for j < n && (s[j] == ' ' || s[j] == '\t' || s[j] == '\n' || s[j] == '\r') {
				j++
			}
			out = append(out, token{
				upper:   strings.ToUpper(word),
				callPos: j < n && s[j] == '(',
			})
		default:
			i++
		}
	}
	return out
}

func isWordStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isWordChar(c byte) bool {
	return isWordStart(c) || (c >= '0' && c <= '9')
}
