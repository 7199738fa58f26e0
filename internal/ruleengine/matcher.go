// Package ruleengine evaluates loaded DetectionRules against parsed log
// entries: condition matching, regex compilation with a ReDoS defense,
// and windowed threshold counting for rules that fire on repetition
// rather than on a single match.
package ruleengine

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/dongwonkwak/ironpost/internal/ironcore"
)

// maxRegexPatternLen bounds how long a regex condition's value may be.
// Go's RE2-backed regexp package cannot backtrack and is not vulnerable
// to catastrophic backtracking the way PCRE-style engines are, but the
// cap and the shape checks below are kept as a policy-level defense so a
// malicious or malformed rule file can never install an expensive
// pattern regardless of which regex engine evaluates it.
const maxRegexPatternLen = 1000

// forbiddenRegexShapes are structural patterns associated with
// catastrophic backtracking in backtracking engines. Rejected outright
// rather than relied on RE2 to make safe.
var forbiddenRegexShapes = []string{
	`(.*)+`,
	`(.+)+`,
	`(...)++`,
}

// matcherCache memoizes compiled regexes by (rule ID, condition index)
// so repeated evaluations of the same rule never recompile.
type matcherCache struct {
	mu    sync.RWMutex
	byKey map[string]*regexp.Regexp
}

func newMatcherCache() *matcherCache {
	return &matcherCache{byKey: make(map[string]*regexp.Regexp)}
}

func cacheKey(ruleID string, conditionIdx int) string {
	return fmt.Sprintf("%s#%d", ruleID, conditionIdx)
}

func (c *matcherCache) compile(ruleID string, conditionIdx int, pattern string) (*regexp.Regexp, error) {
	key := cacheKey(ruleID, conditionIdx)

	c.mu.RLock()
	if re, ok := c.byKey[key]; ok {
		c.mu.RUnlock()
		return re, nil
	}
	c.mu.RUnlock()

	re, err := compileGuardedRegex(pattern)
	if err != nil {
		return nil, &ironcore.RuleError{RuleID: ruleID, Reason: err.Error()}
	}

	c.mu.Lock()
	c.byKey[key] = re
	c.mu.Unlock()
	return re, nil
}

func compileGuardedRegex(pattern string) (*regexp.Regexp, error) {
	if len(pattern) > maxRegexPatternLen {
		return nil, fmt.Errorf("regex pattern exceeds %d characters", maxRegexPatternLen)
	}
	for _, shape := range forbiddenRegexShapes {
		if strings.Contains(pattern, shape) {
			return nil, fmt.Errorf("regex pattern contains forbidden nested-quantifier shape %q", shape)
		}
	}
	return regexp.Compile(pattern)
}

// Matcher evaluates DetectionRule conditions against LogEntry values. A
// single Matcher instance is expected to live for the process lifetime
// of the rule engine so its regex cache stays warm across evaluations.
type Matcher struct {
	cache *matcherCache
}

// NewMatcher returns a Matcher with an empty regex cache.
func NewMatcher() *Matcher {
	return &Matcher{cache: newMatcherCache()}
}

// Matches reports whether every condition of rule matches entry — an
// AND across all conditions. An empty condition list matches every
// entry.
func (m *Matcher) Matches(rule *ironcore.DetectionRule, entry ironcore.LogEntry) (bool, error) {
	conditions := rule.Detection.Conditions
	if len(conditions) == 0 {
		return true, nil
	}
	for i, cond := range conditions {
		ok, err := m.matchCondition(rule.ID, i, cond, entry)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (m *Matcher) matchCondition(ruleID string, idx int, cond ironcore.FieldCondition, entry ironcore.LogEntry) (bool, error) {
	value, ok := entry.FieldValue(cond.FieldName)
	if !ok {
		return false, nil
	}

	switch cond.Modifier {
	case ironcore.ModifierExact:
		return value == cond.Value, nil
	case ironcore.ModifierContains:
		return strings.Contains(value, cond.Value), nil
	case ironcore.ModifierStartsWith:
		return strings.HasPrefix(value, cond.Value), nil
	case ironcore.ModifierEndsWith:
		return strings.HasSuffix(value, cond.Value), nil
	case ironcore.ModifierRegex:
		re, err := m.cache.compile(ruleID, idx, cond.Value)
		if err != nil {
			return false, err
		}
		return re.MatchString(value), nil
	default:
		return false, &ironcore.RuleError{RuleID: ruleID, Reason: fmt.Sprintf("unknown condition modifier %q", cond.Modifier)}
	}
}
