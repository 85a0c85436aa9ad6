package ingredients

import (
	"fmt"
	"strings"
)

// Rule pairs a lowercase ingredient phrase with the reason it is flagged
type Rule struct {
	Phrase      string `json:"phrase"`
	Explanation string `json:"explanation"`
}

// defaultRules is the fixed inflammatory ingredient table, in scan order
var defaultRules = []Rule{
	{"high fructose corn syrup", "Linked to obesity, insulin resistance, and inflammation."},
	{"trans fat", "Raises bad cholesterol and increases heart disease risk."},
	{"sugar", "Excess sugar promotes inflammation and metabolic issues."},
	{"partially hydrogenated oil", "Main source of artificial trans fat, harmful for heart health."},
	{"monosodium glutamate", "Can trigger headaches, sweating, and inflammation in sensitive people."},
	{"msg", "Another name for monosodium glutamate."},
	{"artificial flavors", "May contain chemical additives linked to inflammation."},
}

// AllRules returns a copy of the built-in dictionary in declaration order
func AllRules() []Rule {
	rules := make([]Rule, len(defaultRules))
	copy(rules, defaultRules)
	return rules
}

// Dictionary is an immutable, ordered set of rules
type Dictionary struct {
	rules []Rule
}

// Default returns the dictionary built from AllRules
func Default() *Dictionary {
	return &Dictionary{rules: AllRules()}
}

// NewDictionary builds a dictionary from rules, keeping their order.
// Phrases must be non-empty, lowercase and unique.
func NewDictionary(rules ...Rule) (*Dictionary, error) {
	seen := make(map[string]struct{}, len(rules))
	kept := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if r.Phrase == "" {
			return nil, fmt.Errorf("empty phrase")
		}
		if r.Phrase != strings.ToLower(r.Phrase) {
			return nil, fmt.Errorf("phrase %q must be lowercase", r.Phrase)
		}
		if _, ok := seen[r.Phrase]; ok {
			return nil, fmt.Errorf("duplicate phrase %q", r.Phrase)
		}
		seen[r.Phrase] = struct{}{}
		kept = append(kept, r)
	}
	return &Dictionary{rules: kept}, nil
}

// Rules returns a copy of the dictionary's rules
func (d *Dictionary) Rules() []Rule {
	rules := make([]Rule, len(d.rules))
	copy(rules, d.rules)
	return rules
}

// Len returns the number of rules
func (d *Dictionary) Len() int {
	return len(d.rules)
}
