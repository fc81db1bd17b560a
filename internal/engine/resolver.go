package engine

import (
	"strings"

	"github.com/pewpew-tabletop/range-backend/internal/scenario"
)

// Scoring constants are fixed, not derived. Red execution points per attack
// type, awarded only on a hit.
var execPoints = map[scenario.AttackType]int{
	scenario.AttackRCE:         10,
	scenario.AttackSQLI:        8,
	scenario.AttackBruteforce:  5,
	scenario.AttackPhishing:    3,
	scenario.AttackLateralMove: 3,
	scenario.AttackExfil:       5,
}

// blockRules maps each blue action type to the attack types it stops and the
// points a pre-detonation block earns. Host isolation and IP blocks stop
// everything; WAF updates stop web attacks; domain blocks stop phishing and
// exfiltration at a lower value.
var blockRules = map[ActionType]struct {
	types  []scenario.AttackType
	points int
}{
	ActionIsolateHost: {allAttackTypes, 8},
	ActionBlockIP:     {allAttackTypes, 8},
	ActionUpdateWAF:   {[]scenario.AttackType{scenario.AttackSQLI, scenario.AttackRCE, scenario.AttackBruteforce}, 8},
	ActionBlockDomain: {[]scenario.AttackType{scenario.AttackPhishing, scenario.AttackExfil}, 6},
}

var allAttackTypes = []scenario.AttackType{
	scenario.AttackRCE,
	scenario.AttackSQLI,
	scenario.AttackBruteforce,
	scenario.AttackPhishing,
	scenario.AttackLateralMove,
	scenario.AttackExfil,
}

var knownActions = map[ActionType]bool{
	ActionIsolateHost:    true,
	ActionBlockIP:        true,
	ActionUpdateWAF:      true,
	ActionBlockDomain:    true,
	ActionDisableAccount: true,
	ActionInvestigate:    true,
}

func containsType(types []scenario.AttackType, t scenario.AttackType) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}

var attributionTerms = []string{"attack", "rce", "sqli", "sql", "brute", "phish", "lateral", "exfil"}

// attributionMatches checks whether a blue analyst's note names the attack
// family or the attacker's source IP.
func attributionMatches(note string, inst *AttackInstance) bool {
	low := strings.ToLower(note)
	if strings.Contains(low, strings.ToLower(string(inst.Type))) {
		return true
	}
	if strings.Contains(low, inst.SourceIP) {
		return true
	}
	for _, term := range attributionTerms {
		if strings.Contains(low, term) {
			return true
		}
	}
	return false
}
