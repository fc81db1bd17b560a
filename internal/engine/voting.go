package engine

// topicSides pins which side owns each vote topic. Recon, pivot and attack
// decisions belong to red; attribution, response and investigation decisions
// belong to blue.
var topicSides = map[VoteTopic]Side{
	TopicScanTool:      SideRed,
	TopicVulnerability: SideRed,
	TopicPivotStrategy: SideRed,
	TopicAttack:        SideRed,
	TopicIP:            SideBlue,
	TopicAction:        SideBlue,
	TopicInvestigation: SideBlue,
}

// Majority returns the winning choice once strictly more than half of the
// current distinct voters agree on it. A tie never declares a majority.
func Majority(tally map[string]string) (string, bool) {
	if len(tally) == 0 {
		return "", false
	}
	counts := map[string]int{}
	for _, choice := range tally {
		counts[choice]++
	}
	for choice, n := range counts {
		if n*2 > len(tally) {
			return choice, true
		}
	}
	return "", false
}
