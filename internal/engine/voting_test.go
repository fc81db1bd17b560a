package engine

import (
	"errors"
	"testing"
	"time"
)

func vote(t *testing.T, s State, role Role, actor string, topic VoteTopic, choice string, at time.Time) ([]Event, State, error) {
	t.Helper()
	sc := testScenario(t)
	return Apply(s, Command{Type: CmdSubmitVote, Role: role, Actor: actor, Topic: topic, Choice: choice}, sc, at)
}

func TestMajorityRule(t *testing.T) {
	cases := []struct {
		name    string
		tally   map[string]string
		want    string
		reached bool
	}{
		{"empty", map[string]string{}, "", false},
		{"single voter", map[string]string{"p1": "a"}, "a", true},
		{"two to one", map[string]string{"p1": "a", "p2": "a", "p3": "b"}, "a", true},
		{"two-two tie", map[string]string{"p1": "a", "p2": "a", "p3": "b", "p4": "b"}, "", false},
		{"exactly half", map[string]string{"p1": "a", "p2": "a", "p3": "b", "p4": "c"}, "", false},
		{"three of five", map[string]string{"p1": "a", "p2": "a", "p3": "a", "p4": "b", "p5": "c"}, "a", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, reached := Majority(tc.tally)
			if reached != tc.reached || got != tc.want {
				t.Fatalf("Majority(%v) = (%q, %v), want (%q, %v)", tc.tally, got, reached, tc.want, tc.reached)
			}
		})
	}
}

func TestSingleVoteNeverResolvesTopic(t *testing.T) {
	sc := testScenario(t)
	s := runningState(t, sc)
	at := testBase.Add(5 * time.Second)

	events, s, err := vote(t, s, RoleRed, "r1", TopicAttack, "atk-rce-1", at)
	if err != nil {
		t.Fatalf("vote: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("a lone vote must not decide for the team, got %v", events)
	}
	if s.ResolvedTopics[TopicAttack] {
		t.Fatalf("topic resolved on a single voter")
	}

	// A teammate can still weigh in; agreement at quorum resolves.
	events, s, err = vote(t, s, RoleRed, "r2", TopicAttack, "atk-rce-1", at)
	if err != nil {
		t.Fatalf("second vote: %v", err)
	}
	if !ContainsEvent(events, EvtAttackSelected) {
		t.Fatalf("two agreeing voters should resolve, got %v", events)
	}
	if !s.ResolvedTopics[TopicAttack] {
		t.Fatalf("topic should be resolved at quorum")
	}
}

func TestVoteQuorumIsConfigurable(t *testing.T) {
	sc := testScenario(t)
	rules := DefaultRules()
	rules.VoteQuorum = 3
	s := NewState("sess-1", rules)
	var err error
	_, s, err = Apply(s, Command{Type: CmdStart, Role: RoleGM, ScenarioID: sc.ID}, sc, testBase)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	_, s, err = Apply(s, Command{Type: CmdDismissBriefing, Role: RoleRed, Actor: "r1"}, sc, testBase)
	if err != nil {
		t.Fatalf("dismiss briefing: %v", err)
	}
	at := testBase.Add(5 * time.Second)

	_, s, _ = vote(t, s, RoleRed, "r1", TopicAttack, "atk-rce-1", at)
	events, s, _ := vote(t, s, RoleRed, "r2", TopicAttack, "atk-rce-1", at)
	if len(events) != 0 || s.ResolvedTopics[TopicAttack] {
		t.Fatalf("two of a three-voter quorum must not resolve")
	}

	events, s, _ = vote(t, s, RoleRed, "r3", TopicAttack, "atk-rce-1", at)
	if !ContainsEvent(events, EvtAttackSelected) || !s.ResolvedTopics[TopicAttack] {
		t.Fatalf("quorum reached with agreement should resolve, got %v", events)
	}
}

func TestTieNeverResolvesTopic(t *testing.T) {
	sc := testScenario(t)
	s := runningState(t, sc)
	at := testBase.Add(5 * time.Second)

	var err error
	var events []Event
	for i, v := range []struct{ actor, choice string }{
		{"r1", "atk-rce-1"}, {"r2", "atk-rce-1"}, {"r3", "atk-sqli-1"}, {"r4", "atk-sqli-1"},
	} {
		events, s, err = vote(t, s, RoleRed, v.actor, TopicAttack, v.choice, at)
		if err != nil {
			t.Fatalf("vote %d: %v", i, err)
		}
		if len(events) != 0 {
			t.Fatalf("vote %d: tie/no-majority must emit nothing, got %v", i, events)
		}
	}
	if s.ResolvedTopics[TopicAttack] {
		t.Fatalf("2-2 tie declared a majority")
	}
}

func TestLastVotePerPlayerWins(t *testing.T) {
	sc := testScenario(t)
	s := runningState(t, sc)
	at := testBase.Add(5 * time.Second)

	_, s, _ = vote(t, s, RoleRed, "r1", TopicAttack, "atk-sqli-1", at)
	_, s, _ = vote(t, s, RoleRed, "r2", TopicAttack, "atk-rce-1", at)

	// r1 flips; with two distinct voters now agreeing, the topic resolves.
	events, s, err := vote(t, s, RoleRed, "r1", TopicAttack, "atk-rce-1", at)
	if err != nil {
		t.Fatalf("revote: %v", err)
	}
	if !ContainsEvent(events, EvtAttackSelected) {
		t.Fatalf("want attack_selected after revote majority")
	}
	if got := events[0].Payload["winner"]; got != "atk-rce-1" {
		t.Fatalf("winner = %v", got)
	}
	if got := events[0].Payload["correct"]; got != true {
		t.Fatalf("correct flag = %v", got)
	}
	if !s.ResolvedTopics[TopicAttack] {
		t.Fatalf("topic should be resolved")
	}
}

func TestScanToolMajorityRunsScan(t *testing.T) {
	sc := testScenario(t)
	s := runningState(t, sc)
	at := testBase.Add(5 * time.Second)

	_, s, _ = vote(t, s, RoleRed, "r1", TopicScanTool, string(sc.RequiredScanTool), at)
	events, s, err := vote(t, s, RoleRed, "r2", TopicScanTool, string(sc.RequiredScanTool), at)
	if err != nil {
		t.Fatalf("vote: %v", err)
	}
	if !ContainsEvent(events, EvtScanCompleted) {
		t.Fatalf("scan_tool majority must execute the scan")
	}
	if !s.ScannedTools[sc.RequiredScanTool] {
		t.Fatalf("scan not recorded")
	}
	if s.Score.Red != 2 {
		t.Fatalf("correct tool via vote should score +2, got %d", s.Score.Red)
	}
	if !ContainsEvent(events, EvtScoreUpdate) {
		t.Fatalf("want score_update alongside scan")
	}
}

func TestInvestigationMajorityConsumesBlueTurn(t *testing.T) {
	sc := testScenario(t)
	s := runningState(t, sc)
	s = launchCorrect(t, s, sc, testBase.Add(5*time.Second))
	at := testBase.Add(10 * time.Second)

	_, s, _ = vote(t, s, RoleBlue, "b1", TopicInvestigation, "waf_logs", at)
	events, s, err := vote(t, s, RoleBlue, "b2", TopicInvestigation, "waf_logs", at)
	if err != nil {
		t.Fatalf("vote: %v", err)
	}
	if !ContainsEvent(events, EvtInvestigationCompleted) || !ContainsEvent(events, EvtTurnChanged) {
		t.Fatalf("investigation majority must resolve and hand the turn back, got %v", events)
	}
	for _, e := range events {
		if e.Kind == EvtInvestigationCompleted && e.Payload["artifacts"] == nil {
			t.Fatalf("investigation should surface the scenario artifacts")
		}
	}
	if s.Turn != SideRed {
		t.Fatalf("want red turn, got %v", s.Turn)
	}
	inst := s.CurrentAttack()
	if inst == nil || !inst.Detected {
		t.Fatalf("investigation should mark the in-flight attack detected")
	}
}

func TestVoteOnResolvedTopicConflicts(t *testing.T) {
	sc := testScenario(t)
	s := runningState(t, sc)
	at := testBase.Add(5 * time.Second)

	_, s, _ = vote(t, s, RoleRed, "r1", TopicVulnerability, "atk-rce-1", at)
	_, s, _ = vote(t, s, RoleRed, "r2", TopicVulnerability, "atk-rce-1", at)

	_, _, err := vote(t, s, RoleRed, "r3", TopicVulnerability, "atk-sqli-1", at)
	if !errors.Is(err, ErrTopicResolved) {
		t.Fatalf("want ErrTopicResolved, got %v", err)
	}
	if !IsConflict(err) {
		t.Fatalf("ErrTopicResolved must classify as a conflict")
	}
}

func TestVotesResetOnTurnChange(t *testing.T) {
	sc := testScenario(t)
	s := runningState(t, sc)
	at := testBase.Add(5 * time.Second)

	_, s, _ = vote(t, s, RoleRed, "r1", TopicAttack, "atk-rce-1", at)
	if len(s.Votes[TopicAttack]) != 1 {
		t.Fatalf("vote not recorded")
	}

	_, s, err := Apply(s, Command{Type: CmdTurnTimeout}, sc, testBase.Add(10*time.Second))
	if err != nil {
		t.Fatalf("timeout: %v", err)
	}
	if len(s.Votes) != 0 || len(s.ResolvedTopics) != 0 {
		t.Fatalf("votes must reset on turn change")
	}
}

func TestIPMajorityScoresAttribution(t *testing.T) {
	sc := testScenario(t)
	s := runningState(t, sc)
	s = launchCorrect(t, s, sc, testBase.Add(5*time.Second))
	at := testBase.Add(10 * time.Second)

	_, s, _ = vote(t, s, RoleBlue, "b1", TopicIP, attackerIP, at)
	events, s, err := vote(t, s, RoleBlue, "b2", TopicIP, attackerIP, at)
	if err != nil {
		t.Fatalf("vote: %v", err)
	}
	if !ContainsEvent(events, EvtIPIdentified) {
		t.Fatalf("want ip_identified")
	}
	if s.Score.Blue != 2 {
		t.Fatalf("correct attribution via ip vote should score +2, got %d", s.Score.Blue)
	}
	inst := s.CurrentAttack()
	if inst == nil || !inst.Detected || !inst.AttributionScored {
		t.Fatalf("ip majority should mark detection and attribution")
	}
}
