package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pewpew-tabletop/range-backend/internal/scenario"
)

func blueAct(t *testing.T, s State, at time.Time, action ActionType, target, note string) ([]Event, State) {
	t.Helper()
	sc := testScenario(t)
	events, next, err := Apply(s, Command{
		Type: CmdSubmitAction, Role: RoleBlue, Actor: "b1",
		ActionType: action, Target: target, Note: note,
	}, sc, at)
	require.NoError(t, err)
	return events, next
}

func hasBreakdown(s State, side Side, delta int, reason string) bool {
	for _, e := range s.Score.Breakdown {
		if e.Side == side && e.Delta == delta && e.Reason == reason {
			return true
		}
	}
	return false
}

func TestCorrectAttackHitsAndScoresRed(t *testing.T) {
	sc := testScenario(t)
	s := runningState(t, sc)
	s = launchCorrect(t, s, sc, testBase.Add(10*time.Second))

	// +2 correct scan tool, +3 correct attack choice.
	require.Equal(t, 5, s.Score.Red)

	inst := s.CurrentAttack()
	require.NotNil(t, inst)
	require.True(t, inst.Pending())

	// Blue isolates the target after impact but inside the containment
	// window: the exploit lands, red banks execution points.
	at := testBase.Add(2 * time.Minute)
	events, s := blueAct(t, s, at, ActionIsolateHost, "sharepoint-1", "")

	require.True(t, ContainsEvent(events, EvtAttackResolved))
	resolved := s.Attacks[len(s.Attacks)-1]
	require.Equal(t, OutcomeHit, resolved.Outcome)
	require.True(t, resolved.Contained)
	require.GreaterOrEqual(t, s.Score.Red, 15) // at least +10 execution
	require.Equal(t, 5, s.Score.Blue)          // contained under window
}

func TestWrongAttackMissesAndNeverScoresRed(t *testing.T) {
	sc := testScenario(t)
	s := runningState(t, sc)

	events, s, err := Apply(s, Command{Type: CmdLaunchAttack, Role: RoleRed, Actor: "r1", AttackID: "atk-brute-1"}, sc, testBase.Add(5*time.Second))
	require.NoError(t, err)

	require.True(t, ContainsEvent(events, EvtAttackResolved))
	inst := s.Attacks[len(s.Attacks)-1]
	require.Equal(t, OutcomeMiss, inst.Outcome)
	require.Equal(t, 0, s.Score.Red) // -2 choice penalty floored at zero
	require.Equal(t, SideBlue, s.Turn)
}

func TestIsolatePreImpactBlocks(t *testing.T) {
	sc := testScenario(t)
	s := runningState(t, sc)
	s = launchCorrect(t, s, sc, testBase.Add(10*time.Second))

	// Impact is launch+30s; act at launch+15s.
	events, s := blueAct(t, s, testBase.Add(25*time.Second), ActionIsolateHost, "sharepoint-1", "")

	require.True(t, ContainsEvent(events, EvtAttackResolved))
	inst := s.Attacks[len(s.Attacks)-1]
	require.Equal(t, OutcomeBlocked, inst.Outcome)
	require.Equal(t, 8, s.Score.Blue)
	require.Equal(t, 5, s.Score.Red) // choice + scan points only, no execution
}

func TestLateActionMissesContainmentWindow(t *testing.T) {
	sc := testScenario(t)
	s := runningState(t, sc)
	s = launchCorrect(t, s, sc, testBase.Add(10*time.Second))

	// Tick-driven auto-resolution is off the table here: act just before
	// the window expiry sweep would have caught it, but past the 5 minute
	// containment budget (impact+5m).
	blueBefore := s.Score.Blue
	at := testBase.Add(10*time.Second + 30*time.Second + 5*time.Minute + time.Second)
	events, s := blueAct(t, s, at, ActionIsolateHost, "sharepoint-1", "")

	require.True(t, ContainsEvent(events, EvtAttackResolved))
	inst := s.Attacks[len(s.Attacks)-1]
	require.Equal(t, OutcomeHit, inst.Outcome)
	require.GreaterOrEqual(t, s.Score.Red, 15)
	// -3 relative to where blue stood, floored at zero.
	require.Equal(t, max(blueBefore-3, 0), s.Score.Blue)
}

func TestResolveIsIdempotent(t *testing.T) {
	sc := testScenario(t)
	s := runningState(t, sc)
	s = launchCorrect(t, s, sc, testBase.Add(10*time.Second))

	inst := s.CurrentAttack()
	require.NotNil(t, inst)

	var events []Event
	resolveInstance(&s, &events, inst, OutcomeHit, testBase.Add(time.Minute))
	redAfterFirst := s.Score.Red
	firstOutcome := inst.Outcome

	events = nil
	resolveInstance(&s, &events, inst, OutcomeBlocked, testBase.Add(2*time.Minute))
	require.Empty(t, events, "second resolve must be a no-op")
	require.Equal(t, firstOutcome, inst.Outcome)
	require.Equal(t, redAfterFirst, s.Score.Red)
}

func TestContainmentWindowExpirySelfResolves(t *testing.T) {
	sc := testScenario(t)
	s := runningState(t, sc)
	s = launchCorrect(t, s, sc, testBase.Add(10*time.Second))
	blueBefore := s.Score.Blue

	at := testBase.Add(10*time.Second + 30*time.Second + 5*time.Minute + 2*time.Second)
	events, s, err := Apply(s, Command{Type: CmdTick}, sc, at)
	require.NoError(t, err)

	require.True(t, ContainsEvent(events, EvtAttackResolved))
	inst := s.Attacks[len(s.Attacks)-1]
	require.Equal(t, OutcomeHit, inst.Outcome)
	require.False(t, inst.Contained)
	require.GreaterOrEqual(t, s.Score.Red, 15)
	require.Equal(t, max(blueBefore-3, 0), s.Score.Blue)
}

func TestAttackSLAOverridesTimingDefaults(t *testing.T) {
	sc := testScenario(t)
	for i := range sc.Attacks {
		sc.Attacks[i].DetectSLASeconds = 12
		sc.Attacks[i].ContainSLASeconds = 10
	}
	s := runningState(t, sc)
	s = launchCorrect(t, s, sc, testBase)

	inst := s.CurrentAttack()
	require.NotNil(t, inst)
	require.Equal(t, 12*time.Second, inst.ImpactElapsed)
	require.Equal(t, 10*time.Second, inst.ContainWindow)

	// 23s in: impact (12s) plus the attack's 10s containment budget has
	// fully passed, so the tick self-resolves instead of waiting out the
	// 5 minute session default.
	events, s, err := Apply(s, Command{Type: CmdTick}, sc, testBase.Add(23*time.Second))
	require.NoError(t, err)
	require.True(t, ContainsEvent(events, EvtAttackResolved))
	require.Nil(t, s.CurrentAttack())
	resolved := s.Attacks[len(s.Attacks)-1]
	require.Equal(t, OutcomeHit, resolved.Outcome)
	require.False(t, resolved.Contained)
}

func TestWrongAttributionNotePenalized(t *testing.T) {
	sc := testScenario(t)
	s := runningState(t, sc)
	s = launchCorrect(t, s, sc, testBase.Add(10*time.Second))

	// Off-target action whose note names neither the family nor the IP.
	_, s = blueAct(t, s, testBase.Add(20*time.Second), ActionInvestigate, "db-1", "cdn traffic spike, probably benign")

	inst := s.CurrentAttack()
	require.NotNil(t, inst)
	require.True(t, inst.AttributionScored)
	require.True(t, hasBreakdown(s, SideBlue, -2, "incorrect attribution"))

	// The guess is spent: a later correct note earns nothing.
	var err error
	_, s, err = Apply(s, Command{Type: CmdTurnTimeout}, sc, testBase.Add(30*time.Second))
	require.NoError(t, err)
	_, s = blueAct(t, s, testBase.Add(40*time.Second), ActionInvestigate, "waf-1", "definitely RCE")
	require.False(t, hasBreakdown(s, SideBlue, 2, "correct attribution"))
}

func TestExcessiveResponsePenalty(t *testing.T) {
	sc := testScenario(t)
	s := runningState(t, sc)
	s = launchCorrect(t, s, sc, testBase)

	// Three off-target blue actions, each followed by a red timeout handing
	// the turn back, all before the 30s impact.
	var err error
	at := testBase
	for i := 0; i < 3; i++ {
		at = at.Add(2 * time.Second)
		_, s = blueAct(t, s, at, ActionInvestigate, "db-1", "")
		at = at.Add(2 * time.Second)
		_, s, err = Apply(s, Command{Type: CmdTurnTimeout}, sc, at)
		require.NoError(t, err)
	}

	// The fourth action finally blocks pre-detonation, but four responses
	// against an attack that never landed is over-reaction.
	at = at.Add(2 * time.Second)
	_, s = blueAct(t, s, at, ActionIsolateHost, "sharepoint-1", "")

	inst := s.Attacks[len(s.Attacks)-1]
	require.Equal(t, OutcomeBlocked, inst.Outcome)
	require.Equal(t, 4, inst.BlueActionCount)
	require.True(t, hasBreakdown(s, SideBlue, -5, "excessive response"))
}

func TestBlockedSourceIPPreemptsLaunch(t *testing.T) {
	sc := testScenario(t)
	s := runningState(t, sc)

	// Red burns a turn on the wrong vector; turn passes to blue.
	_, s, err := Apply(s, Command{Type: CmdLaunchAttack, Role: RoleRed, Actor: "r1", AttackID: "atk-brute-1"}, sc, testBase.Add(5*time.Second))
	require.NoError(t, err)

	// Blue blocks the attacker IP seen in the alert stream.
	_, s = blueAct(t, s, testBase.Add(20*time.Second), ActionBlockIP, attackerIP, "")
	require.True(t, s.BlockedIPs[attackerIP])
	require.Equal(t, SideRed, s.Turn)

	blueBefore := s.Score.Blue
	s = launchCorrect(t, s, sc, testBase.Add(30*time.Second))
	inst := s.Attacks[len(s.Attacks)-1]
	require.Equal(t, OutcomeBlocked, inst.Outcome)
	require.Equal(t, blueBefore+8, s.Score.Blue)
}

func TestAttributionScoredOncePerInstance(t *testing.T) {
	sc := testScenario(t)
	s := runningState(t, sc)
	s = launchCorrect(t, s, sc, testBase.Add(10*time.Second))

	// Ineffective target, but the note names the attack family.
	_, s = blueAct(t, s, testBase.Add(20*time.Second), ActionInvestigate, "db-1", "looks like RCE from the WAF logs")
	require.Equal(t, 2, s.Score.Blue)

	inst := s.CurrentAttack()
	require.NotNil(t, inst)
	require.True(t, inst.AttributionScored)

	// Let red's turn expire so blue can attribute again: no second bonus.
	_, s, err := Apply(s, Command{Type: CmdTurnTimeout}, sc, testBase.Add(30*time.Second))
	require.NoError(t, err)
	_, s = blueAct(t, s, testBase.Add(50*time.Second), ActionInvestigate, "waf-1", "definitely RCE")
	require.Equal(t, 2, s.Score.Blue)
}

func TestScanChoiceScoring(t *testing.T) {
	sc := testScenario(t)

	cases := []struct {
		name    string
		tool    scenario.ScanTool
		wantRed int
	}{
		{"correct tool", sc.RequiredScanTool, 2},
		{"wrong but attack-linked tool", scenario.ToolNmap, 0}, // -1 floored at zero
		{"informational tool", scenario.ToolNikto, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := runningState(t, sc)
			events, s, err := Apply(s, Command{Type: CmdRunScan, Role: RoleRed, Actor: "r1", Tool: tc.tool}, sc, testBase.Add(5*time.Second))
			require.NoError(t, err)
			require.True(t, ContainsEvent(events, EvtScanCompleted))
			require.Equal(t, tc.wantRed, s.Score.Red)

			// Repeating the scan never re-scores the choice.
			_, s, err = Apply(s, Command{Type: CmdRunScan, Role: RoleRed, Actor: "r1", Tool: tc.tool}, sc, testBase.Add(6*time.Second))
			require.NoError(t, err)
			require.Equal(t, tc.wantRed, s.Score.Red)
		})
	}
}
