// Package engine is the authoritative session state machine: a pure
// Apply(state, command) transition that validates legality, mutates state and
// returns the events to broadcast. All callers serialize through one actor,
// so Apply itself holds no locks.
package engine

import (
	"fmt"
	"time"

	"github.com/pewpew-tabletop/range-backend/internal/scenario"
)

const attackerIP = "198.51.100.7"

// Apply validates cmd against s and returns the emitted events plus the next
// state. Illegal commands return the unchanged state, a classified error and
// zero events. sc is the active scenario (the one being started for
// CmdStart); it may be nil only in lobby.
func Apply(s State, cmd Command, sc *scenario.Scenario, now time.Time) ([]Event, State, error) {
	switch cmd.Type {
	case CmdStart:
		return applyStart(s, cmd, sc, now)
	case CmdDismissBriefing:
		return applyDismissBriefing(s, cmd, now)
	case CmdPause:
		return applyPause(s, cmd, now)
	case CmdResume:
		return applyResume(s, cmd, now)
	case CmdReset:
		return applyReset(s, cmd, now)
	case CmdStop:
		return applyStop(s, cmd, sc, now)
	case CmdLaunchAttack:
		return applyLaunchAttack(s, cmd, sc, now)
	case CmdRunScan:
		return applyRunScan(s, cmd, sc, now)
	case CmdSubmitAction:
		return applySubmitAction(s, cmd, sc, now)
	case CmdSubmitVote:
		return applySubmitVote(s, cmd, sc, now)
	case CmdTick:
		return applyTick(s, sc, now)
	case CmdTurnTimeout:
		return applyTurnTimeout(s, sc, now)
	case CmdRoundTimeout:
		return applyRoundTimeout(s, cmd, sc, now)
	case CmdGMInject:
		return applyGMInject(s, cmd, now)
	default:
		return nil, s, ErrUnsupportedCommand
	}
}

func applyStart(s State, cmd Command, sc *scenario.Scenario, now time.Time) ([]Event, State, error) {
	if cmd.Role != RoleGM {
		return nil, s, ErrWrongRole
	}
	if s.Status != StatusLobby {
		return nil, s, ErrWrongStatus
	}
	if sc == nil || sc.ID != cmd.ScenarioID {
		return nil, s, ErrUnknownScenario
	}

	ns := NewState(s.SessionID, s.Rules)
	ns.ScenarioID = sc.ID
	ns.Status = StatusRunning
	ns.Round = s.Round + 1
	ns.Mode = s.Mode
	if cmd.Mode != "" {
		ns.Mode = cmd.Mode
	}
	ns.Turn = SideRed
	ns.TurnNumber = 1
	if sc.MaxTurnsPerSide > 0 {
		ns.Rules.MaxTurnsPerSide = sc.MaxTurnsPerSide
	}

	events := []Event{{
		Kind: EvtRoundStarted,
		At:   now,
		Payload: map[string]any{
			"round":       ns.Round,
			"scenario_id": sc.ID,
			"scenario":    sc.Name,
			"mode":        ns.Mode,
			"turn":        ns.Turn,
		},
	}}
	return events, ns, nil
}

func applyDismissBriefing(s State, cmd Command, now time.Time) ([]Event, State, error) {
	if cmd.Role != RoleRed && cmd.Role != RoleGM {
		return nil, s, ErrWrongRole
	}
	if s.Status != StatusRunning {
		return nil, s, ErrWrongStatus
	}
	if s.BriefingDismissed {
		return nil, s, ErrBriefingDismissed
	}

	ns := s
	ns.BriefingDismissed = true
	ns.StartedAt = now
	ns.TurnStartedElapsed = 0

	events := []Event{
		{Kind: EvtActivity, At: now, Payload: map[string]any{"action": "briefing_dismissed", "actor": cmd.Actor}},
		{Kind: EvtTurnChanged, At: now, Payload: map[string]any{"turn": ns.Turn, "reason": "round_start", "turn_number": ns.TurnNumber}},
		timerEvent(ns, now),
	}
	return events, ns, nil
}

func applyPause(s State, cmd Command, now time.Time) ([]Event, State, error) {
	if cmd.Role != RoleGM {
		return nil, s, ErrWrongRole
	}
	if s.Status != StatusRunning {
		return nil, s, ErrWrongStatus
	}

	ns := s
	ns.ElapsedAtPause = s.RoundElapsed(now)
	ns.Status = StatusPaused

	events := []Event{
		{Kind: EvtActivity, At: now, Payload: map[string]any{"action": "paused", "actor": cmd.Actor}},
		timerEvent(ns, now),
	}
	return events, ns, nil
}

func applyResume(s State, cmd Command, now time.Time) ([]Event, State, error) {
	if cmd.Role != RoleGM {
		return nil, s, ErrWrongRole
	}
	if s.Status != StatusPaused {
		return nil, s, ErrWrongStatus
	}

	ns := s
	ns.Status = StatusRunning
	if ns.BriefingDismissed {
		// Re-anchor the wall clock so remaining time is exactly what it was
		// at pause.
		ns.StartedAt = now.Add(-ns.ElapsedAtPause)
	}

	events := []Event{
		{Kind: EvtActivity, At: now, Payload: map[string]any{"action": "resumed", "actor": cmd.Actor}},
		timerEvent(ns, now),
	}
	return events, ns, nil
}

func applyReset(s State, cmd Command, now time.Time) ([]Event, State, error) {
	if cmd.Role != RoleGM {
		return nil, s, ErrWrongRole
	}
	if s.Status == StatusLobby {
		return nil, s, ErrWrongStatus
	}

	ns := NewState(s.SessionID, s.Rules)
	ns.Mode = s.Mode
	ns.Round = s.Round

	events := []Event{
		{Kind: EvtActivity, At: now, Payload: map[string]any{"action": "reset", "actor": cmd.Actor}},
	}
	return events, ns, nil
}

func applyStop(s State, cmd Command, sc *scenario.Scenario, now time.Time) ([]Event, State, error) {
	if cmd.Role != RoleGM {
		return nil, s, ErrWrongRole
	}
	if s.Status != StatusRunning && s.Status != StatusPaused {
		return nil, s, ErrWrongStatus
	}

	ns := s
	var events []Event
	finish(&ns, &events, sc, now, "stopped")
	return events, ns, nil
}

func applyLaunchAttack(s State, cmd Command, sc *scenario.Scenario, now time.Time) ([]Event, State, error) {
	if cmd.Role != RoleRed && cmd.Role != RoleGM {
		return nil, s, ErrWrongRole
	}
	if s.Status == StatusFinished {
		return nil, s, ErrSessionFinished
	}
	if s.Status != StatusRunning {
		return nil, s, ErrWrongStatus
	}
	if !s.BriefingDismissed {
		return nil, s, ErrBriefingPending
	}
	if s.Turn != SideRed {
		return nil, s, ErrWrongTurn
	}
	if s.ActedThisTurn {
		return nil, s, ErrTurnActionSpent
	}
	if cur := s.CurrentAttack(); cur != nil && cur.Pending() {
		return nil, s, ErrAttackInFlight
	}

	atk, ok := sc.AttackByID(cmd.AttackID)
	if !ok {
		return nil, s, ErrUnknownAttack
	}
	from, to := atk.From, atk.To
	if cmd.From != "" {
		from = cmd.From
	}
	if cmd.To != "" {
		to = cmd.To
	}
	if !sc.Topology.HasNode(to) || !sc.Topology.HasNode(from) {
		return nil, s, ErrUnknownNode
	}
	if atk.RequiresScan && !s.ScannedTools[atk.RequiredScanTool] {
		return nil, s, ErrScanRequired
	}

	ns := s
	elapsed := ns.RoundElapsed(now)
	srcIP := cmd.SourceIP
	if srcIP == "" {
		srcIP = attackerIP
	}

	// Per-attack SLA budgets override the session defaults.
	impactDelay := ns.Rules.ImpactDelay
	if atk.DetectSLASeconds > 0 {
		impactDelay = time.Duration(atk.DetectSLASeconds) * time.Second
	}
	containWindow := ns.Rules.ContainWindow
	if atk.ContainSLASeconds > 0 {
		containWindow = time.Duration(atk.ContainSLASeconds) * time.Second
	}

	ns.Seq++
	inst := &AttackInstance{
		ID:              fmt.Sprintf("atk-inst-%d", ns.Seq),
		AttackID:        atk.ID,
		Type:            atk.Type,
		From:            from,
		To:              to,
		SourceIP:        srcIP,
		LaunchedElapsed: elapsed,
		ImpactElapsed:   elapsed + impactDelay,
		ContainWindow:   containWindow,
		Outcome:         OutcomePending,
		Correct:         atk.IsCorrectChoice,
	}
	ns.Attacks = append(append([]*AttackInstance{}, ns.Attacks...), inst)
	ns.CurrentAttackID = inst.ID

	var events []Event
	events = append(events, correlate(ns, Event{
		Kind: EvtAttackLaunched,
		At:   now,
		Payload: map[string]any{
			"instance_id": inst.ID,
			"attack_id":   atk.ID,
			"attack_type": atk.Type,
			"from":        from,
			"to":          to,
			"actor":       cmd.Actor,
		},
	}, inst, now))

	// Choice points at launch: +3 for the scenario's intended vector, -2
	// for anything else.
	if inst.Correct {
		score(&ns, &events, now, SideRed, 3, "correct attack choice")
	} else {
		score(&ns, &events, now, SideRed, -2, "wrong attack choice")
	}

	switch {
	case ns.BlockedIPs[srcIP]:
		// Source already blocked by an earlier blue action.
		resolveInstance(&ns, &events, inst, OutcomeBlocked, now)
		score(&ns, &events, now, SideBlue, 8, "attack blocked by prior ip block")
	case !inst.Correct:
		resolveInstance(&ns, &events, inst, OutcomeMiss, now)
	default:
		ns.PendingAlerts = append(append([]Alert{}, ns.PendingAlerts...),
			generateAlerts(ns.SessionID, inst, sc, elapsed, ns.Rules.AlertNoise)...)
	}

	consumeTurn(&ns, &events, sc, now, "attack_launched")
	return events, ns, nil
}

func applyRunScan(s State, cmd Command, sc *scenario.Scenario, now time.Time) ([]Event, State, error) {
	if cmd.Role != RoleRed && cmd.Role != RoleGM {
		return nil, s, ErrWrongRole
	}
	if s.Status != StatusRunning {
		return nil, s, ErrWrongStatus
	}
	if !s.BriefingDismissed {
		return nil, s, ErrBriefingPending
	}
	if cmd.Tool == "" {
		return nil, s, ErrUnknownTool
	}

	ns := s
	var events []Event
	runScan(&ns, &events, sc, now, cmd.Actor, cmd.Tool, cmd.Target, nil)
	return events, ns, nil
}

// runScan records a scan, scores the tool choice once per tool and emits
// scan_completed. Scans are deliberately not turn-gated. voteMeta, when
// non-nil, carries the vote map that triggered the scan.
func runScan(s *State, events *[]Event, sc *scenario.Scenario, now time.Time, actor string, tool scenario.ScanTool, target string, voteMeta map[string]any) {
	elapsed := s.RoundElapsed(now)
	correct := tool == sc.RequiredScanTool

	s.Seq++
	rec := ScanRecord{
		ID:      fmt.Sprintf("scan-%d", s.Seq),
		Actor:   actor,
		Tool:    tool,
		Target:  target,
		Elapsed: elapsed,
		Correct: correct,
	}
	s.Scans = append(append([]ScanRecord{}, s.Scans...), rec)

	firstUse := !s.ScannedTools[tool]
	if firstUse {
		tools := map[scenario.ScanTool]bool{}
		for k, v := range s.ScannedTools {
			tools[k] = v
		}
		tools[tool] = true
		s.ScannedTools = tools
	}

	payload := map[string]any{
		"scan_id":   rec.ID,
		"tool":      tool,
		"target":    target,
		"actor":     actor,
		"correct":   correct,
		"artifacts": sc.ScanArtifacts[tool],
	}
	for k, v := range voteMeta {
		payload[k] = v
	}
	*events = append(*events, Event{Kind: EvtScanCompleted, At: now, Payload: payload})

	if firstUse {
		switch {
		case correct:
			score(s, events, now, SideRed, 2, "correct scan tool")
		case sc.ScanLinkedToAttack(tool):
			score(s, events, now, SideRed, -1, "wrong scan tool")
		}
		// Informational scans score nothing.
	}
}

func applySubmitAction(s State, cmd Command, sc *scenario.Scenario, now time.Time) ([]Event, State, error) {
	if cmd.Role != RoleBlue && cmd.Role != RoleGM {
		return nil, s, ErrWrongRole
	}
	if s.Status == StatusFinished {
		return nil, s, ErrSessionFinished
	}
	if s.Status != StatusRunning {
		return nil, s, ErrWrongStatus
	}
	if !s.BriefingDismissed {
		return nil, s, ErrBriefingPending
	}
	if s.Turn != SideBlue {
		return nil, s, ErrWrongTurn
	}
	if s.ActedThisTurn {
		return nil, s, ErrTurnActionSpent
	}
	if !knownActions[cmd.ActionType] {
		return nil, s, ErrUnknownAction
	}
	// block_ip may target an IP literal; everything else must reference a
	// real topology node.
	if cmd.ActionType != ActionBlockIP && !sc.Topology.HasNode(cmd.Target) {
		return nil, s, ErrUnknownNode
	}
	if cmd.Target == "" {
		return nil, s, ErrUnknownNode
	}

	ns := s
	var events []Event
	elapsed := ns.RoundElapsed(now)

	ns.Seq++
	rec := ActionRecord{
		ID:      fmt.Sprintf("act-%d", ns.Seq),
		Actor:   cmd.Actor,
		Type:    cmd.ActionType,
		Target:  cmd.Target,
		Note:    cmd.Note,
		Elapsed: elapsed,
	}

	if cmd.ActionType == ActionBlockIP && !sc.Topology.HasNode(cmd.Target) {
		blocked := map[string]bool{}
		for k, v := range ns.BlockedIPs {
			blocked[k] = v
		}
		blocked[cmd.Target] = true
		ns.BlockedIPs = blocked
	}

	inst := ns.CurrentAttack()
	if inst != nil && inst.Pending() {
		// Copy the instance so the caller's state is untouched on the error
		// paths above.
		cp := *inst
		inst = &cp
		replaceInstance(&ns, inst)

		inst.BlueActionCount++
		if !inst.Detected {
			inst.Detected = true
			inst.DetectedElapsed = elapsed
		}

		rule, blocks := blockRules[cmd.ActionType]
		onTarget := cmd.Target == inst.To || cmd.Target == inst.From ||
			(cmd.ActionType == ActionBlockIP && cmd.Target == inst.SourceIP)
		typeMatch := blocks && containsType(rule.types, inst.Type)

		switch {
		case onTarget && typeMatch && elapsed < inst.ImpactElapsed:
			rec.Effectiveness = "blocked_pre_detonation"
			rec.Delta = rule.points
			resolveInstance(&ns, &events, inst, OutcomeBlocked, now)
			score(&ns, &events, now, SideBlue, rule.points, "blocked pre-detonation")
		case onTarget && typeMatch:
			inst.Contained = true
			inst.ContainedElapsed = elapsed
			resolveInstance(&ns, &events, inst, OutcomeHit, now)
			if elapsed <= inst.ImpactElapsed+inst.ContainWindow {
				rec.Effectiveness = "contained"
				rec.Delta = 5
				score(&ns, &events, now, SideBlue, 5, "contained under window")
			} else {
				rec.Effectiveness = "missed_containment_window"
				rec.Delta = -3
				score(&ns, &events, now, SideBlue, -3, "missed containment window")
			}
		default:
			rec.Effectiveness = "ineffective"
		}

		// Attribution, scored once per instance: the note naming the attack
		// family or source IP earns +2, a wrong note costs 2.
		if cmd.Note != "" && !inst.AttributionScored {
			inst.AttributionScored = true
			if attributionMatches(cmd.Note, inst) {
				score(&ns, &events, now, SideBlue, 2, "correct attribution")
			} else {
				score(&ns, &events, now, SideBlue, -2, "incorrect attribution")
			}
		}

		// Over-responding to something that never landed.
		if !inst.Pending() && inst.Outcome != OutcomeHit && inst.BlueActionCount > 3 {
			score(&ns, &events, now, SideBlue, -5, "excessive response")
		}
	} else {
		rec.Effectiveness = "no_attack_in_flight"
	}

	ns.Actions = append(append([]ActionRecord{}, ns.Actions...), rec)

	actionEvt := Event{
		Kind: EvtActionTaken,
		At:   now,
		Payload: map[string]any{
			"action_id":     rec.ID,
			"type":          rec.Type,
			"target":        rec.Target,
			"note":          rec.Note,
			"actor":         rec.Actor,
			"effectiveness": rec.Effectiveness,
			"delta":         rec.Delta,
		},
	}
	if inst != nil {
		actionEvt = correlate(ns, actionEvt, inst, now)
	}
	// action_taken leads the batch so resolution/score events read causally.
	events = append([]Event{actionEvt}, events...)

	consumeTurn(&ns, &events, sc, now, "action_taken")
	return events, ns, nil
}

func applySubmitVote(s State, cmd Command, sc *scenario.Scenario, now time.Time) ([]Event, State, error) {
	side, ok := topicSides[cmd.Topic]
	if !ok {
		return nil, s, ErrUnknownTopic
	}
	if Role(side) != cmd.Role {
		return nil, s, ErrWrongRole
	}
	if s.Status != StatusRunning {
		return nil, s, ErrWrongStatus
	}
	if !s.BriefingDismissed {
		return nil, s, ErrBriefingPending
	}
	if s.Turn != side {
		return nil, s, ErrWrongTurn
	}
	if s.ResolvedTopics[cmd.Topic] {
		return nil, s, ErrTopicResolved
	}
	if cmd.Choice == "" || cmd.Actor == "" {
		return nil, s, ErrUnknownTopic
	}

	ns := s
	votes := map[VoteTopic]map[string]string{}
	for t, m := range ns.Votes {
		inner := map[string]string{}
		for p, c := range m {
			inner[p] = c
		}
		votes[t] = inner
	}
	if votes[cmd.Topic] == nil {
		votes[cmd.Topic] = map[string]string{}
	}
	votes[cmd.Topic][cmd.Actor] = cmd.Choice // last vote per player wins
	ns.Votes = votes

	quorum := ns.Rules.VoteQuorum
	if quorum <= 0 {
		quorum = 2
	}
	winner, reached := Majority(votes[cmd.Topic])
	if len(votes[cmd.Topic]) < quorum || !reached {
		// Below quorum or no majority yet; voters observe the tally via the
		// snapshot.
		return nil, ns, nil
	}

	resolved := map[VoteTopic]bool{}
	for t, v := range ns.ResolvedTopics {
		resolved[t] = v
	}
	resolved[cmd.Topic] = true
	ns.ResolvedTopics = resolved

	var events []Event
	resolveTopic(&ns, &events, sc, now, cmd.Topic, winner, votes[cmd.Topic])
	return events, ns, nil
}

// resolveTopic emits the topic-specific resolution event and performs the
// topic's side effect.
func resolveTopic(s *State, events *[]Event, sc *scenario.Scenario, now time.Time, topic VoteTopic, winner string, tally map[string]string) {
	meta := map[string]any{
		"topic":  topic,
		"winner": winner,
		"votes":  copyTally(tally),
	}

	switch topic {
	case TopicScanTool:
		// The team decided which tool to run; run it.
		meta["via_vote"] = true
		runScan(s, events, sc, now, "team", scenario.ScanTool(winner), "", meta)

	case TopicAttack:
		correct, _ := sc.CorrectAttack()
		meta["correct"] = winner == correct.ID
		*events = append(*events, Event{Kind: EvtAttackSelected, At: now, Payload: meta})

	case TopicVulnerability:
		correct, _ := sc.CorrectAttack()
		meta["correct"] = winner == correct.ID
		*events = append(*events, Event{Kind: EvtVulnerabilityIdentified, At: now, Payload: meta})

	case TopicPivotStrategy:
		meta["correct"] = winner == sc.CorrectPivot
		*events = append(*events, Event{Kind: EvtPivotStrategySelected, At: now, Payload: meta})
		consumeTurn(s, events, sc, now, "pivot_strategy_selected")

	case TopicIP:
		inst := s.CurrentAttack()
		correct := inst != nil && winner == inst.SourceIP
		meta["correct"] = correct
		*events = append(*events, Event{Kind: EvtIPIdentified, At: now, Payload: meta})
		if inst != nil && !inst.AttributionScored {
			cp := *inst
			cp.AttributionScored = true
			if correct && !cp.Detected {
				cp.Detected = true
				cp.DetectedElapsed = s.RoundElapsed(now)
			}
			replaceInstance(s, &cp)
			if correct {
				score(s, events, now, SideBlue, 2, "correct attribution")
			} else {
				score(s, events, now, SideBlue, -2, "incorrect attribution")
			}
		}

	case TopicAction:
		*events = append(*events, Event{Kind: EvtActionIdentified, At: now, Payload: meta})

	case TopicInvestigation:
		// The investigation surfaces the scenario's forensic artifacts
		// (logs, process trees, connection tables) to the room.
		meta["artifacts"] = sc.Artifacts
		*events = append(*events, Event{Kind: EvtInvestigationCompleted, At: now, Payload: meta})
		if inst := s.CurrentAttack(); inst != nil && !inst.Detected {
			cp := *inst
			cp.Detected = true
			cp.DetectedElapsed = s.RoundElapsed(now)
			replaceInstance(s, &cp)
		}
		consumeTurn(s, events, sc, now, "investigation_completed")
	}
}

func applyTick(s State, sc *scenario.Scenario, now time.Time) ([]Event, State, error) {
	if s.Status != StatusRunning || !s.BriefingDismissed {
		return nil, s, nil
	}

	ns := s
	var events []Event
	elapsed := ns.RoundElapsed(now)

	// Release alerts whose due time has passed.
	var due, pending []Alert
	for _, a := range ns.PendingAlerts {
		if a.DueElapsed <= elapsed {
			due = append(due, a)
		} else {
			pending = append(pending, a)
		}
	}
	if len(due) > 0 {
		ns.PendingAlerts = pending
		for _, a := range due {
			evt := Event{
				Kind: EvtAlertEmitted,
				At:   now,
				Payload: map[string]any{
					"alert_id":   a.ID,
					"source":     a.Source,
					"severity":   a.Severity,
					"summary":    a.Summary,
					"details":    a.Details,
					"confidence": a.Confidence,
					"ioc":        a.IOC,
					"hint_ref":   a.HintRef,
				},
			}
			if ns.Rules.TimelineSLA && a.InstanceID != "" {
				evt.CorrelationID = a.InstanceID
			}
			events = append(events, evt)
		}
	}

	// Deal training hints as their unlock times pass.
	if ns.Mode == ModeTraining && sc != nil {
		for _, h := range sc.HintDeck {
			if h.Step > ns.HintsDealt && time.Duration(h.UnlockAt)*time.Second <= elapsed {
				ns.HintsDealt = h.Step
				events = append(events, Event{
					Kind:    EvtTrainingHint,
					At:      now,
					Payload: map[string]any{"step": h.Step, "text": h.Text},
				})
			}
		}
	}

	// A pending attack whose containment window has fully passed resolves
	// itself as an uncontained hit.
	if inst := ns.CurrentAttack(); inst != nil && inst.Pending() &&
		elapsed > inst.ImpactElapsed+inst.ContainWindow {
		cp := *inst
		replaceInstance(&ns, &cp)
		resolveInstance(&ns, &events, &cp, OutcomeHit, now)
		score(&ns, &events, now, SideBlue, -3, "missed containment window")
	}

	if elapsed >= ns.Rules.RoundLimit {
		finish(&ns, &events, sc, now, "time_limit")
		return events, ns, nil
	}

	if elapsed-ns.TurnStartedElapsed >= ns.Rules.TurnLimit {
		timeoutTurn(&ns, &events, sc, now)
		return events, ns, nil
	}

	if elapsed-ns.LastTimerEmit >= 5*time.Second {
		ns.LastTimerEmit = elapsed
		events = append(events, timerEvent(ns, now))
	}
	return events, ns, nil
}

func applyTurnTimeout(s State, sc *scenario.Scenario, now time.Time) ([]Event, State, error) {
	if s.Status != StatusRunning || !s.BriefingDismissed {
		return nil, s, ErrWrongStatus
	}
	ns := s
	var events []Event
	timeoutTurn(&ns, &events, sc, now)
	return events, ns, nil
}

func applyRoundTimeout(s State, cmd Command, sc *scenario.Scenario, now time.Time) ([]Event, State, error) {
	if s.Status != StatusRunning && s.Status != StatusPaused {
		return nil, s, ErrWrongStatus
	}
	ns := s
	var events []Event
	finish(&ns, &events, sc, now, "time_limit")
	return events, ns, nil
}

func applyGMInject(s State, cmd Command, now time.Time) ([]Event, State, error) {
	if cmd.Role != RoleGM {
		return nil, s, ErrWrongRole
	}
	if s.Status == StatusLobby {
		return nil, s, ErrWrongStatus
	}

	evt := Event{
		Kind: EvtGMInject,
		At:   now,
		Payload: map[string]any{
			"kind":   cmd.InjectKind,
			"target": cmd.Target,
			"note":   cmd.Note,
			"actor":  cmd.Actor,
		},
	}
	if cmd.Target == string(RoleRed) || cmd.Target == string(RoleBlue) {
		evt.Rooms = []Role{RoleGM, Role(cmd.Target)}
	}
	return []Event{evt}, s, nil
}

// --- shared transition helpers -------------------------------------------

// score applies a delta, floors the total at zero, appends the breakdown
// entry and emits score_update.
func score(s *State, events *[]Event, now time.Time, side Side, delta int, reason string) {
	elapsed := s.RoundElapsed(now)
	board := s.Score
	board.Breakdown = append(append([]ScoreEntry{}, board.Breakdown...),
		ScoreEntry{Elapsed: elapsed, Side: side, Delta: delta, Reason: reason})
	switch side {
	case SideRed:
		board.Red += delta
		if board.Red < 0 {
			board.Red = 0
		}
	case SideBlue:
		board.Blue += delta
		if board.Blue < 0 {
			board.Blue = 0
		}
	}
	s.Score = board

	mttd, mttc := s.Metrics()
	*events = append(*events, Event{
		Kind: EvtScoreUpdate,
		At:   now,
		Payload: map[string]any{
			"red":    board.Red,
			"blue":   board.Blue,
			"side":   side,
			"delta":  delta,
			"reason": reason,
			"mttd":   mttd,
			"mttc":   mttc,
		},
	})
}

// resolveInstance commits an outcome exactly once. Red execution points land
// here so a double resolve can never double-score.
func resolveInstance(s *State, events *[]Event, inst *AttackInstance, outcome Outcome, now time.Time) {
	if inst.Scored {
		return
	}
	inst.Outcome = outcome
	inst.Scored = true
	if s.CurrentAttackID == inst.ID {
		s.CurrentAttackID = ""
	}
	// Unreleased alerts for a blocked attack never fire.
	if outcome == OutcomeBlocked || outcome == OutcomeMiss {
		var keep []Alert
		for _, a := range s.PendingAlerts {
			if a.InstanceID != inst.ID {
				keep = append(keep, a)
			}
		}
		s.PendingAlerts = keep
	}

	*events = append(*events, correlate(*s, Event{
		Kind: EvtAttackResolved,
		At:   now,
		Payload: map[string]any{
			"instance_id": inst.ID,
			"attack_id":   inst.AttackID,
			"attack_type": inst.Type,
			"outcome":     outcome,
			"contained":   inst.Contained,
		},
	}, inst, now))

	if outcome == OutcomeHit {
		score(s, events, now, SideRed, execPoints[inst.Type], "attack hit: "+string(inst.Type))
	}
}

// consumeTurn marks the side's required action spent and advances the turn.
func consumeTurn(s *State, events *[]Event, sc *scenario.Scenario, now time.Time, reason string) {
	s.ActedThisTurn = true
	advanceTurn(s, events, sc, now, reason)
}

func timeoutTurn(s *State, events *[]Event, sc *scenario.Scenario, now time.Time) {
	expired := s.Turn
	*events = append(*events, Event{
		Kind: EvtTurnTimeout,
		At:   now,
		Payload: map[string]any{
			"expired_turn":    expired,
			"elapsed_seconds": int(s.TurnElapsed(now).Seconds()),
			"reason":          "time_limit",
		},
	})
	advanceTurn(s, events, sc, now, "turn_timeout")
}

func advanceTurn(s *State, events *[]Event, sc *scenario.Scenario, now time.Time, reason string) {
	taken := map[Side]int{}
	for k, v := range s.TurnsTaken {
		taken[k] = v
	}
	taken[s.Turn]++
	s.TurnsTaken = taken

	if max := s.Rules.MaxTurnsPerSide; max > 0 &&
		taken[SideRed] >= max && taken[SideBlue] >= max {
		finish(s, events, sc, now, "max_turns")
		return
	}

	prev := s.Turn
	s.Turn = s.Turn.Other()
	s.TurnNumber++
	s.TurnStartedElapsed = s.RoundElapsed(now)
	s.ActedThisTurn = false
	s.Votes = map[VoteTopic]map[string]string{}
	s.ResolvedTopics = map[VoteTopic]bool{}

	*events = append(*events, Event{
		Kind: EvtTurnChanged,
		At:   now,
		Payload: map[string]any{
			"turn":          s.Turn,
			"previous_turn": prev,
			"turn_number":   s.TurnNumber,
			"reason":        reason,
		},
	})
}

func finish(s *State, events *[]Event, sc *scenario.Scenario, now time.Time, reason string) {
	elapsed := s.RoundElapsed(now)

	// A still-pending attack lands unopposed at round end.
	if inst := s.CurrentAttack(); inst != nil && inst.Pending() {
		cp := *inst
		replaceInstance(s, &cp)
		resolveInstance(s, events, &cp, OutcomeHit, now)
		if elapsed > cp.ImpactElapsed+cp.ContainWindow {
			score(s, events, now, SideBlue, -3, "missed containment window")
		}
	}

	s.Status = StatusFinished
	s.PendingAlerts = nil
	s.Votes = map[VoteTopic]map[string]string{}
	s.ResolvedTopics = map[VoteTopic]bool{}

	mttd, mttc := s.Metrics()
	*events = append(*events,
		Event{
			Kind: EvtRoundEnded,
			At:   now,
			Payload: map[string]any{
				"reason":          reason,
				"elapsed_seconds": int(elapsed.Seconds()),
				"red":             s.Score.Red,
				"blue":            s.Score.Blue,
				"mttd":            mttd,
				"mttc":            mttc,
			},
		},
		timerEvent(*s, now),
	)
}

func timerEvent(s State, now time.Time) Event {
	elapsed := s.RoundElapsed(now)
	roundRemaining := s.Rules.RoundLimit - elapsed
	if roundRemaining < 0 || s.Status == StatusFinished {
		roundRemaining = 0
	}
	turnRemaining := s.Rules.TurnLimit - (elapsed - s.TurnStartedElapsed)
	if turnRemaining < 0 || s.Status == StatusFinished {
		turnRemaining = 0
	}
	return Event{
		Kind: EvtTimerUpdate,
		At:   now,
		Payload: map[string]any{
			"status":         s.Status,
			"elapsed":        int(elapsed.Seconds()),
			"limit":          int(s.Rules.RoundLimit.Seconds()),
			"remaining":      int(roundRemaining.Seconds()),
			"turn":           s.Turn,
			"turn_remaining": int(turnRemaining.Seconds()),
		},
	}
}

// correlate stamps causality fields when the timeline/SLA feature is on.
func correlate(s State, e Event, inst *AttackInstance, now time.Time) Event {
	if !s.Rules.TimelineSLA || inst == nil {
		return e
	}
	e.CorrelationID = inst.ID
	if inst.Pending() && !s.StartedAt.IsZero() {
		d := s.StartedAt.Add(inst.ImpactElapsed + inst.ContainWindow)
		e.Deadline = &d
	}
	return e
}

// replaceInstance swaps in a copied instance so error paths never observe
// partial mutation of the caller's state.
func replaceInstance(s *State, inst *AttackInstance) {
	list := make([]*AttackInstance, len(s.Attacks))
	copy(list, s.Attacks)
	for i, a := range list {
		if a.ID == inst.ID {
			list[i] = inst
			break
		}
	}
	s.Attacks = list
}

func copyTally(t map[string]string) map[string]string {
	out := map[string]string{}
	for k, v := range t {
		out[k] = v
	}
	return out
}
