package types

import (
	"github.com/pewpew-tabletop/range-backend/internal/engine"
	"github.com/pewpew-tabletop/range-backend/internal/scenario"
)

// ScenarioView is the scenario as one room is allowed to see it. The full
// scenario carries answers (which attack is correct, the hint deck), so the
// raw struct never crosses the wire for players.
type ScenarioView struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Topology    scenario.Topology `json:"topology"`

	Briefing *scenario.Briefing `json:"briefing,omitempty"`

	// Blue room context: the environment's defensive posture at round start.
	InitialPosture map[string]string `json:"initial_posture,omitempty"`

	// Red room decision surface.
	Attacks      []AttackOption `json:"attacks,omitempty"`
	ScanTools    []string       `json:"scan_tools,omitempty"`
	PivotOptions []string       `json:"pivot_options,omitempty"`

	// GM extras.
	CorrectAttackID string             `json:"correct_attack_id,omitempty"`
	CorrectPivot    string             `json:"correct_pivot,omitempty"`
	Hints           []scenario.Hint    `json:"hints,omitempty"`
	BlueBriefing    *scenario.Briefing `json:"blue_briefing,omitempty"`
}

// AttackOption is an attack deck entry with the answer key stripped.
type AttackOption struct {
	ID            string              `json:"id"`
	Type          scenario.AttackType `json:"attack_type"`
	From          string              `json:"from"`
	To            string              `json:"to"`
	Preconditions []string            `json:"preconditions,omitempty"`
	RequiresScan  bool                `json:"requires_scan"`
}

// NewScenarioView redacts a scenario for the given room.
func NewScenarioView(sc *scenario.Scenario, role engine.Role) *ScenarioView {
	if sc == nil {
		return nil
	}
	v := &ScenarioView{
		ID:          sc.ID,
		Name:        sc.Name,
		Description: sc.Description,
		Topology:    sc.Topology,
	}

	switch role {
	case engine.RoleRed:
		v.Briefing = sc.RedBriefing
	case engine.RoleBlue:
		v.Briefing = sc.BlueBriefing
	case engine.RoleGM:
		v.Briefing = sc.RedBriefing
		v.BlueBriefing = sc.BlueBriefing
	}

	if role == engine.RoleBlue || role == engine.RoleGM {
		v.InitialPosture = sc.InitialPosture
	}

	if role == engine.RoleRed || role == engine.RoleGM {
		for _, a := range sc.Attacks {
			v.Attacks = append(v.Attacks, AttackOption{
				ID:            a.ID,
				Type:          a.Type,
				From:          a.From,
				To:            a.To,
				Preconditions: a.Preconditions,
				RequiresScan:  a.RequiresScan,
			})
		}
		for tool := range sc.ScanArtifacts {
			v.ScanTools = append(v.ScanTools, string(tool))
		}
		v.PivotOptions = sc.PivotOptions
	}

	if role == engine.RoleGM {
		if correct, ok := sc.CorrectAttack(); ok {
			v.CorrectAttackID = correct.ID
		}
		v.CorrectPivot = sc.CorrectPivot
		v.Hints = sc.HintDeck
	}
	return v
}

// StateView is the session state as one room may see it. Redactions: the
// unreleased alert queue and per-instance answer flags stay with the GM,
// vote tallies stay inside their own side.
type StateView struct {
	SessionID  string        `json:"session_id"`
	ScenarioID string        `json:"scenario_id,omitempty"`
	Status     engine.Status `json:"status"`
	Mode       engine.Mode   `json:"mode"`
	Round      int           `json:"round"`

	Turn              engine.Side         `json:"turn"`
	TurnNumber        int                 `json:"turn_number"`
	TurnsTaken        map[engine.Side]int `json:"turns_taken,omitempty"`
	BriefingDismissed bool                `json:"briefing_dismissed"`

	Score engine.Scoreboard `json:"score"`

	Attacks []InstanceView        `json:"attacks,omitempty"`
	Scans   []engine.ScanRecord   `json:"scans,omitempty"`
	Actions []engine.ActionRecord `json:"actions,omitempty"`

	BlockedIPs []string `json:"blocked_ips,omitempty"`

	Votes          map[engine.VoteTopic]map[string]string `json:"votes,omitempty"`
	ResolvedTopics map[engine.VoteTopic]bool              `json:"resolved_topics,omitempty"`

	// GM only: alerts generated but not yet released.
	QueuedAlerts int `json:"queued_alerts,omitempty"`

	HintsDealt int `json:"hints_dealt,omitempty"`
}

// InstanceView is an attack instance with the correctness flag held back
// from players until resolution makes it public anyway.
type InstanceView struct {
	ID       string              `json:"id"`
	AttackID string              `json:"attack_id,omitempty"`
	Type     scenario.AttackType `json:"attack_type,omitempty"`
	From     string              `json:"from,omitempty"`
	To       string              `json:"to,omitempty"`
	SourceIP string              `json:"source_ip,omitempty"`

	Outcome   engine.Outcome `json:"outcome"`
	Detected  bool           `json:"detected"`
	Contained bool           `json:"contained"`
	Correct   *bool          `json:"correct,omitempty"`
}

var topicSideView = map[engine.VoteTopic]engine.Role{
	engine.TopicScanTool:      engine.RoleRed,
	engine.TopicVulnerability: engine.RoleRed,
	engine.TopicPivotStrategy: engine.RoleRed,
	engine.TopicAttack:        engine.RoleRed,
	engine.TopicIP:            engine.RoleBlue,
	engine.TopicAction:        engine.RoleBlue,
	engine.TopicInvestigation: engine.RoleBlue,
}

// NewStateView redacts live state for the given room.
func NewStateView(s engine.State, role engine.Role) *StateView {
	v := &StateView{
		SessionID:         s.SessionID,
		ScenarioID:        s.ScenarioID,
		Status:            s.Status,
		Mode:              s.Mode,
		Round:             s.Round,
		Turn:              s.Turn,
		TurnNumber:        s.TurnNumber,
		TurnsTaken:        s.TurnsTaken,
		BriefingDismissed: s.BriefingDismissed,
		Score:             s.Score,
		HintsDealt:        s.HintsDealt,
	}

	for _, a := range s.Attacks {
		iv := InstanceView{
			ID:        a.ID,
			Outcome:   a.Outcome,
			Detected:  a.Detected,
			Contained: a.Contained,
		}
		// Blue sees what its alerts and resolutions revealed, not the
		// red decision surface of a still-pending instance.
		if role != engine.RoleBlue || a.Detected || !a.Pending() {
			iv.AttackID = a.AttackID
			iv.Type = a.Type
			iv.From = a.From
			iv.To = a.To
			iv.SourceIP = a.SourceIP
		}
		if role == engine.RoleGM {
			correct := a.Correct
			iv.Correct = &correct
		}
		v.Attacks = append(v.Attacks, iv)
	}

	if role == engine.RoleRed || role == engine.RoleGM {
		v.Scans = s.Scans
	}
	if role == engine.RoleBlue || role == engine.RoleGM {
		v.Actions = s.Actions
		for ip := range s.BlockedIPs {
			v.BlockedIPs = append(v.BlockedIPs, ip)
		}
	}
	if role == engine.RoleGM {
		v.QueuedAlerts = len(s.PendingAlerts)
	}

	if role == engine.RoleGM || role == engine.RoleRed || role == engine.RoleBlue {
		votes := make(map[engine.VoteTopic]map[string]string)
		resolved := make(map[engine.VoteTopic]bool)
		for topic, tally := range s.Votes {
			if role == engine.RoleGM || topicSideView[topic] == role {
				votes[topic] = tally
			}
		}
		for topic, done := range s.ResolvedTopics {
			if role == engine.RoleGM || topicSideView[topic] == role {
				resolved[topic] = done
			}
		}
		if len(votes) > 0 {
			v.Votes = votes
		}
		if len(resolved) > 0 {
			v.ResolvedTopics = resolved
		}
	}
	return v
}
