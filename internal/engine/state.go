package engine

import (
	"time"

	"github.com/pewpew-tabletop/range-backend/internal/scenario"
)

type Side string

const (
	SideRed  Side = "red"
	SideBlue Side = "blue"
)

func (s Side) Other() Side {
	if s == SideRed {
		return SideBlue
	}
	return SideRed
}

type Role string

const (
	RoleGM       Role = "gm"
	RoleRed      Role = "red"
	RoleBlue     Role = "blue"
	RoleAudience Role = "audience"
)

type Status string

const (
	StatusLobby    Status = "lobby"
	StatusRunning  Status = "running"
	StatusPaused   Status = "paused"
	StatusFinished Status = "finished"
)

type Mode string

const (
	ModeStandard Mode = "standard"
	ModeTraining Mode = "training"
)

type Outcome string

const (
	OutcomePending Outcome = "pending"
	OutcomeHit     Outcome = "hit"
	OutcomeBlocked Outcome = "blocked"
	OutcomeMiss    Outcome = "miss"
)

type ActionType string

const (
	ActionIsolateHost    ActionType = "isolate_host"
	ActionBlockIP        ActionType = "block_ip"
	ActionUpdateWAF      ActionType = "update_waf"
	ActionBlockDomain    ActionType = "block_domain"
	ActionDisableAccount ActionType = "disable_account"
	ActionInvestigate    ActionType = "investigate"
)

// Rules are the per-session pacing and feature knobs. Time dilation is applied
// by the caller when scheduling ticks; nothing here changes scoring.
type Rules struct {
	TurnLimit     time.Duration
	RoundLimit    time.Duration
	ImpactDelay   time.Duration
	ContainWindow time.Duration

	// VoteQuorum is the minimum number of distinct voters before a majority
	// can resolve a topic. A lone voter never decides for the team.
	VoteQuorum int

	AlertNoise      bool
	TimelineSLA     bool
	MaxTurnsPerSide int
}

func DefaultRules() Rules {
	return Rules{
		TurnLimit:     5 * time.Minute,
		RoundLimit:    30 * time.Minute,
		ImpactDelay:   30 * time.Second,
		ContainWindow: 5 * time.Minute,
		VoteQuorum:    2,
		AlertNoise:    true,
	}
}

// AttackInstance is one launched attack. At most one may be pending at a
// time; resolution is idempotent via Scored.
type AttackInstance struct {
	ID       string              `json:"id"`
	AttackID string              `json:"attack_id"`
	Type     scenario.AttackType `json:"attack_type"`
	From     string              `json:"from"`
	To       string              `json:"to"`
	SourceIP string              `json:"source_ip"`

	LaunchedElapsed time.Duration `json:"launched_elapsed"`
	ImpactElapsed   time.Duration `json:"impact_elapsed"`
	// ContainWindow is this instance's containment budget, fixed at launch
	// from the attack's SLA or the session default.
	ContainWindow time.Duration `json:"contain_window"`

	Detected         bool          `json:"detected"`
	DetectedElapsed  time.Duration `json:"detected_elapsed,omitempty"`
	Contained        bool          `json:"contained"`
	ContainedElapsed time.Duration `json:"contained_elapsed,omitempty"`

	Outcome Outcome `json:"outcome"`
	Correct bool    `json:"correct"`
	Scored  bool    `json:"scored"`

	AttributionScored bool `json:"attribution_scored"`
	BlueActionCount   int  `json:"blue_action_count"`
}

// Pending reports whether the instance still awaits resolution.
func (a *AttackInstance) Pending() bool { return a.Outcome == OutcomePending }

// ActionRecord is an immutable blue response, recorded exactly once.
type ActionRecord struct {
	ID      string        `json:"id"`
	Actor   string        `json:"actor"`
	Type    ActionType    `json:"type"`
	Target  string        `json:"target"`
	Note    string        `json:"note,omitempty"`
	Elapsed time.Duration `json:"elapsed"`

	Effectiveness string `json:"effectiveness"`
	Delta         int    `json:"delta"`
}

type ScanRecord struct {
	ID      string            `json:"id"`
	Actor   string            `json:"actor"`
	Tool    scenario.ScanTool `json:"tool"`
	Target  string            `json:"target,omitempty"`
	Elapsed time.Duration     `json:"elapsed"`
	Correct bool              `json:"correct"`
}

type ScoreEntry struct {
	Elapsed time.Duration `json:"elapsed"`
	Side    Side          `json:"side"`
	Delta   int           `json:"delta"`
	Reason  string        `json:"reason"`
}

// Scoreboard holds running totals plus the append-only breakdown. Totals are
// floored at zero; the breakdown keeps raw deltas.
type Scoreboard struct {
	Red       int          `json:"red"`
	Blue      int          `json:"blue"`
	Breakdown []ScoreEntry `json:"breakdown"`
}

// Alert is a generated detection artifact waiting to be released to the blue
// room once the round clock passes DueElapsed.
type Alert struct {
	ID         string            `json:"id"`
	Source     string            `json:"source"`
	Severity   string            `json:"severity"`
	Summary    string            `json:"summary"`
	Details    string            `json:"details,omitempty"`
	Confidence float64           `json:"confidence"`
	IOC        map[string]string `json:"ioc,omitempty"`
	HintRef    string            `json:"hint_ref,omitempty"`
	Noise      bool              `json:"noise,omitempty"`
	DueElapsed time.Duration     `json:"due_elapsed"`
	InstanceID string            `json:"instance_id,omitempty"`
}

type VoteTopic string

const (
	TopicScanTool      VoteTopic = "scan_tool"
	TopicVulnerability VoteTopic = "vulnerability"
	TopicIP            VoteTopic = "ip"
	TopicAction        VoteTopic = "action"
	TopicInvestigation VoteTopic = "investigation"
	TopicPivotStrategy VoteTopic = "pivot_strategy"
	TopicAttack        VoteTopic = "attack"
)

// State is the full authoritative session game state. It is only ever
// mutated inside Apply, one command at a time.
type State struct {
	SessionID  string
	ScenarioID string
	Status     Status
	Mode       Mode
	Round      int
	Rules      Rules

	Turn              Side
	TurnNumber        int
	TurnsTaken        map[Side]int
	ActedThisTurn     bool
	BriefingDismissed bool

	// StartedAt is the wall-clock anchor set when the briefing is dismissed.
	// All in-round timing is expressed as durations since round start, so a
	// pause only has to freeze one number.
	StartedAt          time.Time
	ElapsedAtPause     time.Duration
	TurnStartedElapsed time.Duration
	LastTimerEmit      time.Duration

	Attacks         []*AttackInstance
	CurrentAttackID string
	PendingAlerts   []Alert

	Scans        []ScanRecord
	ScannedTools map[scenario.ScanTool]bool

	Actions    []ActionRecord
	BlockedIPs map[string]bool

	Votes          map[VoteTopic]map[string]string
	ResolvedTopics map[VoteTopic]bool

	Score      Scoreboard
	HintsDealt int

	// Seq is the id counter for instances/actions/scans.
	Seq int
}

func NewState(sessionID string, rules Rules) State {
	return State{
		SessionID:      sessionID,
		Status:         StatusLobby,
		Mode:           ModeStandard,
		Rules:          rules,
		TurnsTaken:     map[Side]int{SideRed: 0, SideBlue: 0},
		ScannedTools:   map[scenario.ScanTool]bool{},
		BlockedIPs:     map[string]bool{},
		Votes:          map[VoteTopic]map[string]string{},
		ResolvedTopics: map[VoteTopic]bool{},
	}
}

// RoundElapsed returns time since round start, frozen while paused and zero
// before the briefing is dismissed.
func (s State) RoundElapsed(now time.Time) time.Duration {
	if !s.BriefingDismissed || s.StartedAt.IsZero() {
		return 0
	}
	if s.Status == StatusPaused {
		return s.ElapsedAtPause
	}
	return now.Sub(s.StartedAt)
}

// TurnElapsed returns time since the current turn began.
func (s State) TurnElapsed(now time.Time) time.Duration {
	return s.RoundElapsed(now) - s.TurnStartedElapsed
}

// CurrentAttack returns the in-flight instance, or nil.
func (s State) CurrentAttack() *AttackInstance {
	if s.CurrentAttackID == "" {
		return nil
	}
	for _, a := range s.Attacks {
		if a.ID == s.CurrentAttackID {
			return a
		}
	}
	return nil
}

// Metrics derives MTTD/MTTC in seconds over resolved instances.
func (s State) Metrics() (mttd, mttc float64) {
	var dSum, cSum float64
	var dN, cN int
	for _, a := range s.Attacks {
		if a.Detected {
			dSum += (a.DetectedElapsed - a.LaunchedElapsed).Seconds()
			dN++
		}
		if a.Contained {
			cSum += (a.ContainedElapsed - a.LaunchedElapsed).Seconds()
			cN++
		}
	}
	if dN > 0 {
		mttd = dSum / float64(dN)
	}
	if cN > 0 {
		mttc = cSum / float64(cN)
	}
	return mttd, mttc
}
