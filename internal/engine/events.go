package engine

import "time"

// EventKind is the closed set of emitted kinds. One canonical spelling each;
// anything not listed here never leaves the engine.
type EventKind string

const (
	EvtRoundStarted            EventKind = "round_started"
	EvtRoundEnded              EventKind = "round_ended"
	EvtAttackLaunched          EventKind = "attack_launched"
	EvtAttackResolved          EventKind = "attack_resolved"
	EvtAlertEmitted            EventKind = "alert_emitted"
	EvtActionTaken             EventKind = "action_taken"
	EvtScoreUpdate             EventKind = "score_update"
	EvtTrainingHint            EventKind = "training_hint"
	EvtTimerUpdate             EventKind = "timer_update"
	EvtTurnChanged             EventKind = "turn_changed"
	EvtTurnTimeout             EventKind = "turn_timeout"
	EvtScanCompleted           EventKind = "scan_completed"
	EvtVulnerabilityIdentified EventKind = "vulnerability_identified"
	EvtIPIdentified            EventKind = "ip_identified"
	EvtActionIdentified        EventKind = "action_identified"
	EvtInvestigationCompleted  EventKind = "investigation_completed"
	EvtPivotStrategySelected   EventKind = "pivot_strategy_selected"
	EvtAttackSelected          EventKind = "attack_selected"
	EvtGMInject                EventKind = "gm_inject"
	EvtChatMessage             EventKind = "chat_message"
	EvtActivity                EventKind = "activity_event"
	EvtPresenceUpdate          EventKind = "presence_update"
)

// Event is immutable once appended to the log. Seq is assigned by the log,
// not the engine.
type Event struct {
	Seq     int64          `json:"seq"`
	Kind    EventKind      `json:"kind"`
	At      time.Time      `json:"at"`
	Payload map[string]any `json:"payload,omitempty"`

	// Causality fields, populated when the timeline/SLA feature is on.
	CorrelationID string     `json:"correlation_id,omitempty"`
	Deadline      *time.Time `json:"deadline,omitempty"`

	// Rooms overrides the per-kind visibility when set (chat, targeted
	// injects). nil means "use Visibility(Kind)".
	Rooms []Role `json:"rooms,omitempty"`
}

var allRooms = []Role{RoleGM, RoleRed, RoleBlue, RoleAudience}

// visibility maps each kind to the fixed set of rooms that may see it.
// Alerts and blue decision events never reach the red room; red recon and
// red decision events never reach the blue room.
var visibility = map[EventKind][]Role{
	EvtRoundStarted:            allRooms,
	EvtRoundEnded:              allRooms,
	EvtAttackLaunched:          {RoleGM, RoleRed, RoleAudience},
	EvtAttackResolved:          allRooms,
	EvtAlertEmitted:            {RoleGM, RoleBlue, RoleAudience},
	EvtActionTaken:             {RoleGM, RoleBlue, RoleAudience},
	EvtScoreUpdate:             allRooms,
	EvtTrainingHint:            {RoleGM, RoleBlue},
	EvtTimerUpdate:             allRooms,
	EvtTurnChanged:             allRooms,
	EvtTurnTimeout:             allRooms,
	EvtScanCompleted:           {RoleGM, RoleRed, RoleAudience},
	EvtVulnerabilityIdentified: {RoleGM, RoleRed, RoleAudience},
	EvtIPIdentified:            {RoleGM, RoleBlue, RoleAudience},
	EvtActionIdentified:        {RoleGM, RoleBlue, RoleAudience},
	EvtInvestigationCompleted:  {RoleGM, RoleBlue, RoleAudience},
	EvtPivotStrategySelected:   {RoleGM, RoleRed, RoleAudience},
	EvtAttackSelected:          {RoleGM, RoleRed, RoleAudience},
	EvtGMInject:                allRooms,
	EvtChatMessage:             allRooms,
	EvtActivity:                allRooms,
	EvtPresenceUpdate:          allRooms,
}

// Visibility returns the rooms an event reaches, honoring a per-event
// override first.
func Visibility(e Event) []Role {
	if len(e.Rooms) > 0 {
		return e.Rooms
	}
	if rooms, ok := visibility[e.Kind]; ok {
		return rooms
	}
	return nil
}

// VisibleTo reports whether an event may be delivered to the given room.
func VisibleTo(e Event, room Role) bool {
	for _, r := range Visibility(e) {
		if r == room {
			return true
		}
	}
	return false
}

func ContainsEvent(events []Event, kind EventKind) bool {
	for _, e := range events {
		if e.Kind == kind {
			return true
		}
	}
	return false
}
