package engine

import "github.com/pewpew-tabletop/range-backend/internal/scenario"

type CommandType string

const (
	CmdStart           CommandType = "Start"
	CmdDismissBriefing CommandType = "DismissBriefing"
	CmdPause           CommandType = "Pause"
	CmdResume          CommandType = "Resume"
	CmdReset           CommandType = "Reset"
	CmdStop            CommandType = "Stop"
	CmdLaunchAttack    CommandType = "LaunchAttack"
	CmdRunScan         CommandType = "RunScan"
	CmdSubmitAction    CommandType = "SubmitAction"
	CmdSubmitVote      CommandType = "SubmitVote"
	CmdTick            CommandType = "Tick"
	CmdTurnTimeout     CommandType = "TurnTimeout"
	CmdRoundTimeout    CommandType = "RoundTimeout"
	CmdGMInject        CommandType = "GMInject"
)

// Command carries every field any command type can use; unused fields stay
// zero. Role is the issuer's room, checked against per-command rules.
type Command struct {
	Type  CommandType
	Actor string
	Role  Role

	ScenarioID string
	Mode       Mode

	AttackID string
	From     string
	To       string
	SourceIP string

	Tool   scenario.ScanTool
	Target string

	ActionType ActionType
	Note       string

	Topic  VoteTopic
	Choice string

	InjectKind string
}
