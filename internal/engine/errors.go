package engine

import (
	"errors"
	"fmt"
)

// Error groups. Every rejection wraps exactly one of these so transport code
// can classify without knowing individual rules.
var (
	ErrRuleViolation = errors.New("rule violation")
	ErrValidation    = errors.New("validation error")
	ErrConflict      = errors.New("concurrency conflict")
)

// Rule violations: legal-looking commands that are illegal for the current
// status/turn. Rejected with no events.
var (
	ErrWrongTurn          = fmt.Errorf("%w: not your turn", ErrRuleViolation)
	ErrWrongStatus        = fmt.Errorf("%w: not allowed in current status", ErrRuleViolation)
	ErrWrongRole          = fmt.Errorf("%w: role may not issue this command", ErrRuleViolation)
	ErrBriefingPending    = fmt.Errorf("%w: briefing not yet dismissed", ErrRuleViolation)
	ErrBriefingDismissed  = fmt.Errorf("%w: briefing already dismissed", ErrRuleViolation)
	ErrTurnActionSpent    = fmt.Errorf("%w: turn action already used", ErrRuleViolation)
	ErrAttackInFlight     = fmt.Errorf("%w: an attack is already in flight", ErrRuleViolation)
	ErrScanRequired       = fmt.Errorf("%w: attack requires a prior scan with the right tool", ErrRuleViolation)
	ErrSessionFinished    = fmt.Errorf("%w: session already finished", ErrRuleViolation)
	ErrUnsupportedCommand = fmt.Errorf("%w: unsupported command", ErrRuleViolation)
)

// Validation errors: malformed references, rejected before touching state.
var (
	ErrUnknownScenario = fmt.Errorf("%w: unknown scenario", ErrValidation)
	ErrUnknownAttack   = fmt.Errorf("%w: unknown attack", ErrValidation)
	ErrUnknownNode     = fmt.Errorf("%w: target is not a node in the topology", ErrValidation)
	ErrUnknownTool     = fmt.Errorf("%w: unknown scan tool", ErrValidation)
	ErrUnknownTopic    = fmt.Errorf("%w: unknown vote topic", ErrValidation)
	ErrUnknownAction   = fmt.Errorf("%w: unknown action type", ErrValidation)
)

// Conflicts: the referenced decision already resolved; caller should refresh.
var (
	ErrTopicResolved = fmt.Errorf("%w: vote topic already resolved", ErrConflict)
)

func IsRuleViolation(err error) bool { return errors.Is(err, ErrRuleViolation) }
func IsValidation(err error) bool    { return errors.Is(err, ErrValidation) }
func IsConflict(err error) bool      { return errors.Is(err, ErrConflict) }
