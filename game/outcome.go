package game

import "fmt"

type OutcomeKind uint8

const (
	OutcomeWin OutcomeKind = iota + 1
	OutcomeTie
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeWin:
		return "win"
	case OutcomeTie:
		return "tie"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", uint8(k))
	}
}

// Reason records what ended a match.
type Reason string

const (
	ReasonLine         Reason = "line"
	ReasonBoardFull    Reason = "board_full"
	ReasonGiveUp       Reason = "give_up"
	ReasonTurnTimeout  Reason = "turn_timeout"
	ReasonMatchTimeout Reason = "match_timeout"
	ReasonTimeoutClaim Reason = "timeout_claim"
)

// Outcome is produced once per match. Winner is empty for a tie.
// Defaulter is set when the match ended through forfeiture.
type Outcome struct {
	Kind      OutcomeKind `json:"kind"`
	Winner    string      `json:"winner,omitempty"`
	Defaulter string      `json:"defaulter,omitempty"`
	Reason    Reason      `json:"reason"`
}

func Win(winner string, reason Reason) Outcome {
	return Outcome{Kind: OutcomeWin, Winner: winner, Reason: reason}
}

func Tie() Outcome {
	return Outcome{Kind: OutcomeTie, Reason: ReasonBoardFull}
}

func (o Outcome) String() string {
	if o.Kind == OutcomeWin {
		return fmt.Sprintf("win(%s, %s)", o.Winner, o.Reason)
	}
	return fmt.Sprintf("%s(%s)", o.Kind, o.Reason)
}

// TurnResult is returned by every accepted move.
type TurnResult struct {
	Ended   bool     `json:"ended"`
	Outcome *Outcome `json:"outcome,omitempty"`
}
