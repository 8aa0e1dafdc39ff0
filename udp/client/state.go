package client

import "strconv"

// State is the phase of a blocking request.
type State int32

const (
	Idle State = iota
	Requesting
	AwaitingResponse
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Requesting:
		return "Requesting"
	case AwaitingResponse:
		return "AwaitingResponse"
	case Done:
		return "Done"
	case Failed:
		return "Failed"
	}
	return "State(" + strconv.Itoa(int(s)) + ")"
}
