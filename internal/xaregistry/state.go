package xaregistry

// State is a registry entry's position in the XA branch lifecycle.
type State string

const (
	StateActive    State = "ACTIVE"
	StateSuspended State = "SUSPENDED"
	StateIdle      State = "IDLE"
	StatePrepared  State = "PREPARED"
	StateCompleted State = "COMPLETED"
)

type event int

const (
	eventEndSuccessFail event = iota
	eventEndSuspend
	eventStartJoinResume
	eventPrepare
	eventCommitRollback
)

// transitions is the explicit XA branch state-transition table.
// RegisterExistingSession (the absent → ACTIVE edge on TMNOFLAGS) is
// handled directly by Registry since it also creates the entry; every
// other edge is looked up here, with a missing (state, event) pair
// failing the operation with XAER_PROTO.
var transitions = map[State]map[event]State{
	StateActive: {
		eventEndSuccessFail: StateIdle,
		eventEndSuspend:     StateSuspended,
	},
	StateSuspended: {
		eventStartJoinResume: StateActive,
	},
	StateIdle: {
		eventStartJoinResume: StateActive,
		eventPrepare:         StatePrepared,
		eventCommitRollback:  StateCompleted,
	},
	StatePrepared: {
		eventCommitRollback: StateCompleted,
	},
}

func next(from State, e event) (State, bool) {
	byEvent, ok := transitions[from]
	if !ok {
		return "", false
	}
	to, ok := byEvent[e]
	return to, ok
}

// XA flag constants, matching the javax.transaction.xa.XAResource values
// this protocol is modeled on, so a client's raw flag integers need no
// translation at the dispatcher boundary.
const (
	TMNOFLAGS    int32 = 0x00000000
	TMJOIN       int32 = 0x00200000
	TMRESUME     int32 = 0x08000000
	TMSUCCESS    int32 = 0x04000000
	TMFAIL       int32 = 0x20000000
	TMSUSPEND    int32 = 0x02000000
	TMONEPHASE   int32 = 0x40000000
	TMSTARTRSCAN int32 = 0x01000000
	TMENDRSCAN   int32 = 0x00800000
)
