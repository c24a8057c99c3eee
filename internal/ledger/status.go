package ledger

import "fmt"

type Status uint8

const (
	StatusReady Status = iota + 1
	StatusBroadcast
	StatusInBlock
	StatusRetracted
	StatusFinalized
	StatusInvalid
	StatusDropped
	StatusUsurped
)

var statusNames = map[Status]string{
	StatusReady:     "ready",
	StatusBroadcast: "broadcast",
	StatusInBlock:   "in_block",
	StatusRetracted: "retracted",
	StatusFinalized: "finalized",
	StatusInvalid:   "invalid",
	StatusDropped:   "dropped",
	StatusUsurped:   "usurped",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// Terminal reports whether no further status can follow s.
func (s Status) Terminal() bool {
	switch s {
	case StatusFinalized, StatusInvalid, StatusDropped, StatusUsurped:
		return true
	default:
		return false
	}
}

// StatusUpdate is one event on a submission's status stream.
type StatusUpdate struct {
	Status Status
	TxHash string
	// BlockHash is set for InBlock and Finalized.
	BlockHash   string
	BlockNumber uint64
}
