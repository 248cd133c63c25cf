package proc

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/dzeckelev/gift-ledger/gen"
)

// ErrIllegalTransition is returned by the reducer for events the current
// state does not accept.
var ErrIllegalTransition = errors.New("illegal state transition")

// State is a submission state.
type State int

// Submission states.
const (
	Idle State = iota
	CheckingAllowance
	AwaitingApproval
	AwaitingAction
	Confirmed
	Cancelled
	Failed
)

var stateNames = [...]string{
	Idle:              "idle",
	CheckingAllowance: "checking_allowance",
	AwaitingApproval:  "awaiting_approval",
	AwaitingAction:    "awaiting_action",
	Confirmed:         "confirmed",
	Cancelled:         "cancelled",
	Failed:            "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Final reports whether no further transition is possible.
func (s State) Final() bool {
	return s == Confirmed || s == Cancelled || s == Failed
}

// ErrorClass classifies a failed submission.
type ErrorClass int

// Error classes.
const (
	None ErrorClass = iota
	UserCancelled
	InsufficientAllowanceAfterApproval
	LedgerRevert
	NetworkError
)

var classNames = [...]string{
	None:                               "none",
	UserCancelled:                      "user_cancelled",
	InsufficientAllowanceAfterApproval: "insufficient_allowance_after_approval",
	LedgerRevert:                       "ledger_revert",
	NetworkError:                       "network_error",
}

func (c ErrorClass) String() string {
	if c < 0 || int(c) >= len(classNames) {
		return "unknown"
	}
	return classNames[c]
}

// Submission kinds.
const (
	KindSendGift    = "sendGift"
	KindRedeem      = "redeemGift"
	KindAddFavorite = "addFavorite"
)

// PendingTransaction tracks one user initiated submission. A new value is
// created for every attempt.
type PendingTransaction struct {
	ID        string
	Kind      string
	State     State
	Class     ErrorClass
	Error     string
	Recipient common.Address
	Amount    *big.Int

	// PredictedRecordID is count+1 read before the first write. It stays
	// Provisional until the confirmed record is found.
	PredictedRecordID uint64
	RecordID          uint64
	Provisional       bool

	ApprovalTx common.Hash
	ActionTx   common.Hash

	Created time.Time
	Updated time.Time
}

func newPending(kind string) *PendingTransaction {
	now := time.Now()
	return &PendingTransaction{
		ID:      gen.NewID(kind),
		Kind:    kind,
		State:   Idle,
		Created: now,
		Updated: now,
	}
}

// ShareID returns the best known record id and whether it is final.
func (p *PendingTransaction) ShareID() (uint64, bool) {
	if p.RecordID != 0 {
		return p.RecordID, true
	}
	return p.PredictedRecordID, false
}

type eventKind int

const (
	evStart eventKind = iota
	evSubmit
	evNeedApproval
	evSufficient
	evApproved
	evConfirmed
	evReconciled
	evCancel
	evFail
)

type event struct {
	kind      eventKind
	predicted uint64
	recordID  uint64
	approval  common.Hash
	tx        common.Hash
	class     ErrorClass
	err       error
}

type transition struct {
	from State
	kind eventKind
}

var transitions = map[transition]State{
	{Idle, evStart}:                     CheckingAllowance,
	{Idle, evSubmit}:                    AwaitingAction,
	{CheckingAllowance, evNeedApproval}: AwaitingApproval,
	{CheckingAllowance, evSufficient}:   AwaitingAction,
	{CheckingAllowance, evCancel}:       Cancelled,
	{CheckingAllowance, evFail}:         Failed,
	{AwaitingApproval, evApproved}:      AwaitingAction,
	{AwaitingApproval, evFail}:          Failed,
	{AwaitingAction, evConfirmed}:       Confirmed,
	{AwaitingAction, evFail}:            Failed,
	{Confirmed, evReconciled}:           Confirmed,
}

// apply is the only place a PendingTransaction changes.
func (p *PendingTransaction) apply(ev event) error {
	next, ok := transitions[transition{p.State, ev.kind}]
	if !ok {
		return errors.Wrapf(ErrIllegalTransition, "%s on event %d",
			p.State, ev.kind)
	}

	switch ev.kind {
	case evNeedApproval, evSufficient:
		p.PredictedRecordID = ev.predicted
		p.Provisional = ev.predicted != 0
	case evApproved:
		p.ApprovalTx = ev.approval
	case evConfirmed:
		p.ActionTx = ev.tx
		if ev.recordID != 0 {
			p.RecordID = ev.recordID
			p.Provisional = false
		}
	case evReconciled:
		p.RecordID = ev.recordID
		p.Provisional = false
	case evFail, evCancel:
		// Writes that reached the ledger before the failure stay on record.
		if ev.approval != (common.Hash{}) {
			p.ApprovalTx = ev.approval
		}
		if ev.tx != (common.Hash{}) {
			p.ActionTx = ev.tx
		}
		p.Class = ev.class
		if ev.err != nil {
			p.Error = ev.err.Error()
		}
	}

	p.State = next
	p.Updated = time.Now()

	return nil
}
