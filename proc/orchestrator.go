package proc

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"

	"github.com/dzeckelev/gift-ledger/data"
	"github.com/dzeckelev/gift-ledger/eth"
	"github.com/dzeckelev/gift-ledger/ipfs"
	"github.com/dzeckelev/gift-ledger/metrics"
	"github.com/dzeckelev/gift-ledger/names"
)

// reconcileWindow bounds the ids read after confirmation when looking for
// the record a submission created.
const reconcileWindow = 64

// Request validation errors.
var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrNotRedeemable  = errors.New("gift cannot be redeemed")
)

// Publisher stores documents in the content-addressed store.
type Publisher interface {
	Publish(ctx context.Context, doc interface{}) (string, error)
}

// Journal records submission progress.
type Journal interface {
	Save(ctx context.Context, tx *PendingTransaction) error
}

// GiftRequest describes a gift to send.
type GiftRequest struct {
	Recipient common.Address
	Amount    *big.Int
	GiftType  string
	Message   string
	IsCharity bool
}

// Orchestrator turns user actions into ledger writes and tracks each one
// as a PendingTransaction.
type Orchestrator struct {
	ledger       eth.Ledger
	publisher    Publisher
	journal      Journal
	onTransition func(PendingTransaction)
	metrics      *metrics.Metrics
	logger       log.Logger
}

// NewOrchestrator creates a new orchestrator. publisher may be nil, in
// which case gift messages are referenced by their hash only.
func NewOrchestrator(ledger eth.Ledger, publisher Publisher,
	m *metrics.Metrics) *Orchestrator {
	return &Orchestrator{
		ledger:    ledger,
		publisher: publisher,
		metrics:   m,
		logger:    log.New("module", "orchestrator"),
	}
}

// SetJournal installs a journal that receives every state change.
func (o *Orchestrator) SetJournal(j Journal) {
	o.journal = j
}

// OnTransition installs an observer that receives a copy of every state.
func (o *Orchestrator) OnTransition(fn func(PendingTransaction)) {
	o.onTransition = fn
}

func (o *Orchestrator) step(ctx context.Context, tx *PendingTransaction,
	ev event) error {
	prev := tx.State
	if err := tx.apply(ev); err != nil {
		o.logger.Error("Rejected transition", "id", tx.ID, "err", err)
		return err
	}

	o.logger.Debug("Submission state", "id", tx.ID, "kind", tx.Kind,
		"from", prev, "to", tx.State)

	if o.onTransition != nil {
		o.onTransition(*tx)
	}

	if o.journal != nil {
		if err := o.journal.Save(context.WithoutCancel(ctx), tx); err != nil {
			o.logger.Warn("Failed to journal submission", "id", tx.ID,
				"err", err)
		}
	}

	if tx.State.Final() && prev != tx.State {
		o.metrics.Submission(tx.Kind, tx.State.String(), tx.Class.String())
	}

	return nil
}

// fail moves tx to Failed and returns cause annotated with the class. ev
// carries the class and the hashes of writes already broadcast.
func (o *Orchestrator) fail(ctx context.Context, tx *PendingTransaction,
	ev event, cause error) error {
	ev.kind = evFail
	ev.err = cause
	if err := o.step(ctx, tx, ev); err != nil {
		return err
	}

	o.logger.Warn("Submission failed", "id", tx.ID, "kind", tx.Kind,
		"class", ev.class, "err", cause)

	return errors.Wrap(cause, ev.class.String())
}

// Classify maps a write error onto an error class. A write that was
// broadcast but not seen mined may still confirm and is a NetworkError.
func Classify(err error) ErrorClass {
	switch {
	case err == nil:
		return None
	case errors.Is(err, eth.ErrUnconfirmed):
		return NetworkError
	case errors.Is(err, eth.ErrUserRejected),
		errors.Is(err, context.Canceled):
		return UserCancelled
	case errors.Is(err, eth.ErrReverted):
		return LedgerRevert
	default:
		return NetworkError
	}
}

func (o *Orchestrator) account() (common.Address, error) {
	from := o.ledger.Account()
	if from == (common.Address{}) {
		return from, eth.ErrReadOnly
	}
	return from, nil
}

func validateGift(req *GiftRequest) error {
	if req.Recipient == (common.Address{}) {
		return errors.Wrap(ErrInvalidRequest, "recipient is empty")
	}

	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return errors.Wrap(ErrInvalidRequest, "amount must be positive")
	}

	return nil
}

// messageRef publishes the gift message and returns its content address as
// a ledger field. Without a publisher, or when publishing fails, the
// keccak256 of the message is used.
func (o *Orchestrator) messageRef(ctx context.Context, from common.Address,
	req *GiftRequest) common.Hash {
	if req.Message == "" {
		return common.Hash{}
	}

	if o.publisher != nil {
		cid, err := o.publisher.Publish(ctx, &ipfs.GiftMetadata{
			GiftType:  req.GiftType,
			Message:   req.Message,
			Timestamp: time.Now().UnixMilli(),
			Sender:    from.Hex(),
		})
		if err == nil {
			ref, err := ipfs.RefFromCID(cid)
			if err == nil {
				return ref
			}
			o.logger.Warn("Unsupported content address", "cid", cid,
				"err", err)
		} else {
			o.logger.Warn("Failed to publish gift message", "err", err)
		}
	}

	return crypto.Keccak256Hash([]byte(req.Message))
}

// SendGift sends a gift, granting the ledger an allowance first when the
// current one does not cover the amount. The returned transaction is in a
// final state. A non-nil error always accompanies Cancelled and Failed.
func (o *Orchestrator) SendGift(ctx context.Context,
	req GiftRequest) (*PendingTransaction, error) {
	if err := validateGift(&req); err != nil {
		return nil, err
	}

	from, err := o.account()
	if err != nil {
		return nil, err
	}

	tx := newPending(KindSendGift)
	tx.Recipient = req.Recipient
	tx.Amount = new(big.Int).Set(req.Amount)

	if err := o.step(ctx, tx, event{kind: evStart}); err != nil {
		return tx, err
	}

	args := data.SendGiftArgs{
		Recipient:  req.Recipient,
		Amount:     tx.Amount,
		TypeTag:    names.TypeTag(req.GiftType),
		MessageRef: o.messageRef(ctx, from, &req),
		IsCharity:  req.IsCharity,
	}

	spender := o.ledger.GiftManager()

	allowance, err := o.ledger.Allowance(ctx, from, spender)
	if err == nil {
		var count uint64
		if count, err = o.ledger.GiftCount(ctx); err == nil {
			return o.submitGift(ctx, tx, args, allowance, count+1)
		}
	}

	if ctx.Err() != nil {
		if err := o.step(ctx, tx, event{kind: evCancel, class: UserCancelled,
			err: ctx.Err()}); err != nil {
			return tx, err
		}
		return tx, ctx.Err()
	}

	return tx, o.fail(ctx, tx, event{class: NetworkError}, err)
}

func (o *Orchestrator) submitGift(ctx context.Context, tx *PendingTransaction,
	args data.SendGiftArgs, allowance *big.Int,
	predicted uint64) (*PendingTransaction, error) {
	from := o.ledger.Account()
	spender := o.ledger.GiftManager()

	if ctx.Err() != nil {
		if err := o.step(ctx, tx, event{kind: evCancel, class: UserCancelled,
			err: ctx.Err()}); err != nil {
			return tx, err
		}
		return tx, ctx.Err()
	}

	if allowance.Cmp(args.Amount) < 0 {
		if err := o.step(ctx, tx, event{kind: evNeedApproval,
			predicted: predicted}); err != nil {
			return tx, err
		}

		receipt, err := o.ledger.Approve(ctx, spender, args.Amount)
		if err != nil {
			ev := event{class: Classify(err)}
			if errors.Is(err, eth.ErrUnconfirmed) {
				ev.approval = txHash(receipt)
			}
			return tx, o.fail(ctx, tx, ev, err)
		}
		approval := txHash(receipt)

		granted, err := o.ledger.Allowance(ctx, from, spender)
		if err != nil {
			return tx, o.fail(ctx, tx, event{class: Classify(err),
				approval: approval}, err)
		}

		if granted.Cmp(args.Amount) < 0 {
			return tx, o.fail(ctx, tx, event{
				class:    InsufficientAllowanceAfterApproval,
				approval: approval,
			}, errors.Errorf("allowance %s is below amount %s after approval",
				granted, args.Amount))
		}

		if err := o.step(ctx, tx, event{kind: evApproved,
			approval: approval}); err != nil {
			return tx, err
		}
	} else if err := o.step(ctx, tx, event{kind: evSufficient,
		predicted: predicted}); err != nil {
		return tx, err
	}

	receipt, err := o.ledger.SendGift(ctx, args)
	if err != nil {
		return tx, o.fail(ctx, tx, event{class: Classify(err),
			tx: txHash(receipt)}, err)
	}

	if err := o.step(ctx, tx, event{kind: evConfirmed,
		tx: txHash(receipt)}); err != nil {
		return tx, err
	}

	o.logger.Info("Gift sent", "id", tx.ID, "tx", tx.ActionTx,
		"predicted", tx.PredictedRecordID)

	o.reconcile(ctx, tx, from, args)

	return tx, nil
}

// reconcile finds the record created by a confirmed gift. Records are only
// appended, so it is at or after the predicted id.
func (o *Orchestrator) reconcile(ctx context.Context, tx *PendingTransaction,
	from common.Address, args data.SendGiftArgs) {
	count, err := o.ledger.GiftCount(ctx)
	if err != nil {
		o.logger.Warn("Record id left provisional", "id", tx.ID, "err", err)
		return
	}

	last := count
	if last >= tx.PredictedRecordID+reconcileWindow {
		last = tx.PredictedRecordID + reconcileWindow - 1
	}

	for id := tx.PredictedRecordID; id <= last; id++ {
		g, err := o.ledger.Gift(ctx, id)
		if err != nil {
			continue
		}

		if g.Sender == from && g.Recipient == args.Recipient &&
			g.Amount.Cmp(args.Amount) == 0 &&
			g.MessageRef == args.MessageRef && g.TypeTag == args.TypeTag &&
			g.IsCharity == args.IsCharity {
			if id != tx.PredictedRecordID {
				o.logger.Info("Predicted record id was taken",
					"predicted", tx.PredictedRecordID, "actual", id)
			}
			_ = o.step(ctx, tx, event{kind: evReconciled, recordID: id})
			return
		}
	}

	o.logger.Warn("Record id left provisional", "id", tx.ID,
		"predicted", tx.PredictedRecordID, "count", count)
}

// Redeem redeems a gift addressed to the signing account.
func (o *Orchestrator) Redeem(ctx context.Context,
	id uint64) (*PendingTransaction, error) {
	from, err := o.account()
	if err != nil {
		return nil, err
	}

	g, err := o.ledger.Gift(ctx, id)
	if err != nil {
		return nil, err
	}

	switch {
	case g.Recipient != from:
		return nil, errors.Wrapf(ErrNotRedeemable,
			"gift %d is addressed to %s", id, g.Recipient.Hex())
	case g.Redeemed:
		return nil, errors.Wrapf(ErrNotRedeemable,
			"gift %d is already redeemed", id)
	}

	tx := newPending(KindRedeem)
	tx.Recipient = g.Recipient
	tx.Amount = g.Amount

	return o.submit(ctx, tx, id, func() (*types.Receipt, error) {
		return o.ledger.RedeemGift(ctx, id)
	})
}

// AddFavorite stores recipient under name in the account's favorites.
func (o *Orchestrator) AddFavorite(ctx context.Context,
	recipient common.Address, name string) (*PendingTransaction, error) {
	if _, err := o.account(); err != nil {
		return nil, err
	}

	if recipient == (common.Address{}) {
		return nil, errors.Wrap(ErrInvalidRequest, "recipient is empty")
	}

	field, err := names.Encode(name)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidRequest, err.Error())
	}

	tx := newPending(KindAddFavorite)
	tx.Recipient = recipient

	return o.submit(ctx, tx, 0, func() (*types.Receipt, error) {
		return o.ledger.AddFavorite(ctx, recipient, field)
	})
}

// submit runs a single write that needs no allowance.
func (o *Orchestrator) submit(ctx context.Context, tx *PendingTransaction,
	recordID uint64,
	write func() (*types.Receipt, error)) (*PendingTransaction, error) {
	if err := o.step(ctx, tx, event{kind: evSubmit}); err != nil {
		return tx, err
	}

	receipt, err := write()
	if err != nil {
		return tx, o.fail(ctx, tx, event{class: Classify(err),
			tx: txHash(receipt)}, err)
	}

	if err := o.step(ctx, tx, event{kind: evConfirmed, tx: txHash(receipt),
		recordID: recordID}); err != nil {
		return tx, err
	}

	o.logger.Info("Submission confirmed", "id", tx.ID, "kind", tx.Kind,
		"tx", tx.ActionTx)

	return tx, nil
}

func txHash(receipt *types.Receipt) common.Hash {
	if receipt == nil {
		return common.Hash{}
	}
	return receipt.TxHash
}
