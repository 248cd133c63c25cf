package api

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/dzeckelev/gift-ledger/data"
	"github.com/dzeckelev/gift-ledger/eth"
	"github.com/dzeckelev/gift-ledger/proc"
	"github.com/dzeckelev/gift-ledger/view"
)

// Error code of failed submissions. The submission is in the error data.
const submissionErrorCode = -32010

// Journal lists recorded submissions.
type Journal interface {
	Recent(limit uint64) ([]*data.Submission, error)
}

// Handler is an API RPC handler.
type Handler struct {
	ledger       eth.Ledger
	aggregator   *view.Aggregator
	orchestrator *proc.Orchestrator
	journal      Journal

	// Mutex serializes submissions so record id predictions of this
	// process do not collide.
	mtx sync.Mutex
}

// GiftResult is a gift as returned to clients.
type GiftResult struct {
	ID        uint64
	Sender    string
	Recipient string
	// In the token's smallest unit.
	// String type because it can go beyond uint64.
	Amount     string
	Tokens     string
	Date       string
	GiftType   string
	Message    string
	MessageCID string
	IsCharity  bool
	Redeemed   bool
	Direction  string
	CanRedeem  bool
}

// CharityResult is a charities view entry.
type CharityResult struct {
	ID          uint64
	Address     string
	Name        string
	Description string
	Logo        string
	Website     string
	Schema      string
}

// FavoriteResult is a favorites view entry.
type FavoriteResult struct {
	Recipient   string
	Name        string
	GiftCount   uint64
	TotalAmount string
	Tokens      string
}

// TopGifterResult is a leaderboard entry.
type TopGifterResult struct {
	Address string
	Count   uint64
}

// BalanceResult is a token balance.
type BalanceResult struct {
	Address string
	Amount  string
	Tokens  string
}

// SendGiftArgs are arguments of SendGift.
type SendGiftArgs struct {
	Recipient string
	// Decimal token amount, e.g. "1.5".
	Amount    string
	GiftType  string
	Message   string
	IsCharity bool
}

// SubmissionResult describes a finished submission.
type SubmissionResult struct {
	ID                string
	Kind              string
	State             string
	Class             string
	Error             string `json:",omitempty"`
	PredictedRecordID uint64
	RecordID          uint64
	Provisional       bool
	ApprovalTx        string `json:",omitempty"`
	ActionTx          string `json:",omitempty"`
}

// SubmissionError is returned for cancelled and failed submissions.
type SubmissionError struct {
	Result *SubmissionResult
	err    error
}

func (e *SubmissionError) Error() string          { return e.err.Error() }
func (e *SubmissionError) ErrorCode() int         { return submissionErrorCode }
func (e *SubmissionError) ErrorData() interface{} { return e.Result }
func (e *SubmissionError) Unwrap() error          { return e.err }

// NewHandler creates a new handler. journal may be nil.
func NewHandler(ledger eth.Ledger, aggregator *view.Aggregator,
	orchestrator *proc.Orchestrator, journal Journal) *Handler {
	return &Handler{
		ledger:       ledger,
		aggregator:   aggregator,
		orchestrator: orchestrator,
		journal:      journal,
	}
}

func parseAddress(name, value string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, errors.Errorf("invalid %q argument", name)
	}
	return common.HexToAddress(value), nil
}

func address(a common.Address) string {
	return strings.ToLower(a.Hex())
}

func formatDate(ts uint64) string {
	return time.Unix(int64(ts), 0).UTC().Format(time.RFC3339)
}

func giftResult(e *view.GiftEntry) GiftResult {
	return GiftResult{
		ID:         e.ID,
		Sender:     address(e.Sender),
		Recipient:  address(e.Recipient),
		Amount:     e.Amount.String(),
		Tokens:     data.FormatAmount(e.Amount),
		Date:       formatDate(e.Timestamp),
		GiftType:   e.GiftType,
		Message:    e.Message,
		MessageCID: e.MessageCID,
		IsCharity:  e.IsCharity,
		Redeemed:   e.Redeemed,
		Direction:  e.Direction,
		CanRedeem:  e.CanRedeem,
	}
}

// History returns gifts sent or received by owner, newest first.
func (h *Handler) History(ctx context.Context,
	owner string) ([]GiftResult, error) {
	addr, err := parseAddress("owner", owner)
	if err != nil {
		return nil, err
	}

	entries, err := h.aggregator.History(ctx, addr)
	if err != nil {
		return nil, err
	}

	result := make([]GiftResult, len(entries))
	for k, e := range entries {
		result[k] = giftResult(e)
	}

	return result, nil
}

// Gift returns a single gift as seen by viewer.
func (h *Handler) Gift(ctx context.Context, id uint64,
	viewer string) (*GiftResult, error) {
	addr, err := parseAddress("viewer", viewer)
	if err != nil {
		return nil, err
	}

	e, err := h.aggregator.Gift(ctx, id, addr)
	if err != nil {
		return nil, err
	}

	result := giftResult(e)
	return &result, nil
}

// Charities returns registered charities ordered by name.
func (h *Handler) Charities(ctx context.Context,
	order string) ([]CharityResult, error) {
	list, err := h.aggregator.LoadCharities(ctx)
	if err != nil {
		return nil, err
	}

	_, o := view.ParseSort("", order)
	view.SortCharities(list, o)

	result := make([]CharityResult, len(list))
	for k, c := range list {
		result[k] = CharityResult{
			ID:          c.ID,
			Address:     address(c.Address),
			Name:        c.Name,
			Description: c.Description,
			Logo:        c.Logo,
			Website:     c.Website,
			Schema:      c.Schema.String(),
		}
	}

	return result, nil
}

// Favorites returns the favorites of owner.
func (h *Handler) Favorites(ctx context.Context, owner, sortKey,
	order string) ([]FavoriteResult, error) {
	addr, err := parseAddress("owner", owner)
	if err != nil {
		return nil, err
	}

	list, err := h.aggregator.LoadFavorites(ctx, addr)
	if err != nil {
		return nil, err
	}

	key, o := view.ParseSort(sortKey, order)
	view.SortFavorites(list, key, o)

	result := make([]FavoriteResult, len(list))
	for k, f := range list {
		result[k] = FavoriteResult{
			Recipient:   address(f.Recipient),
			Name:        f.Name,
			GiftCount:   f.GiftCount,
			TotalAmount: f.TotalAmount.String(),
			Tokens:      data.FormatAmount(f.TotalAmount),
		}
	}

	return result, nil
}

// TopGifters returns the leaderboard.
func (h *Handler) TopGifters(ctx context.Context) ([]TopGifterResult, error) {
	list, err := h.aggregator.LoadTopGifters(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]TopGifterResult, len(list))
	for k, g := range list {
		result[k] = TopGifterResult{Address: address(g.Address),
			Count: g.Count}
	}

	return result, nil
}

func submissionResult(tx *proc.PendingTransaction) *SubmissionResult {
	res := &SubmissionResult{
		ID:                tx.ID,
		Kind:              tx.Kind,
		State:             tx.State.String(),
		Class:             tx.Class.String(),
		Error:             tx.Error,
		PredictedRecordID: tx.PredictedRecordID,
		RecordID:          tx.RecordID,
		Provisional:       tx.Provisional,
	}

	if tx.ApprovalTx != (common.Hash{}) {
		res.ApprovalTx = tx.ApprovalTx.Hex()
	}
	if tx.ActionTx != (common.Hash{}) {
		res.ActionTx = tx.ActionTx.Hex()
	}

	return res
}

func submitted(tx *proc.PendingTransaction,
	err error) (*SubmissionResult, error) {
	if tx == nil {
		return nil, err
	}

	res := submissionResult(tx)
	if err != nil {
		return nil, &SubmissionError{Result: res, err: err}
	}

	return res, nil
}

// SendGift sends a gift from the node account.
func (h *Handler) SendGift(ctx context.Context,
	args SendGiftArgs) (*SubmissionResult, error) {
	recipient, err := parseAddress("recipient", args.Recipient)
	if err != nil {
		return nil, err
	}

	amount, err := data.ParseAmount(args.Amount)
	if err != nil {
		return nil, err
	}

	h.mtx.Lock()
	defer h.mtx.Unlock()

	return submitted(h.orchestrator.SendGift(ctx, proc.GiftRequest{
		Recipient: recipient,
		Amount:    amount,
		GiftType:  args.GiftType,
		Message:   args.Message,
		IsCharity: args.IsCharity,
	}))
}

// Redeem redeems a gift addressed to the node account.
func (h *Handler) Redeem(ctx context.Context,
	id uint64) (*SubmissionResult, error) {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	return submitted(h.orchestrator.Redeem(ctx, id))
}

// AddFavorite stores a named favorite of the node account.
func (h *Handler) AddFavorite(ctx context.Context, recipient,
	name string) (*SubmissionResult, error) {
	addr, err := parseAddress("recipient", recipient)
	if err != nil {
		return nil, err
	}

	h.mtx.Lock()
	defer h.mtx.Unlock()

	return submitted(h.orchestrator.AddFavorite(ctx, addr, name))
}

// Account returns the node account, empty for read-only nodes.
func (h *Handler) Account() string {
	acc := h.ledger.Account()
	if acc == (common.Address{}) {
		return ""
	}
	return address(acc)
}

// Balance returns the token balance of owner. An empty owner means the
// node account.
func (h *Handler) Balance(ctx context.Context,
	owner string) (*BalanceResult, error) {
	addr := h.ledger.Account()
	if owner != "" {
		var err error
		if addr, err = parseAddress("owner", owner); err != nil {
			return nil, err
		}
	}

	if addr == (common.Address{}) {
		return nil, errors.New("no account to read the balance of")
	}

	balance, err := h.ledger.Balance(ctx, addr)
	if err != nil {
		return nil, err
	}

	return &BalanceResult{
		Address: address(addr),
		Amount:  balance.String(),
		Tokens:  data.FormatAmount(balance),
	}, nil
}

// Submissions returns the latest journaled submissions.
func (h *Handler) Submissions(limit uint64) ([]*data.Submission, error) {
	if h.journal == nil {
		return nil, errors.New("journal is disabled")
	}

	return h.journal.Recent(limit)
}
