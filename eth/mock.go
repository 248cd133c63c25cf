package eth

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"

	"github.com/dzeckelev/gift-ledger/data"
)

var _ Ledger = (*MockLedger)(nil)

// MockLedger is an in-memory Ledger for tests.
type MockLedger struct {
	mtx sync.Mutex

	From    common.Address
	Manager common.Address

	Gifts         []*data.Gift // Gifts[i] has id i+1.
	Allowances    map[common.Address]*big.Int
	Balances      map[common.Address]*big.Int
	CharityList   *data.RawCharities
	FavoriteLists map[common.Address]*data.RawFavorites
	Leaderboard   *data.RawTopGifters

	// Read behaviour.
	FailIDs      map[uint64]error
	ReadDelay    time.Duration
	CountErr     error
	AllowanceErr error

	// Write behaviour. Errors are returned once and then cleared.
	ApproveErr      error
	SendErr         error
	RedeemErr       error
	ApproveNoEffect bool
	// BeforeSend runs before a gift is appended, under no lock.
	BeforeSend func(m *MockLedger)

	// Observations.
	Writes      []string
	Reads       []uint64
	inFlight    int
	maxInFlight int
	txNonce     uint64
}

// NewMockLedger creates an empty mock ledger.
func NewMockLedger(from, manager common.Address) *MockLedger {
	return &MockLedger{
		From:          from,
		Manager:       manager,
		Allowances:    map[common.Address]*big.Int{},
		Balances:      map[common.Address]*big.Int{},
		FavoriteLists: map[common.Address]*data.RawFavorites{},
		FailIDs:       map[uint64]error{},
	}
}

// AddGift appends a gift as another writer would and returns its id.
func (m *MockLedger) AddGift(g data.Gift) uint64 {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	return m.addGift(g)
}

func (m *MockLedger) addGift(g data.Gift) uint64 {
	g.ID = uint64(len(m.Gifts) + 1)
	if g.Amount == nil {
		g.Amount = big.NewInt(0)
	}
	m.Gifts = append(m.Gifts, &g)
	return g.ID
}

func (m *MockLedger) receipt(method string) *types.Receipt {
	m.txNonce++
	m.Writes = append(m.Writes, method)

	return &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      crypto.Keccak256Hash(big.NewInt(int64(m.txNonce)).Bytes()),
		BlockNumber: new(big.Int).SetUint64(m.txNonce),
	}
}

// failedReceipt returns the receipt of a write that was broadcast before
// failing, nil for writes that never left the client.
func (m *MockLedger) failedReceipt(method string, err error) *types.Receipt {
	if !errors.Is(err, ErrUnconfirmed) && !errors.Is(err, ErrReverted) {
		return nil
	}

	r := m.receipt(method)
	if errors.Is(err, ErrReverted) {
		r.Status = types.ReceiptStatusFailed
	}
	return r
}

func takeErr(err *error) error {
	e := *err
	*err = nil
	return e
}

func (m *MockLedger) Account() common.Address {
	return m.From
}

func (m *MockLedger) GiftManager() common.Address {
	return m.Manager
}

func (m *MockLedger) GiftCount(ctx context.Context) (uint64, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	if m.CountErr != nil {
		return 0, m.CountErr
	}
	return uint64(len(m.Gifts)), nil
}

func (m *MockLedger) Gift(ctx context.Context, id uint64) (*data.Gift, error) {
	m.mtx.Lock()
	m.Reads = append(m.Reads, id)
	m.inFlight++
	if m.inFlight > m.maxInFlight {
		m.maxInFlight = m.inFlight
	}
	delay := m.ReadDelay
	m.mtx.Unlock()

	defer func() {
		m.mtx.Lock()
		m.inFlight--
		m.mtx.Unlock()
	}()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mtx.Lock()
	defer m.mtx.Unlock()

	if err := m.FailIDs[id]; err != nil {
		return nil, err
	}

	if id == 0 || id > uint64(len(m.Gifts)) {
		return nil, errors.Wrapf(ErrNotFound, "gift %d", id)
	}

	g := *m.Gifts[id-1]
	return &g, nil
}

func (m *MockLedger) Charities(ctx context.Context) (*data.RawCharities, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	if m.CharityList == nil {
		return &data.RawCharities{}, nil
	}
	return m.CharityList, nil
}

func (m *MockLedger) Favorites(ctx context.Context,
	owner common.Address) (*data.RawFavorites, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	if f, ok := m.FavoriteLists[owner]; ok {
		return f, nil
	}
	return &data.RawFavorites{}, nil
}

func (m *MockLedger) TopGifters(ctx context.Context) (*data.RawTopGifters, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	if m.Leaderboard == nil {
		return &data.RawTopGifters{}, nil
	}
	return m.Leaderboard, nil
}

func (m *MockLedger) Allowance(ctx context.Context,
	owner, spender common.Address) (*big.Int, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	if m.AllowanceErr != nil {
		return nil, m.AllowanceErr
	}

	if a, ok := m.Allowances[owner]; ok {
		return new(big.Int).Set(a), nil
	}
	return big.NewInt(0), nil
}

func (m *MockLedger) Balance(ctx context.Context,
	account common.Address) (*big.Int, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	if b, ok := m.Balances[account]; ok {
		return new(big.Int).Set(b), nil
	}
	return big.NewInt(0), nil
}

func (m *MockLedger) Approve(ctx context.Context, spender common.Address,
	amount *big.Int) (*types.Receipt, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	if err := takeErr(&m.ApproveErr); err != nil {
		return m.failedReceipt("approve", err), err
	}

	if !m.ApproveNoEffect {
		m.Allowances[m.From] = new(big.Int).Set(amount)
	}

	return m.receipt("approve"), nil
}

func (m *MockLedger) SendGift(ctx context.Context,
	args data.SendGiftArgs) (*types.Receipt, error) {
	if m.BeforeSend != nil {
		m.BeforeSend(m)
	}

	m.mtx.Lock()
	defer m.mtx.Unlock()

	if err := takeErr(&m.SendErr); err != nil {
		return m.failedReceipt("sendGift", err), err
	}

	allowance, ok := m.Allowances[m.From]
	if !ok || allowance.Cmp(args.Amount) < 0 {
		return nil, errors.Wrap(ErrReverted, "insufficient allowance")
	}
	m.Allowances[m.From] = new(big.Int).Sub(allowance, args.Amount)

	m.addGift(data.Gift{
		Sender:     m.From,
		Recipient:  args.Recipient,
		Amount:     new(big.Int).Set(args.Amount),
		TypeTag:    args.TypeTag,
		MessageRef: args.MessageRef,
		IsCharity:  args.IsCharity,
		Timestamp:  uint64(time.Now().Unix()),
	})

	return m.receipt("sendGift"), nil
}

func (m *MockLedger) RedeemGift(ctx context.Context,
	id uint64) (*types.Receipt, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	if err := takeErr(&m.RedeemErr); err != nil {
		return m.failedReceipt("redeemGift", err), err
	}

	if id == 0 || id > uint64(len(m.Gifts)) {
		return nil, errors.Wrap(ErrReverted, "invalid gift")
	}

	g := m.Gifts[id-1]
	if g.Recipient != m.From || g.Redeemed {
		return nil, errors.Wrap(ErrReverted, "cannot redeem")
	}
	g.Redeemed = true

	return m.receipt("redeemGift"), nil
}

func (m *MockLedger) AddFavorite(ctx context.Context, recipient common.Address,
	name [32]byte) (*types.Receipt, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	f, ok := m.FavoriteLists[m.From]
	if !ok {
		f = &data.RawFavorites{}
		m.FavoriteLists[m.From] = f
	}
	f.Recipients = append(f.Recipients, recipient)
	f.Names = append(f.Names, name)
	f.GiftCounts = append(f.GiftCounts, big.NewInt(0))
	f.TotalAmounts = append(f.TotalAmounts, big.NewInt(0))

	return m.receipt("addFavorite"), nil
}

func (m *MockLedger) AddCharity(ctx context.Context, wallet common.Address,
	name [32]byte, metadataURI string) (*types.Receipt, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	if m.CharityList == nil {
		m.CharityList = &data.RawCharities{}
	}
	c := m.CharityList
	c.IDs = append(c.IDs, big.NewInt(int64(len(c.IDs)+1)))
	c.Addresses = append(c.Addresses, wallet)
	c.Names = append(c.Names, name)
	c.MetadataRefs = append(c.MetadataRefs, metadataURI)

	return m.receipt("addCharity"), nil
}

func (m *MockLedger) RemoveCharity(ctx context.Context,
	id uint64) (*types.Receipt, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	c := m.CharityList
	if c == nil {
		return nil, errors.Wrap(ErrReverted, "invalid charity")
	}

	for k, v := range c.IDs {
		if v.IsUint64() && v.Uint64() == id {
			c.IDs = append(c.IDs[:k:k], c.IDs[k+1:]...)
			c.Addresses = append(c.Addresses[:k:k], c.Addresses[k+1:]...)
			c.Names = append(c.Names[:k:k], c.Names[k+1:]...)
			if k < len(c.MetadataRefs) {
				c.MetadataRefs = append(c.MetadataRefs[:k:k],
					c.MetadataRefs[k+1:]...)
			}
			return m.receipt("removeCharity"), nil
		}
	}

	return nil, errors.Wrap(ErrReverted, "invalid charity")
}

// WriteLog returns a copy of the write methods called so far.
func (m *MockLedger) WriteLog() []string {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	return append([]string(nil), m.Writes...)
}

// ReadLog returns a copy of the gift ids read so far, in call order.
func (m *MockLedger) ReadLog() []uint64 {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	return append([]uint64(nil), m.Reads...)
}

// MaxInFlight returns the highest number of concurrent gift reads seen.
func (m *MockLedger) MaxInFlight() int {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	return m.maxInFlight
}
