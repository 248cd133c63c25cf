package view

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dzeckelev/gift-ledger/config"
	"github.com/dzeckelev/gift-ledger/data"
	"github.com/dzeckelev/gift-ledger/eth"
	"github.com/dzeckelev/gift-ledger/ipfs"
	"github.com/dzeckelev/gift-ledger/proc"
)

const testCID = "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"

var (
	manager = common.HexToAddress("0xcA3f02A32C333e4fc00E3Bd91C648e7deAb5d9eB")
	alice   = common.HexToAddress("0xe7dc9fe68da458b54f648146a817126053eeef66")
	bob     = common.HexToAddress("0xa7dba6053a0d631177340e8061bc12f5009ba453")
)

type memSource struct {
	mtx   sync.Mutex
	docs  map[string]string
	calls map[string]int
	delay time.Duration
}

func newSource(docs map[string]string) *memSource {
	return &memSource{docs: docs, calls: map[string]int{}}
}

func (s *memSource) Resolve(ctx context.Context,
	address string) (ipfs.Document, error) {
	time.Sleep(s.delay)

	s.mtx.Lock()
	defer s.mtx.Unlock()

	s.calls[address]++
	doc, ok := s.docs[address]
	if !ok {
		return nil, errors.Wrap(ipfs.ErrMetadataUnavailable, address)
	}
	return ipfs.Document(doc), nil
}

func (s *memSource) View() *ipfs.Cache {
	return ipfs.NewCache(s, 16, nil)
}

func field(s string) [32]byte {
	var f [32]byte
	copy(f[:], s)
	return f
}

func newAggregator(ledger eth.Ledger, src *memSource) *Aggregator {
	scanner := proc.NewScanner(ledger, &config.Proc{BatchSize: 4}, nil)
	return NewAggregator(ledger, scanner, src)
}

func TestCharitiesFallbackOrder(t *testing.T) {
	src := newSource(map[string]string{
		testCID: `{"name":"Mantle Aid","description":"Relief",` +
			`"website":"https://aid.example"}`,
		"QmNoName": `{"description":"Only a description"}`,
	})
	a := newAggregator(eth.NewMockLedger(alice, manager), src)

	raw := &data.RawCharities{
		Schema: data.SchemaCurrent,
		IDs: []*big.Int{big.NewInt(1), big.NewInt(2), big.NewInt(3),
			big.NewInt(4)},
		Addresses: []common.Address{alice, bob, alice, bob},
		Names: [][32]byte{field("Field Name"), field("Second"), {},
			field("Fourth")},
		MetadataRefs: []string{"ipfs://" + testCID, "QmMissing", "",
			"QmNoName"},
	}

	list := a.Charities(context.Background(), raw)
	require.Len(t, list, 4)

	// Resolved metadata wins over a non-empty name field.
	assert.Equal(t, "Mantle Aid", list[0].Name)
	assert.Equal(t, "Relief", list[0].Description)
	assert.Equal(t, "https://aid.example", list[0].Website)

	assert.Equal(t, "Second", list[1].Name)
	assert.Equal(t, NoDescription, list[1].Description)

	assert.Equal(t, "Charity #3", list[2].Name)

	assert.Equal(t, "Fourth", list[3].Name)
	assert.Equal(t, "Only a description", list[3].Description)

	assert.Equal(t, 1, src.calls[testCID])
	assert.Zero(t, src.calls[""])
}

func TestCharitiesLegacy(t *testing.T) {
	a := newAggregator(eth.NewMockLedger(alice, manager), newSource(nil))

	raw := &data.RawCharities{
		Schema:    data.SchemaLegacy,
		IDs:       []*big.Int{big.NewInt(1), big.NewInt(2), big.NewInt(3)},
		Addresses: []common.Address{alice, bob, alice},
		Names:     [][32]byte{field("Crypto Charity"), {}, field("Third")},
		Descriptions: [][32]byte{field("Funds open source"),
			field(`{"description":"Trees"}`), {}},
	}

	list := a.Charities(context.Background(), raw)
	require.Len(t, list, 3)

	assert.Equal(t, "Crypto Charity", list[0].Name)
	assert.Equal(t, "Funds open source", list[0].Description)
	assert.Equal(t, data.SchemaLegacy, list[0].Schema)

	assert.Equal(t, "Charity #2", list[1].Name)
	assert.Equal(t, "Trees", list[1].Description)

	assert.Equal(t, NoDescription, list[2].Description)
}

func TestCharitiesShortArrays(t *testing.T) {
	a := newAggregator(eth.NewMockLedger(alice, manager), newSource(nil))

	list := a.Charities(context.Background(), &data.RawCharities{
		IDs:          []*big.Int{big.NewInt(1), big.NewInt(2)},
		Addresses:    []common.Address{alice},
		Names:        [][32]byte{field("A"), field("B")},
		MetadataRefs: []string{"", ""},
	})

	require.Len(t, list, 1)
	assert.Equal(t, "A", list[0].Name)
	assert.Empty(t, a.Charities(context.Background(), nil))
}

func TestFavorites(t *testing.T) {
	a := newAggregator(eth.NewMockLedger(alice, manager), newSource(nil))

	var invalid [32]byte
	invalid[0] = 0xff

	list := a.Favorites(&data.RawFavorites{
		Recipients: []common.Address{alice, bob, alice},
		Names:      [][32]byte{field(" Bob "), {}, invalid},
		GiftCounts: []*big.Int{big.NewInt(3), big.NewInt(0), big.NewInt(1)},
		TotalAmounts: []*big.Int{big.NewInt(150), big.NewInt(0),
			big.NewInt(7)},
	})

	require.Len(t, list, 3)
	assert.Equal(t, "Bob", list[0].Name)
	assert.Equal(t, uint64(3), list[0].GiftCount)
	assert.Equal(t, int64(150), list[0].TotalAmount.Int64())
	assert.Equal(t, UnknownFavorite, list[1].Name)
	assert.Equal(t, UnknownFavorite, list[2].Name)
}

func TestTopGifters(t *testing.T) {
	a := newAggregator(eth.NewMockLedger(alice, manager), newSource(nil))

	list := a.TopGifters(&data.RawTopGifters{
		Addresses: []common.Address{alice, {}, bob},
		Counts:    []*big.Int{big.NewInt(5), big.NewInt(9), big.NewInt(0)},
	})

	assert.Equal(t, []data.TopGifter{{Address: alice, Count: 5}}, list)
}

func TestLoadViews(t *testing.T) {
	m := eth.NewMockLedger(alice, manager)
	m.FavoriteLists[alice] = &data.RawFavorites{
		Recipients:   []common.Address{bob},
		Names:        [][32]byte{field("Bob")},
		GiftCounts:   []*big.Int{big.NewInt(1)},
		TotalAmounts: []*big.Int{big.NewInt(2)},
	}
	m.Leaderboard = &data.RawTopGifters{
		Addresses: []common.Address{bob},
		Counts:    []*big.Int{big.NewInt(4)},
	}
	a := newAggregator(m, newSource(nil))

	favorites, err := a.LoadFavorites(context.Background(), alice)
	require.NoError(t, err)
	assert.Len(t, favorites, 1)

	top, err := a.LoadTopGifters(context.Background())
	require.NoError(t, err)
	assert.Len(t, top, 1)

	charities, err := a.LoadCharities(context.Background())
	require.NoError(t, err)
	assert.Empty(t, charities)
}

func TestHistory(t *testing.T) {
	ref, err := ipfs.RefFromCID(testCID)
	require.NoError(t, err)

	m := eth.NewMockLedger(alice, manager)
	m.AddGift(data.Gift{Sender: alice, Recipient: bob, Timestamp: 10,
		MessageRef: ref})
	m.AddGift(data.Gift{Sender: bob, Recipient: bob, Timestamp: 20})
	m.AddGift(data.Gift{Sender: bob, Recipient: alice, Timestamp: 30,
		MessageRef: common.HexToHash("0x1234")})
	m.AddGift(data.Gift{Sender: bob, Recipient: alice, Timestamp: 40,
		Redeemed: true, MessageRef: ref})

	src := newSource(map[string]string{
		testCID: `{"giftType":"birthday","message":"Happy birthday!"}`,
	})
	a := newAggregator(m, src)

	history, err := a.History(context.Background(), alice)
	require.NoError(t, err)
	require.Len(t, history, 3)

	assert.Equal(t, uint64(4), history[0].ID)
	assert.Equal(t, Received, history[0].Direction)
	assert.False(t, history[0].CanRedeem)
	assert.Equal(t, "Happy birthday!", history[0].Message)

	assert.Equal(t, uint64(3), history[1].ID)
	assert.True(t, history[1].CanRedeem)
	assert.Equal(t, MessageUnavailable, history[1].Message)

	assert.Equal(t, uint64(1), history[2].ID)
	assert.Equal(t, Sent, history[2].Direction)
	assert.Equal(t, "birthday", history[2].GiftType)
	assert.Equal(t, testCID, history[2].MessageCID)
}

func TestHistorySharedMessage(t *testing.T) {
	ref, err := ipfs.RefFromCID(testCID)
	require.NoError(t, err)

	m := eth.NewMockLedger(alice, manager)
	for i := 0; i < 8; i++ {
		m.AddGift(data.Gift{Sender: bob, Recipient: alice,
			Timestamp: uint64(i), MessageRef: ref})
	}

	src := newSource(map[string]string{
		testCID: `{"giftType":"thanks","message":"Thank you"}`,
	})
	src.delay = 20 * time.Millisecond
	a := newAggregator(m, src)

	history, err := a.History(context.Background(), alice)
	require.NoError(t, err)
	require.Len(t, history, 8)

	for _, e := range history {
		assert.Equal(t, "Thank you", e.Message)
	}
	assert.Equal(t, 1, src.calls[testCID])
}

func TestHistoryCountError(t *testing.T) {
	m := eth.NewMockLedger(alice, manager)
	m.CountErr = errors.New("connection refused")

	_, err := newAggregator(m, newSource(nil)).History(context.Background(),
		alice)
	assert.Error(t, err)
}

func TestGift(t *testing.T) {
	m := eth.NewMockLedger(bob, manager)
	id := m.AddGift(data.Gift{Sender: alice, Recipient: bob,
		Amount: big.NewInt(5)})
	a := newAggregator(m, newSource(nil))

	e, err := a.Gift(context.Background(), id, bob)
	require.NoError(t, err)
	assert.True(t, e.CanRedeem)
	assert.Empty(t, e.Message)

	e, err = a.Gift(context.Background(), id, alice)
	require.NoError(t, err)
	assert.False(t, e.CanRedeem)

	_, err = a.Gift(context.Background(), 9, bob)
	assert.True(t, errors.Is(err, eth.ErrNotFound))
}
