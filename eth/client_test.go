package eth

import (
	"context"
	"encoding/hex"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dzeckelev/gift-ledger/config"
	"github.com/dzeckelev/gift-ledger/data"
)

var (
	managerAddr = common.HexToAddress("0xcA3f02A32C333e4fc00E3Bd91C648e7deAb5d9eB")
	tokenAddr   = common.HexToAddress("0x801ce3C86a4075F094C973D8Dd5e2bD5cde6a873")
	alice       = common.HexToAddress("0xe7dc9fe68da458b54f648146a817126053eeef66")
	bob         = common.HexToAddress("0xa7dba6053a0d631177340e8061bc12f5009ba453")
)

// callBackend answers eth_call by method selector. Other Backend methods
// are not used by read paths and panic if called.
type callBackend struct {
	Backend
	responses map[string][]byte
	calls     []ethereum.CallMsg
}

func (b *callBackend) CallContract(ctx context.Context,
	msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	b.calls = append(b.calls, msg)
	return b.responses[hex.EncodeToString(msg.Data[:4])], nil
}

func mustABI(t *testing.T, def string) abi.ABI {
	a, err := abi.JSON(strings.NewReader(def))
	require.NoError(t, err)
	return a
}

func respond(t *testing.T, b *callBackend, a abi.ABI, method string,
	values ...interface{}) {
	m := a.Methods[method]
	out, err := m.Outputs.Pack(values...)
	require.NoError(t, err)
	b.responses[hex.EncodeToString(m.ID)] = out
}

func newTestClient(t *testing.T) (*Client, *callBackend) {
	b := &callBackend{responses: map[string][]byte{}}
	c, err := NewClient(b, &config.Eth{
		GiftManager: managerAddr.Hex(),
		Token:       tokenAddr.Hex(),
	}, nil)
	require.NoError(t, err)
	return c, b
}

func field(s string) [32]byte {
	var f [32]byte
	copy(f[:], s)
	return f
}

func TestNewClientInvalidAddress(t *testing.T) {
	_, err := NewClient(&callBackend{}, &config.Eth{GiftManager: "nope",
		Token: tokenAddr.Hex()}, nil)
	assert.Error(t, err)
}

func TestGiftCount(t *testing.T) {
	c, b := newTestClient(t)
	respond(t, b, c.managerABI, "giftCounter", big.NewInt(23))

	count, err := c.GiftCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(23), count)
	assert.Equal(t, managerAddr, *b.calls[0].To)
}

func TestGift(t *testing.T) {
	c, b := newTestClient(t)
	typeTag := common.HexToHash("0x01")
	messageRef := common.HexToHash("0x02")

	respond(t, b, c.managerABI, "gifts", alice, bob, big.NewInt(50),
		[32]byte(typeTag), [32]byte(messageRef), true, false,
		big.NewInt(1700000000))

	gift, err := c.Gift(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, &data.Gift{
		ID:         7,
		Sender:     alice,
		Recipient:  bob,
		Amount:     big.NewInt(50),
		TypeTag:    typeTag,
		MessageRef: messageRef,
		IsCharity:  true,
		Timestamp:  1700000000,
	}, gift)
}

func TestGiftNotFound(t *testing.T) {
	c, b := newTestClient(t)
	respond(t, b, c.managerABI, "gifts", common.Address{}, common.Address{},
		big.NewInt(0), [32]byte{}, [32]byte{}, false, false, big.NewInt(0))

	_, err := c.Gift(context.Background(), 99)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestGiftNoCode(t *testing.T) {
	c, _ := newTestClient(t)

	_, err := c.Gift(context.Background(), 1)
	assert.Error(t, err)
}

func TestCharitiesCurrent(t *testing.T) {
	c, b := newTestClient(t)
	respond(t, b, c.managerABI, "getCharities",
		[]*big.Int{big.NewInt(1), big.NewInt(2)},
		[]common.Address{alice, bob},
		[][32]byte{field("Mantle Aid"), {}},
		[]string{"ipfs://QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG", ""})

	raw, err := c.Charities(context.Background())
	require.NoError(t, err)
	assert.Equal(t, data.SchemaCurrent, raw.Schema)
	assert.Len(t, raw.IDs, 2)
	assert.Equal(t, []common.Address{alice, bob}, raw.Addresses)
	assert.Equal(t, field("Mantle Aid"), raw.Names[0])
	assert.Equal(t, "", raw.MetadataRefs[1])
}

func TestCharitiesLegacy(t *testing.T) {
	c, b := newTestClient(t)
	legacy := mustABI(t, legacyCharitiesABI)
	respond(t, b, legacy, "getCharities",
		[]*big.Int{big.NewInt(1)},
		[]common.Address{alice},
		[][32]byte{field("Crypto Charity")},
		[][32]byte{field("Funds open source")})

	raw, err := c.Charities(context.Background())
	require.NoError(t, err)
	assert.Equal(t, data.SchemaLegacy, raw.Schema)
	assert.Equal(t, field("Crypto Charity"), raw.Names[0])
	assert.Equal(t, field("Funds open source"), raw.Descriptions[0])
	assert.Empty(t, raw.MetadataRefs)
}

func TestCharitiesLegacyZeroDescriptions(t *testing.T) {
	c, b := newTestClient(t)
	legacy := mustABI(t, legacyCharitiesABI)
	respond(t, b, legacy, "getCharities",
		[]*big.Int{big.NewInt(1), big.NewInt(2)},
		[]common.Address{alice, bob},
		[][32]byte{field("A"), field("B")},
		[][32]byte{{}, {}})

	// Both layouts read the same here: names only, no metadata.
	raw, err := c.Charities(context.Background())
	require.NoError(t, err)
	assert.Equal(t, [][32]byte{field("A"), field("B")}, raw.Names)
	for _, ref := range raw.MetadataRefs {
		assert.Empty(t, ref)
	}
	for _, desc := range raw.Descriptions {
		assert.Equal(t, [32]byte{}, desc)
	}
}

func TestFavoritesAndTopGifters(t *testing.T) {
	c, b := newTestClient(t)
	respond(t, b, c.managerABI, "getFavorites",
		[]common.Address{bob}, [][32]byte{field("Bob")},
		[]*big.Int{big.NewInt(3)}, []*big.Int{big.NewInt(150)})
	respond(t, b, c.managerABI, "getTopGifters",
		[]common.Address{alice, {}}, []*big.Int{big.NewInt(5), big.NewInt(0)})

	favorites, err := c.Favorites(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{bob}, favorites.Recipients)
	assert.Equal(t, int64(150), favorites.TotalAmounts[0].Int64())

	top, err := c.TopGifters(context.Background())
	require.NoError(t, err)
	assert.Len(t, top.Addresses, 2)
	assert.Equal(t, int64(5), top.Counts[0].Int64())
}

func TestAllowance(t *testing.T) {
	c, b := newTestClient(t)
	respond(t, b, c.tokenABI, "allowance", big.NewInt(100))

	allowance, err := c.Allowance(context.Background(), alice, managerAddr)
	require.NoError(t, err)
	assert.Equal(t, int64(100), allowance.Int64())
	assert.Equal(t, tokenAddr, *b.calls[0].To)
}

func TestReadOnlyWrites(t *testing.T) {
	c, b := newTestClient(t)

	_, err := c.Approve(context.Background(), managerAddr, big.NewInt(1))
	assert.True(t, errors.Is(err, ErrReadOnly))

	_, err = c.RedeemGift(context.Background(), 1)
	assert.True(t, errors.Is(err, ErrReadOnly))
	assert.Empty(t, b.calls)
	assert.Equal(t, common.Address{}, c.Account())
}

func TestBalance(t *testing.T) {
	c, b := newTestClient(t)
	respond(t, b, c.tokenABI, "balanceOf", big.NewInt(42))

	balance, err := c.Balance(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, int64(42), balance.Int64())
	assert.Equal(t, tokenAddr, *b.calls[0].To)
}

// txBackend accepts every transaction and answers receipt queries through
// receipt. Other Backend methods panic if called.
type txBackend struct {
	Backend
	sent    []*types.Transaction
	receipt func(hash common.Hash) (*types.Receipt, error)
}

func (b *txBackend) SendTransaction(ctx context.Context,
	tx *types.Transaction) error {
	b.sent = append(b.sent, tx)
	return nil
}

func (b *txBackend) TransactionReceipt(ctx context.Context,
	hash common.Hash) (*types.Receipt, error) {
	return b.receipt(hash)
}

func mined(status uint64) func(common.Hash) (*types.Receipt, error) {
	return func(hash common.Hash) (*types.Receipt, error) {
		return &types.Receipt{Status: status, TxHash: hash,
			BlockNumber: big.NewInt(1)}, nil
	}
}

func newSigningClient(t *testing.T, b *txBackend) *Client {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	opts, err := bind.NewKeyedTransactorWithChainID(key, big.NewInt(1337))
	require.NoError(t, err)

	// Fixed gas and nonce keep Transact away from node estimates.
	opts.GasPrice = big.NewInt(1)
	opts.GasLimit = 100000
	opts.Nonce = big.NewInt(0)

	c, err := NewClient(b, &config.Eth{
		GiftManager: managerAddr.Hex(),
		Token:       tokenAddr.Hex(),
	}, opts)
	require.NoError(t, err)
	return c
}

func TestTransactConfirmed(t *testing.T) {
	b := &txBackend{receipt: mined(types.ReceiptStatusSuccessful)}
	c := newSigningClient(t, b)

	var prompted []string
	c.SetConfirm(func(method string, tx *types.Transaction) bool {
		prompted = append(prompted, method)
		return true
	})

	receipt, err := c.SendGift(context.Background(), data.SendGiftArgs{
		Recipient: bob,
		Amount:    big.NewInt(50),
	})
	require.NoError(t, err)
	require.Len(t, b.sent, 1)

	sent := b.sent[0]
	assert.Equal(t, sent.Hash(), receipt.TxHash)
	assert.Equal(t, managerAddr, *sent.To())
	assert.Equal(t, c.managerABI.Methods["sendGift"].ID, sent.Data()[:4])
	assert.Equal(t, []string{"sendGift"}, prompted)
}

func TestTransactDeclined(t *testing.T) {
	b := &txBackend{receipt: mined(types.ReceiptStatusSuccessful)}
	c := newSigningClient(t, b)
	c.SetConfirm(func(method string, tx *types.Transaction) bool {
		return false
	})

	receipt, err := c.Approve(context.Background(), managerAddr,
		big.NewInt(50))
	assert.True(t, errors.Is(err, ErrUserRejected))
	assert.Nil(t, receipt)
	assert.Empty(t, b.sent)
}

func TestTransactReverted(t *testing.T) {
	b := &txBackend{receipt: mined(types.ReceiptStatusFailed)}
	c := newSigningClient(t, b)

	receipt, err := c.RedeemGift(context.Background(), 3)
	assert.True(t, errors.Is(err, ErrReverted))
	require.NotNil(t, receipt)
	require.Len(t, b.sent, 1)
	assert.Equal(t, b.sent[0].Hash(), receipt.TxHash)
}

func TestTransactUnconfirmed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The caller goes away while the broadcast transaction is pending.
	b := &txBackend{receipt: func(common.Hash) (*types.Receipt, error) {
		cancel()
		return nil, ethereum.NotFound
	}}
	c := newSigningClient(t, b)

	receipt, err := c.SendGift(ctx, data.SendGiftArgs{
		Recipient: bob,
		Amount:    big.NewInt(50),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnconfirmed))
	assert.False(t, errors.Is(err, ErrUserRejected))
	assert.False(t, errors.Is(err, context.Canceled))

	require.Len(t, b.sent, 1)
	require.NotNil(t, receipt)
	assert.Equal(t, b.sent[0].Hash(), receipt.TxHash)
}

func TestRemoveCharity(t *testing.T) {
	b := &txBackend{receipt: mined(types.ReceiptStatusSuccessful)}
	c := newSigningClient(t, b)

	_, err := c.RemoveCharity(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, b.sent, 1)

	method := c.managerABI.Methods["removeCharity"]
	input := b.sent[0].Data()
	assert.Equal(t, method.ID, input[:4])

	args, err := method.Inputs.Unpack(input[4:])
	require.NoError(t, err)
	assert.Equal(t, int64(7), args[0].(*big.Int).Int64())
}

type dataError struct{}

func (dataError) Error() string          { return "vm error" }
func (dataError) ErrorData() interface{} { return "0x08c379a0" }

func TestClassify(t *testing.T) {
	err := classify("sendGift",
		errors.New("failed to estimate gas needed: execution reverted"))
	assert.True(t, errors.Is(err, ErrReverted))

	err = classify("sendGift", dataError{})
	assert.True(t, errors.Is(err, ErrReverted))

	err = classify("approve", ErrUserRejected)
	assert.True(t, errors.Is(err, ErrUserRejected))

	err = classify("approve", errors.New("User denied transaction signature"))
	assert.True(t, errors.Is(err, ErrUserRejected))

	err = classify("approve", context.DeadlineExceeded)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.False(t, errors.Is(err, ErrReverted))
}
