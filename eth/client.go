package eth

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"

	"github.com/dzeckelev/gift-ledger/config"
	"github.com/dzeckelev/gift-ledger/data"
)

// Ledger describes the gift ledger as seen by this module. Writes that were
// broadcast return a receipt carrying at least the transaction hash, also
// together with ErrReverted and ErrUnconfirmed.
type Ledger interface {
	Account() common.Address
	GiftManager() common.Address
	GiftCount(ctx context.Context) (uint64, error)
	Gift(ctx context.Context, id uint64) (*data.Gift, error)
	Charities(ctx context.Context) (*data.RawCharities, error)
	Favorites(ctx context.Context,
		owner common.Address) (*data.RawFavorites, error)
	TopGifters(ctx context.Context) (*data.RawTopGifters, error)
	Allowance(ctx context.Context,
		owner, spender common.Address) (*big.Int, error)
	Balance(ctx context.Context, account common.Address) (*big.Int, error)
	Approve(ctx context.Context, spender common.Address,
		amount *big.Int) (*types.Receipt, error)
	SendGift(ctx context.Context,
		args data.SendGiftArgs) (*types.Receipt, error)
	RedeemGift(ctx context.Context, id uint64) (*types.Receipt, error)
	AddFavorite(ctx context.Context, recipient common.Address,
		name [32]byte) (*types.Receipt, error)
	AddCharity(ctx context.Context, wallet common.Address, name [32]byte,
		metadataURI string) (*types.Receipt, error)
	RemoveCharity(ctx context.Context, id uint64) (*types.Receipt, error)
}

// Backend is a chain connection able to call, transact and wait for
// receipts. *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// ConfirmFunc asks the account owner to sign a transaction.
type ConfirmFunc func(method string, tx *types.Transaction) bool

var _ Ledger = (*Client)(nil)

// Client is a go-ethereum implementation of Ledger.
type Client struct {
	backend     Backend
	giftManager common.Address
	token       common.Address

	managerABI abi.ABI
	legacyABI  abi.ABI
	tokenABI   abi.ABI

	manager       *bind.BoundContract
	tokenContract *bind.BoundContract

	opts    *bind.TransactOpts
	confirm ConfirmFunc
	logger  log.Logger
}

// Dial connects to an Ethereum JSON-RPC endpoint.
func Dial(ctx context.Context, url string) (*ethclient.Client, error) {
	rpcClient, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}

	return ethclient.NewClient(rpcClient), nil
}

// NewTransactor creates signing options from a hex encoded private key.
func NewTransactor(key string, chainID *big.Int) (*bind.TransactOpts, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(key, "0x"))
	if err != nil {
		return nil, errors.Wrap(err, "invalid private key")
	}

	return bind.NewKeyedTransactorWithChainID(privateKey, chainID)
}

// NewClient creates a new ledger client. A nil opts gives a read-only client.
func NewClient(backend Backend, cfg *config.Eth,
	opts *bind.TransactOpts) (*Client, error) {
	if !common.IsHexAddress(cfg.GiftManager) {
		return nil, errors.Errorf("invalid gift manager address %q",
			cfg.GiftManager)
	}

	if !common.IsHexAddress(cfg.Token) {
		return nil, errors.Errorf("invalid token address %q", cfg.Token)
	}

	c := &Client{
		backend:     backend,
		giftManager: common.HexToAddress(cfg.GiftManager),
		token:       common.HexToAddress(cfg.Token),
		opts:        opts,
		logger:      log.New("module", "eth"),
	}

	var err error
	for _, item := range []struct {
		dst  *abi.ABI
		json string
	}{
		{&c.managerABI, giftManagerABI},
		{&c.legacyABI, legacyCharitiesABI},
		{&c.tokenABI, tokenABI},
	} {
		if *item.dst, err = abi.JSON(strings.NewReader(item.json)); err != nil {
			return nil, err
		}
	}

	c.manager = bind.NewBoundContract(c.giftManager, c.managerABI,
		backend, backend, backend)
	c.tokenContract = bind.NewBoundContract(c.token, c.tokenABI,
		backend, backend, backend)

	return c, nil
}

// SetConfirm installs a prompt run before every signature.
func (c *Client) SetConfirm(confirm ConfirmFunc) {
	c.confirm = confirm
}

// Account returns the signing account, zero for read-only clients.
func (c *Client) Account() common.Address {
	if c.opts == nil {
		return common.Address{}
	}
	return c.opts.From
}

// GiftManager returns the ledger contract address.
func (c *Client) GiftManager() common.Address {
	return c.giftManager
}

func (c *Client) callRaw(ctx context.Context, a abi.ABI, to common.Address,
	method string, args ...interface{}) ([]byte, error) {
	input, err := a.Pack(method, args...)
	if err != nil {
		return nil, err
	}

	msg := ethereum.CallMsg{To: &to, Data: input}
	if c.opts != nil {
		msg.From = c.opts.From
	}

	out, err := c.backend.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "call %s", method)
	}

	if len(out) == 0 {
		return nil, errors.Wrapf(bind.ErrNoCode, "call %s", method)
	}

	return out, nil
}

func (c *Client) call(ctx context.Context, a abi.ABI, to common.Address,
	method string, args ...interface{}) ([]interface{}, error) {
	out, err := c.callRaw(ctx, a, to, method, args...)
	if err != nil {
		return nil, err
	}

	return a.Unpack(method, out)
}

// GiftCount returns the number of gifts ever written.
func (c *Client) GiftCount(ctx context.Context) (uint64, error) {
	out, err := c.call(ctx, c.managerABI, c.giftManager, "giftCounter")
	if err != nil {
		return 0, err
	}

	count, err := decodeUint("giftCounter", out)
	if err != nil {
		return 0, err
	}

	if !count.IsUint64() {
		return 0, errors.Errorf("gift counter overflow: %s", count)
	}

	return count.Uint64(), nil
}

// Gift returns a single gift. Unknown ids give ErrNotFound.
func (c *Client) Gift(ctx context.Context, id uint64) (*data.Gift, error) {
	out, err := c.call(ctx, c.managerABI, c.giftManager, "gifts",
		new(big.Int).SetUint64(id))
	if err != nil {
		return nil, err
	}

	return decodeGift(id, out)
}

// Charities returns the registered charities in whichever layout the
// deployed contract uses.
func (c *Client) Charities(ctx context.Context) (*data.RawCharities, error) {
	raw, err := c.callRaw(ctx, c.managerABI, c.giftManager, "getCharities")
	if err != nil {
		return nil, err
	}

	return decodeCharities(c.managerABI, c.legacyABI, raw)
}

// Favorites returns the favorites of owner.
func (c *Client) Favorites(ctx context.Context,
	owner common.Address) (*data.RawFavorites, error) {
	out, err := c.call(ctx, c.managerABI, c.giftManager, "getFavorites",
		owner)
	if err != nil {
		return nil, err
	}

	return decodeFavorites(out)
}

// TopGifters returns the leaderboard.
func (c *Client) TopGifters(ctx context.Context) (*data.RawTopGifters, error) {
	out, err := c.call(ctx, c.managerABI, c.giftManager, "getTopGifters")
	if err != nil {
		return nil, err
	}

	return decodeTopGifters(out)
}

// Allowance returns how much spender may move on behalf of owner.
func (c *Client) Allowance(ctx context.Context,
	owner, spender common.Address) (*big.Int, error) {
	out, err := c.call(ctx, c.tokenABI, c.token, "allowance", owner, spender)
	if err != nil {
		return nil, err
	}

	return decodeUint("allowance", out)
}

// Balance returns the token balance of account.
func (c *Client) Balance(ctx context.Context,
	account common.Address) (*big.Int, error) {
	out, err := c.call(ctx, c.tokenABI, c.token, "balanceOf", account)
	if err != nil {
		return nil, err
	}

	return decodeUint("balanceOf", out)
}

// Approve grants spender an allowance of amount.
func (c *Client) Approve(ctx context.Context, spender common.Address,
	amount *big.Int) (*types.Receipt, error) {
	return c.transact(ctx, c.tokenContract, "approve", spender, amount)
}

// SendGift submits a gift.
func (c *Client) SendGift(ctx context.Context,
	args data.SendGiftArgs) (*types.Receipt, error) {
	return c.transact(ctx, c.manager, "sendGift", args.Recipient, args.Amount,
		[32]byte(args.TypeTag), [32]byte(args.MessageRef), args.IsCharity)
}

// RedeemGift redeems a gift addressed to the signing account.
func (c *Client) RedeemGift(ctx context.Context,
	id uint64) (*types.Receipt, error) {
	return c.transact(ctx, c.manager, "redeemGift",
		new(big.Int).SetUint64(id))
}

// AddFavorite stores a named favorite recipient.
func (c *Client) AddFavorite(ctx context.Context, recipient common.Address,
	name [32]byte) (*types.Receipt, error) {
	return c.transact(ctx, c.manager, "addFavorite", recipient, name)
}

// AddCharity registers a charity. Only the contract owner may do this.
func (c *Client) AddCharity(ctx context.Context, wallet common.Address,
	name [32]byte, metadataURI string) (*types.Receipt, error) {
	return c.transact(ctx, c.manager, "addCharity", wallet, name, metadataURI)
}

// RemoveCharity deactivates a charity. Only the contract owner may do this.
func (c *Client) RemoveCharity(ctx context.Context,
	id uint64) (*types.Receipt, error) {
	return c.transact(ctx, c.manager, "removeCharity",
		new(big.Int).SetUint64(id))
}

func (c *Client) transact(ctx context.Context, contract *bind.BoundContract,
	method string, args ...interface{}) (*types.Receipt, error) {
	if c.opts == nil {
		return nil, ErrReadOnly
	}

	opts := *c.opts
	opts.Context = ctx

	if c.confirm != nil {
		sign := opts.Signer
		opts.Signer = func(from common.Address,
			tx *types.Transaction) (*types.Transaction, error) {
			if !c.confirm(method, tx) {
				return nil, ErrUserRejected
			}
			return sign(from, tx)
		}
	}

	tx, err := contract.Transact(&opts, method, args...)
	if err != nil {
		return nil, classify(method, err)
	}

	c.logger.Info("Transaction sent", "method", method,
		"hash", tx.Hash())

	receipt, err := bind.WaitMined(ctx, c.backend, tx)
	if err != nil {
		// Already broadcast, the outcome is unknown.
		return &types.Receipt{TxHash: tx.Hash()}, errors.Wrapf(ErrUnconfirmed,
			"%s %s: %v", method, tx.Hash().Hex(), err)
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, errors.Wrapf(ErrReverted, "%s %s", method,
			tx.Hash().Hex())
	}

	c.logger.Info("Transaction confirmed", "method", method,
		"hash", tx.Hash(), "block", receipt.BlockNumber)

	return receipt, nil
}
