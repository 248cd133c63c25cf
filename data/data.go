package data

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Gift is a single ledger record. Only Redeemed ever changes once written.
type Gift struct {
	ID         uint64
	Sender     common.Address
	Recipient  common.Address
	Amount     *big.Int // In the token's smallest unit.
	TypeTag    common.Hash
	MessageRef common.Hash
	IsCharity  bool
	Redeemed   bool
	Timestamp  uint64 // Seconds since epoch.
}

// Schema identifies which charity wire layout the ledger returned.
type Schema int

const (
	// SchemaCurrent carries a single content address per charity.
	SchemaCurrent Schema = iota
	// SchemaLegacy carries a bytes32 name and a bytes32 description.
	SchemaLegacy
)

func (s Schema) String() string {
	if s == SchemaLegacy {
		return "legacy"
	}
	return "current"
}

// RawCharities is the parallel-array shape of the charities view.
// For SchemaLegacy MetadataRefs is empty and Descriptions is set.
type RawCharities struct {
	Schema       Schema
	IDs          []*big.Int
	Addresses    []common.Address
	Names        [][32]byte
	MetadataRefs []string
	Descriptions [][32]byte
}

// RawFavorites is the parallel-array shape of the favorites view.
type RawFavorites struct {
	Recipients   []common.Address
	Names        [][32]byte
	GiftCounts   []*big.Int
	TotalAmounts []*big.Int
}

// RawTopGifters is the parallel-array shape of the leaderboard view.
type RawTopGifters struct {
	Addresses []common.Address
	Counts    []*big.Int
}

// Charity is a decoded charities view entry.
type Charity struct {
	ID          uint64
	Address     common.Address
	Name        string
	Description string
	Logo        string
	Website     string
	Schema      Schema
	NameField   [32]byte
	MetadataRef string
}

// Favorite is a decoded favorites view entry of the calling account.
type Favorite struct {
	Recipient   common.Address
	EncodedName [32]byte
	Name        string
	GiftCount   uint64
	TotalAmount *big.Int
}

// TopGifter is a leaderboard entry.
type TopGifter struct {
	Address common.Address
	Count   uint64
}

// SendGiftArgs are the arguments of the sendGift ledger call.
type SendGiftArgs struct {
	Recipient  common.Address
	Amount     *big.Int
	TypeTag    common.Hash
	MessageRef common.Hash
	IsCharity  bool
}

// Submission is a journal row of one orchestrated submission.
type Submission struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	State       string    `json:"state"`
	Class       string    `json:"class"`
	Recipient   string    `json:"recipient"`
	Amount      *string   `json:"amount"`
	PredictedID *uint64   `json:"predictedId"`
	RecordID    *uint64   `json:"recordId"`
	ApprovalTx  *string   `json:"approvalTx"`
	ActionTx    *string   `json:"actionTx"`
	Error       *string   `json:"error"`
	Created     time.Time `json:"created"`
	Updated     time.Time `json:"updated"`
}
