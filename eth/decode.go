package eth

import (
	"math/big"
	"unicode"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/dzeckelev/gift-ledger/data"
)

// errShape is returned when call output does not match the expected layout.
var errShape = errors.New("unexpected output shape")

func shapeErr(view string, index int) error {
	return errors.Wrapf(errShape, "%s: output %d", view, index)
}

func decodeGift(id uint64, out []interface{}) (*data.Gift, error) {
	if len(out) != 8 {
		return nil, errors.Wrapf(errShape, "gifts: %d outputs", len(out))
	}

	gift := &data.Gift{ID: id}
	var ok bool

	if gift.Sender, ok = out[0].(common.Address); !ok {
		return nil, shapeErr("gifts", 0)
	}
	if gift.Recipient, ok = out[1].(common.Address); !ok {
		return nil, shapeErr("gifts", 1)
	}
	if gift.Amount, ok = out[2].(*big.Int); !ok {
		return nil, shapeErr("gifts", 2)
	}

	typeTag, ok := out[3].([32]byte)
	if !ok {
		return nil, shapeErr("gifts", 3)
	}
	gift.TypeTag = common.Hash(typeTag)

	messageRef, ok := out[4].([32]byte)
	if !ok {
		return nil, shapeErr("gifts", 4)
	}
	gift.MessageRef = common.Hash(messageRef)

	if gift.IsCharity, ok = out[5].(bool); !ok {
		return nil, shapeErr("gifts", 5)
	}
	if gift.Redeemed, ok = out[6].(bool); !ok {
		return nil, shapeErr("gifts", 6)
	}

	timestamp, ok := out[7].(*big.Int)
	if !ok || !timestamp.IsUint64() {
		return nil, shapeErr("gifts", 7)
	}
	gift.Timestamp = timestamp.Uint64()

	// Mapping getters return a zero struct for ids that were never written.
	if gift.Sender == (common.Address{}) {
		return nil, errors.Wrapf(ErrNotFound, "gift %d", id)
	}

	return gift, nil
}

// decodeCharities tries the current layout first and the legacy one after.
func decodeCharities(current, legacy abi.ABI,
	raw []byte) (*data.RawCharities, error) {
	result, err := decodeCurrentCharities(current, raw)
	if err == nil {
		return result, nil
	}

	result, legacyErr := decodeLegacyCharities(legacy, raw)
	if legacyErr != nil {
		return nil, errors.Wrapf(err, "legacy layout: %v", legacyErr)
	}

	return result, nil
}

func decodeCurrentCharities(a abi.ABI,
	raw []byte) (*data.RawCharities, error) {
	out, err := a.Unpack("getCharities", raw)
	if err != nil {
		return nil, err
	}

	if len(out) != 4 {
		return nil, errors.Wrapf(errShape, "getCharities: %d outputs", len(out))
	}

	result := &data.RawCharities{Schema: data.SchemaCurrent}
	if err := charityColumns(result, out); err != nil {
		return nil, err
	}

	refs, ok := out[3].([]string)
	if !ok {
		return nil, shapeErr("getCharities", 3)
	}

	// Legacy bytes32 data can occasionally unpack as strings, those are
	// never printable content addresses.
	for _, ref := range refs {
		if !printable(ref) {
			return nil, errors.Wrap(errShape, "getCharities: binary reference")
		}
	}
	result.MetadataRefs = refs

	return result, nil
}

func decodeLegacyCharities(a abi.ABI,
	raw []byte) (*data.RawCharities, error) {
	out, err := a.Unpack("getCharities", raw)
	if err != nil {
		return nil, err
	}

	if len(out) != 4 {
		return nil, errors.Wrapf(errShape, "getCharities: %d outputs", len(out))
	}

	result := &data.RawCharities{Schema: data.SchemaLegacy}
	if err := charityColumns(result, out); err != nil {
		return nil, err
	}

	if result.Descriptions, err = bytes32s(out[3]); err != nil {
		return nil, shapeErr("getCharities", 3)
	}

	return result, nil
}

func charityColumns(result *data.RawCharities, out []interface{}) error {
	var ok bool
	var err error

	if result.IDs, ok = out[0].([]*big.Int); !ok {
		return shapeErr("getCharities", 0)
	}
	if result.Addresses, ok = out[1].([]common.Address); !ok {
		return shapeErr("getCharities", 1)
	}
	if result.Names, err = bytes32s(out[2]); err != nil {
		return shapeErr("getCharities", 2)
	}

	return nil
}

func decodeFavorites(out []interface{}) (*data.RawFavorites, error) {
	if len(out) != 4 {
		return nil, errors.Wrapf(errShape, "getFavorites: %d outputs", len(out))
	}

	result := &data.RawFavorites{}
	var ok bool
	var err error

	if result.Recipients, ok = out[0].([]common.Address); !ok {
		return nil, shapeErr("getFavorites", 0)
	}
	if result.Names, err = bytes32s(out[1]); err != nil {
		return nil, shapeErr("getFavorites", 1)
	}
	if result.GiftCounts, ok = out[2].([]*big.Int); !ok {
		return nil, shapeErr("getFavorites", 2)
	}
	if result.TotalAmounts, ok = out[3].([]*big.Int); !ok {
		return nil, shapeErr("getFavorites", 3)
	}

	return result, nil
}

func decodeTopGifters(out []interface{}) (*data.RawTopGifters, error) {
	if len(out) != 2 {
		return nil, errors.Wrapf(errShape, "getTopGifters: %d outputs", len(out))
	}

	result := &data.RawTopGifters{}
	var ok bool

	if result.Addresses, ok = out[0].([]common.Address); !ok {
		return nil, shapeErr("getTopGifters", 0)
	}
	if result.Counts, ok = out[1].([]*big.Int); !ok {
		return nil, shapeErr("getTopGifters", 1)
	}

	return result, nil
}

func decodeUint(method string, out []interface{}) (*big.Int, error) {
	if len(out) != 1 {
		return nil, errors.Wrapf(errShape, "%s: %d outputs", method, len(out))
	}

	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, shapeErr(method, 0)
	}

	return v, nil
}

func bytes32s(v interface{}) ([][32]byte, error) {
	fields, ok := v.([][32]byte)
	if !ok {
		return nil, errShape
	}
	return fields, nil
}

func printable(s string) bool {
	if !utf8.ValidString(s) {
		return false
	}

	for _, r := range s {
		if !unicode.IsPrint(r) {
			return false
		}
	}

	return true
}
