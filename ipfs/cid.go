package ipfs

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
	"github.com/pkg/errors"
)

// RefFromCID packs a sha2-256 dag-pb content address into a bytes32 field.
func RefFromCID(address string) (common.Hash, error) {
	c, err := cid.Decode(StripScheme(address))
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "invalid content address")
	}

	if c.Type() != cid.DagProtobuf {
		return common.Hash{}, errors.Errorf("unsupported codec: %d", c.Type())
	}

	decoded, err := mh.Decode(c.Hash())
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "invalid multihash")
	}

	if decoded.Code != mh.SHA2_256 || len(decoded.Digest) != common.HashLength {
		return common.Hash{}, errors.Errorf("unsupported multihash: %s",
			mh.Codes[decoded.Code])
	}

	return common.BytesToHash(decoded.Digest), nil
}

// CIDFromRef renders a bytes32 field as a CIDv0 content address.
func CIDFromRef(ref common.Hash) string {
	hash, err := mh.Encode(ref.Bytes(), mh.SHA2_256)
	if err != nil {
		// Only possible for digests of the wrong length.
		return ""
	}
	return cid.NewCidV0(hash).String()
}
