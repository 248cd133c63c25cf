package eth

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
)

// SyncReader is the part of a node client WaitSync needs.
type SyncReader interface {
	SyncProgress(ctx context.Context) (*ethereum.SyncProgress, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// WaitSync waits for the synchronization of the node. Reads against a
// syncing node return stale or missing records.
func WaitSync(ctx context.Context, client SyncReader,
	pauseTime time.Duration) error {
	for {
		progress, err := client.SyncProgress(ctx)
		if err != nil {
			return err
		}

		if progress == nil {
			header, err := client.HeaderByNumber(ctx, nil)
			if err != nil {
				return err
			}

			if header.Number.Cmp(big.NewInt(0)) > 0 {
				break
			}
		} else {
			log.Info("Node is syncing",
				"startingBlock", progress.StartingBlock,
				"currentBlock", progress.CurrentBlock,
				"highestBlock", progress.HighestBlock)
		}

		select {
		case <-time.After(pauseTime):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	log.Info("Ethereum node synchronized")

	return nil
}
