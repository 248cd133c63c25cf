package proc

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/dzeckelev/gift-ledger/config"
	"github.com/dzeckelev/gift-ledger/data"
	"github.com/dzeckelev/gift-ledger/metrics"
)

// DefaultBatchSize bounds concurrent record reads of a scan.
const DefaultBatchSize = 10

// GiftReader reads single ledger records.
type GiftReader interface {
	Gift(ctx context.Context, id uint64) (*data.Gift, error)
}

// Predicate selects gifts of interest.
type Predicate func(g *data.Gift) bool

// Involves matches gifts sent or received by addr.
func Involves(addr common.Address) Predicate {
	return func(g *data.Gift) bool {
		return g.Sender == addr || g.Recipient == addr
	}
}

// SentBy matches gifts sent by addr.
func SentBy(addr common.Address) Predicate {
	return func(g *data.Gift) bool {
		return g.Sender == addr
	}
}

// ReceivedBy matches gifts received by addr.
func ReceivedBy(addr common.Address) Predicate {
	return func(g *data.Gift) bool {
		return g.Recipient == addr
	}
}

// Batch is an inclusive id range.
type Batch struct {
	First uint64
	Last  uint64
}

// Size returns the number of ids in the batch.
func (b Batch) Size() int {
	return int(b.Last - b.First + 1)
}

// Batches partitions ids [1..count] into consecutive ranges of size ids.
func Batches(count uint64, size int) []Batch {
	if count == 0 || size <= 0 {
		return nil
	}

	step := uint64(size)
	result := make([]Batch, 0, (count+step-1)/step)

	for first := uint64(1); first <= count; first += step {
		last := first + step - 1
		if last > count {
			last = count
		}
		result = append(result, Batch{First: first, Last: last})
	}

	return result
}

// Scanner rebuilds filtered views of the ledger from single record reads.
type Scanner struct {
	reader      GiftReader
	batchSize   int
	readTimeout time.Duration
	metrics     *metrics.Metrics
	logger      log.Logger
}

// NewScanner creates a new scanner.
func NewScanner(reader GiftReader, cfg *config.Proc,
	m *metrics.Metrics) *Scanner {
	size := cfg.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}

	return &Scanner{
		reader:      reader,
		batchSize:   size,
		readTimeout: time.Duration(cfg.ReadTimeout) * time.Millisecond,
		metrics:     m,
		logger:      log.New("module", "scan"),
	}
}

// BatchSize returns the number of reads the scanner keeps in flight.
func (s *Scanner) BatchSize() int {
	return s.batchSize
}

// Scan reads ids [1..count] batch by batch and returns gifts matching pred,
// newest first. Unreadable ids are skipped. A cancelled context stops the
// scan after the current batch and returns what was read so far.
func (s *Scanner) Scan(ctx context.Context, count uint64,
	pred Predicate) []*data.Gift {
	if count == 0 {
		return nil
	}

	started := time.Now()
	var found []*data.Gift
	var skipped int

	for _, batch := range Batches(count, s.batchSize) {
		if ctx.Err() != nil {
			s.logger.Debug("Scan interrupted", "next", batch.First,
				"err", ctx.Err())
			break
		}

		gifts := s.readBatch(ctx, batch)
		for _, g := range gifts {
			if g == nil {
				skipped++
				continue
			}
			if pred == nil || pred(g) {
				found = append(found, g)
			}
		}

		s.metrics.ScanBatch()
	}

	SortNewestFirst(found)

	s.metrics.ScanDone(time.Since(started).Seconds())
	s.logger.Debug("Scan finished", "count", count, "matched", len(found),
		"skipped", skipped, "elapsed", time.Since(started))

	return found
}

// readBatch reads every id of a batch concurrently and waits for all of
// them. Failed reads leave a nil slot.
func (s *Scanner) readBatch(ctx context.Context, batch Batch) []*data.Gift {
	result := make([]*data.Gift, batch.Size())

	var wg sync.WaitGroup
	wg.Add(len(result))

	for k := range result {
		go func(k int) {
			defer wg.Done()

			id := batch.First + uint64(k)
			g, err := s.read(ctx, id)
			s.metrics.ScanRead(err == nil)
			if err != nil {
				s.logger.Trace("Skipping unreadable gift", "id", id,
					"err", err)
				return
			}

			result[k] = g
		}(k)
	}

	wg.Wait()

	return result
}

func (s *Scanner) read(ctx context.Context, id uint64) (*data.Gift, error) {
	if s.readTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.readTimeout)
		defer cancel()
	}

	return s.reader.Gift(ctx, id)
}

// SortNewestFirst orders gifts by timestamp descending, ties by id
// descending.
func SortNewestFirst(gifts []*data.Gift) {
	sort.SliceStable(gifts, func(i, j int) bool {
		if gifts[i].Timestamp != gifts[j].Timestamp {
			return gifts[i].Timestamp > gifts[j].Timestamp
		}
		return gifts[i].ID > gifts[j].ID
	})
}
