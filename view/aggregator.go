// Package view decodes ledger views into display entries.
package view

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"

	"github.com/dzeckelev/gift-ledger/data"
	"github.com/dzeckelev/gift-ledger/eth"
	"github.com/dzeckelev/gift-ledger/ipfs"
	"github.com/dzeckelev/gift-ledger/names"
	"github.com/dzeckelev/gift-ledger/proc"
)

// Placeholders for undecodable fields.
const (
	UnknownFavorite    = names.Unknown
	NoDescription      = "No description available"
	MessageUnavailable = "Message unavailable"
)

// Directions of a history entry relative to its viewer.
const (
	Sent     = "sent"
	Received = "received"
)

// Views hands out a fresh metadata memo per rendered view.
type Views interface {
	View() *ipfs.Cache
}

// GiftEntry is a gift decorated for a viewer.
type GiftEntry struct {
	data.Gift
	Direction  string
	CanRedeem  bool
	GiftType   string
	Message    string
	MessageCID string
}

// Aggregator builds point-in-time views over the ledger.
type Aggregator struct {
	ledger  eth.Ledger
	scanner *proc.Scanner
	views   Views
	logger  log.Logger
}

// NewAggregator creates a new aggregator.
func NewAggregator(ledger eth.Ledger, scanner *proc.Scanner,
	views Views) *Aggregator {
	return &Aggregator{
		ledger:  ledger,
		scanner: scanner,
		views:   views,
		logger:  log.New("module", "view"),
	}
}

func (a *Aggregator) zipLen(view string, lengths ...int) int {
	n := lengths[0]
	mismatch := false
	for _, l := range lengths[1:] {
		if l != n {
			mismatch = true
		}
		if l < n {
			n = l
		}
	}

	if mismatch {
		a.logger.Warn("Parallel arrays differ in length", "view", view,
			"lengths", lengths, "used", n)
	}

	return n
}

func toUint64(v *big.Int) uint64 {
	if v == nil || v.Sign() < 0 || !v.IsUint64() {
		return 0
	}
	return v.Uint64()
}

// Charities decodes the charities view. It never fails: every entry gets a
// name, from metadata, then from the name field, then from its id.
func (a *Aggregator) Charities(ctx context.Context,
	raw *data.RawCharities) []data.Charity {
	if raw == nil {
		return nil
	}

	var n int
	if raw.Schema == data.SchemaLegacy {
		n = a.zipLen("charities", len(raw.IDs), len(raw.Addresses),
			len(raw.Names), len(raw.Descriptions))
	} else {
		n = a.zipLen("charities", len(raw.IDs), len(raw.Addresses),
			len(raw.Names), len(raw.MetadataRefs))
	}

	cache := a.views.View()
	result := make([]data.Charity, 0, n)

	for i := 0; i < n; i++ {
		c := data.Charity{
			ID:        toUint64(raw.IDs[i]),
			Address:   raw.Addresses[i],
			Schema:    raw.Schema,
			NameField: raw.Names[i],
		}

		if raw.Schema == data.SchemaLegacy {
			c.Description = legacyDescription(raw.Descriptions[i])
		} else {
			c.MetadataRef = raw.MetadataRefs[i]
			a.resolveCharity(ctx, cache, &c)
		}

		if c.Name == "" {
			c.Name = names.DecodeOr(c.NameField, "")
		}
		if c.Name == "" {
			c.Name = fmt.Sprintf("Charity #%d", c.ID)
		}
		if c.Description == "" {
			c.Description = NoDescription
		}

		result = append(result, c)
	}

	return result
}

func (a *Aggregator) resolveCharity(ctx context.Context, cache *ipfs.Cache,
	c *data.Charity) {
	if strings.TrimSpace(c.MetadataRef) == "" {
		return
	}

	meta, err := ipfs.ResolveCharity(ctx, cache, c.MetadataRef)
	if err != nil {
		a.logger.Debug("Charity metadata unavailable", "id", c.ID,
			"ref", c.MetadataRef, "err", err)
		return
	}

	c.Name = strings.TrimSpace(meta.Name)
	c.Description = strings.TrimSpace(meta.Description)
	c.Logo = meta.Logo
	c.Website = meta.Website
}

// legacyDescription reads a bytes32 description, which may hold a short
// JSON object with a description key.
func legacyDescription(field [32]byte) string {
	text, ok := names.Decode(field)
	if !ok {
		return ""
	}

	if strings.HasPrefix(text, "{") {
		var doc struct {
			Description string `json:"description"`
		}
		if err := json.Unmarshal([]byte(text), &doc); err == nil {
			if d := strings.TrimSpace(doc.Description); d != "" {
				return d
			}
		}
	}

	return text
}

// Favorites decodes a favorites view.
func (a *Aggregator) Favorites(raw *data.RawFavorites) []data.Favorite {
	if raw == nil {
		return nil
	}

	n := a.zipLen("favorites", len(raw.Recipients), len(raw.Names),
		len(raw.GiftCounts), len(raw.TotalAmounts))
	result := make([]data.Favorite, 0, n)

	for i := 0; i < n; i++ {
		total := new(big.Int)
		if raw.TotalAmounts[i] != nil {
			total.Set(raw.TotalAmounts[i])
		}

		result = append(result, data.Favorite{
			Recipient:   raw.Recipients[i],
			EncodedName: raw.Names[i],
			Name:        names.DecodeOr(raw.Names[i], UnknownFavorite),
			GiftCount:   toUint64(raw.GiftCounts[i]),
			TotalAmount: total,
		})
	}

	return result
}

// TopGifters decodes the leaderboard, dropping empty slots.
func (a *Aggregator) TopGifters(raw *data.RawTopGifters) []data.TopGifter {
	if raw == nil {
		return nil
	}

	n := a.zipLen("topGifters", len(raw.Addresses), len(raw.Counts))
	result := make([]data.TopGifter, 0, n)

	for i := 0; i < n; i++ {
		count := toUint64(raw.Counts[i])
		if raw.Addresses[i] == (common.Address{}) || count == 0 {
			continue
		}

		result = append(result, data.TopGifter{
			Address: raw.Addresses[i],
			Count:   count,
		})
	}

	return result
}

// LoadCharities reads and decodes the charities view.
func (a *Aggregator) LoadCharities(ctx context.Context) ([]data.Charity, error) {
	raw, err := a.ledger.Charities(ctx)
	if err != nil {
		return nil, err
	}
	return a.Charities(ctx, raw), nil
}

// LoadFavorites reads and decodes the favorites of owner.
func (a *Aggregator) LoadFavorites(ctx context.Context,
	owner common.Address) ([]data.Favorite, error) {
	raw, err := a.ledger.Favorites(ctx, owner)
	if err != nil {
		return nil, err
	}
	return a.Favorites(raw), nil
}

// LoadTopGifters reads and decodes the leaderboard.
func (a *Aggregator) LoadTopGifters(ctx context.Context) ([]data.TopGifter,
	error) {
	raw, err := a.ledger.TopGifters(ctx)
	if err != nil {
		return nil, err
	}
	return a.TopGifters(raw), nil
}

// History returns every gift sent or received by owner, newest first.
func (a *Aggregator) History(ctx context.Context,
	owner common.Address) ([]*GiftEntry, error) {
	count, err := a.ledger.GiftCount(ctx)
	if err != nil {
		return nil, err
	}

	gifts := a.scanner.Scan(ctx, count, proc.Involves(owner))

	entries := make([]*GiftEntry, len(gifts))
	for i, g := range gifts {
		entries[i] = entry(g, owner)
	}

	cache := a.views.View()

	var group errgroup.Group
	group.SetLimit(a.scanner.BatchSize())
	for _, e := range entries {
		group.Go(func() error {
			a.resolveMessage(ctx, cache, e)
			return nil
		})
	}
	_ = group.Wait()

	return entries, nil
}

// Gift returns a single gift as seen by viewer.
func (a *Aggregator) Gift(ctx context.Context, id uint64,
	viewer common.Address) (*GiftEntry, error) {
	g, err := a.ledger.Gift(ctx, id)
	if err != nil {
		return nil, err
	}

	e := entry(g, viewer)
	a.resolveMessage(ctx, a.views.View(), e)

	return e, nil
}

func entry(g *data.Gift, viewer common.Address) *GiftEntry {
	e := &GiftEntry{Gift: *g, Direction: Sent}
	if g.Recipient == viewer {
		e.Direction = Received
		e.CanRedeem = !g.Redeemed
	}
	return e
}

func (a *Aggregator) resolveMessage(ctx context.Context, cache *ipfs.Cache,
	e *GiftEntry) {
	if e.MessageRef == (common.Hash{}) {
		return
	}

	e.MessageCID = ipfs.CIDFromRef(e.MessageRef)

	meta, err := ipfs.ResolveGift(ctx, cache, e.MessageCID)
	if err != nil {
		a.logger.Debug("Gift metadata unavailable", "id", e.ID,
			"cid", e.MessageCID, "err", err)
		e.Message = MessageUnavailable
		return
	}

	e.GiftType = meta.GiftType
	e.Message = meta.Message
}
