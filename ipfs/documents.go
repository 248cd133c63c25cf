package ipfs

import (
	"context"
	"strings"
)

// GiftMetadata is the document referenced by a gift's message field.
type GiftMetadata struct {
	GiftType  string `json:"giftType"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"` // In milliseconds.
	Sender    string `json:"sender,omitempty"`
}

// PinName implements Pinner.
func (m *GiftMetadata) PinName() string {
	return "gift-" + slug(m.GiftType)
}

// CharityMetadata is the document referenced by a charity's metadata field.
type CharityMetadata struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Logo        string `json:"logo,omitempty"`
	Website     string `json:"website,omitempty"`
}

// PinName implements Pinner.
func (m *CharityMetadata) PinName() string {
	return "charity-" + slug(m.Name)
}

func slug(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), "-")
}

// ResolveGift resolves and decodes gift metadata.
func ResolveGift(ctx context.Context, src Source,
	address string) (*GiftMetadata, error) {
	doc, err := src.Resolve(ctx, address)
	if err != nil {
		return nil, err
	}

	var meta GiftMetadata
	if err := doc.Decode(&meta); err != nil {
		return nil, err
	}

	return &meta, nil
}

// ResolveCharity resolves and decodes charity metadata.
func ResolveCharity(ctx context.Context, src Source,
	address string) (*CharityMetadata, error) {
	doc, err := src.Resolve(ctx, address)
	if err != nil {
		return nil, err
	}

	var meta CharityMetadata
	if err := doc.Decode(&meta); err != nil {
		return nil, err
	}

	return &meta, nil
}
