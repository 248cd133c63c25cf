// Package gen generates identifiers.
package gen

import "github.com/satori/go.uuid"

// NewID returns a random identifier prefixed with kind, e.g.
// "sendGift-6ba7b810-9dad-41d1-80b4-00c04fd430c8". An empty kind gives a
// bare uuid.
func NewID(kind string) string {
	id := uuid.Must(uuid.NewV4()).String()
	if kind == "" {
		return id
	}
	return kind + "-" + id
}
