// Package ipfs resolves and publishes JSON documents on the content
// addressed store referenced by ledger records.
package ipfs

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"

	"github.com/dzeckelev/gift-ledger/config"
	"github.com/dzeckelev/gift-ledger/metrics"
)

var (
	// ErrMetadataUnavailable is returned when no gateway served a document.
	ErrMetadataUnavailable = errors.New("metadata unavailable")
	// ErrPublishFailed is returned when a document could not be pinned.
	ErrPublishFailed = errors.New("publish failed")
)

// Largest document accepted from a gateway.
const maxDocumentSize = 1 << 20

// Document is a raw JSON document from the store.
type Document json.RawMessage

// Decode unmarshals the document into v.
func (d Document) Decode(v interface{}) error {
	return json.Unmarshal(d, v)
}

// Source resolves content addresses.
type Source interface {
	Resolve(ctx context.Context, address string) (Document, error)
}

// Resolver reads documents through a primary gateway and ordered
// fallbacks, and publishes them through a single pinning endpoint.
type Resolver struct {
	client    *http.Client
	gateways  []string
	pinataURL string
	pinataJWT string
	cacheSize int
	metrics   *metrics.Metrics
	logger    log.Logger
}

// NewResolver creates a new resolver. The primary gateway is always tried
// first, duplicates in the fallback list are skipped.
func NewResolver(cfg *config.IPFS, m *metrics.Metrics) *Resolver {
	gateways := []string{normalizeGateway(cfg.Gateway)}
	seen := map[string]bool{gateways[0]: true}

	for _, gw := range cfg.Fallbacks {
		gw = normalizeGateway(gw)
		if gw == "" || seen[gw] {
			continue
		}
		seen[gw] = true
		gateways = append(gateways, gw)
	}

	return &Resolver{
		client: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Millisecond,
		},
		gateways:  gateways,
		pinataURL: strings.TrimRight(cfg.PinataURL, "/"),
		pinataJWT: cfg.PinataJWT,
		cacheSize: cfg.CacheSize,
		metrics:   m,
		logger:    log.New("module", "ipfs"),
	}
}

func normalizeGateway(gw string) string {
	gw = strings.TrimRight(strings.TrimSpace(gw), "/")
	return strings.TrimSuffix(gw, "/ipfs")
}

// StripScheme removes "ipfs://" and "/ipfs/" style prefixes.
func StripScheme(address string) string {
	address = strings.TrimSpace(address)
	address = strings.TrimPrefix(address, "ipfs://")
	address = strings.TrimPrefix(address, "/")
	address = strings.TrimPrefix(address, "ipfs/")
	return address
}

// Resolve fetches and parses a document, trying each gateway in order.
func (r *Resolver) Resolve(ctx context.Context,
	address string) (Document, error) {
	cid := StripScheme(address)
	if cid == "" {
		return nil, errors.Wrap(ErrMetadataUnavailable, "empty address")
	}

	var lastErr error
	for k, gw := range r.gateways {
		doc, err := r.fetch(ctx, gw, cid)
		r.metrics.GatewayRequest(gw, err == nil)
		if err == nil {
			return doc, nil
		}

		lastErr = err
		r.logger.Debug("Gateway failed", "cid", cid, "gateway", gw,
			"fallback", k > 0, "err", err)

		if ctx.Err() != nil {
			break
		}
	}

	return nil, errors.Wrapf(ErrMetadataUnavailable, "%s: %v", cid, lastErr)
}

func (r *Resolver) fetch(ctx context.Context,
	gateway, cid string) (Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		gateway+"/ipfs/"+cid, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Errorf("unexpected status: %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return nil, err
	}

	if !json.Valid(body) {
		return nil, errors.New("malformed json document")
	}

	return Document(body), nil
}

// Pinner is implemented by documents that carry their own pin name.
type Pinner interface {
	PinName() string
}

type pinRequest struct {
	Content  interface{} `json:"pinataContent"`
	Metadata *pinMeta    `json:"pinataMetadata,omitempty"`
}

type pinMeta struct {
	Name string `json:"name"`
}

type pinResponse struct {
	IpfsHash string `json:"IpfsHash"`
}

// Publish pins a document and returns its content address.
func (r *Resolver) Publish(ctx context.Context,
	doc interface{}) (string, error) {
	if r.pinataJWT == "" {
		return "", errors.Wrap(ErrPublishFailed, "pinning credential is absent")
	}

	pin := pinRequest{Content: doc}
	if p, ok := doc.(Pinner); ok {
		pin.Metadata = &pinMeta{Name: p.PinName()}
	}

	body, err := json.Marshal(pin)
	if err != nil {
		return "", errors.Wrapf(ErrPublishFailed, "encode: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		r.pinataURL+"/pinning/pinJSONToIPFS", bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrapf(ErrPublishFailed, "request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.pinataJWT)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", errors.Wrapf(ErrPublishFailed, "%v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", errors.Wrapf(ErrPublishFailed, "unexpected status %s: %s",
			resp.Status, bytes.TrimSpace(msg))
	}

	var result pinResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", errors.Wrapf(ErrPublishFailed, "decode response: %v", err)
	}

	if result.IpfsHash == "" {
		return "", errors.Wrap(ErrPublishFailed, "empty content address")
	}

	r.logger.Info("Published document", "cid", result.IpfsHash)

	return result.IpfsHash, nil
}
