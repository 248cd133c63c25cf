package eth

import (
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned for ids the ledger never assigned.
	ErrNotFound = errors.New("gift not found")
	// ErrReverted is returned when the ledger rejected a transaction.
	ErrReverted = errors.New("transaction reverted")
	// ErrUserRejected is returned when the account owner declined to sign.
	ErrUserRejected = errors.New("user rejected the request")
	// ErrReadOnly is returned for writes on a client without a signer.
	ErrReadOnly = errors.New("client has no signer")
	// ErrUnconfirmed is returned when a broadcast transaction was not seen
	// mined. It may still confirm.
	ErrUnconfirmed = errors.New("transaction not confirmed")
)

// classify maps transport and node errors onto the module's sentinels.
func classify(method string, err error) error {
	if errors.Is(err, ErrUserRejected) {
		return errors.Wrap(err, method)
	}

	var dataErr rpc.DataError
	msg := strings.ToLower(err.Error())

	if strings.Contains(msg, "execution reverted") ||
		(errors.As(err, &dataErr) && dataErr.ErrorData() != nil) {
		return errors.Wrapf(ErrReverted, "%s: %v", method, err)
	}

	if strings.Contains(msg, "user rejected") ||
		strings.Contains(msg, "user denied") {
		return errors.Wrapf(ErrUserRejected, "%s: %v", method, err)
	}

	return errors.Wrap(err, method)
}
