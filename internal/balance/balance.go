// Package balance reads an account's free balance over a per-call ledger connection.
package balance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/DAOsign/daosign-go/internal/ledger"
)

var ErrInvalidAddress = errors.New("balance: invalid address")

// Query returns the free balance of address as a decimal string.
//
// Errors from the ledger are returned unchanged; the connection is closed on every path.
func Query(ctx context.Context, dialer ledger.Dialer, address string) (string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", ErrInvalidAddress
	}
	if dialer == nil {
		return "", fmt.Errorf("balance: nil dialer")
	}

	conn, err := dialer.Dial(ctx)
	if err != nil {
		return "", err
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			slog.Default().Warn("release connection", "err", cerr)
		}
	}()

	free, err := conn.FreeBalance(ctx, address)
	if err != nil {
		return "", err
	}
	if free == nil {
		return "0", nil
	}
	return free.String(), nil
}
