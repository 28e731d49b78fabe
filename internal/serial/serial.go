// Package serial builds human-readable document numbers such as
// ORD20260314120000A1B2C3.
package serial

import (
	"fmt"
	"strings"
	"time"

	"github.com/nanorand/nanorand"
)

const (
	PrefixOrder   = "ORD"
	PrefixPayment = "PAY"
	PrefixRefund  = "RFD"
)

func New(prefix string, now time.Time) (string, error) {
	rng, err := nanorand.Gen(6)
	if err != nil {
		return "", fmt.Errorf("serial: %w", err)
	}
	return prefix + now.UTC().Format("20060102150405") + strings.ToUpper(rng), nil
}
