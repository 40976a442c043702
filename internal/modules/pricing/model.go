// README: Delivery-fee rate definitions.
package pricing

import "errors"

// Rate is the per-currency delivery fee schedule: a base fee plus a per-km
// component, both in the smallest currency unit.
type Rate struct {
	Currency string
	BaseFee  int64
	PerKm    int64
}

var ErrRateNotFound = errors.New("no rate for currency")
