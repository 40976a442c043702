// README: Common money value object used across modules.
package types

// Money holds an amount in the smallest currency unit (e.g. kobo, cents).
type Money struct {
	Amount   int64
	Currency string
}

// WithinMinorUnit reports whether two amounts differ by at most one smallest
// currency unit, the tolerance used when reconciling gateway settlements.
func (m Money) WithinMinorUnit(other Money) bool {
	if m.Currency != other.Currency {
		return false
	}
	d := m.Amount - other.Amount
	if d < 0 {
		d = -d
	}
	return d <= 1
}
