package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// CommissionPolicy configures how a delivered order's total is split.
// When DriverRate is non-zero it replaces DriverFlatFee.
type CommissionPolicy struct {
	BusinessRate  decimal.Decimal
	DriverRate    decimal.Decimal
	DriverFlatFee int64
}

// Validate checks that the rates are within [0, 1] and the fee is not negative.
func (p CommissionPolicy) Validate() error {
	one := decimal.NewFromInt(1)
	if p.BusinessRate.IsNegative() || p.BusinessRate.GreaterThan(one) {
		return fmt.Errorf("business rate %s out of range", p.BusinessRate)
	}
	if p.DriverRate.IsNegative() || p.DriverRate.GreaterThan(one) {
		return fmt.Errorf("driver rate %s out of range", p.DriverRate)
	}
	if p.DriverFlatFee < 0 {
		return fmt.Errorf("driver flat fee %d is negative", p.DriverFlatFee)
	}
	return nil
}

// Split is the three-way division of an order total.
type Split struct {
	Business int64 `json:"business"`
	Driver   int64 `json:"driver"`
	Platform int64 `json:"platform"`
}

// Total returns the sum of all shares.
func (s Split) Total() int64 {
	return s.Business + s.Driver + s.Platform
}

// ComputeSplit divides total between business, driver and platform. The
// shares always sum to total and none is negative.
func ComputeSplit(total int64, p CommissionPolicy) Split {
	if total <= 0 {
		return Split{}
	}
	t := decimal.NewFromInt(total)

	business := t.Mul(p.BusinessRate).Round(0).IntPart()
	if business > total {
		business = total
	}

	driver := p.DriverFlatFee
	if !p.DriverRate.IsZero() {
		driver = t.Mul(p.DriverRate).Round(0).IntPart()
	}
	if driver > total-business {
		driver = total - business
	}

	return Split{
		Business: business,
		Driver:   driver,
		Platform: total - business - driver,
	}
}
