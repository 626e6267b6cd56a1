package models

import (
	"context"
	"time"
)

// RateClient fetches the latest quote for the watched pair.
type RateClient interface {
	GetRate(ctx context.Context) (float64, error)
}

// RangeClient fetches the dealers' expected range published for a day.
type RangeClient interface {
	FetchExpectedRange(ctx context.Context, day time.Time) (ExpectedRange, error)
}
