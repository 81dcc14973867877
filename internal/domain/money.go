package domain

import (
	"errors"
	"strconv"
)

// ErrInvalidAmount is returned for amounts that are zero or negative.
var ErrInvalidAmount = errors.New("amount must be a positive integer")

// Money is an amount in the smallest currency unit (e.g. cents).
type Money int64

func (m Money) Validate() error {
	if m <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// CardID identifies the card the hold is placed against.
type CardID int64

func (c CardID) String() string {
	return strconv.FormatInt(int64(c), 10)
}

// ParseCardID parses a path segment into a CardID.
func ParseCardID(s string) (CardID, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return CardID(v), nil
}

// MaxIdempotencyKeyLen bounds keys so every store backend can persist them.
const MaxIdempotencyKeyLen = 255

// ErrInvalidKey is returned for empty or over-long idempotency keys.
var ErrInvalidKey = errors.New("idempotency key must be 1-255 bytes")

// IdempotencyKey identifies one logical transaction attempt. All retries
// bearing the same key observe the same outcome.
type IdempotencyKey string

func (k IdempotencyKey) Validate() error {
	if len(k) == 0 || len(k) > MaxIdempotencyKeyLen {
		return ErrInvalidKey
	}
	return nil
}
