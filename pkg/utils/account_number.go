package utils

import (
	"crypto/rand"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Account numbers are derived deterministically from the owner's phone
// number: a fixed 4-digit branch prefix followed by the last 10 phone
// digits. The same phone always yields the same base number, so a collision
// means the number is already taken; callers retry with the next attempt
// slot, which appends a two-digit disambiguating suffix (00-98), for 100
// candidate numbers per phone including the bare one.
const (
	// BranchPrefix is the numeric branch component baked into every
	// account number issued by this deployment.
	BranchPrefix = "3301"

	// RoutingCode is the fixed bank/branch routing code (IFSC-equivalent)
	// stored alongside every account.
	RoutingCode = "VBNK0003301"

	// MaxNumberAttempts bounds the collision retry slots per phone number.
	MaxNumberAttempts = 100

	phoneDigitsUsed = 10
)

// AccountNumberGenerator derives account numbers and issues transfer
// reference codes. Safe for concurrent use.
type AccountNumberGenerator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewAccountNumberGenerator creates a generator with monotonic ULID entropy.
func NewAccountNumberGenerator() *AccountNumberGenerator {
	return &AccountNumberGenerator{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// Derive returns the account number for a phone at the given attempt slot.
// Attempt 0 is the bare derived number; attempts 1..MaxNumberAttempts-1
// append the zero-padded slot.
func (g *AccountNumberGenerator) Derive(phone string, attempt int) (string, error) {
	if attempt < 0 || attempt >= MaxNumberAttempts {
		return "", fmt.Errorf("account number attempt %d out of range", attempt)
	}

	digits := digitsOf(phone)
	if len(digits) < 6 {
		return "", fmt.Errorf("phone number %q has too few digits", phone)
	}
	if len(digits) > phoneDigitsUsed {
		digits = digits[len(digits)-phoneDigitsUsed:]
	}
	// Left-pad short numbers so every account number has a fixed width.
	digits = strings.Repeat("0", phoneDigitsUsed-len(digits)) + digits

	base := BranchPrefix + digits
	if attempt == 0 {
		return base, nil
	}
	return fmt.Sprintf("%s%02d", base, attempt-1), nil
}

// NewReference issues a sortable, unique transfer reference code.
func (g *AccountNumberGenerator) NewReference() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy).String()
}

func digitsOf(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
