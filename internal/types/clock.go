// README: Injectable clock and id generation so order numbers and timestamps are reproducible in tests.
package types

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"time"

	"github.com/google/uuid"
)

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// IDGenerator produces record ids and human readable order numbers.
type IDGenerator interface {
	NewID() ID
	NewOrderNumber(at time.Time) string
}

const (
	orderNumberPrefix = "ORD"
	suffixAlphabet    = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	suffixLen         = 5
)

type RandomIDGenerator struct{}

func (RandomIDGenerator) NewID() ID {
	return ID(uuid.NewString())
}

// NewOrderNumber concatenates the epoch millis of at with a short random
// base-36 suffix, e.g. ORD1760611200000K3Z9Q.
func (RandomIDGenerator) NewOrderNumber(at time.Time) string {
	buf := make([]byte, suffixLen)
	max := big.NewInt(int64(len(suffixAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			buf[i] = suffixAlphabet[0]
			continue
		}
		buf[i] = suffixAlphabet[n.Int64()]
	}
	return orderNumberPrefix + strconv.FormatInt(at.UnixMilli(), 10) + string(buf)
}
