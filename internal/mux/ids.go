package mux

import (
	"strconv"
	"sync/atomic"

	"github.com/codefionn/vtsclient/internal/data"
	"github.com/google/uuid"
)

// IDGenerator produces request ids. Implementations must be safe for
// concurrent use and must not repeat an id while it is still outstanding.
type IDGenerator interface {
	Next() data.RequestID
}

// IDGeneratorFunc adapts a function to IDGenerator
type IDGeneratorFunc func() data.RequestID

func (f IDGeneratorFunc) Next() data.RequestID {
	return f()
}

type numericIDs struct {
	counter atomic.Uint64
}

// NewNumericIDs returns a generator of increasing decimal ids starting at 1
func NewNumericIDs() IDGenerator {
	return &numericIDs{}
}

func (g *numericIDs) Next() data.RequestID {
	return data.RequestID(strconv.FormatUint(g.counter.Add(1), 10))
}

// NewUUIDIDs returns a generator of random UUIDv4 ids
func NewUUIDIDs() IDGenerator {
	return IDGeneratorFunc(func() data.RequestID {
		return data.RequestID(uuid.NewString())
	})
}
