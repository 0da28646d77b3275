package busclient

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorrelationTableDeliversToExactWaiter(t *testing.T) {
	table := newCorrelationTable()

	const n = 8
	var wg sync.WaitGroup
	results := make([][]byte, n)

	ids := make([]string, n)
	pending := make([]*pendingCall, n)
	for i := 0; i < n; i++ {
		ids[i] = time.Now().Format("150405.000000000") + string(rune('a'+i))
		pending[i] = table.register(ids[i])
	}

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = <-pending[i].reply
		}(i)
	}

	for i := 0; i < n; i++ {
		table.deliver(ids[i], []byte(ids[i]))
	}

	wg.Wait()
	for i := 0; i < n; i++ {
		assert.Equal(t, ids[i], string(results[i]))
	}
}

func TestCorrelationTableDropsUnknownReply(t *testing.T) {
	table := newCorrelationTable()
	// No panic, no registration: a reply for an id nobody is waiting on
	// is simply discarded.
	table.deliver("ghost", []byte("late"))
	assert.Equal(t, 0, table.len())
}

func TestCorrelationTableRemoveDrainsPendingEntry(t *testing.T) {
	table := newCorrelationTable()
	table.register("call-1")
	require.Equal(t, 1, table.len())

	table.remove("call-1")
	assert.Equal(t, 0, table.len())

	// A late reply after removal must not block or panic.
	table.deliver("call-1", []byte("too late"))
}
