package queue

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueue_LimitRejectsOverflow(t *testing.T) {
	q := New[string](2)

	assert.True(t, q.TryEnqueue("A"))
	assert.True(t, q.TryEnqueue("B"))
	assert.False(t, q.TryEnqueue("C"))
	assert.Equal(t, 2, q.Len())

	v, ok := q.TryDequeue()
	assert.True(t, ok)
	assert.Equal(t, "A", v)

	// Space freed up, accepting again
	assert.True(t, q.TryEnqueue("D"))
}

func TestQueue_FIFOOrder(t *testing.T) {
	q := New[int](Unbounded)

	for i := 0; i < 100; i++ {
		assert.True(t, q.TryEnqueue(i))
	}

	for i := 0; i < 100; i++ {
		v, ok := q.TryDequeue()
		assert.True(t, ok)
		assert.Equal(t, i, v)
	}

	_, ok := q.TryDequeue()
	assert.False(t, ok)
	assert.Equal(t, 0, q.Len())
}

func TestQueue_UnboundedAlwaysAccepts(t *testing.T) {
	q := New[int](Unbounded)

	for i := 0; i < 10000; i++ {
		assert.True(t, q.TryEnqueue(i))
	}
	assert.Equal(t, 10000, q.Len())
}

func TestQueue_DequeueEmpty(t *testing.T) {
	q := New[string](5)

	v, ok := q.TryDequeue()
	assert.False(t, ok)
	assert.Equal(t, "", v)
}

func TestQueue_ConcurrentProducersRespectLimit(t *testing.T) {
	const limit = 50
	q := New[string](limit)

	var wg sync.WaitGroup
	var accepted int64
	var mu sync.Mutex

	worker := func(id int) {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			if q.TryEnqueue(fmt.Sprintf("w%d-%d", id, i)) {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}
	}

	wg.Add(8)
	for w := 0; w < 8; w++ {
		go worker(w)
	}
	wg.Wait()

	assert.Equal(t, int64(limit), accepted)
	assert.Equal(t, limit, q.Len())

	drained := 0
	for {
		if _, ok := q.TryDequeue(); !ok {
			break
		}
		drained++
	}
	assert.Equal(t, limit, drained)
}

func TestQueue_ConcurrentProducersSingleConsumer(t *testing.T) {
	q := New[int](Unbounded)

	const producers = 4
	const perProducer = 1000

	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.TryEnqueue(p*perProducer + i)
			}
		}(p)
	}

	seen := make(map[int]struct{}, producers*perProducer)
	lastPerProducer := make(map[int]int)
	for len(seen) < producers*perProducer {
		v, ok := q.TryDequeue()
		if !ok {
			continue
		}
		_, dup := seen[v]
		assert.False(t, dup, "value %d dequeued twice", v)
		seen[v] = struct{}{}

		// Per-producer order must be preserved even when producers interleave
		p := v / perProducer
		if last, ok := lastPerProducer[p]; ok {
			assert.Greater(t, v, last)
		}
		lastPerProducer[p] = v
	}

	wg.Wait()
	assert.Equal(t, 0, q.Len())
}
