package frontier_test

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rohmanhakim/catalog-crawler/internal/frontier"
)

func TestVisitedSet_MarkIfAbsent(t *testing.T) {
	visited := frontier.NewVisitedSet()

	assert.True(t, visited.MarkIfAbsent("https://shop.example.com/c/a"))
	assert.False(t, visited.MarkIfAbsent("https://shop.example.com/c/a"))
	assert.True(t, visited.MarkIfAbsent("https://shop.example.com/c/b"))

	assert.True(t, visited.Contains("https://shop.example.com/c/a"))
	assert.False(t, visited.Contains("https://shop.example.com/c/z"))
	assert.Equal(t, 2, visited.Size())
}

func TestVisitedSet_ConcurrentClaimsWinOnce(t *testing.T) {
	visited := frontier.NewVisitedSet()

	const workers = 16
	const keys = 200

	var wins int32
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := 0; i < keys; i++ {
				if visited.MarkIfAbsent(fmt.Sprintf("https://shop.example.com/c/%d", i)) {
					atomic.AddInt32(&wins, 1)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(keys), atomic.LoadInt32(&wins))
	assert.Equal(t, keys, visited.Size())
}
