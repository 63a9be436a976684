package idgen

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextID_Unique(t *testing.T) {
	require.NoError(t, Init(7))

	const n = 2000
	var (
		wg   sync.WaitGroup
		lock sync.Mutex
		seen = make(map[int64]struct{}, n)
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < n/4; j++ {
				id := NextID()
				lock.Lock()
				seen[id] = struct{}{}
				lock.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, n)
}

func TestInit_RejectsOutOfRangeWorker(t *testing.T) {
	assert.Error(t, Init(4096))
}

func TestGenerateEntryNo_Format(t *testing.T) {
	no := GenerateEntryNo()
	assert.True(t, strings.HasPrefix(no, "CRD"))
	assert.Len(t, no, 3+14+8)
}
