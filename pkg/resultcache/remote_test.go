package resultcache

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tsengine/aggwheel/pkg/agg"
)

func TestKeyCacheKeyIsStableAndDistinguishesFields(t *testing.T) {
	base := Key{GroupID: "host=a", Operator: agg.Avg, Param: 0, WindowStartMs: 1000, WindowEndMs: 2000}
	same := Key{GroupID: "host=a", Operator: agg.Avg, Param: 0, WindowStartMs: 1000, WindowEndMs: 2000}
	assert.Equal(t, base.cacheKey(), same.cacheKey())

	variants := []Key{
		{GroupID: "host=b", Operator: agg.Avg, Param: 0, WindowStartMs: 1000, WindowEndMs: 2000},
		{GroupID: "host=a", Operator: agg.Sum, Param: 0, WindowStartMs: 1000, WindowEndMs: 2000},
		{GroupID: "host=a", Operator: agg.Avg, Param: 1, WindowStartMs: 1000, WindowEndMs: 2000},
		{GroupID: "host=a", Operator: agg.Avg, Param: 0, WindowStartMs: 1500, WindowEndMs: 2000},
		{GroupID: "host=a", Operator: agg.Avg, Param: 0, WindowStartMs: 1000, WindowEndMs: 2500},
	}
	for _, v := range variants {
		assert.NotEqual(t, base.cacheKey(), v.cacheKey())
	}
}

func TestKeyCacheKeyHasBoundedWidthRegardlessOfGroupIDLength(t *testing.T) {
	short := Key{GroupID: "a", Operator: agg.Count}
	long := Key{GroupID: "tb_" + string(make([]byte, 4096)), Operator: agg.Count}
	assert.Equal(t, len(short.cacheKey()), len(long.cacheKey()))
}
