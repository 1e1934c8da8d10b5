package cache

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCacheWrittenBytes_Accumulates(t *testing.T) {
	c := CacheWrittenBytes.WithLabelValues("redis")
	before := testutil.ToFloat64(c)

	c.Add(128)
	c.Add(64)

	if got := testutil.ToFloat64(c) - before; got != 192 {
		t.Errorf("written bytes delta = %v, want 192", got)
	}
	if n := testutil.CollectAndCount(CacheWrittenBytes, "harvest_cache_written_bytes_total"); n < 1 {
		t.Errorf("harvest_cache_written_bytes_total series = %d, want >= 1", n)
	}
}
