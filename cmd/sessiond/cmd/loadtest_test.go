package cmd

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunLoadtest(t *testing.T) {
	a := newTestApp(t, "")
	var out bytes.Buffer

	res, err := runLoadtest(context.Background(), a.engine, loadtestOptions{
		Sessions:      8,
		Concurrency:   4,
		Ops:           40,
		CheckDatabase: true,
	}, &out)
	require.NoError(t, err)
	require.Equal(t, 40, res.verify.ops)
	require.Zero(t, res.verify.failures)
	require.Equal(t, 40, res.refresh.ops)
	require.Zero(t, res.refresh.failures)
	require.Contains(t, out.String(), "seeding 8 sessions")
	require.Contains(t, out.String(), "refresh: ops=40 failures=0")
}

func TestRunLoadtestRejectsZeroSizes(t *testing.T) {
	a := newTestApp(t, "")
	_, err := runLoadtest(context.Background(), a.engine, loadtestOptions{Sessions: 1, Concurrency: 0, Ops: 1}, &bytes.Buffer{})
	require.Error(t, err)
}

func TestPercentile(t *testing.T) {
	samples := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	require.Equal(t, time.Duration(1), percentile(samples, 0))
	require.Equal(t, time.Duration(5), percentile(samples, 50))
	require.Equal(t, time.Duration(10), percentile(samples, 100))
	require.Zero(t, percentile(nil, 50))

	stats := computeStats(time.Second, []time.Duration{3, 1, 2}, 1)
	require.Equal(t, 3, stats.ops)
	require.Equal(t, int64(1), stats.failures)
	require.Equal(t, time.Duration(2), stats.p50)
}
