package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vansales/internal/archive"
	"vansales/internal/core"
	"vansales/internal/metrics"
	"vansales/internal/report"
)

type fakeSource struct {
	loads   atomic.Int32
	loadErr error
}

func (f *fakeSource) Today() core.Date { return core.NewDate(2024, 3, 10) }

func (f *fakeSource) Summary(day core.Date) report.DailySummary {
	return report.DailySummary{Date: day.String(), Sales: decimal.NewFromInt(150), Entries: 1}
}

func (f *fakeSource) Load(context.Context) error {
	f.loads.Add(1)
	return f.loadErr
}

type failingArchive struct{ archive.Archive }

func (failingArchive) Save(context.Context, report.DailySummary) error {
	return errors.New("archive offline")
}

func TestRunSummaryArchivesToday(t *testing.T) {
	arch := archive.NewMemory()
	s := New(time.UTC, &fakeSource{}, arch, nil)

	require.NoError(t, s.RunSummary(context.Background()))
	got, err := arch.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "2024-03-10", got[0].Date)
	assert.True(t, got[0].Sales.Equal(decimal.NewFromInt(150)))
}

func TestRunSummaryPropagatesArchiveError(t *testing.T) {
	s := New(time.UTC, &fakeSource{}, failingArchive{}, metrics.New())
	assert.Error(t, s.RunSummary(context.Background()))
	s.run(JobDailySummary, s.RunSummary)
}

func TestScheduleRejectsBadSpec(t *testing.T) {
	s := New(nil, &fakeSource{}, archive.NewMemory(), nil)
	assert.Error(t, s.ScheduleSummary("not a cron"))
	assert.NoError(t, s.ScheduleSummary("55 23 * * *"))
	assert.NoError(t, s.ScheduleRefresh(0))
	assert.Len(t, s.cron.Entries(), 1)
}

func TestRefreshJobRuns(t *testing.T) {
	src := &fakeSource{}
	s := New(time.UTC, src, archive.NewMemory(), nil)
	require.NoError(t, s.ScheduleRefresh(time.Second))
	s.Start()
	t.Cleanup(func() { s.Stop(context.Background()) })

	assert.Eventually(t, func() bool { return src.loads.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
}
