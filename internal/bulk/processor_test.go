package bulk

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopclerk/shopclerk/internal/config"
	"github.com/shopclerk/shopclerk/internal/domain"
	"github.com/shopclerk/shopclerk/internal/logging"
	"github.com/shopclerk/shopclerk/internal/udl"
)

func testLogger() *logging.Logger {
	return logging.New(io.Discard, "silent")
}

func newTestProcessor(t *testing.T, cfg config.BulkConfig) (*Processor, *udl.FakeDataLayer) {
	t.Helper()
	data := udl.NewFakeDataLayer()
	data.SeedDemo()
	return NewProcessor(data, cfg, testLogger()), data
}

func TestProcessMixedOutcomes(t *testing.T) {
	p, _ := newTestProcessor(t, config.BulkConfig{BatchSize: 25, Concurrency: 5})

	// 50 lines: plentiful stock, a partial (WID-300 has 8), an out-of-stock
	// with alternatives (GAD-020), and an unknown sku
	items := make([]domain.BulkOrderRequest, 0, 50)
	for i := 0; i < 47; i++ {
		items = append(items, domain.BulkOrderRequest{SKU: "WID-100", Quantity: 2})
	}
	items = append(items,
		domain.BulkOrderRequest{SKU: "WID-300", Quantity: 20},
		domain.BulkOrderRequest{SKU: "GAD-020", Quantity: 5},
		domain.BulkOrderRequest{SKU: "NOPE-404", Quantity: 1},
	)

	job, err := p.Process(context.Background(), items, Options{SessionID: "s1", Mode: domain.ModeB2B})
	require.NoError(t, err)

	assert.Equal(t, domain.BulkCompleted, job.Status)
	assert.Equal(t, 50, job.TotalItems)
	assert.Equal(t, 50, job.ProcessedItems)
	require.Len(t, job.Results, 50)

	sum := job.Summarize()
	assert.Equal(t, 47, sum.Counts[domain.BulkFulfilled])
	assert.Equal(t, 1, sum.Counts[domain.BulkPartial])
	assert.Equal(t, 1, sum.Counts[domain.BulkAlternatives])
	assert.Equal(t, 1, sum.Counts[domain.BulkItemFailed])
	assert.Greater(t, sum.TotalValue, 0.0)
}

func TestProcessItemFailureDoesNotAbortJob(t *testing.T) {
	p, _ := newTestProcessor(t, config.BulkConfig{BatchSize: 5, Concurrency: 2})

	items := []domain.BulkOrderRequest{
		{SKU: "WID-100", Quantity: 1},
		{SKU: "MISSING-1", Quantity: 1},
		{SKU: "WID-200", Quantity: 1},
	}
	job, err := p.Process(context.Background(), items, Options{SessionID: "s1", Mode: domain.ModeB2C})
	require.NoError(t, err)

	assert.Equal(t, domain.BulkCompleted, job.Status)
	require.Len(t, job.Results, 3)
	assert.Equal(t, domain.BulkFulfilled, job.Results[0].Outcome)
	assert.Equal(t, domain.BulkItemFailed, job.Results[1].Outcome)
	assert.Equal(t, "unknown sku", job.Results[1].Reason)
	assert.Equal(t, domain.BulkFulfilled, job.Results[2].Outcome)
}

func TestProcessQuantityCeiling(t *testing.T) {
	p, _ := newTestProcessor(t, config.BulkConfig{})

	items := []domain.BulkOrderRequest{{SKU: "WID-100", Quantity: 500}}
	job, err := p.Process(context.Background(), items, Options{SessionID: "s1", MaxQuantity: 100, Mode: domain.ModeB2C})
	require.NoError(t, err)

	require.Len(t, job.Results, 1)
	assert.Equal(t, domain.BulkItemFailed, job.Results[0].Outcome)
	assert.Contains(t, job.Results[0].Reason, "ceiling")
}

// inflightLayer wraps the fake backend and tracks the peak number of
// concurrent product lookups.
type inflightLayer struct {
	*udl.FakeDataLayer
	inflight atomic.Int64
	peak     atomic.Int64
}

func (l *inflightLayer) GetProduct(ctx context.Context, sku string) (*domain.Product, error) {
	cur := l.inflight.Add(1)
	defer l.inflight.Add(-1)
	for {
		p := l.peak.Load()
		if cur <= p || l.peak.CompareAndSwap(p, cur) {
			break
		}
	}
	time.Sleep(3 * time.Millisecond)
	return l.FakeDataLayer.GetProduct(ctx, sku)
}

func TestProcessConcurrencyCeiling(t *testing.T) {
	fake := udl.NewFakeDataLayer()
	fake.SeedDemo()
	layer := &inflightLayer{FakeDataLayer: fake}
	p := NewProcessor(layer, config.BulkConfig{BatchSize: 20, Concurrency: 3}, testLogger())

	items := make([]domain.BulkOrderRequest, 20)
	for i := range items {
		items[i] = domain.BulkOrderRequest{SKU: "WID-100", Quantity: 1}
	}
	job, err := p.Process(context.Background(), items, Options{SessionID: "s1", Mode: domain.ModeB2C})
	require.NoError(t, err)
	assert.Equal(t, domain.BulkCompleted, job.Status)
	assert.LessOrEqual(t, layer.peak.Load(), int64(3))
	assert.Greater(t, layer.peak.Load(), int64(0))
}

func TestProcessBatchesAreSequential(t *testing.T) {
	p, _ := newTestProcessor(t, config.BulkConfig{BatchSize: 10, Concurrency: 5})

	var mu sync.Mutex
	var seen []int
	p.OnProgress(func(pr domain.BulkProgress) {
		mu.Lock()
		seen = append(seen, pr.ProcessedItems)
		mu.Unlock()
	})

	items := make([]domain.BulkOrderRequest, 25)
	for i := range items {
		items[i] = domain.BulkOrderRequest{SKU: "GAD-010", Quantity: 1}
	}
	_, err := p.Process(context.Background(), items, Options{SessionID: "s1", Mode: domain.ModeB2C})
	require.NoError(t, err)

	assert.Equal(t, []int{10, 20, 25}, seen)
}

func TestProcessCancellation(t *testing.T) {
	fake := udl.NewFakeDataLayer()
	fake.SeedDemo()
	layer := &slowLayer{FakeDataLayer: fake, delay: 20 * time.Millisecond}
	p := NewProcessor(layer, config.BulkConfig{BatchSize: 2, Concurrency: 1}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	items := make([]domain.BulkOrderRequest, 20)
	for i := range items {
		items[i] = domain.BulkOrderRequest{SKU: "WID-100", Quantity: 1}
	}
	job, err := p.Process(ctx, items, Options{SessionID: "s1", Mode: domain.ModeB2C})
	require.NoError(t, err)

	assert.Equal(t, domain.BulkCancelled, job.Status)
	assert.Less(t, job.ProcessedItems, 20)
}

// ctxAwareLayer honors context cancellation the way a real backend would, and
// signals its first call so tests can cancel mid-batch deterministically.
type ctxAwareLayer struct {
	*udl.FakeDataLayer
	delay time.Duration
	first chan struct{}
	once  sync.Once
}

func (l *ctxAwareLayer) GetProduct(ctx context.Context, sku string) (*domain.Product, error) {
	l.once.Do(func() { close(l.first) })
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(l.delay):
	}
	return l.FakeDataLayer.GetProduct(ctx, sku)
}

func TestProcessCancelLetsInflightBatchFinish(t *testing.T) {
	fake := udl.NewFakeDataLayer()
	fake.SeedDemo()
	layer := &ctxAwareLayer{FakeDataLayer: fake, delay: 5 * time.Millisecond, first: make(chan struct{})}
	p := NewProcessor(layer, config.BulkConfig{BatchSize: 10, Concurrency: 2}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-layer.first
		cancel()
	}()

	items := make([]domain.BulkOrderRequest, 20)
	for i := range items {
		items[i] = domain.BulkOrderRequest{SKU: "WID-100", Quantity: 1}
	}
	job, err := p.Process(ctx, items, Options{SessionID: "s1", Mode: domain.ModeB2C})
	require.NoError(t, err)

	// the first batch finishes with real outcomes; the second never starts
	assert.Equal(t, domain.BulkCancelled, job.Status)
	assert.Equal(t, 10, job.ProcessedItems)
	require.Len(t, job.Results, 10)
	for _, res := range job.Results {
		assert.Equal(t, domain.BulkFulfilled, res.Outcome, "item %s: %s", res.SKU, res.Reason)
	}
}

type slowLayer struct {
	*udl.FakeDataLayer
	delay time.Duration
}

func (l *slowLayer) GetProduct(ctx context.Context, sku string) (*domain.Product, error) {
	time.Sleep(l.delay)
	return l.FakeDataLayer.GetProduct(ctx, sku)
}

func TestProcessRejectsSecondJobForSession(t *testing.T) {
	fake := udl.NewFakeDataLayer()
	fake.SeedDemo()
	layer := &slowLayer{FakeDataLayer: fake, delay: 30 * time.Millisecond}
	p := NewProcessor(layer, config.BulkConfig{BatchSize: 5, Concurrency: 1}, testLogger())

	items := []domain.BulkOrderRequest{{SKU: "WID-100", Quantity: 1}, {SKU: "WID-200", Quantity: 1}}

	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		close(started)
		_, err := p.Process(context.Background(), items, Options{SessionID: "same", Mode: domain.ModeB2C})
		assert.NoError(t, err)
		close(done)
	}()

	<-started
	time.Sleep(10 * time.Millisecond)
	_, err := p.Process(context.Background(), items, Options{SessionID: "same", Mode: domain.ModeB2C})
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Message, "already running")
	<-done
}

func TestProcessRejectsEmptyAndOversized(t *testing.T) {
	p, _ := newTestProcessor(t, config.BulkConfig{})

	_, err := p.Process(context.Background(), nil, Options{SessionID: "s1"})
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)

	huge := make([]domain.BulkOrderRequest, maxJobItems+1)
	for i := range huge {
		huge[i] = domain.BulkOrderRequest{SKU: "WID-100", Quantity: 1}
	}
	_, err = p.Process(context.Background(), huge, Options{SessionID: "s1"})
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Message, "too many items")
}

func TestProcessVolumeSavingsForB2B(t *testing.T) {
	p, _ := newTestProcessor(t, config.BulkConfig{})

	items := []domain.BulkOrderRequest{{SKU: "WID-100", Quantity: 300}}
	job, err := p.Process(context.Background(), items, Options{SessionID: "s1", Mode: domain.ModeB2B})
	require.NoError(t, err)

	require.Len(t, job.Results, 1)
	res := job.Results[0]
	assert.Equal(t, domain.BulkFulfilled, res.Outcome)
	assert.Greater(t, res.Savings, 0.0)
	assert.InDelta(t, 9.99*0.9, res.UnitPrice, 0.001)
}

func TestParseCSVWithHeader(t *testing.T) {
	in := "sku,quantity\nWID-100,5\nGAD-010,2\n"
	items, rowErrs, err := ParseCSV(strings.NewReader(in))
	require.NoError(t, err)
	assert.Empty(t, rowErrs)
	assert.Equal(t, []domain.BulkOrderRequest{
		{SKU: "WID-100", Quantity: 5},
		{SKU: "GAD-010", Quantity: 2},
	}, items)
}

func TestParseCSVWithoutHeader(t *testing.T) {
	in := "WID-100,5\nGAD-010,2\n"
	items, rowErrs, err := ParseCSV(strings.NewReader(in))
	require.NoError(t, err)
	assert.Empty(t, rowErrs)
	require.Len(t, items, 2)
}

func TestParseCSVReorderedHeader(t *testing.T) {
	in := "qty,sku\n3,WID-200\n"
	items, _, err := ParseCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, domain.BulkOrderRequest{SKU: "WID-200", Quantity: 3}, items[0])
}

func TestParseCSVSanitizesFields(t *testing.T) {
	tests := []struct {
		name string
		row  string
		want string
	}{
		{"formula injection", `"=SUM(A1:A9)",5`, "formula"},
		{"plus prefix", "+WID-100,5", "formula"},
		{"script tag", `"<script>alert(1)</script>",5`, "markup"},
		{"path traversal", "../etc/passwd,5", "traversal"},
		{"zero quantity", "WID-100,0", "positive"},
		{"non-numeric quantity", "WID-100,lots", "positive"},
		{"missing column", "WID-100", "missing columns"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, rowErrs, err := ParseCSV(strings.NewReader(tt.row + "\n"))
			require.NoError(t, err)
			assert.Empty(t, items)
			require.Len(t, rowErrs, 1)
			assert.Contains(t, rowErrs[0].Message, tt.want)
		})
	}
}

func TestParseCSVSkipsBlankRows(t *testing.T) {
	in := "WID-100,1\n\nGAD-010,2\n"
	items, rowErrs, err := ParseCSV(strings.NewReader(in))
	require.NoError(t, err)
	assert.Empty(t, rowErrs)
	assert.Len(t, items, 2)
}

func TestParseCSVLargeInput(t *testing.T) {
	var b strings.Builder
	b.WriteString("sku,quantity\n")
	for i := 0; i < 200; i++ {
		fmt.Fprintf(&b, "WID-%03d,%d\n", i, i+1)
	}
	items, rowErrs, err := ParseCSV(strings.NewReader(b.String()))
	require.NoError(t, err)
	assert.Empty(t, rowErrs)
	assert.Len(t, items, 200)
}
