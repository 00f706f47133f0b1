// Package bulk resolves large multi-line orders: sequential batches with a
// bounded concurrency ceiling inside each batch, per-item retry, and per-item
// outcomes so one bad line never sinks the job.
package bulk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/shopclerk/shopclerk/internal/config"
	"github.com/shopclerk/shopclerk/internal/domain"
	"github.com/shopclerk/shopclerk/internal/logging"
	"github.com/shopclerk/shopclerk/internal/udl"
)

// maxJobItems caps the total size of a single job.
const maxJobItems = 1000

// ProgressFunc observes batch-boundary progress for a running job.
type ProgressFunc func(domain.BulkProgress)

// Options parameterizes one job.
type Options struct {
	SessionID   string
	Priority    string      // "low" | "normal" | "high"
	MaxQuantity int         // per-line quantity ceiling; 0 disables the check
	Mode        domain.Mode // pricing mode for quotes
}

// Processor runs bulk order jobs against the data layer. Batches run strictly
// in order; items within a batch run concurrently up to the configured
// ceiling. A session holds at most one running job at a time.
type Processor struct {
	data  udl.DataLayer
	batch int
	conc  int64
	retry udl.RetryPolicy
	log   *logging.Logger

	mu        sync.Mutex
	observers []ProgressFunc
	cancels   map[string]context.CancelFunc // job id -> cancel
	bySession map[string]string             // session id -> running job id
}

// NewProcessor creates a processor with the configured batch shape.
func NewProcessor(data udl.DataLayer, cfg config.BulkConfig, log *logging.Logger) *Processor {
	batch := cfg.BatchSize
	if batch < 1 {
		batch = 25
	}
	conc := cfg.Concurrency
	if conc < 1 {
		conc = 5
	}
	retry := udl.DefaultRetryPolicy()
	if cfg.MaxAttempts > 0 {
		retry.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.InitialDelayMS > 0 {
		retry.InitialDelay = time.Duration(cfg.InitialDelayMS) * time.Millisecond
	}
	return &Processor{
		data:      data,
		batch:     batch,
		conc:      int64(conc),
		retry:     retry,
		log:       log.Sub("bulk"),
		cancels:   make(map[string]context.CancelFunc),
		bySession: make(map[string]string),
	}
}

// OnProgress registers an observer called at each batch boundary. Observers
// must not block.
func (p *Processor) OnProgress(fn ProgressFunc) {
	p.mu.Lock()
	p.observers = append(p.observers, fn)
	p.mu.Unlock()
}

// Cancel requests cooperative cancellation of a running job. In-flight items
// finish; unstarted batches are skipped. Returns false if no such job is
// running.
func (p *Processor) Cancel(jobID string) bool {
	p.mu.Lock()
	cancel, ok := p.cancels[jobID]
	p.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Process resolves the items synchronously and returns the finished job.
// Per-item failures are outcomes, not errors; the returned error covers only
// job-level rejections (empty or oversized input, a second concurrent job for
// the session).
func (p *Processor) Process(ctx context.Context, items []domain.BulkOrderRequest, opts Options) (*domain.BulkJob, error) {
	if len(items) == 0 {
		return nil, &domain.ValidationError{Field: "items", Message: "no items to process"}
	}
	if len(items) > maxJobItems {
		return nil, &domain.ValidationError{Field: "items", Message: fmt.Sprintf("too many items (max %d)", maxJobItems)}
	}

	job := &domain.BulkJob{
		ID:         uuid.NewString(),
		Status:     domain.BulkQueued,
		Priority:   opts.Priority,
		TotalItems: len(items),
		CreatedAt:  time.Now(),
	}

	jctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.mu.Lock()
	if running, busy := p.bySession[opts.SessionID]; busy {
		p.mu.Unlock()
		return nil, &domain.ValidationError{Field: "items", Message: "bulk job " + running + " is already running for this session"}
	}
	p.bySession[opts.SessionID] = job.ID
	p.cancels[job.ID] = cancel
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.bySession, opts.SessionID)
		delete(p.cancels, job.ID)
		p.mu.Unlock()
	}()

	log := p.log.WithSession(opts.SessionID)
	log.Info().Str("job", job.ID).Int("items", len(items)).Str("priority", opts.Priority).Msg("bulk job started")

	// the cancel signal gates batch starts only; items of the in-flight batch
	// resolve under a detached context so every started batch finishes with
	// real outcomes
	itemCtx := context.WithoutCancel(ctx)

	job.Status = domain.BulkProcessing
	for offset := 0; offset < len(items); offset += p.batch {
		if jctx.Err() != nil {
			job.Status = domain.BulkCancelled
			break
		}

		end := offset + p.batch
		if end > len(items) {
			end = len(items)
		}
		batch := items[offset:end]
		results := make([]domain.BulkItemResult, len(batch))

		sem := semaphore.NewWeighted(p.conc)
		var wg sync.WaitGroup
		for i, req := range batch {
			if err := sem.Acquire(itemCtx, 1); err != nil {
				results = results[:i]
				break
			}
			wg.Add(1)
			go func(idx int, r domain.BulkOrderRequest) {
				defer wg.Done()
				defer sem.Release(1)
				results[idx] = p.resolveItem(itemCtx, r, opts)
			}(i, req)
		}
		wg.Wait()

		job.Results = append(job.Results, results...)
		job.ProcessedItems += len(results)
		p.emitProgress(domain.BulkProgress{
			JobID:          job.ID,
			ProcessedItems: job.ProcessedItems,
			TotalItems:     job.TotalItems,
		})
	}

	if job.Status != domain.BulkCancelled {
		if jctx.Err() != nil {
			job.Status = domain.BulkCancelled
		} else {
			job.Status = domain.BulkCompleted
		}
	}
	job.CompletedAt = time.Now()

	log.Info().Str("job", job.ID).Str("status", string(job.Status)).
		Int("processed", job.ProcessedItems).Msg("bulk job finished")
	return job, nil
}

func (p *Processor) emitProgress(pr domain.BulkProgress) {
	p.mu.Lock()
	observers := append([]ProgressFunc(nil), p.observers...)
	p.mu.Unlock()
	for _, fn := range observers {
		fn(pr)
	}
}

// resolveItem produces the terminal outcome for one line. Never returns an
// error: every failure mode is encoded in the result.
func (p *Processor) resolveItem(ctx context.Context, req domain.BulkOrderRequest, opts Options) domain.BulkItemResult {
	res := domain.BulkItemResult{SKU: req.SKU, RequestedQuantity: req.Quantity}

	if req.Quantity < 1 {
		res.Outcome = domain.BulkItemFailed
		res.Reason = "quantity must be positive"
		return res
	}
	if opts.MaxQuantity > 0 && req.Quantity > opts.MaxQuantity {
		res.Outcome = domain.BulkItemFailed
		res.Reason = fmt.Sprintf("quantity %d exceeds the per-order ceiling of %d", req.Quantity, opts.MaxQuantity)
		return res
	}

	product, err := p.getProduct(ctx, req.SKU)
	if err != nil {
		return p.failItem(res, "product lookup", err)
	}
	res.Product = product

	avail, err := p.getAvailability(ctx, req.SKU)
	if err != nil {
		return p.failItem(res, "availability lookup", err)
	}

	switch {
	case avail.Available == 0:
		alts, altErr := p.getAlternatives(ctx, req.SKU)
		if altErr != nil || len(alts) == 0 {
			res.Outcome = domain.BulkItemFailed
			res.Reason = "out of stock with no alternatives"
			return res
		}
		res.Outcome = domain.BulkAlternatives
		res.Alternatives = alts
		res.Reason = "out of stock"
		return res

	case avail.Available < req.Quantity:
		res.Outcome = domain.BulkPartial
		res.FulfilledQuantity = avail.Available
		res.Reason = fmt.Sprintf("only %d of %d available", avail.Available, req.Quantity)

	default:
		res.Outcome = domain.BulkFulfilled
		res.FulfilledQuantity = req.Quantity
	}

	quote, err := p.getPricing(ctx, req.SKU, res.FulfilledQuantity, opts.Mode)
	if err != nil {
		return p.failItem(res, "pricing", err)
	}
	res.UnitPrice = quote.UnitPrice
	res.LineTotal = quote.Total
	res.Savings = quote.Savings
	return res
}

func (p *Processor) failItem(res domain.BulkItemResult, stage string, err error) domain.BulkItemResult {
	res.Outcome = domain.BulkItemFailed
	res.FulfilledQuantity = 0
	res.UnitPrice = 0
	res.LineTotal = 0
	res.Savings = 0
	res.Alternatives = nil

	var nf *domain.NotFoundError
	if errors.As(err, &nf) {
		res.Reason = "unknown sku"
		return res
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		res.Reason = "cancelled before " + stage
		return res
	}
	res.Reason = stage + " failed after retries"
	return res
}

func (p *Processor) getProduct(ctx context.Context, sku string) (*domain.Product, error) {
	var out *domain.Product
	err := p.retry.Do(ctx, func() error {
		v, err := p.data.GetProduct(ctx, sku)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func (p *Processor) getAvailability(ctx context.Context, sku string) (*domain.Availability, error) {
	var out *domain.Availability
	err := p.retry.Do(ctx, func() error {
		v, err := p.data.GetAvailability(ctx, sku)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func (p *Processor) getAlternatives(ctx context.Context, sku string) ([]domain.Product, error) {
	var out []domain.Product
	err := p.retry.Do(ctx, func() error {
		v, err := p.data.GetAlternatives(ctx, sku, 3)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func (p *Processor) getPricing(ctx context.Context, sku string, qty int, mode domain.Mode) (*domain.PriceQuote, error) {
	var out *domain.PriceQuote
	err := p.retry.Do(ctx, func() error {
		v, err := p.data.GetPricing(ctx, sku, qty, mode)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
