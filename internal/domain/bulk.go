package domain

import "time"

// BulkJobStatus is the lifecycle state of a bulk order job. Transitions are
// strictly forward: queued -> processing -> completed | failed | cancelled.
type BulkJobStatus string

const (
	BulkQueued     BulkJobStatus = "queued"
	BulkProcessing BulkJobStatus = "processing"
	BulkCompleted  BulkJobStatus = "completed"
	BulkFailed     BulkJobStatus = "failed"
	BulkCancelled  BulkJobStatus = "cancelled"
)

// Terminal reports whether the status is a terminal state.
func (s BulkJobStatus) Terminal() bool {
	return s == BulkCompleted || s == BulkFailed || s == BulkCancelled
}

// BulkItemOutcome is the terminal result for a single bulk line.
type BulkItemOutcome string

const (
	BulkFulfilled    BulkItemOutcome = "fulfilled"
	BulkPartial      BulkItemOutcome = "partial"
	BulkAlternatives BulkItemOutcome = "alternatives"
	BulkItemFailed   BulkItemOutcome = "failed"
)

// BulkOrderRequest is one requested line of a bulk job.
type BulkOrderRequest struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

// BulkItemResult is the resolved outcome for one line. The outcome is terminal
// once set and never re-evaluated within the same job.
type BulkItemResult struct {
	SKU               string          `json:"sku"`
	RequestedQuantity int             `json:"requestedQuantity"`
	Outcome           BulkItemOutcome `json:"outcome"`
	FulfilledQuantity int             `json:"fulfilledQuantity,omitempty"`
	Product           *Product        `json:"product,omitempty"`
	UnitPrice         float64         `json:"unitPrice,omitempty"`
	LineTotal         float64         `json:"lineTotal,omitempty"`
	Savings           float64         `json:"savings,omitempty"`
	Alternatives      []Product       `json:"alternatives,omitempty"`
	Reason            string          `json:"reason,omitempty"`
}

// BulkJob is a batched resolution task over many {sku, quantity} requests.
type BulkJob struct {
	ID             string           `json:"id"`
	Status         BulkJobStatus    `json:"status"`
	Priority       string           `json:"priority,omitempty"`
	TotalItems     int              `json:"totalItems"`
	ProcessedItems int              `json:"processedItems"`
	Results        []BulkItemResult `json:"results"`
	CreatedAt      time.Time        `json:"createdAt"`
	CompletedAt    time.Time        `json:"completedAt,omitzero"`
}

// BulkProgress is the sole externally observable state of a job before
// completion, emitted after each batch.
type BulkProgress struct {
	JobID          string `json:"jobId"`
	ProcessedItems int    `json:"processedItems"`
	TotalItems     int    `json:"totalItems"`
}

// BulkSummary is the completion snapshot handed to the reducer in a single
// command. Partial failure is data here, never an error.
type BulkSummary struct {
	JobID      string                  `json:"jobId"`
	Status     BulkJobStatus           `json:"status"`
	Counts     map[BulkItemOutcome]int `json:"counts"`
	TotalValue float64                 `json:"totalValue"`
	Savings    float64                 `json:"savings,omitempty"`
	Results    []BulkItemResult        `json:"results"`
}

// Summarize builds the completion summary for a job.
func (j *BulkJob) Summarize() BulkSummary {
	sum := BulkSummary{
		JobID:   j.ID,
		Status:  j.Status,
		Counts:  make(map[BulkItemOutcome]int, 4),
		Results: j.Results,
	}
	for _, r := range j.Results {
		sum.Counts[r.Outcome]++
		sum.TotalValue += r.LineTotal
		sum.Savings += r.Savings
	}
	return sum
}
