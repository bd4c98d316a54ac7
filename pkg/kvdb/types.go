package kvdb

import (
	"fmt"
	"time"

	"go.uber.org/multierr"
)

const (
	// DefaultSleep is the pause before re-issuing a rate limited call.
	DefaultSleep = 3500 * time.Millisecond
	// DefaultRetryBudget is the number of consecutive rate-limit retries
	// allowed before a call fails with ErrRetriesExhausted.
	DefaultRetryBudget = 3
	// DefaultConcurrency bounds the in-flight requests of bulk operations.
	DefaultConcurrency = 4
	// DefaultImportStagger spaces out the writes issued by Import.
	DefaultImportStagger = 150 * time.Millisecond
	// PingKey is the canary key written and removed by Ping.
	PingKey = "LQ=="
)

// Record is a key paired with its decoded JSON value.
type Record struct {
	ID   string `json:"id"`
	Data any    `json:"data"`
}

// Options tunes a single call. A nil *Options selects the defaults.
type Options struct {
	// Sleep is the delay before retrying a rate limited request. A longer
	// Retry-After sent by the store wins.
	Sleep time.Duration
	// Raw returns stored values as undecoded strings.
	Raw bool
	// Limit truncates listings; 0 means unlimited.
	Limit int
	// SortPath is a dotted path (".score", "stats.level") into each record's
	// data used to order StartsWith results, descending.
	SortPath string
}

func (o *Options) sleep() time.Duration {
	if o == nil || o.Sleep <= 0 {
		return DefaultSleep
	}
	return o.Sleep
}

func (o *Options) raw() bool {
	return o != nil && o.Raw
}

func (o *Options) limit() int {
	if o == nil || o.Limit < 0 {
		return 0
	}
	return o.Limit
}

func (o *Options) sortPath() string {
	if o == nil {
		return ""
	}
	return o.SortPath
}

// ValueType names the dynamic type of a stored value.
type ValueType string

const (
	TypeUndefined ValueType = "undefined"
	TypeNull      ValueType = "null"
	TypeBoolean   ValueType = "boolean"
	TypeNumber    ValueType = "number"
	TypeString    ValueType = "string"
	TypeArray     ValueType = "array"
	TypeObject    ValueType = "object"
)

// Latency reports the round trip of each leg of a Ping.
type Latency struct {
	Write   time.Duration
	Read    time.Duration
	Delete  time.Duration
	Average time.Duration
}

// Milliseconds returns write, read, delete and average latency in ms.
func (l Latency) Milliseconds() (write, read, del, avg int64) {
	return l.Write.Milliseconds(), l.Read.Milliseconds(), l.Delete.Milliseconds(), l.Average.Milliseconds()
}

func (l Latency) String() string {
	w, r, d, a := l.Milliseconds()
	return fmt.Sprintf("write=%dms read=%dms delete=%dms average=%dms", w, r, d, a)
}

// RecordResult is the outcome of writing one record during a bulk operation.
type RecordResult struct {
	ID  string
	Err error
}

// ImportResult collects the per-record outcomes of Import and SetMany.
type ImportResult struct {
	Results []RecordResult
}

// Succeeded lists the IDs written successfully, in input order.
func (r *ImportResult) Succeeded() []string {
	if r == nil {
		return nil
	}
	ids := make([]string, 0, len(r.Results))
	for _, res := range r.Results {
		if res.Err == nil {
			ids = append(ids, res.ID)
		}
	}
	return ids
}

// Failed returns the failed outcomes, in input order.
func (r *ImportResult) Failed() []RecordResult {
	if r == nil {
		return nil
	}
	var failed []RecordResult
	for _, res := range r.Results {
		if res.Err != nil {
			failed = append(failed, res)
		}
	}
	return failed
}

// Err combines every per-record failure, or returns nil.
func (r *ImportResult) Err() error {
	var err error
	for _, res := range r.Failed() {
		err = multierr.Append(err, fmt.Errorf("%s: %w", res.ID, res.Err))
	}
	return err
}
