// Package emit batches check reports and ships them to an ingest
// endpoint. Without an endpoint, batches are printed as JSON to stdout.
//
// Failed posts are retried with exponential backoff and then dropped
// with a warning; reports are never cached or persisted locally.
package emit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Report is one certificate check outcome.
type Report struct {
	Target           string    `json:"target"`
	CheckedAt        time.Time `json:"checked_at"`
	RemainingSeconds int64     `json:"remaining_seconds"`
	RemainingDays    int64     `json:"remaining_days"`
	Expired          bool      `json:"expired"`
	AltNames         []string  `json:"alt_names,omitempty"`
	Error            string    `json:"error,omitempty"`
}

type Batch struct {
	ProbeID string   `json:"probe_id"`
	RunID   string   `json:"run_id"`
	Reports []Report `json:"reports"`
}

type Emitter struct {
	ingest     string
	probeID    string
	runID      string
	batchMax   int
	flushEvery time.Duration
	client     *http.Client
	mu         sync.Mutex
	acc        Batch
}

func NewEmitter(ingest, probeID, runID string, batchMax int, flushEvery time.Duration) *Emitter {
	return &Emitter{
		ingest: ingest, probeID: probeID, runID: runID,
		batchMax: batchMax, flushEvery: flushEvery,
		client: &http.Client{Timeout: 20 * time.Second},
		acc:    Batch{ProbeID: probeID, RunID: runID},
	}
}

func (e *Emitter) Run(ctx context.Context, in <-chan Report, log *zap.SugaredLogger) {
	t := time.NewTimer(e.flushEvery)
	defer t.Stop()
	for {
		select {
		case r, ok := <-in:
			if !ok {
				return
			}
			if e.append(r) {
				e.flush(log)
				if !t.Stop() {
					select {
					case <-t.C:
					default:
					}
				}
				t.Reset(e.flushEvery)
			}
		case <-t.C:
			e.flush(log)
			t.Reset(e.flushEvery)
		case <-ctx.Done():
			return
		}
	}
}

func (e *Emitter) append(r Report) (full bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.acc.Reports = append(e.acc.Reports, r)
	return len(e.acc.Reports) >= e.batchMax
}

func (e *Emitter) flush(log *zap.SugaredLogger) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.acc.Reports) == 0 {
		return
	}
	if e.ingest == "" {
		_ = json.NewEncoder(os.Stdout).Encode(e.acc)
	} else if err := e.post(e.acc); err != nil {
		log.Warn("ingest failed, dropping batch", "reports", len(e.acc.Reports), "err", err)
	}
	e.acc = Batch{ProbeID: e.probeID, RunID: e.runID}
}

func (e *Emitter) post(b Batch) error {
	buf := &bytes.Buffer{}
	_ = json.NewEncoder(buf).Encode(b)
	op := func() error {
		req, err := http.NewRequest("POST", e.ingest, bytes.NewReader(buf.Bytes()))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := e.client.Do(req)
		if err != nil {
			return err
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("bad status: %d", resp.StatusCode)
		}
		return nil
	}
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second
	return backoff.Retry(op, bo)
}

// Drain flushes whatever is still accumulated.
func (e *Emitter) Drain(log *zap.SugaredLogger) {
	e.flush(log)
}
