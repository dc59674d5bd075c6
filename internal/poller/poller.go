// Package poller fetches the upstream quote snapshot on a fixed cadence and
// exposes it as a stream of batches. One tick is one HTTP GET; a failed tick
// yields an empty batch so the consumer's cadence is preserved.
package poller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/adred-codev/ratefeed/internal/monitoring"
)

// Quote is one upstream rate entry. The endpoint returns more fields
// (Spread, LastClose, week highs/lows); they are tolerated and ignored.
type Quote struct {
	Symbol string  `json:"Symbol"`
	Bid    float64 `json:"Bid"`
	Ask    float64 `json:"Ask"`
}

// Batch is the set of quotes from one poll tick. Empty on a failed tick.
type Batch []Quote

type payload struct {
	Rates []Quote `json:"Rates"`
}

// The upstream body is a JSONP wrapper: `null(` + JSON + `);` and a
// trailing newline. The fixed-size prefix and suffix are verified and
// stripped before decoding.
var (
	jsonpPrefix = []byte("null(")
	jsonpSuffix = []byte(");")
)

// Poller drives the upstream fetch loop. At most one request is in flight
// per instance; the HTTP client is scoped to the stream's lifetime.
type Poller struct {
	url      string
	interval time.Duration
	client   *http.Client
	logger   zerolog.Logger
}

func New(url string, interval, timeout time.Duration, logger zerolog.Logger) *Poller {
	return &Poller{
		url:      url,
		interval: interval,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

// Stream starts the poll loop and returns the batch channel. The producer
// paces itself: each tick sleeps max(0, interval - elapsed) after emitting,
// so a slow fetch does not shorten the next tick's sleep. The channel closes
// when ctx is cancelled.
func (p *Poller) Stream(ctx context.Context) <-chan Batch {
	out := make(chan Batch)

	go func() {
		defer monitoring.RecoverPanic(p.logger, "pollerStream", nil)
		defer close(out)
		defer p.client.CloseIdleConnections()

		for {
			start := time.Now()

			batch, err := p.fetch(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				p.logger.Error().Err(err).Msg("Error while fetching rates")
				monitoring.RecordPollTick(true)
				batch = Batch{}
			} else {
				monitoring.RecordPollTick(false)
			}

			select {
			case out <- batch:
			case <-ctx.Done():
				return
			}

			if delay := p.interval - time.Since(start); delay > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}

func (p *Poller) fetch(ctx context.Context) (Batch, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch rates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch rates: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	raw, err := stripJSONP(body)
	if err != nil {
		return nil, err
	}

	var parsed payload
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode rates: %w", err)
	}
	return parsed.Rates, nil
}

// stripJSONP removes the 5-byte `null(` prefix and 3-byte `);` + newline
// suffix around the JSON document, verifying the wrapper tokens.
func stripJSONP(body []byte) ([]byte, error) {
	if len(body) < len(jsonpPrefix)+3 {
		return nil, fmt.Errorf("jsonp body too short: %d bytes", len(body))
	}
	if !bytes.HasPrefix(body, jsonpPrefix) {
		return nil, fmt.Errorf("unexpected jsonp prefix %q", body[:len(jsonpPrefix)])
	}
	inner := body[len(jsonpPrefix) : len(body)-3]
	if !bytes.Contains(body[len(body)-3:], jsonpSuffix) {
		return nil, fmt.Errorf("unexpected jsonp suffix %q", body[len(body)-3:])
	}
	return inner, nil
}
