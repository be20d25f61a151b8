// Package loki ships entry batches to a Loki push endpoint.
package loki

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/avast/retry-go"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"

	"github.com/Chichichkin/LogShipper/internal/logging"
)

const pushPath = "/loki/api/v1/push"

type Options struct {
	// BaseURL is the Loki base address, e.g. http://loki:3100.
	BaseURL string
	// TenantID, when set, is sent as the X-Scope-OrgID header.
	TenantID string
	// Username/Password, when set, are sent as basic auth.
	Username string
	Password string
	// StaticLabels are attached to every stream in addition to the
	// entry's own labels.
	StaticLabels map[string]string
	// Compress gzips the request body.
	Compress bool
	// MaxAttempts bounds the per-request retries inside one delivery
	// attempt. Defaults to 3.
	MaxAttempts uint
	// RetryDelay is the starting delay between those retries. Defaults
	// to 500ms, doubling per attempt.
	RetryDelay time.Duration
	// Timeout is the per-request HTTP timeout. Defaults to 5s.
	Timeout time.Duration
}

// Emitter POSTs batches as Loki streams. A delivery attempt retries the HTTP
// request a bounded number of times; if all attempts fail the whole batch is
// reported failed and the caller's scheduling policy takes over.
type Emitter struct {
	opts       Options
	httpClient *http.Client
}

type Stream struct {
	Stream map[string]string `json:"stream"`
	Values [][2]string       `json:"values"`
}

type Payload struct {
	Streams []Stream `json:"streams"`
}

func NewEmitter(opts Options) *Emitter {
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 500 * time.Millisecond
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	return &Emitter{
		opts: opts,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
	}
}

func (e *Emitter) EmitBatch(ctx context.Context, entries []logging.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	body, err := json.Marshal(e.createPayload(entries))
	if err != nil {
		return errors.Wrap(err, "marshaling loki payload")
	}
	if e.opts.Compress {
		body, err = gzipBody(body)
		if err != nil {
			return errors.Wrap(err, "compressing loki payload")
		}
	}

	return retry.Do(
		func() error { return e.sendRequest(ctx, body) },
		retry.RetryIf(func(error) bool { return ctx.Err() == nil }),
		retry.Attempts(e.opts.MaxAttempts),
		retry.Delay(e.opts.RetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
}

// EmitEmpty is a no-op: Loki needs no keepalive between pushes.
func (e *Emitter) EmitEmpty(_ context.Context) error {
	return nil
}

func (e *Emitter) Close() error {
	e.httpClient.CloseIdleConnections()
	return nil
}

func (e *Emitter) createPayload(entries []logging.LogEntry) Payload {
	streams := make(map[string]Stream)

	for _, entry := range entries {
		key := streamKey(entry)
		if _, exists := streams[key]; !exists {
			streams[key] = Stream{
				Stream: e.createLabels(entry),
				Values: [][2]string{},
			}
		}

		stream := streams[key]
		timestamp := fmt.Sprintf("%d", entry.Timestamp.UnixNano())
		stream.Values = append(stream.Values, [2]string{timestamp, entry.Message})
		streams[key] = stream
	}

	payload := Payload{
		Streams: make([]Stream, 0, len(streams)),
	}
	for _, stream := range streams {
		payload.Streams = append(payload.Streams, stream)
	}
	return payload
}

func streamKey(entry logging.LogEntry) string {
	return fmt.Sprintf("%s:%s", entry.Labels["pod"], entry.Labels["container"])
}

func (e *Emitter) createLabels(entry logging.LogEntry) map[string]string {
	labels := make(map[string]string, len(e.opts.StaticLabels)+len(entry.Labels))
	for k, v := range e.opts.StaticLabels {
		labels[k] = v
	}
	for k, v := range entry.Labels {
		labels[k] = v
	}
	return labels
}

func (e *Emitter) sendRequest(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.opts.BaseURL+pushPath, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "creating loki request")
	}

	req.Header.Set("Content-Type", "application/json")
	if e.opts.Compress {
		req.Header.Set("Content-Encoding", "gzip")
	}
	if e.opts.TenantID != "" {
		req.Header.Set("X-Scope-OrgID", e.opts.TenantID)
	}
	if e.opts.Username != "" {
		req.SetBasicAuth(e.opts.Username, e.opts.Password)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "sending loki request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		responseBody, _ := io.ReadAll(resp.Body)
		return errors.Errorf("loki returned status %d: %s", resp.StatusCode, string(responseBody))
	}
	return nil
}

func gzipBody(body []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(body); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
