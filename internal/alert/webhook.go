package alert

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxAttempts = 3

// backoffUnit scales the pause between attempts: attempt n waits n-1
// units before firing.
var backoffUnit = time.Second

var httpClient = &http.Client{Timeout: 5 * time.Second}

// Send delivers one event to one destination. Transport failures and 5xx
// responses are retried with linear backoff; any other non-2xx answer
// means the destination rejected the payload and the attempt stops there.
func Send(cfg Config, event Event) error {
	payload, err := FormatPayload(cfg.Format, event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("webhook destination %q: %w", cfg.URL, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			time.Sleep(time.Duration(attempt-1) * backoffUnit)
		}

		r := req.Clone(req.Context())
		r.Body = io.NopCloser(bytes.NewReader(payload))
		r.ContentLength = int64(len(payload))

		resp, err := httpClient.Do(r)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("webhook server error: HTTP %d", resp.StatusCode)
		default:
			return fmt.Errorf("webhook rejected event: HTTP %d", resp.StatusCode)
		}
	}

	return fmt.Errorf("webhook delivery failed after %d attempts: %w", maxAttempts, lastErr)
}
