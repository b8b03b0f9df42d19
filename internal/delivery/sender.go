package delivery

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"
)

type SendResult struct {
	StatusCode   int
	ResponseBody string
	LatencyMs    int64
	Err          error
}

// Sender performs the raw HTTP exchange. Deadlines come from ctx.
type Sender struct {
	client  *http.Client
	maxBody int64
}

func NewSender(client *http.Client, maxBody int64) *Sender {
	if client == nil {
		client = &http.Client{}
	}
	if maxBody <= 0 {
		maxBody = 1024
	}
	return &Sender{client: client, maxBody: maxBody}
}

func (s *Sender) Send(ctx context.Context, method, url string, header http.Header, payload []byte) *SendResult {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
	if err != nil {
		return &SendResult{
			Err:       &requestError{err: err},
			LatencyMs: time.Since(start).Milliseconds(),
		}
	}
	for name, values := range header {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return &SendResult{
			Err:       err,
			LatencyMs: time.Since(start).Milliseconds(),
		}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, s.maxBody))

	return &SendResult{
		StatusCode:   resp.StatusCode,
		ResponseBody: string(body),
		LatencyMs:    time.Since(start).Milliseconds(),
	}
}

// requestError marks a request that could not be built, so it never left
// the process.
type requestError struct {
	err error
}

func (e *requestError) Error() string { return "invalid request: " + e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }
