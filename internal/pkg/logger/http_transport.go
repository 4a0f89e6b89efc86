package logger

import (
	"bytes"
	"io"
	log "log/slog"
	"net/http"
	"time"
)

const httpBodyLimit = 1000

// HTTPTransport 记录外部 HTTP 调用（邮件接口等）的请求与响应
type HTTPTransport struct {
	Name      string
	Transport http.RoundTripper
}

func NewHTTPTransport(name string) *HTTPTransport {
	return &HTTPTransport{Name: name, Transport: http.DefaultTransport}
}

func (t *HTTPTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	var reqBody []byte
	if req.Body != nil {
		reqBody, _ = io.ReadAll(req.Body)
		req.Body = io.NopCloser(bytes.NewBuffer(reqBody))
	}

	resp, err := t.Transport.RoundTrip(req)
	elapsed := time.Since(start)

	fields := []any{
		log.String("upstream", t.Name),
		log.String("method", req.Method),
		log.String("url", req.URL.Redacted()),
		log.Duration("latency", elapsed),
		log.String("req_body", truncate(string(reqBody), httpBodyLimit)),
	}

	if err != nil {
		log.ErrorContext(req.Context(), "HTTP_CALL_ERROR", append(fields, log.Any("err", err))...)
		return nil, err
	}

	var resBody []byte
	if resp.Body != nil {
		resBody, _ = io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		resp.Body = io.NopCloser(bytes.NewBuffer(resBody))
	}
	fields = append(fields, log.Int("status", resp.StatusCode), log.String("res_body", truncate(string(resBody), httpBodyLimit)))

	switch {
	case resp.StatusCode >= http.StatusBadRequest:
		log.WarnContext(req.Context(), "HTTP_CALL_FAILED", fields...)
	case elapsed > time.Second:
		log.WarnContext(req.Context(), "HTTP_CALL_SLOW", fields...)
	default:
		log.InfoContext(req.Context(), "HTTP_CALL", fields...)
	}

	return resp, nil
}
