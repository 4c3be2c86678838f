package exchange

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"tradebot/internal/domain"
	"tradebot/internal/infra/transport"
)

// Session is what a profile uses to reach its exchange: the shared transport,
// the base URL, the credentials and the adapter's nonce.
type Session struct {
	exchange  string
	baseURL   string
	transport *transport.Client
	creds     domain.AdapterCredentials
	nonce     *Nonce
	logger    *slog.Logger
}

// Exchange returns the display name of the exchange.
func (s *Session) Exchange() string {
	return s.exchange
}

// Credentials returns the adapter's credentials.
func (s *Session) Credentials() domain.AdapterCredentials {
	return s.creds
}

// Logger returns the adapter's logger.
func (s *Session) Logger() *slog.Logger {
	return s.logger
}

// URL joins path onto the base URL and appends query.
func (s *Session) URL(path string, query url.Values) string {
	u := strings.TrimRight(s.baseURL, "/") + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// Get performs an unauthenticated GET.
func (s *Session) Get(ctx context.Context, path string, query url.Values) (*transport.Response, error) {
	return s.transport.Send(ctx, &transport.Request{Method: http.MethodGet, URL: s.URL(path, query)})
}

// Send performs a prepared request without touching the nonce.
func (s *Session) Send(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	return s.transport.Send(ctx, req)
}

// Private performs one authenticated call. Exactly one nonce is drawn before
// build runs, whether or not the call then succeeds.
func (s *Session) Private(ctx context.Context, build func(nonce int64) (*transport.Request, error)) (*transport.Response, error) {
	nonce := s.nonce.Next()
	req, err := build(nonce)
	if err != nil {
		return nil, err
	}
	return s.transport.Send(ctx, req)
}

// FormRequest builds a form-encoded POST.
func FormRequest(u string, form url.Values, header http.Header) *transport.Request {
	if header == nil {
		header = make(http.Header)
	}
	header.Set("Content-Type", "application/x-www-form-urlencoded")
	return &transport.Request{
		Method: http.MethodPost,
		URL:    u,
		Body:   []byte(form.Encode()),
		Header: header,
	}
}
