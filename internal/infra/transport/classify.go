package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"net/url"
	"strings"

	"tradebot/internal/domain"
)

// retriableMessages are SSL-stack and socket artifacts observed from flaky
// exchanges. Matching is case-insensitive so that both the historical
// renderings and the Go runtime's ("connection reset by peer") hit.
var retriableMessages = []string{
	"Connection reset",
	"Remote host closed connection during handshake",
	"Unexpected end of file from server",
	"Connection refused",
}

// unhealthyStatus are gateway and CDN codes after which the exchange usually
// recovers by the next call.
var unhealthyStatus = map[int]bool{
	502: true,
	503: true,
	504: true,
	520: true,
	522: true,
	525: true,
}

// IsUnhealthyStatus reports whether code signals transient exchange trouble.
func IsUnhealthyStatus(code int) bool {
	return unhealthyStatus[code]
}

// Classify maps a transport failure to NetworkTimeoutError or UnexpectedNetworkError.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && isParseError(urlErr) {
		return domain.NewUnexpectedNetworkError(op, err)
	}

	// the caller gave up; the exchange did nothing wrong and a retry would
	// run under the same dead context
	if errors.Is(err, context.Canceled) {
		return domain.NewUnexpectedNetworkError(op, context.Canceled)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewNetworkTimeoutError(op, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.NewNetworkTimeoutError(op, err)
	}

	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return domain.NewNetworkTimeoutError(op, err)
	}

	if MatchesRetriableMessage(err.Error()) {
		return domain.NewNetworkTimeoutError(op, err)
	}

	return domain.NewUnexpectedNetworkError(op, err)
}

// MatchesRetriableMessage reports whether msg contains a known transient pattern.
func MatchesRetriableMessage(msg string) bool {
	lower := strings.ToLower(msg)
	for _, p := range retriableMessages {
		if strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

func isParseError(e *url.Error) bool {
	return e.Op == "parse"
}
