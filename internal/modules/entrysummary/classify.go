package entrysummary

import (
	"context"
	"errors"
	"net"
	"regexp"
	"strconv"
	"strings"

	"github.com/mx-space/journal/internal/models"
	"github.com/mx-space/journal/internal/modules/analysis"
)

var (
	rateLimitStatus    = regexp.MustCompile(`\b429\b`)
	unauthorizedStatus = regexp.MustCompile(`\b401\b`)
)

var networkHints = []string{
	"network", "fetch", "api error", "api key", "connection", "dial tcp",
	"no such host", "eof", "tls", "bad gateway", "service unavailable",
}

// Classify maps a failed analysis to a hold reason and, when one is known,
// the HTTP status as an error code. lastMessage is the analyzer's shared
// record of its latest failure and is consulted only when err has no text.
func Classify(err error, lastMessage string) (models.HoldReason, string) {
	if err == nil {
		return models.HoldUnknown, ""
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	if msg == "" {
		msg = strings.ToLower(lastMessage)
	}
	status := analysis.StatusCode(err)
	code := ""
	if status != 0 {
		code = strconv.Itoa(status)
	}

	switch {
	case status == 429 || rateLimitStatus.MatchString(msg) ||
		strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests"):
		return models.HoldRateLimit, "429"
	case errors.Is(err, context.DeadlineExceeded) || strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "timed out") || strings.Contains(msg, "deadline exceeded"):
		return models.HoldTimeout, code
	case status == 401 || unauthorizedStatus.MatchString(msg) || strings.Contains(msg, "unauthorized"):
		return models.HoldAPIError, "401"
	case isNetworkShaped(err, status, msg):
		return models.HoldAPIError, code
	case errors.Is(err, analysis.ErrInvalidResponse) || strings.Contains(msg, "invalid") || strings.Contains(msg, "parse"):
		return models.HoldInvalidResponse, code
	default:
		return models.HoldUnknown, code
	}
}

func isNetworkShaped(err error, status int, msg string) bool {
	if status >= 400 || errors.Is(err, analysis.ErrNoProvider) {
		return true
	}
	var apiErr *analysis.APIError
	if errors.As(err, &apiErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	for _, hint := range networkHints {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}
