package entrysummary

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// RetryReport counts what one RetryHeld pass did.
type RetryReport struct {
	Attempted  int `json:"attempted"`
	Summarized int `json:"summarized"`
	Held       int `json:"held"`
	Skipped    int `json:"skipped"`
}

// RetryHeld retries every held entry that still has retries left. It is
// meant to be driven by an external schedule.
func (m *Machine) RetryHeld(ctx context.Context) (RetryReport, error) {
	var (
		report RetryReport
		errs   []error
	)
	for _, hold := range m.store.HoldStatuses() {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if hold.RetryCount >= m.maxRetries {
			report.Skipped++
			continue
		}
		report.Attempted++
		res, err := m.Retry(ctx, hold.EntryID)
		switch {
		case errors.Is(err, ErrInProgress), errors.Is(err, ErrEntryChanged), errors.Is(err, ErrRetryLimit):
			report.Skipped++
		case err != nil:
			errs = append(errs, err)
		case res.State == StateSummarized:
			report.Summarized++
		default:
			report.Held++
		}
	}
	if report.Attempted > 0 {
		m.logger.Info("held summaries retried",
			zap.Int("attempted", report.Attempted),
			zap.Int("summarized", report.Summarized),
			zap.Int("held", report.Held))
	}
	return report, errors.Join(errs...)
}
