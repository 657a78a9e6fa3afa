package registration

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	dErrors "ansregistry/pkg/domain-errors"
)

// TXTResolver is the slice of net.Resolver the validator needs. Tests inject
// a fake; production uses the system resolver.
type TXTResolver interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

const (
	defaultDNSTimeout   = 5 * time.Second
	defaultDNSAttempts  = 3
	defaultDNSRetryWait = time.Second
)

// DNSValidator proves domain control by comparing a TXT record against the
// issued challenge token. Each lookup runs under its own timeout so a slow
// resolver never blocks unrelated requests, and transient resolution
// failures are retried a small, fixed number of times.
type DNSValidator struct {
	resolver  TXTResolver
	timeout   time.Duration
	attempts  int
	retryWait time.Duration
	logger    *slog.Logger
}

// DNSValidatorConfig carries the tunables; zero values fall back to
// defaults.
type DNSValidatorConfig struct {
	Resolver  TXTResolver
	Timeout   time.Duration
	Attempts  int
	RetryWait time.Duration
}

func NewDNSValidator(cfg DNSValidatorConfig, logger *slog.Logger) *DNSValidator {
	v := &DNSValidator{
		resolver:  cfg.Resolver,
		timeout:   cfg.Timeout,
		attempts:  cfg.Attempts,
		retryWait: cfg.RetryWait,
		logger:    logger,
	}
	if v.resolver == nil {
		v.resolver = net.DefaultResolver
	}
	if v.timeout <= 0 {
		v.timeout = defaultDNSTimeout
	}
	if v.attempts <= 0 {
		v.attempts = defaultDNSAttempts
	}
	if v.retryWait <= 0 {
		v.retryWait = defaultDNSRetryWait
	}
	return v
}

// VerifyTXT looks up the TXT records at recordName and succeeds when any of
// them equals token. NXDOMAIN and a published-but-wrong value fail
// immediately (retrying cannot help until the operator fixes the record);
// transient resolver errors consume the retry budget.
func (v *DNSValidator) VerifyTXT(ctx context.Context, recordName, token string) error {
	var lastErr error
	for attempt := 1; attempt <= v.attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "domain validation cancelled")
			case <-time.After(v.retryWait):
			}
		}

		lookupCtx, cancel := context.WithTimeout(ctx, v.timeout)
		records, err := v.resolver.LookupTXT(lookupCtx, recordName)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "domain validation cancelled")
			}
			var dnsErr *net.DNSError
			if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
				return dErrors.New(dErrors.CodeDNSValidation,
					"TXT record "+recordName+" not found; publish the challenge token and retry")
			}
			v.logger.WarnContext(ctx, "DNS lookup failed",
				"record", recordName,
				"attempt", attempt,
				"error", err,
			)
			lastErr = err
			continue
		}

		for _, record := range records {
			if record == token {
				return nil
			}
		}
		return dErrors.New(dErrors.CodeDNSValidation,
			"TXT record "+recordName+" does not match the challenge token")
	}
	return dErrors.Wrap(lastErr, dErrors.CodeDNSValidation, "DNS resolution failed after retries")
}
