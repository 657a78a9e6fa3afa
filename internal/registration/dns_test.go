package registration

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "ansregistry/pkg/domain-errors"
)

type fakeResolver struct {
	records map[string][]string
	errs    []error // consumed one per call, then records are served
	calls   int
}

func (r *fakeResolver) LookupTXT(_ context.Context, name string) ([]string, error) {
	r.calls++
	if len(r.errs) > 0 {
		err := r.errs[0]
		r.errs = r.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return r.records[name], nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestValidator(resolver TXTResolver) *DNSValidator {
	return NewDNSValidator(DNSValidatorConfig{
		Resolver:  resolver,
		Timeout:   time.Second,
		Attempts:  3,
		RetryWait: time.Millisecond,
	}, quietLogger())
}

func TestVerifyTXTMatch(t *testing.T) {
	resolver := &fakeResolver{records: map[string][]string{
		"_ans-challenge.bot.example.com": {"unrelated", "the-token"},
	}}
	v := newTestValidator(resolver)

	err := v.VerifyTXT(context.Background(), "_ans-challenge.bot.example.com", "the-token")
	require.NoError(t, err)
	assert.Equal(t, 1, resolver.calls)
}

func TestVerifyTXTWrongValueFailsFast(t *testing.T) {
	resolver := &fakeResolver{records: map[string][]string{
		"_ans-challenge.bot.example.com": {"stale-token"},
	}}
	v := newTestValidator(resolver)

	err := v.VerifyTXT(context.Background(), "_ans-challenge.bot.example.com", "the-token")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeDNSValidation))
	assert.Equal(t, 1, resolver.calls, "a published wrong value is not retried")
}

func TestVerifyTXTNXDomainFailsFast(t *testing.T) {
	resolver := &fakeResolver{errs: []error{
		&net.DNSError{Err: "no such host", Name: "_ans-challenge.bot.example.com", IsNotFound: true},
	}}
	v := newTestValidator(resolver)

	err := v.VerifyTXT(context.Background(), "_ans-challenge.bot.example.com", "the-token")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeDNSValidation))
	assert.Equal(t, 1, resolver.calls)
}

func TestVerifyTXTRetriesTransientErrors(t *testing.T) {
	transient := &net.DNSError{Err: "server misbehaving", IsTemporary: true}

	t.Run("recovers within the budget", func(t *testing.T) {
		resolver := &fakeResolver{
			errs:    []error{transient, transient},
			records: map[string][]string{"_ans-challenge.bot.example.com": {"the-token"}},
		}
		v := newTestValidator(resolver)

		err := v.VerifyTXT(context.Background(), "_ans-challenge.bot.example.com", "the-token")
		require.NoError(t, err)
		assert.Equal(t, 3, resolver.calls)
	})

	t.Run("gives up after the budget", func(t *testing.T) {
		resolver := &fakeResolver{errs: []error{transient, transient, transient}}
		v := newTestValidator(resolver)

		err := v.VerifyTXT(context.Background(), "_ans-challenge.bot.example.com", "the-token")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeDNSValidation))
		assert.Equal(t, 3, resolver.calls)
	})
}

func TestVerifyTXTCancellation(t *testing.T) {
	resolver := &fakeResolver{errs: []error{
		errors.New("temporary glitch"),
		errors.New("temporary glitch"),
	}}
	v := NewDNSValidator(DNSValidatorConfig{
		Resolver:  resolver,
		Timeout:   time.Second,
		Attempts:  3,
		RetryWait: time.Hour, // the cancelled context must win, not the wait
	}, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := v.VerifyTXT(ctx, "_ans-challenge.bot.example.com", "the-token")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
}
