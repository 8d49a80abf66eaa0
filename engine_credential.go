package lifehelper

import (
	"context"
	"errors"
	"fmt"

	"github.com/sengeiou/life-helper-server/credential"
)

// CredentialToken returns the shared upstream access credential, fetching
// it when the cache is empty. Concurrent callers in this process share one
// fetch.
func (e *Engine) CredentialToken(ctx context.Context) (string, error) {
	if e == nil || e.credentials == nil {
		return "", ErrEngineNotReady
	}
	token, err := e.credentials.Token(ctx)
	if err != nil {
		return "", mapCredentialError(err)
	}
	return token, nil
}

// RefreshCredential fetches a new upstream credential and replaces the
// cached one unconditionally.
func (e *Engine) RefreshCredential(ctx context.Context) (string, error) {
	if e == nil || e.credentials == nil {
		return "", ErrEngineNotReady
	}
	token, err := e.credentials.Refresh(ctx)
	if err != nil {
		return "", mapCredentialError(err)
	}
	return token, nil
}

// RunCredentialCycle runs one refresher decision synchronously. It is what
// the background refresher does on every tick.
func (e *Engine) RunCredentialCycle(ctx context.Context) (credential.Outcome, error) {
	if e == nil || e.refresher == nil {
		return credential.OutcomeSkipped, ErrEngineNotReady
	}
	return e.refresher.RunOnce(ctx), nil
}

// Credentials returns the credential manager, or nil when the engine was
// built without an issuer.
func (e *Engine) Credentials() *credential.Manager {
	if e == nil {
		return nil
	}
	return e.credentials
}

func (e *Engine) onCredentialFetch(kind credential.FetchKind, err error) {
	e.metricInc(MetricCredentialFetch)
	if err != nil {
		e.metricInc(MetricCredentialFetchFailure)
	}
	mode := "miss"
	if kind == credential.FetchRefresh {
		mode = "refresh"
	}
	e.emitAudit(context.Background(), auditEventCredentialFetched, err == nil, "", "", mapCredentialError(err), func() map[string]string {
		return map[string]string{"mode": mode}
	})
}

func (e *Engine) onRefresherCycle(outcome credential.Outcome, probeErr error) {
	switch outcome {
	case credential.OutcomeFresh:
		e.metricInc(MetricCredentialFresh)
	case credential.OutcomeRefreshed:
		e.metricInc(MetricCredentialRefreshed)
		e.emitAudit(context.Background(), auditEventCredentialRefreshed, true, "", "", nil, nil)
	case credential.OutcomeRefreshFailed:
		e.metricInc(MetricCredentialRefreshFailure)
		e.emitAudit(context.Background(), auditEventCredentialRefreshed, false, "", "", ErrUpstreamUnavailable, nil)
	case credential.OutcomeSkipped:
		e.metricInc(MetricCredentialProbeSkipped)
	}
	if probeErr != nil {
		e.emitAudit(context.Background(), auditEventCredentialProbeFailed, false, "", "", mapCredentialError(probeErr), func() map[string]string {
			return map[string]string{"outcome": outcome.String()}
		})
	}
}

func mapCredentialError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, credential.ErrInvalidCredential):
		return fmt.Errorf("%w: %v", ErrUpstreamInvalidCredential, err)
	case errors.Is(err, credential.ErrStoreUnavailable):
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	default:
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
}
