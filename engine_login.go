package lifehelper

import (
	"context"
	"time"
)

// LoginByExchangeCode trades a one-time login code for a session token:
// code to external identity, external identity to local user, local user to
// token.
func (e *Engine) LoginByExchangeCode(ctx context.Context, code string) (string, error) {
	res, err := e.LoginByExchangeCodeWithResult(ctx, code)
	if err != nil {
		return "", err
	}
	return res.SessionToken, nil
}

// LoginByExchangeCodeWithResult is [Engine.LoginByExchangeCode] returning
// the resolved identities as well.
func (e *Engine) LoginByExchangeCodeWithResult(ctx context.Context, code string) (*LoginResult, error) {
	if e == nil || !e.flow.Initialized() {
		return nil, ErrEngineNotReady
	}

	start := time.Now()
	res, err := e.flow.ExchangeLogin(ctx, code)
	e.metricObserve(MetricExchangeLoginLatency, time.Since(start))
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		SessionToken: res.SessionToken,
		UserID:       res.UserID,
		ExternalID:   res.ExternalID,
	}, nil
}
