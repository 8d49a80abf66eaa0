package flows

import (
	"context"
	"fmt"
	"strings"
)

// ExchangeLoginResult is the flow-local response of a code login.
type ExchangeLoginResult struct {
	SessionToken string
	UserID       string
	ExternalID   string
}

// ExchangeLoginMetrics carries metric IDs needed by the code login flow.
type ExchangeLoginMetrics struct {
	LoginSuccess     int
	LoginCodeInvalid int
	LoginUpstream    int
	LoginResolveFail int
	LoginMintFailure int
}

// ExchangeLoginEvents carries audit event names used by the code login flow.
type ExchangeLoginEvents struct {
	LoginSuccess string
	LoginFailure string
}

// ExchangeLoginErrors carries host-level sentinel errors used by the code
// login flow.
type ExchangeLoginErrors struct {
	EngineNotReady      error
	ExchangeCodeInvalid error
	InvalidIdentity     error
	SessionMintFailed   error
}

// ExchangeLoginDeps captures code login dependencies.
type ExchangeLoginDeps struct {
	Exchange    func(context.Context, string) (string, error)
	Resolve     func(context.Context, string) (string, error)
	MintSession func(context.Context, string) (string, error)

	// MapExchangeError and MapResolveError translate collaborator failures
	// into host errors. Identity when nil.
	MapExchangeError func(error) error
	MapResolveError  func(error) error

	RedactCode func(string) string
	Info       func(string, ...any)

	MetricInc func(int)
	EmitAudit func(context.Context, string, bool, string, string, error, func() map[string]string)

	Metrics ExchangeLoginMetrics
	Events  ExchangeLoginEvents
	Errors  ExchangeLoginErrors
}

func (deps *ExchangeLoginDeps) normalize() {
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, error, func() map[string]string) {}
	}
	if deps.Info == nil {
		deps.Info = func(string, ...any) {}
	}
	if deps.RedactCode == nil {
		deps.RedactCode = redactCode
	}
	if deps.MapExchangeError == nil {
		deps.MapExchangeError = func(err error) error { return err }
	}
	if deps.MapResolveError == nil {
		deps.MapResolveError = func(err error) error { return err }
	}
}

// RunExchangeLogin trades a one-time code for an external identity, resolves
// it to a local user and mints a session token.
//
// Nothing is written when the exchange fails. A resolve failure after a
// successful exchange mints nothing.
func RunExchangeLogin(ctx context.Context, code string, deps ExchangeLoginDeps) (*ExchangeLoginResult, error) {
	deps.normalize()
	if deps.Exchange == nil || deps.Resolve == nil || deps.MintSession == nil {
		return nil, deps.Errors.EngineNotReady
	}

	code = strings.TrimSpace(code)
	if code == "" {
		deps.MetricInc(deps.Metrics.LoginCodeInvalid)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, "", "", deps.Errors.ExchangeCodeInvalid, nil)
		return nil, deps.Errors.ExchangeCodeInvalid
	}

	externalID, err := deps.Exchange(ctx, code)
	if err != nil {
		mapped := deps.MapExchangeError(err)
		if isError(mapped, deps.Errors.ExchangeCodeInvalid) {
			deps.MetricInc(deps.Metrics.LoginCodeInvalid)
		} else {
			deps.MetricInc(deps.Metrics.LoginUpstream)
		}
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, "", "", mapped, func() map[string]string {
			return map[string]string{"stage": "exchange"}
		})
		return nil, mapped
	}
	if externalID == "" {
		deps.MetricInc(deps.Metrics.LoginUpstream)
		return nil, deps.Errors.InvalidIdentity
	}

	userID, err := deps.Resolve(ctx, externalID)
	if err != nil {
		mapped := deps.MapResolveError(err)
		deps.MetricInc(deps.Metrics.LoginResolveFail)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, "", "", mapped, func() map[string]string {
			return map[string]string{"stage": "resolve"}
		})
		return nil, mapped
	}

	deps.Info("code login", "code", deps.RedactCode(code), "openid", externalID, "userId", userID)

	token, err := deps.MintSession(ctx, userID)
	if err != nil {
		deps.MetricInc(deps.Metrics.LoginMintFailure)
		wrapped := fmt.Errorf("%w: %v", deps.Errors.SessionMintFailed, err)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, userID, "", wrapped, func() map[string]string {
			return map[string]string{"stage": "mint"}
		})
		return nil, wrapped
	}

	deps.MetricInc(deps.Metrics.LoginSuccess)
	deps.EmitAudit(ctx, deps.Events.LoginSuccess, true, userID, "", nil, nil)
	return &ExchangeLoginResult{
		SessionToken: token,
		UserID:       userID,
		ExternalID:   externalID,
	}, nil
}

// redactCode keeps the first four characters of a login code.
func redactCode(code string) string {
	if len(code) <= 4 {
		return "****"
	}
	return code[:4] + "****"
}
