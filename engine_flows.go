package lifehelper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sengeiou/life-helper-server/credential"
	"github.com/sengeiou/life-helper-server/internal"
	"github.com/sengeiou/life-helper-server/internal/flows"
	"github.com/sengeiou/life-helper-server/internal/rate"
	"github.com/sengeiou/life-helper-server/user"
	"github.com/sengeiou/life-helper-server/weixin"
)

func (e *Engine) buildFlows() flows.Service {
	emit := func(ctx context.Context, event string, success bool, userID, ticketID string, err error, meta func() map[string]string) {
		e.emitAudit(ctx, event, success, userID, ticketID, err, meta)
	}
	inc := func(id int) { e.metricInc(MetricID(id)) }

	qr := flows.QRLoginDeps{
		TicketTTL:        e.config.Ticket.TTL,
		Store:            e.tickets,
		NewTicketID:      internal.NewTicketID,
		ParseTicketID:    internal.ParseTicketID,
		Resource:         e.ticketResource,
		MapResourceError: mapResourceError,
		MintSession: func(_ context.Context, userID string) (string, error) {
			return e.mintSession(userID, ChannelQRCode)
		},
		Now: time.Now,
		CheckIssueRate: func(ctx context.Context) error {
			return mapRateError(e.rateLimiter.CheckIssue(ctx, clientIPFromContext(ctx)))
		},
		CheckPollRate: func(ctx context.Context, ticketID string) error {
			return mapRateError(e.rateLimiter.CheckPoll(ctx, ticketID))
		},
		MetricInc: inc,
		ObservePoll: func(d time.Duration) {
			e.metricObserve(MetricPollLatency, d)
		},
		EmitAudit: emit,
		Metrics: flows.QRLoginMetrics{
			TicketIssued:            int(MetricTicketIssued),
			TicketScanned:           int(MetricTicketScanned),
			TicketConfirmed:         int(MetricTicketConfirmed),
			TicketConsumed:          int(MetricTicketConsumed),
			TicketNotFound:          int(MetricTicketNotFound),
			TicketInvalidTransition: int(MetricTicketInvalidTransition),
			TicketRateLimited:       int(MetricTicketRateLimited),
			ResourceFailure:         int(MetricTicketResourceFailure),
			SessionMintFailure:      int(MetricSessionMintFailure),
		},
		Events: flows.QRLoginEvents{
			TicketIssued:      auditEventTicketIssued,
			TicketScanned:     auditEventTicketScanned,
			TicketConfirmed:   auditEventTicketConfirmed,
			TicketConsumed:    auditEventTicketConsumed,
			TicketRejected:    auditEventTicketRejected,
			RateLimited:       auditEventRateLimitTriggered,
			SessionMintFailed: auditEventSessionMintFailed,
		},
		Errors: flows.QRLoginErrors{
			EngineNotReady:    ErrEngineNotReady,
			TicketNotFound:    ErrTicketNotFound,
			InvalidTransition: ErrInvalidTransition,
			StoreUnavailable:  ErrStoreUnavailable,
			RateLimited:       ErrTicketRateLimited,
			InvalidIdentity:   ErrInvalidIdentity,
			SessionMintFailed: ErrSessionMintFailed,
		},
	}

	login := flows.ExchangeLoginDeps{
		MintSession: func(_ context.Context, userID string) (string, error) {
			return e.mintSession(userID, ChannelWeixin)
		},
		MapExchangeError: mapExchangeError,
		MapResolveError:  mapResolveError,
		RedactCode:       internal.RedactCode,
		Info: func(msg string, args ...any) {
			e.logger.Info(msg, args...)
		},
		MetricInc: inc,
		EmitAudit: emit,
		Metrics: flows.ExchangeLoginMetrics{
			LoginSuccess:     int(MetricExchangeLoginSuccess),
			LoginCodeInvalid: int(MetricExchangeLoginCodeInvalid),
			LoginUpstream:    int(MetricExchangeLoginUpstreamFailure),
			LoginResolveFail: int(MetricExchangeLoginResolveFailure),
			LoginMintFailure: int(MetricSessionMintFailure),
		},
		Events: flows.ExchangeLoginEvents{
			LoginSuccess: auditEventExchangeLoginSuccess,
			LoginFailure: auditEventExchangeLoginFailure,
		},
		Errors: flows.ExchangeLoginErrors{
			EngineNotReady:      ErrEngineNotReady,
			ExchangeCodeInvalid: ErrExchangeCodeInvalid,
			InvalidIdentity:     ErrInvalidIdentity,
			SessionMintFailed:   ErrSessionMintFailed,
		},
	}
	if e.exchanger != nil {
		login.Exchange = e.exchanger.ExchangeCodeForIdentity
	}
	if e.users != nil {
		login.Resolve = e.users.ResolveOrCreateLocalUser
	}

	return flows.New(flows.Deps{
		QRLogin:       qr,
		ExchangeLogin: login,
	})
}

func (e *Engine) ticketResource(ctx context.Context, ticketID string, ttl time.Duration) (string, error) {
	if e.resources == nil {
		return "", ErrEngineNotReady
	}
	return e.resources.TicketResource(ctx, ticketID, ttl)
}

func mapRateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rate.ErrRateLimited):
		return ErrTicketRateLimited
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}

func mapResourceError(err error) error {
	switch {
	case errors.Is(err, ErrEngineNotReady):
		return err
	case errors.Is(err, credential.ErrInvalidCredential):
		return fmt.Errorf("%w: %v", ErrUpstreamInvalidCredential, err)
	case errors.Is(err, credential.ErrUpstreamUnavailable):
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}

func mapExchangeError(err error) error {
	switch {
	case errors.Is(err, weixin.ErrCodeInvalid), errors.Is(err, weixin.ErrRejected):
		return fmt.Errorf("%w: %v", ErrExchangeCodeInvalid, err)
	case errors.Is(err, credential.ErrInvalidCredential):
		return fmt.Errorf("%w: %v", ErrUpstreamInvalidCredential, err)
	default:
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
}

func mapResolveError(err error) error {
	switch {
	case errors.Is(err, user.ErrInvalidExternalID):
		return fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}
