package flows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sengeiou/life-helper-server/ticket"
)

// TicketStore is the persistence surface the QR login flows need.
type TicketStore interface {
	Save(ctx context.Context, r *ticket.Record, ttl time.Duration) error
	Get(ctx context.Context, ticketID string) (*ticket.Record, error)
	Transition(ctx context.Context, ticketID string, from, to ticket.Status, userID string, at time.Time) (*ticket.Record, error)
}

// IssueResult is the flow-local issuance response shape.
type IssueResult struct {
	TicketID    string
	ResourceURL string
	ExpiresAt   time.Time
}

// PollResult is the flow-local poll response shape. UserID and
// SessionToken are set only on the consuming read.
type PollResult struct {
	Status       ticket.Status
	UserID       string
	SessionToken string
}

// QRLoginMetrics carries metric IDs needed by the QR login flows.
type QRLoginMetrics struct {
	TicketIssued            int
	TicketScanned           int
	TicketConfirmed         int
	TicketConsumed          int
	TicketNotFound          int
	TicketInvalidTransition int
	TicketRateLimited       int
	ResourceFailure         int
	SessionMintFailure      int
}

// QRLoginEvents carries audit event names used by the QR login flows.
type QRLoginEvents struct {
	TicketIssued      string
	TicketScanned     string
	TicketConfirmed   string
	TicketConsumed    string
	TicketRejected    string
	RateLimited       string
	SessionMintFailed string
}

// QRLoginErrors carries host-level sentinel errors used by the QR login flows.
type QRLoginErrors struct {
	EngineNotReady    error
	TicketNotFound    error
	InvalidTransition error
	StoreUnavailable  error
	RateLimited       error
	InvalidIdentity   error
	SessionMintFailed error
}

// QRLoginDeps captures QR login dependencies.
type QRLoginDeps struct {
	TicketTTL time.Duration

	Store         TicketStore
	NewTicketID   func() (string, error)
	ParseTicketID func(string) (string, error)
	Resource      func(context.Context, string, time.Duration) (string, error)
	// MapResourceError translates provider failures into host errors.
	MapResourceError func(error) error
	MintSession      func(context.Context, string) (string, error)
	Now              func() time.Time

	// Rate checks are optional. They return Errors.RateLimited when the
	// budget is spent.
	CheckIssueRate func(context.Context) error
	CheckPollRate  func(context.Context, string) error

	MetricInc   func(int)
	ObservePoll func(time.Duration)
	EmitAudit   func(context.Context, string, bool, string, string, error, func() map[string]string)

	Metrics QRLoginMetrics
	Events  QRLoginEvents
	Errors  QRLoginErrors
}

const maxIssueAttempts = 3

func (deps *QRLoginDeps) normalize() {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.ObservePoll == nil {
		deps.ObservePoll = func(time.Duration) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, error, func() map[string]string) {}
	}
	if deps.ParseTicketID == nil {
		deps.ParseTicketID = func(id string) (string, error) { return id, nil }
	}
	if deps.MapResourceError == nil {
		storeUnavailable := deps.Errors.StoreUnavailable
		deps.MapResourceError = func(err error) error {
			return fmt.Errorf("%w: %v", storeUnavailable, err)
		}
	}
}

// RunIssueTicket creates a CREATED ticket with its scannable resource.
func RunIssueTicket(ctx context.Context, deps QRLoginDeps) (*IssueResult, error) {
	deps.normalize()
	if deps.Store == nil || deps.NewTicketID == nil || deps.Resource == nil {
		return nil, deps.Errors.EngineNotReady
	}

	if deps.CheckIssueRate != nil {
		if err := deps.CheckIssueRate(ctx); err != nil {
			if errors.Is(err, deps.Errors.RateLimited) {
				deps.MetricInc(deps.Metrics.TicketRateLimited)
				deps.EmitAudit(ctx, deps.Events.RateLimited, false, "", "", err, func() map[string]string {
					return map[string]string{"scope": "ticket_issue"}
				})
			}
			return nil, err
		}
	}

	for attempt := 0; attempt < maxIssueAttempts; attempt++ {
		id, err := deps.NewTicketID()
		if err != nil {
			return nil, fmt.Errorf("ticket id: %w", err)
		}

		url, err := deps.Resource(ctx, id, deps.TicketTTL)
		if err != nil {
			deps.MetricInc(deps.Metrics.ResourceFailure)
			return nil, deps.MapResourceError(err)
		}

		now := deps.Now()
		rec := &ticket.Record{
			ID:          id,
			ResourceURL: url,
			Status:      ticket.StatusCreated,
			CreatedAt:   now,
		}
		err = deps.Store.Save(ctx, rec, deps.TicketTTL)
		if errors.Is(err, ticket.ErrAlreadyExists) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)
		}

		deps.MetricInc(deps.Metrics.TicketIssued)
		deps.EmitAudit(ctx, deps.Events.TicketIssued, true, "", id, nil, nil)
		return &IssueResult{
			TicketID:    id,
			ResourceURL: url,
			ExpiresAt:   now.Add(deps.TicketTTL),
		}, nil
	}

	return nil, fmt.Errorf("%w: ticket id collision", deps.Errors.StoreUnavailable)
}

// RunMarkTicketScanned moves a ticket from CREATED to SCANNED.
func RunMarkTicketScanned(ctx context.Context, ticketID string, deps QRLoginDeps) error {
	deps.normalize()
	if deps.Store == nil {
		return deps.Errors.EngineNotReady
	}

	_, err := transition(ctx, ticketID, ticket.StatusCreated, ticket.StatusScanned, "", deps)
	if err != nil {
		return err
	}

	deps.MetricInc(deps.Metrics.TicketScanned)
	deps.EmitAudit(ctx, deps.Events.TicketScanned, true, "", ticketID, nil, nil)
	return nil
}

// RunConfirmTicket moves a ticket from SCANNED to CONFIRMED and binds userID.
func RunConfirmTicket(ctx context.Context, ticketID, userID string, deps QRLoginDeps) error {
	deps.normalize()
	if deps.Store == nil {
		return deps.Errors.EngineNotReady
	}
	if userID == "" {
		return deps.Errors.InvalidIdentity
	}

	_, err := transition(ctx, ticketID, ticket.StatusScanned, ticket.StatusConfirmed, userID, deps)
	if err != nil {
		return err
	}

	deps.MetricInc(deps.Metrics.TicketConfirmed)
	deps.EmitAudit(ctx, deps.Events.TicketConfirmed, true, userID, ticketID, nil, nil)
	return nil
}

// RunPollTicket reports the ticket status. A CONFIRMED ticket is consumed by
// this call and its bound user returned; exactly one concurrent poller wins.
// Missing, expired and already consumed tickets report INVALID without an
// error. With mint set, the consuming read also carries a session token.
func RunPollTicket(ctx context.Context, ticketID string, mint bool, deps QRLoginDeps) (*PollResult, error) {
	deps.normalize()
	if deps.Store == nil || (mint && deps.MintSession == nil) {
		return nil, deps.Errors.EngineNotReady
	}

	started := deps.Now()
	defer func() { deps.ObservePoll(deps.Now().Sub(started)) }()

	id, err := deps.ParseTicketID(ticketID)
	if err != nil {
		deps.MetricInc(deps.Metrics.TicketNotFound)
		return invalidPoll(), nil
	}

	if deps.CheckPollRate != nil {
		if err := deps.CheckPollRate(ctx, id); err != nil {
			if errors.Is(err, deps.Errors.RateLimited) {
				deps.MetricInc(deps.Metrics.TicketRateLimited)
				deps.EmitAudit(ctx, deps.Events.RateLimited, false, "", id, err, func() map[string]string {
					return map[string]string{"scope": "ticket_poll"}
				})
			}
			return nil, err
		}
	}

	rec, err := deps.Store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ticket.ErrNotFound) {
			deps.MetricInc(deps.Metrics.TicketNotFound)
			return invalidPoll(), nil
		}
		return nil, fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)
	}

	switch rec.Status {
	case ticket.StatusCreated, ticket.StatusScanned:
		return &PollResult{Status: rec.Status}, nil
	case ticket.StatusConfirmed:
		return consumeTicket(ctx, id, mint, deps)
	case ticket.StatusConsumed:
		return invalidPoll(), nil
	case ticket.StatusInvalid:
		return invalidPoll(), nil
	default:
		return invalidPoll(), nil
	}
}

func consumeTicket(ctx context.Context, ticketID string, mint bool, deps QRLoginDeps) (*PollResult, error) {
	rec, err := deps.Store.Transition(ctx, ticketID, ticket.StatusConfirmed, ticket.StatusConsumed, "", deps.Now())
	if err != nil {
		// Another poller consumed it first or it expired in between.
		if errors.Is(err, ticket.ErrInvalidTransition) || errors.Is(err, ticket.ErrNotFound) {
			return invalidPoll(), nil
		}
		return nil, fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)
	}

	deps.MetricInc(deps.Metrics.TicketConsumed)
	deps.EmitAudit(ctx, deps.Events.TicketConsumed, true, rec.UserID, ticketID, nil, nil)

	result := &PollResult{
		Status: ticket.StatusConsumed,
		UserID: rec.UserID,
	}
	if !mint {
		return result, nil
	}

	token, err := deps.MintSession(ctx, rec.UserID)
	if err != nil {
		deps.MetricInc(deps.Metrics.SessionMintFailure)
		wrapped := fmt.Errorf("%w: %v", deps.Errors.SessionMintFailed, err)
		deps.EmitAudit(ctx, deps.Events.SessionMintFailed, false, rec.UserID, ticketID, wrapped, nil)
		return nil, wrapped
	}
	result.SessionToken = token
	return result, nil
}

func transition(
	ctx context.Context,
	ticketID string,
	from ticket.Status,
	to ticket.Status,
	userID string,
	deps QRLoginDeps,
) (*ticket.Record, error) {
	id, err := deps.ParseTicketID(ticketID)
	if err != nil {
		deps.MetricInc(deps.Metrics.TicketNotFound)
		return nil, deps.Errors.TicketNotFound
	}

	rec, err := deps.Store.Transition(ctx, id, from, to, userID, deps.Now())
	if err == nil {
		return rec, nil
	}

	switch {
	case errors.Is(err, ticket.ErrNotFound):
		deps.MetricInc(deps.Metrics.TicketNotFound)
		return nil, deps.Errors.TicketNotFound
	case errors.Is(err, ticket.ErrInvalidTransition):
		deps.MetricInc(deps.Metrics.TicketInvalidTransition)
		wrapped := fmt.Errorf("%w: %v", deps.Errors.InvalidTransition, err)
		deps.EmitAudit(ctx, deps.Events.TicketRejected, false, userID, id, wrapped, func() map[string]string {
			return map[string]string{"target": to.String()}
		})
		return nil, wrapped
	default:
		return nil, fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)
	}
}

func invalidPoll() *PollResult {
	return &PollResult{Status: ticket.StatusInvalid}
}
