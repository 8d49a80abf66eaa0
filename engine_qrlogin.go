package lifehelper

import "context"

// IssueTicket creates a CREATED ticket and its scannable artifact. The
// ticket lives for Config.Ticket.TTL.
//
//	Performance: 1 Redis round-trip plus the resource provider, and 1 more
//	when issuance throttling is enabled.
func (e *Engine) IssueTicket(ctx context.Context) (*IssueResult, error) {
	if e == nil || !e.flow.Initialized() {
		return nil, ErrEngineNotReady
	}
	res, err := e.flow.IssueTicket(ctx)
	if err != nil {
		return nil, err
	}
	return &IssueResult{
		TicketID:    res.TicketID,
		ResourceURL: res.ResourceURL,
		ExpiresAt:   res.ExpiresAt,
	}, nil
}

// MarkTicketScanned moves a ticket from CREATED to SCANNED. It returns
// [ErrTicketNotFound] for missing or expired tickets and
// [ErrInvalidTransition] when the ticket is past CREATED.
func (e *Engine) MarkTicketScanned(ctx context.Context, ticketID string) error {
	if e == nil || !e.flow.Initialized() {
		return ErrEngineNotReady
	}
	return e.flow.MarkTicketScanned(ctx, ticketID)
}

// ConfirmTicket moves a ticket from SCANNED to CONFIRMED and binds userID
// to it. Errors follow [Engine.MarkTicketScanned]; an empty userID returns
// [ErrInvalidIdentity].
func (e *Engine) ConfirmTicket(ctx context.Context, ticketID, userID string) error {
	if e == nil || !e.flow.Initialized() {
		return ErrEngineNotReady
	}
	return e.flow.ConfirmTicket(ctx, ticketID, userID)
}

// PollTicket reports the ticket status. The first poll that observes
// CONFIRMED consumes the ticket and receives the bound UserID; every other
// poll, including concurrent ones, sees INVALID from then on. Missing and
// expired tickets report INVALID without an error.
func (e *Engine) PollTicket(ctx context.Context, ticketID string) (*PollResult, error) {
	return e.poll(ctx, ticketID, false)
}

// PollTicketLogin is [Engine.PollTicket] that also mints a session token
// for the bound user on the consuming poll.
func (e *Engine) PollTicketLogin(ctx context.Context, ticketID string) (*PollResult, error) {
	return e.poll(ctx, ticketID, true)
}

func (e *Engine) poll(ctx context.Context, ticketID string, mint bool) (*PollResult, error) {
	if e == nil || !e.flow.Initialized() {
		return nil, ErrEngineNotReady
	}
	res, err := e.flow.PollTicket(ctx, ticketID, mint)
	if err != nil {
		return nil, err
	}
	return &PollResult{
		Status:       res.Status,
		UserID:       res.UserID,
		SessionToken: res.SessionToken,
	}, nil
}
