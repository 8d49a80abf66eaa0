package flows

import "context"

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.QRLogin.Store != nil
}

func (s Service) IssueTicket(ctx context.Context) (*IssueResult, error) {
	return RunIssueTicket(ctx, s.deps.QRLogin)
}

func (s Service) MarkTicketScanned(ctx context.Context, ticketID string) error {
	return RunMarkTicketScanned(ctx, ticketID, s.deps.QRLogin)
}

func (s Service) ConfirmTicket(ctx context.Context, ticketID, userID string) error {
	return RunConfirmTicket(ctx, ticketID, userID, s.deps.QRLogin)
}

func (s Service) PollTicket(ctx context.Context, ticketID string, mint bool) (*PollResult, error) {
	return RunPollTicket(ctx, ticketID, mint, s.deps.QRLogin)
}

func (s Service) ExchangeLogin(ctx context.Context, code string) (*ExchangeLoginResult, error) {
	return RunExchangeLogin(ctx, code, s.deps.ExchangeLogin)
}
