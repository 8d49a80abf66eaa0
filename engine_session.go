package lifehelper

import (
	"context"
	"fmt"
	"strings"
)

func (e *Engine) mintSession(userID, channel string) (string, error) {
	if e.jwtManager == nil {
		return "", ErrEngineNotReady
	}
	token, err := e.jwtManager.CreateSession(userID, channel)
	if err != nil {
		return "", err
	}
	e.metricInc(MetricSessionMinted)
	return token, nil
}

// ValidateSessionToken verifies a session token minted by this engine. It
// needs no Redis round-trip.
func (e *Engine) ValidateSessionToken(ctx context.Context, token string) (*SessionInfo, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrUnauthorized
	}

	claims, err := e.jwtManager.ParseSession(token)
	if err != nil {
		e.metricInc(MetricSessionValidateFailure)
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	info := &SessionInfo{
		UserID:  claims.UID,
		Channel: claims.Channel,
		TokenID: claims.ID,
	}
	if claims.IssuedAt != nil {
		info.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	return info, nil
}
