package qrimage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/sengeiou/life-helper-server/credential"
	"github.com/sengeiou/life-helper-server/weixin"
)

// ImagePath is the HTTP path prefix the image URLs point at.
const ImagePath = "/login/qrcode/image/"

func imageURL(publicBaseURL, ticketID string) string {
	return strings.TrimRight(publicBaseURL, "/") + ImagePath + ticketID
}

// RendererConfig configures a [Renderer].
type RendererConfig struct {
	// PublicBaseURL is the externally reachable base of the HTTP API.
	PublicBaseURL string
	// LinkPrefix is prepended to the ticket ID to form the encoded payload.
	LinkPrefix string
	// Size is the PNG edge in pixels. Default 256.
	Size int
}

// Renderer draws QR codes locally.
type Renderer struct {
	store *Store
	cfg   RendererConfig
}

// NewRenderer creates a [Renderer] writing into store.
func NewRenderer(store *Store, cfg RendererConfig) *Renderer {
	if cfg.Size <= 0 {
		cfg.Size = 256
	}
	return &Renderer{store: store, cfg: cfg}
}

// TicketResource renders the ticket's deep link and returns its image URL.
func (r *Renderer) TicketResource(ctx context.Context, ticketID string, ttl time.Duration) (string, error) {
	png, err := qrcode.Encode(r.cfg.LinkPrefix+ticketID, qrcode.Medium, r.cfg.Size)
	if err != nil {
		return "", fmt.Errorf("qrimage: encode: %w", err)
	}
	if err := r.store.Put(ctx, ticketID, png, ttl); err != nil {
		return "", err
	}
	return imageURL(r.cfg.PublicBaseURL, ticketID), nil
}

// Tokens supplies the upstream access token.
type Tokens interface {
	Token(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (string, error)
}

// WxacodeGenerator renders mini-program codes.
type WxacodeGenerator interface {
	GetUnlimitedWxacode(ctx context.Context, accessToken string, req weixin.WxacodeRequest) ([]byte, error)
}

// WxacodeConfig configures a [WxacodeProvider].
type WxacodeConfig struct {
	PublicBaseURL string
	// Page is the mini-program page opened by the scan.
	Page string
	// EnvVersion selects release, trial or develop builds.
	EnvVersion string
	Width      int
}

// WxacodeProvider asks the upstream for a mini-program code per ticket.
type WxacodeProvider struct {
	store     *Store
	tokens    Tokens
	generator WxacodeGenerator
	cfg       WxacodeConfig
}

// NewWxacodeProvider creates a [WxacodeProvider].
func NewWxacodeProvider(store *Store, tokens Tokens, generator WxacodeGenerator, cfg WxacodeConfig) *WxacodeProvider {
	return &WxacodeProvider{
		store:     store,
		tokens:    tokens,
		generator: generator,
		cfg:       cfg,
	}
}

// TicketResource fetches a mini-program code with the ticket ID as scene.
// A token the upstream rejects is refreshed once and the call retried.
func (p *WxacodeProvider) TicketResource(ctx context.Context, ticketID string, ttl time.Duration) (string, error) {
	token, err := p.tokens.Token(ctx)
	if err != nil {
		return "", err
	}

	req := weixin.WxacodeRequest{
		Scene:      ticketID,
		Page:       p.cfg.Page,
		CheckPath:  false,
		EnvVersion: p.cfg.EnvVersion,
		Width:      p.cfg.Width,
	}
	png, err := p.generator.GetUnlimitedWxacode(ctx, token, req)
	if errors.Is(err, credential.ErrInvalidCredential) {
		if token, err = p.tokens.Refresh(ctx); err != nil {
			return "", err
		}
		png, err = p.generator.GetUnlimitedWxacode(ctx, token, req)
	}
	if err != nil {
		return "", err
	}

	if err := p.store.Put(ctx, ticketID, png, ttl); err != nil {
		return "", err
	}
	return imageURL(p.cfg.PublicBaseURL, ticketID), nil
}
