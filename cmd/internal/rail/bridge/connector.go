// Package bridge adapts the SRT and KTX providers behind rail.Client.
//
// Both providers are reached through a JSON bridge service that owns the
// provider wire protocol. This package keeps the per-provider policy
// differences: KTX emulates standby with a regular reservation marked
// try_waiting and ignores window preference; SRT has no toddler fare and
// ignores train-type filters.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bbang93/macro-api/cmd/internal/rail"
)

// Config configures one provider bridge.
type Config struct {
	Kind    rail.Kind
	BaseURL string
	Timeout time.Duration

	// HTTPClient overrides the default client (tests).
	HTTPClient *http.Client
}

// Connector logs in against one provider bridge.
type Connector struct {
	kind    rail.Kind
	baseURL string
	http    *http.Client
	log     *slog.Logger
}

var _ rail.Connector = (*Connector)(nil)

// New constructs a Connector.
func New(log *slog.Logger, cfg Config) (*Connector, error) {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Kind != rail.KindSRT && cfg.Kind != rail.KindKTX {
		return nil, fmt.Errorf("bridge: %w: %q", rail.ErrUnknownKind, cfg.Kind)
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("bridge: missing base url")
	}

	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}

	return &Connector{
		kind:    cfg.Kind,
		baseURL: base,
		http:    hc,
		log:     log.With("rail", string(cfg.Kind)),
	}, nil
}

// Kind implements rail.Connector.
func (c *Connector) Kind() rail.Kind { return c.kind }

// Login implements rail.Connector. A provider rejection is returned as a
// plain error carrying the provider message so callers can classify it.
func (c *Connector) Login(ctx context.Context, userID, password string) (rail.Client, rail.UserInfo, error) {
	var out loginResponse
	err := c.do(ctx, http.MethodPost, "/login", "", loginRequest{UserID: userID, Password: password}, &out)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && se.Message != "" {
			return nil, rail.UserInfo{}, errors.New(se.Message)
		}
		return nil, rail.UserInfo{}, err
	}
	if out.Token == "" {
		return nil, rail.UserInfo{}, errors.New("bridge: login returned no token")
	}

	c.log.Debug("rail.login.ok")
	return &Client{conn: c, token: out.Token}, out.UserInfo, nil
}
