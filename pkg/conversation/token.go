package conversation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/teslashibe/novo-relay/internal/httpc"
)

// tokenIssuer mints short-lived access tokens with the client-credentials
// grant, reusing the last token until it is about to expire.
type tokenIssuer struct {
	config *clientcredentials.Config
	client *http.Client

	mu    sync.Mutex
	token *oauth2.Token
}

func newTokenIssuer(cfg *Config) *tokenIssuer {
	return &tokenIssuer{
		config: &clientcredentials.Config{
			ClientID:     cfg.APIKey,
			ClientSecret: cfg.SecretKey,
			TokenURL:     cfg.TokenURL,
			AuthStyle:    oauth2.AuthStyleInHeader,
		},
		client: httpc.NewClient(cfg.Timeout),
	}
}

func (t *tokenIssuer) get(ctx context.Context) (*oauth2.Token, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.token.Valid() {
		return t.token, nil
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, t.client)
	tok, err := t.config.Token(ctx)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			code := re.Response.StatusCode
			if code == http.StatusUnauthorized || code == http.StatusForbidden || code == http.StatusBadRequest {
				return nil, fmt.Errorf("%w: token endpoint returned HTTP %d", ErrAuthFailed, code)
			}
			connErr := NewConnectionError("token request failed", err, code >= 500)
			connErr.StatusCode = code
			return nil, connErr
		}
		return nil, NewConnectionError("token request failed", err, true)
	}

	t.token = tok
	return tok, nil
}

// AccessToken returns a short-lived token a browser can use to open its
// own EVI connection. It needs both the API key and the secret key.
func (h *Hume) AccessToken(ctx context.Context) (string, error) {
	if h.config.APIKey == "" {
		return "", ErrMissingAPIKey
	}
	if h.config.SecretKey == "" {
		return "", ErrMissingSecretKey
	}

	tok, err := h.tokens.get(ctx)
	if err != nil {
		h.logger.Warn("access token request failed", "error", err)
		return "", err
	}
	return tok.AccessToken, nil
}

// ConfigID returns the session template id browsers should connect with.
func (h *Hume) ConfigID() string {
	return h.config.ConfigID
}
