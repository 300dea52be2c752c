package transport

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tidwall/gjson"

	"github.com/roach88/wmlbridge/internal/config"
)

// ErrMissingToken is returned when an authentication answer carries no token.
var ErrMissingToken = errors.New("missing token in authentication call")

// ErrNoAnswer is returned when the authentication endpoint answered with a
// non-2xx status.
var ErrNoAnswer = errors.New("authentication endpoint returned no answer")

const apiKeyGrant = "urn:ibm:params:oauth:grant-type:apikey"

// TokenFunc fetches a fresh bearer token.
type TokenFunc func(ctx context.Context) (string, error)

// TokenRenewer keeps a bearer token current.
//
// Start performs one synchronous lookup and then refreshes the token on a
// ticker in a single background goroutine. Readers call Token or
// Authorization at any time and get the latest published snapshot. A failed
// background refresh is logged and the previous token stays in place.
type TokenRenewer struct {
	lookup TokenFunc
	rate   time.Duration
	logger *slog.Logger

	token atomic.Pointer[string]

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewTokenRenewer creates a renewer refreshing every rate.
func NewTokenRenewer(lookup TokenFunc, rate time.Duration, logger *slog.Logger) *TokenRenewer {
	if logger == nil {
		logger = slog.Default()
	}
	if rate <= 0 {
		rate = 10 * time.Minute
	}
	return &TokenRenewer{lookup: lookup, rate: rate, logger: logger}
}

// NewCredentialTokenRenewer picks the lookup strategy from the deployment
// type of creds: IAM API-key exchange for the public service, basic-auth
// authorization for the private platform.
func NewCredentialTokenRenewer(client *Client, creds *config.Credentials, rate time.Duration, logger *slog.Logger) (*TokenRenewer, error) {
	dt, err := creds.DeploymentType()
	if err != nil {
		return nil, err
	}
	var lookup TokenFunc
	switch dt {
	case config.Private:
		lookup = PlatformLookup(client, creds)
	default:
		lookup = IAMLookup(client, creds)
	}
	return NewTokenRenewer(lookup, rate, logger), nil
}

// Start fetches the first token and launches the refresh goroutine.
// Calling Start on a running renewer is a no-op.
func (r *TokenRenewer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return nil
	}

	tok, err := r.lookup(ctx)
	if err != nil {
		return fmt.Errorf("initial token lookup: %w", err)
	}
	r.token.Store(&tok)
	r.logger.Info("bearer token ok")

	loopCtx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.loop(loopCtx, r.done)
	return nil
}

func (r *TokenRenewer) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.rate)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tok, err := r.lookup(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				r.logger.Warn("token refresh failed, keeping previous token", "error", err)
				continue
			}
			r.token.Store(&tok)
			r.logger.Debug("bearer token refreshed")
		}
	}
}

// Stop halts background renewal and waits for the goroutine to exit.
func (r *TokenRenewer) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Token returns the latest token, or "" before Start.
func (r *TokenRenewer) Token() string {
	if p := r.token.Load(); p != nil {
		return *p
	}
	return ""
}

// Authorization returns the Authorization header value for the latest token.
func (r *TokenRenewer) Authorization() string {
	tok := r.Token()
	if tok == "" {
		r.logger.Warn("token is empty")
	}
	return "bearer " + tok
}

// IAMLookup exchanges the API key for a token at the IAM endpoint.
func IAMLookup(client *Client, creds *config.Credentials) TokenFunc {
	return func(ctx context.Context) (string, error) {
		apiKey, err := creds.Require(config.KeyAPIKey)
		if err != nil {
			return "", err
		}
		form := url.Values{}
		form.Set("grant_type", apiKeyGrant)
		form.Set("apikey", apiKey)

		body, err := client.Post(ctx,
			creds.Lookup(config.KeyIAMHost),
			creds.Lookup(config.KeyIAMURL),
			nil,
			Headers{HeaderAccept: ContentTypeJSON, HeaderContentType: ContentTypeForm},
			[]byte(form.Encode()))
		if err != nil {
			return "", err
		}
		return ExtractToken(body)
	}
}

// PlatformLookup authorizes with user and password against the private
// platform.
func PlatformLookup(client *Client, creds *config.Credentials) TokenFunc {
	return func(ctx context.Context) (string, error) {
		user, err := creds.Require(config.KeyCPDUser)
		if err != nil {
			return "", err
		}
		pass, err := creds.Require(config.KeyCPDPass)
		if err != nil {
			return "", err
		}
		basic := base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))

		// The authorization url is either a path on the WML host or absolute.
		host, path := creds.Lookup(config.KeyWMLHost), creds.Lookup(config.KeyCPDURL)
		if strings.HasPrefix(path, "https://") || strings.HasPrefix(path, "http://") {
			host, path = path, ""
		}

		body, err := client.Get(ctx, host, path,
			nil,
			Headers{HeaderAccept: ContentTypeJSON, HeaderAuthorization: "Basic " + basic})
		if err != nil {
			return "", err
		}
		return ExtractToken(body)
	}
}

// ExtractToken reads access_token, or accessToken, out of an authentication
// answer.
func ExtractToken(body []byte) (string, error) {
	if body == nil {
		return "", ErrNoAnswer
	}
	res := gjson.GetManyBytes(body, "access_token", "accessToken")
	for _, r := range res {
		if r.Exists() && r.String() != "" {
			return r.String(), nil
		}
	}
	return "", ErrMissingToken
}
