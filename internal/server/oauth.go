package server

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/desertthunder/plsync/internal/shared"
	"golang.org/x/oauth2"
)

const successPage = `<!DOCTYPE html>
<html>
<head><title>plsync</title></head>
<body style="font-family: sans-serif; text-align: center; margin-top: 20vh">
    <h1>Authorization successful</h1>
    <p>You can close this window and return to the terminal.</p>
</body>
</html>
`

// OAuthResult is the outcome of one authorization code callback.
type OAuthResult struct {
	Token *oauth2.Token
	Err   error
}

// OAuthHandler receives the authorization code callback and exchanges the code for a token.
//
// Only the first callback is processed. Its outcome is delivered once on [OAuthHandler.Result].
type OAuthHandler struct {
	config   *oauth2.Config
	state    string
	path     string
	verifier string

	results chan OAuthResult
	once    sync.Once
	mu      sync.Mutex
	hit     bool
}

// NewOAuthHandler serves the path of config.RedirectURL, or /callback when it has none.
func NewOAuthHandler(config *oauth2.Config, state string) *OAuthHandler {
	path := "/callback"
	if u, err := url.Parse(config.RedirectURL); err == nil && u.Path != "" {
		path = u.Path
	}
	return &OAuthHandler{
		config:  config,
		state:   state,
		path:    path,
		results: make(chan OAuthResult, 1),
	}
}

// WithPKCE makes the flow send an S256 code challenge and prove it on exchange, for public clients.
func (h *OAuthHandler) WithPKCE() *OAuthHandler {
	h.verifier = oauth2.GenerateVerifier()
	return h
}

func (h *OAuthHandler) Routes() []string {
	return []string{h.path}
}

// AuthCodeURL is the page the user must visit to grant access.
func (h *OAuthHandler) AuthCodeURL() string {
	if h.verifier == "" {
		return h.config.AuthCodeURL(h.state)
	}
	return h.config.AuthCodeURL(h.state, oauth2.S256ChallengeOption(h.verifier))
}

func (h *OAuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.hit {
		h.mu.Unlock()
		http.Error(w, "Callback already processed", http.StatusBadRequest)
		return
	}
	h.hit = true
	h.mu.Unlock()

	q := r.URL.Query()
	if q.Get("state") != h.state {
		h.send(OAuthResult{Err: fmt.Errorf("%w: invalid state parameter", shared.ErrAuthFailed)})
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		return
	}

	code := q.Get("code")
	if code == "" {
		h.send(OAuthResult{Err: fmt.Errorf("%w: %s %s", shared.ErrAuthFailed, q.Get("error"), q.Get("error_description"))})
		http.Error(w, "Authorization failed", http.StatusBadRequest)
		return
	}

	var opts []oauth2.AuthCodeOption
	if h.verifier != "" {
		opts = append(opts, oauth2.VerifierOption(h.verifier))
	}
	token, err := h.config.Exchange(r.Context(), code, opts...)
	if err != nil {
		h.send(OAuthResult{Err: fmt.Errorf("%w: token exchange failed: %v", shared.ErrAuthFailed, err)})
		http.Error(w, "Token exchange failed", http.StatusInternalServerError)
		return
	}

	h.send(OAuthResult{Token: token})
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, successPage)
}

func (h *OAuthHandler) send(result OAuthResult) {
	h.once.Do(func() {
		h.results <- result
		close(h.results)
	})
}

// Result receives exactly one result and is then closed.
func (h *OAuthHandler) Result() <-chan OAuthResult {
	return h.results
}

// Wait blocks until the callback was processed or ctx is done.
func (h *OAuthHandler) Wait(ctx context.Context) (*oauth2.Token, error) {
	select {
	case res := <-h.results:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Token == nil {
			return nil, fmt.Errorf("%w: no token received", shared.ErrAuthFailed)
		}
		return res.Token, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", shared.ErrTimeout, ctx.Err())
	}
}
