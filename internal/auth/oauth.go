package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"github.com/tonimelisma/cloudexplorer/internal/tokenfile"
)

// DefaultClientID is the public client registered for personal and work
// Microsoft accounts.
const DefaultClientID = "8efac532-bbe7-4bc5-919c-1443ccab860a"

// DefaultTenant accepts both personal and organizational accounts.
const DefaultTenant = "common"

var defaultScopes = []string{
	"offline_access",
	"Files.ReadWrite.All",
	"User.Read",
}

// DeviceAuth holds the device code fields the CLI shows the user.
type DeviceAuth struct {
	UserCode        string
	VerificationURI string
}

// OAuth runs Microsoft identity platform logins and turns saved tokens into
// auto-refreshing token sources. Refreshed tokens are written back to
// TokenPath.
type OAuth struct {
	ClientID  string
	Tenant    string
	TokenPath string
	// Provider is recorded in the token file so a login cannot be reused by
	// an account of a different provider.
	Provider string
	Logger   *slog.Logger

	// endpoint overrides the Microsoft endpoint in tests.
	endpoint *oauth2.Endpoint
}

func (o *OAuth) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}

	return o.Logger
}

// Login performs the device code flow: it requests a device code, calls
// display so the user can authorize elsewhere, polls until authorization
// (respecting ctx), saves the token and returns a TokenSource.
//
// The returned TokenSource binds ctx for silent refreshes, so ctx must
// outlive it.
func (o *OAuth) Login(ctx context.Context, display func(DeviceAuth)) (TokenSource, error) {
	cfg := o.config(nil)
	logger := o.logger()

	logger.Info("starting device code auth flow", slog.String("path", o.TokenPath))

	da, err := cfg.DeviceAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("auth: device auth request failed: %w", err)
	}

	display(DeviceAuth{UserCode: da.UserCode, VerificationURI: da.VerificationURI})

	tok, err := cfg.DeviceAccessToken(ctx, da)
	if err != nil {
		return nil, fmt.Errorf("auth: device code authorization failed: %w", err)
	}

	return o.saveAndBridge(ctx, cfg, tok)
}

// stateTokenBytes is the number of random bytes for the OAuth2 state parameter.
const stateTokenBytes = 16

// callbackPath must match the registered "http://localhost" redirect URI
// exactly; the port is ignored by the v2.0 endpoint.
const callbackPath = "/"

// shutdownTimeout is how long to wait for the callback server to drain.
const shutdownTimeout = 5 * time.Second

type callbackResult struct {
	code string
	err  error
}

// LoginWithBrowser performs the authorization code flow with PKCE through a
// localhost callback server. openURL launches the browser; when it fails
// the URL is written to prompt so the user can open it manually.
func (o *OAuth) LoginWithBrowser(ctx context.Context, openURL func(string) error, prompt io.Writer) (TokenSource, error) {
	cfg := o.config(nil)
	logger := o.logger()

	logger.Info("starting browser auth flow", slog.String("path", o.TokenPath))

	resultCh := make(chan callbackResult, 1)
	mux := http.NewServeMux()

	srv, port, err := startCallbackServer(ctx, mux, resultCh, logger)
	if err != nil {
		return nil, err
	}

	defer shutdownCallbackServer(srv, logger)

	cfg.RedirectURL = fmt.Sprintf("http://localhost:%d", port)
	verifier := oauth2.GenerateVerifier()

	state, err := generateState()
	if err != nil {
		return nil, fmt.Errorf("auth: generating state token: %w", err)
	}

	mux.HandleFunc("GET "+callbackPath, func(w http.ResponseWriter, r *http.Request) {
		handleOAuthCallback(w, r, state, resultCh)
	})

	authURL := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.S256ChallengeOption(verifier))

	if openErr := openURL(authURL); openErr != nil {
		logger.Warn("failed to open browser, printing URL", slog.String("error", openErr.Error()))
		fmt.Fprintf(prompt, "Open this URL in your browser:\n%s\n", authURL)
	}

	var code string

	select {
	case result := <-resultCh:
		if result.err != nil {
			return nil, result.err
		}

		code = result.code
	case <-ctx.Done():
		return nil, fmt.Errorf("auth: browser login canceled: %w", ctx.Err())
	}

	tok, err := cfg.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("auth: token exchange failed: %w", err)
	}

	return o.saveAndBridge(ctx, cfg, tok)
}

func (o *OAuth) saveAndBridge(ctx context.Context, cfg *oauth2.Config, tok *oauth2.Token) (TokenSource, error) {
	if err := tokenfile.Save(o.TokenPath, &tokenfile.File{Provider: o.Provider, Token: tok}); err != nil {
		return nil, fmt.Errorf("auth: saving token: %w", err)
	}

	o.logger().Info("login successful",
		slog.String("path", o.TokenPath),
		slog.Time("expiry", tok.Expiry),
	)

	return &tokenBridge{src: cfg.TokenSource(ctx, tok), logger: o.logger()}, nil
}

func startCallbackServer(
	ctx context.Context,
	mux *http.ServeMux,
	resultCh chan<- callbackResult,
	logger *slog.Logger,
) (*http.Server, int, error) {
	lc := net.ListenConfig{}

	listener, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		return nil, 0, fmt.Errorf("auth: binding localhost listener: %w", err)
	}

	tcpAddr, ok := listener.Addr().(*net.TCPAddr)
	if !ok {
		listener.Close()
		return nil, 0, errors.New("auth: listener address is not TCP")
	}

	logger.Debug("callback server listening", slog.Int("port", tcpAddr.Port))

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: shutdownTimeout,
	}

	go func() {
		if serveErr := srv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			resultCh <- callbackResult{err: fmt.Errorf("auth: callback server error: %w", serveErr)}
		}
	}()

	return srv, tcpAddr.Port, nil
}

func handleOAuthCallback(w http.ResponseWriter, r *http.Request, state string, resultCh chan<- callbackResult) {
	q := r.URL.Query()

	if q.Get("state") != state {
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		resultCh <- callbackResult{err: errors.New("auth: OAuth2 state mismatch")}

		return
	}

	if errParam := q.Get("error"); errParam != "" {
		http.Error(w, "Authorization failed: "+errParam, http.StatusBadRequest)
		resultCh <- callbackResult{err: fmt.Errorf("auth: authorization failed: %s: %s", errParam, q.Get("error_description"))}

		return
	}

	code := q.Get("code")
	if code == "" {
		http.Error(w, "Missing authorization code", http.StatusBadRequest)
		resultCh <- callbackResult{err: errors.New("auth: callback missing authorization code")}

		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, "<html><body><h1>Signed in</h1>"+
		"<p>You can close this window and return to the terminal.</p></body></html>")
	resultCh <- callbackResult{code: code}
}

func shutdownCallbackServer(srv *http.Server, logger *slog.Logger) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("callback server shutdown error", slog.String("error", err.Error()))
	}
}

func generateState() (string, error) {
	b := make([]byte, stateTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}

// TokenSource loads the saved token and returns an auto-refreshing source
// that persists refreshed tokens. Returns ErrNotLoggedIn when there is no
// saved OAuth token.
func (o *OAuth) TokenSource(ctx context.Context) (TokenSource, error) {
	tf, err := tokenfile.Load(o.TokenPath)
	if err != nil {
		return nil, err
	}

	if tf == nil || tf.Token == nil {
		return nil, ErrNotLoggedIn
	}

	if o.Provider != "" && tf.Provider != "" && tf.Provider != o.Provider {
		return nil, fmt.Errorf("auth: %s holds a %s login, not %s: %w", o.TokenPath, tf.Provider, o.Provider, ErrNotLoggedIn)
	}

	expired := !tf.Token.Expiry.IsZero() && tf.Token.Expiry.Before(time.Now())
	o.logger().Debug("loaded saved token",
		slog.String("path", o.TokenPath),
		slog.Time("expiry", tf.Token.Expiry),
		slog.Bool("expired", expired),
	)

	cfg := o.config(tf.Meta)

	return &tokenBridge{src: cfg.TokenSource(ctx, tf.Token), logger: o.logger()}, nil
}

// Logout removes the saved token. A missing file is not an error.
func (o *OAuth) Logout() error {
	removed, err := tokenfile.Remove(o.TokenPath)
	if err != nil {
		return err
	}

	o.logger().Info("logout", slog.String("path", o.TokenPath), slog.Bool("removed", removed))

	return nil
}

// config builds an oauth2.Config whose OnTokenChange persists refreshed
// tokens. meta is captured so cached metadata survives silent refreshes.
func (o *OAuth) config(meta map[string]string) *oauth2.Config {
	clientID := o.ClientID
	if clientID == "" {
		clientID = DefaultClientID
	}

	tenant := o.Tenant
	if tenant == "" {
		tenant = DefaultTenant
	}

	endpoint := microsoft.AzureADEndpoint(tenant)
	if o.endpoint != nil {
		endpoint = *o.endpoint
	}

	logger := o.logger()

	return &oauth2.Config{
		ClientID: clientID,
		Scopes:   defaultScopes,
		Endpoint: endpoint,
		// Called by ReuseTokenSource after each silent refresh, outside its mutex.
		OnTokenChange: func(tok *oauth2.Token) {
			err := tokenfile.Save(o.TokenPath, &tokenfile.File{Provider: o.Provider, Token: tok, Meta: meta})
			if err != nil {
				logger.Warn("failed to persist refreshed token",
					slog.String("path", o.TokenPath),
					slog.String("error", err.Error()),
				)

				return
			}

			logger.Debug("persisted refreshed token",
				slog.String("path", o.TokenPath),
				slog.Time("new_expiry", tok.Expiry),
			)
		},
	}
}

// tokenBridge adapts oauth2.TokenSource to TokenSource.
type tokenBridge struct {
	src    oauth2.TokenSource
	logger *slog.Logger
}

func (b *tokenBridge) Token() (string, error) {
	t, err := b.src.Token()
	if err != nil {
		return "", fmt.Errorf("auth: obtaining token: %w", err)
	}

	b.logger.Debug("token acquired",
		slog.Time("expiry", t.Expiry),
		slog.Bool("valid", t.Valid()),
	)

	return t.AccessToken, nil
}
