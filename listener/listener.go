// Package listener binds a loopback HTTP listener that captures a single
// OAuth2 authorization-code redirect and then shuts down.
package listener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// Sentinel errors for the two callback outcomes and the bind failure. The
// login façade maps these onto its public error taxonomy.
var (
	// ErrPortConflict indicates the preferred port could not be bound.
	ErrPortConflict = errors.New("redirect listener port is already in use")

	// ErrAuthorizationDenied indicates the provider redirected back with an
	// error parameter, or with no authorization code at all.
	ErrAuthorizationDenied = errors.New("authorization was denied")

	// ErrAuthorizationTimeout indicates no callback arrived before the
	// authorization timeout elapsed.
	ErrAuthorizationTimeout = errors.New("timed out waiting for authorization callback")
)

// DefaultAuthorizationTimeout bounds how long Wait blocks for the user to
// complete the browser flow.
const DefaultAuthorizationTimeout = 5 * time.Minute

// Config holds listener configuration.
type Config struct {
	// PreferredPort is the loopback port to bind. 0 lets the OS assign an
	// ephemeral port; the resolved port is available from RedirectURI before
	// the authorization URL is constructed.
	PreferredPort int

	// AuthorizationTimeout is how long Wait blocks for the provider callback.
	// Default: DefaultAuthorizationTimeout.
	AuthorizationTimeout time.Duration

	// Audience selects the personalization shown on the response pages.
	// Values outside the known set fall back to AudienceGeneric.
	Audience Audience

	// Logger for structured logging (optional, uses default if not provided)
	Logger *slog.Logger
}

type callbackResult struct {
	code string
	err  error
}

// Listener serves exactly one authorization callback on a loopback port.
type Listener struct {
	srv     *http.Server
	ln      net.Listener
	timeout time.Duration
	logger  *slog.Logger

	redirectURI string

	results chan callbackResult

	closeOnce sync.Once
}

// Listen binds the loopback listener and starts serving the callback route.
// A bind failure on a busy port is reported as ErrPortConflict. Callers must
// Close the listener regardless of the Wait outcome; Close is idempotent.
func Listen(cfg Config) (*Listener, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", cfg.PreferredPort))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPortConflict, err)
	}

	timeout := cfg.AuthorizationTimeout
	if timeout <= 0 {
		timeout = DefaultAuthorizationTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	l := &Listener{
		ln:      ln,
		timeout: timeout,
		logger:  logger,
		redirectURI: (&url.URL{
			Scheme: "http",
			Host:   ln.Addr().String(),
			Path:   "/",
		}).String(),
		results: make(chan callbackResult, 1),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", l.handleCallback(cfg.Audience))

	l.srv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := l.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Debug("redirect listener stopped", "error", err)
		}
	}()

	return l, nil
}

// RedirectURI returns the URI the provider must redirect back to, including
// the resolved port.
func (l *Listener) RedirectURI() string {
	return l.redirectURI
}

// Port returns the bound loopback port.
func (l *Listener) Port() int {
	return l.ln.Addr().(*net.TCPAddr).Port
}

// Wait blocks until the first authorization callback arrives, the
// authorization timeout elapses, or ctx is cancelled. It returns the
// authorization code on success. The listener is closed before Wait returns
// on every path, so an immediate rebind of the same port succeeds.
func (l *Listener) Wait(ctx context.Context) (code string, err error) {
	// Force-close the server on the way out. http.Server.Close tears down
	// accepted keep-alive sockets instead of waiting for the client, which
	// keeps the port free for an immediate retry.
	defer l.Close()

	timer := time.NewTimer(l.timeout)
	defer timer.Stop()

	select {
	case res := <-l.results:
		return res.code, res.err
	case <-timer.C:
		return "", fmt.Errorf("%w after %s", ErrAuthorizationTimeout, l.timeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Close shuts the listener down, destroying any accepted connections. It is
// safe to call multiple times and after Wait has returned.
func (l *Listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		err = l.srv.Close()
	})
	return err
}

func (l *Listener) handleCallback(audience Audience) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params := r.URL.Query()

		var res callbackResult
		switch {
		case params.Get("error") != "":
			// Provider error codes are a closed vocabulary; safe to surface.
			res.err = fmt.Errorf("%w: provider returned %q", ErrAuthorizationDenied, params.Get("error"))
		case params.Get("code") == "":
			res.err = fmt.Errorf("%w: callback carried no authorization code", ErrAuthorizationDenied)
		default:
			res.code = params.Get("code")
		}

		// Respond before delivering the result: once Wait observes the result
		// it force-closes the server, and the page must already be on the wire.
		if res.err != nil {
			writePage(w, http.StatusBadRequest, failurePage(audience))
		} else {
			writePage(w, http.StatusOK, successPage(audience))
		}
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}

		// Only the first callback wins; later requests still get a page but
		// do not disturb the already-delivered result.
		select {
		case l.results <- res:
		default:
			l.logger.Debug("ignoring duplicate authorization callback")
		}
	}
}
