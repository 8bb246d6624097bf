package recovery

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/johnmaccormick/mirDB/internal/backend"
	"github.com/johnmaccormick/mirDB/internal/logging"
)

// State is a step of the recovery link flow.
type State int

const (
	AwaitingLink State = iota
	ParsingFragment
	SessionEstablishing
	AwaitingRecoveryEvent
	Rejected
	Ready
	Failed
)

var stateNames = map[State]string{
	AwaitingLink:          "awaiting_link",
	ParsingFragment:       "parsing_fragment",
	SessionEstablishing:   "session_establishing",
	AwaitingRecoveryEvent: "awaiting_recovery_event",
	Rejected:              "rejected",
	Ready:                 "ready",
	Failed:                "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether no further transition may leave s.
func (s State) Terminal() bool {
	return s == Ready || s == Failed
}

// User-facing failure messages.
const (
	MsgNoToken      = "No reset token found in URL. Please request a new password reset."
	MsgInvalidLink  = "Invalid or expired reset link: "
	MsgNoSession    = "No session found after recovery"
	MsgNoValidToken = "No valid reset token found. Please request a new password reset."
)

// DefaultPollDelay is how long a recovery-marker link waits before looking for
// the session the backend establishes by itself.
const DefaultPollDelay = time.Second

// ErrClosed is returned by Run when the handler was closed before reaching a
// terminal state.
var ErrClosed = errors.New("recovery: handler closed")

// Outcome is where a Handler ended up.
type Outcome struct {
	State   State
	Message string
}

// Auth is the part of the auth client the handler drives.
type Auth interface {
	SetSession(ctx context.Context, accessToken, refreshToken string) (*backend.Session, error)
	GetSession(ctx context.Context) (*backend.Session, error)
	OnAuthStateChange(listener backend.AuthListener) *backend.Subscription
}

// Handler runs the recovery flow for one link. The fragment path and the auth
// listener race towards a terminal state; the first to commit one wins and
// every later transition is ignored.
type Handler struct {
	auth      Auth
	pollDelay time.Duration
	after     func(time.Duration) <-chan time.Time

	mu      sync.Mutex
	state   State
	message string
	started bool
	closed  bool
	sub     *backend.Subscription

	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

// NewHandler returns a handler in AwaitingLink. A non-positive pollDelay falls
// back to DefaultPollDelay.
func NewHandler(auth Auth, pollDelay time.Duration) *Handler {
	if pollDelay <= 0 {
		pollDelay = DefaultPollDelay
	}
	return &Handler{
		auth:      auth,
		pollDelay: pollDelay,
		after:     time.After,
		state:     AwaitingLink,
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
}

// Outcome returns the current state and message.
func (h *Handler) Outcome() Outcome {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Outcome{State: h.state, Message: h.message}
}

// Done is closed once a terminal state is committed.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}

// Run processes fragment and blocks until a terminal state is reached or ctx
// ends. It may be called once; later calls wait for the first run's outcome.
func (h *Handler) Run(ctx context.Context, fragment string) (Outcome, error) {
	h.mu.Lock()
	if h.started || h.closed {
		h.mu.Unlock()
		return h.wait(ctx)
	}
	h.started = true
	h.mu.Unlock()

	logger := logging.FromContext(ctx).With(slog.String("component", "recovery"))
	h.listen(logger)
	defer h.Close()

	if !h.transition(logger, ParsingFragment, "") {
		return h.wait(ctx)
	}

	link, ok := ParseFragment(fragment)
	switch {
	case !ok:
		h.transition(logger, Failed, MsgNoToken)
	case link.HasTokenPair():
		h.establish(ctx, logger, link)
	case link.IsRecovery():
		h.awaitRecovery(ctx, logger)
	default:
		if h.transition(logger, Rejected, "") {
			h.transition(logger, Failed, MsgNoValidToken)
		}
	}
	return h.wait(ctx)
}

// Close releases the auth listener. Transitions arriving afterwards are dropped.
func (h *Handler) Close() {
	h.closeOnce.Do(func() {
		h.mu.Lock()
		h.closed = true
		sub := h.sub
		h.sub = nil
		h.mu.Unlock()

		sub.Unsubscribe()
		close(h.stopped)
	})
}

func (h *Handler) listen(logger *slog.Logger) {
	sub := h.auth.OnAuthStateChange(func(event backend.AuthEvent, _ *backend.Session) {
		if event == backend.EventSignedIn || event == backend.EventTokenRefreshed {
			h.transition(logger, Ready, "")
		}
	})

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		sub.Unsubscribe()
		return
	}
	h.sub = sub
	h.mu.Unlock()
}

func (h *Handler) establish(ctx context.Context, logger *slog.Logger, link Link) {
	if !h.transition(logger, SessionEstablishing, "") {
		return
	}
	ctx, span := logging.StartSpan(ctx, "recovery.set_session")
	_, err := h.auth.SetSession(ctx, link.AccessToken, link.RefreshToken)
	span.EndErr(err)
	if err != nil {
		h.transition(logger, Failed, MsgInvalidLink+backend.Message(err))
		return
	}
	h.transition(logger, Ready, "")
}

// awaitRecovery gives the backend a moment to establish the session on its own
// and then looks exactly once.
func (h *Handler) awaitRecovery(ctx context.Context, logger *slog.Logger) {
	if !h.transition(logger, AwaitingRecoveryEvent, "") {
		return
	}

	select {
	case <-h.after(h.pollDelay):
	case <-h.done:
		return
	case <-ctx.Done():
		return
	}

	s, err := h.auth.GetSession(ctx)
	if err != nil {
		logger.Warn("session poll failed", slog.String("error", err.Error()))
	}
	if s != nil {
		h.transition(logger, Ready, "")
		return
	}
	h.transition(logger, Failed, MsgNoSession)
}

// transition moves to next unless a terminal state is already committed or the
// handler is closed. It reports whether the move happened.
func (h *Handler) transition(logger *slog.Logger, next State, message string) bool {
	h.mu.Lock()
	if h.closed || h.state.Terminal() {
		h.mu.Unlock()
		return false
	}
	prev := h.state
	h.state = next
	h.message = message
	h.mu.Unlock()

	logger.Debug("recovery transition", slog.String("from", prev.String()), slog.String("to", next.String()))
	if next.Terminal() {
		close(h.done)
	}
	return true
}

func (h *Handler) wait(ctx context.Context) (Outcome, error) {
	select {
	case <-h.done:
		return h.Outcome(), nil
	case <-h.stopped:
		out := h.Outcome()
		if out.State.Terminal() {
			return out, nil
		}
		return out, ErrClosed
	case <-ctx.Done():
		return h.Outcome(), ctx.Err()
	}
}
