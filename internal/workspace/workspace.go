package workspace

import (
	"context"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"wristsight-viewer/internal/auth"
	"wristsight-viewer/internal/client"
	"wristsight-viewer/internal/history"
	"wristsight-viewer/internal/session"
	"wristsight-viewer/internal/upload"
)

// Tokens is an in-memory bearer token holder
type Tokens struct {
	mu    sync.RWMutex
	token string
}

// Token returns the stored token or ""
func (t *Tokens) Token() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.token
}

// SetToken stores a token
func (t *Tokens) SetToken(token string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.token = token
}

// Clear forgets the token
func (t *Tokens) Clear() {
	t.SetToken("")
}

// Workspace is everything one browser works with: its token, the loaded analysis,
// the upload form, the history list and the login state.
type Workspace struct {
	ID      string
	Tokens  *Tokens
	API     *client.APIClient
	Session *session.Session
	Upload  *upload.Flow
	History *history.Browser
	Auth    *auth.Manager

	mu       sync.Mutex
	lastSeen time.Time
}

func (w *Workspace) touch(now time.Time) {
	w.mu.Lock()
	w.lastSeen = now
	w.mu.Unlock()
}

func (w *Workspace) idleSince(now time.Time) time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return now.Sub(w.lastSeen)
}

// Options configure the workspaces a Registry creates
type Options struct {
	HistoryBatch int
	MaxImageSize int
	IdleTTL      time.Duration
}

// Registry owns the workspaces, keyed by the id stored in the browser's session cookie
type Registry struct {
	mu       sync.Mutex
	items    map[string]*Workspace
	api      *client.APIClient
	validate *validator.Validate
	opts     Options
	logger   *logrus.Logger
	now      func() time.Time
}

// NewRegistry creates an empty registry. Every workspace gets its own copy of api bound to its own tokens.
func NewRegistry(api *client.APIClient, opts Options, logger *logrus.Logger) *Registry {
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = 12 * time.Hour
	}
	return &Registry{
		items:    make(map[string]*Workspace),
		api:      api,
		validate: auth.NewValidator(),
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

// Get returns the workspace with the given id and marks it as used
func (r *Registry) Get(id string) (*Workspace, bool) {
	r.mu.Lock()
	w, ok := r.items[id]
	r.mu.Unlock()
	if ok {
		w.touch(r.now())
	}
	return w, ok
}

// Create builds and registers a new workspace
func (r *Registry) Create() *Workspace {
	tokens := &Tokens{}
	api := r.api.WithTokens(tokens)
	sess := session.New()

	w := &Workspace{
		ID:       uuid.NewString(),
		Tokens:   tokens,
		API:      api,
		Session:  sess,
		Upload:   upload.NewFlow(api, sess, r.logger, upload.WithMaxImageSize(r.opts.MaxImageSize)),
		History:  history.NewBrowser(api, sess, r.logger, history.WithBatchSize(r.opts.HistoryBatch)),
		Auth:     auth.NewManager(api, tokens, r.validate, r.logger),
		lastSeen: r.now(),
	}

	r.mu.Lock()
	r.items[w.ID] = w
	r.mu.Unlock()

	r.logger.Debugf("Created workspace %s", w.ID)
	return w
}

// GetOrCreate returns the workspace for id, creating a fresh one when it is unknown or expired
func (r *Registry) GetOrCreate(id string) (*Workspace, bool) {
	if id != "" {
		if w, ok := r.Get(id); ok {
			return w, false
		}
	}
	return r.Create(), true
}

// Remove drops a workspace
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
}

// Len returns the number of live workspaces
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Sweep removes workspaces idle for longer than the TTL and returns how many were removed
func (r *Registry) Sweep() int {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, w := range r.items {
		if w.idleSince(now) > r.opts.IdleTTL {
			delete(r.items, id)
			removed++
		}
	}
	if removed > 0 {
		r.logger.Infof("Swept %d idle workspaces", removed)
	}
	return removed
}

// Run sweeps periodically until ctx is done
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}
