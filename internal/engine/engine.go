package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"reelboard/internal/config"
	"reelboard/internal/events"
	"reelboard/internal/gantt"
	"reelboard/internal/repo"
)

// ValidationError rejects a request field.
type ValidationError = gantt.ValidationError

// Engine runs the use-cases of a workspace. Copies share the gantt board and
// the lock that serializes access to it.
type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Board  *gantt.Board
	Log    *zap.Logger
	Now    func() time.Time

	mu *sync.Mutex
}

type Option func(*Engine)

// WithClock pins the engine and its board to a clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.Now = now }
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.Log = l
		}
	}
}

func New(db *sql.DB, cfg *config.Config, opts ...Option) (Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	e := Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Config: cfg,
		Log:    zap.NewNop(),
		Now:    time.Now,
		mu:     &sync.Mutex{},
	}
	for _, opt := range opts {
		opt(&e)
	}
	e.Events = events.Writer{Now: e.Now}
	board, err := gantt.NewBoard(cfg, e.Now)
	if err != nil {
		return Engine{}, fmt.Errorf("gantt board: %w", err)
	}
	e.Board = board
	return e, nil
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

// today is the calendar date in the workspace timezone.
func (e Engine) today() string {
	return e.now().In(e.Config.Location()).Format(gantt.DateLayout)
}

// LoadBoard restores the persisted gantt state, if any.
func (e Engine) LoadBoard(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadBoard(ctx)
}

func (e Engine) loadBoard(ctx context.Context) error {
	data, err := e.Repo.LoadGanttSnapshot(ctx)
	if errors.Is(err, repo.ErrNotFound) {
		e.Board.Reset()
		return nil
	}
	if err != nil {
		return err
	}
	return e.Board.Restore(data)
}

// mutate runs fn under the board lock inside one transaction and stores the
// resulting board snapshot with it. On failure the board is reloaded from
// the last committed snapshot.
func (e Engine) mutate(ctx context.Context, fn func(tx *sql.Tx) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	fail := func(cause error) error {
		_ = tx.Rollback()
		if err := e.loadBoard(ctx); err != nil {
			e.Log.Error("restore gantt board after failed write", zap.Error(err))
		}
		return cause
	}
	if err := fn(tx); err != nil {
		return fail(err)
	}
	payload, err := e.Board.Snapshot()
	if err != nil {
		return fail(err)
	}
	if err := e.Repo.SaveGanttSnapshot(ctx, tx, payload, e.timestamp()); err != nil {
		return fail(fmt.Errorf("save gantt snapshot: %w", err))
	}
	if err := tx.Commit(); err != nil {
		return fail(err)
	}
	boardTasks.Set(float64(e.Board.Store.Len()))
	return nil
}

// read runs fn under the board lock.
func (e Engine) read(fn func() error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn()
}
