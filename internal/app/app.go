package app

import (
	"errors"
	"fmt"
	"os"
	"time"

	"docchat/internal/config"
	"docchat/internal/database"
	"docchat/internal/docchat"
	"docchat/internal/fs"
	"docchat/internal/remote"
)

// DocChatApp is the application layer between the CLI and the docchat Engine.
// It constructs all dependencies from config, restores persisted state, saves it again
// whenever it changes, and releases everything on Close.
type DocChatApp struct {
	cfg         *config.Config
	op          *Operation
	logger      docchat.Logger
	service     docchat.RemoteService
	state       docchat.StateStore
	store       *docchat.Store
	engine      *docchat.Engine
	persister   *statePersister
	unsubscribe func()
	logFile     *os.File
}

// NewDocChatApp creates a fully wired DocChatApp from the given config.
// operation identifies the CLI command being run (e.g. "upload", "chat").
// The caller must call Close when done.
func NewDocChatApp(cfg *config.Config, operation string) (*DocChatApp, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	clock := docchat.RealClock{}
	op := NewOperation(operation, clock.Now())

	slogger, logFile, err := newLogger(cfg.LogDir, op.ID(), parseLevel(cfg.Log.Level), cfg.Log.Stderr)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	service, err := remote.NewServiceFromConfig(cfg.Remote, logger)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating remote service: %w", err)
	}

	state, err := database.NewStateStoreFromConfig(cfg.State, clock)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("opening state store: %w", err)
	}

	persisted, err := state.Load()
	if err != nil {
		state.Close()
		logFile.Close()
		return nil, fmt.Errorf("loading state: %w", err)
	}
	applyDefaultLanguage(persisted, cfg.Chat.DefaultLanguage)

	store := docchat.NewStore(clock, docchat.UUIDGenerator{})
	store.Restore(persisted)

	persister := newStatePersister(state, logger, store.Snapshot())
	unsubscribe := store.Subscribe(persister.observe)

	fsmgr := fs.NewOSFilesystemManager(cfg.Upload.Ignore)
	engine := docchat.NewEngine(store, service, fsmgr, logger, clock, docchat.UUIDGenerator{}, engineOptions(cfg))

	logger.Debug("app started", "operation", op.Name, "remote", cfg.Remote.Type, "state", cfg.State.Type, "files", len(persisted.Files))

	return &DocChatApp{
		cfg:         cfg,
		op:          op,
		logger:      logger,
		service:     service,
		state:       state,
		store:       store,
		engine:      engine,
		persister:   persister,
		unsubscribe: unsubscribe,
		logFile:     logFile,
	}, nil
}

// applyDefaultLanguage uses the configured language for a state that has never been
// customized: an empty inventory still on the built-in default.
func applyDefaultLanguage(ps *docchat.PersistedState, configured string) {
	if configured == "" || len(ps.Files) > 0 || ps.Language != docchat.DefaultLanguage {
		return
	}
	if lang, err := docchat.ParseLanguage(configured); err == nil {
		ps.Language = lang
	}
}

func engineOptions(cfg *config.Config) docchat.Options {
	policy := docchat.DefaultUploadPolicy()
	if cfg.Upload.MaxSizeBytes > 0 {
		policy.MaxSize = cfg.Upload.MaxSizeBytes
	}
	return docchat.Options{
		Upload: docchat.UploaderOptions{
			Policy:      policy,
			SettleDelay: time.Duration(cfg.Upload.SettleDelayMS) * time.Millisecond,
			Reconcile:   cfg.Upload.Reconcile,
		},
		Chat: docchat.ChatOptions{
			AskTimeout: time.Duration(cfg.Chat.AskTimeoutSeconds) * time.Second,
			Serialize:  cfg.Chat.Serialize,
		},
	}
}

// Engine returns the orchestration layer.
func (a *DocChatApp) Engine() *docchat.Engine {
	return a.engine
}

// Store returns the state store for presentation.
func (a *DocChatApp) Store() *docchat.Store {
	return a.store
}

// Config returns the config the app was built from.
func (a *DocChatApp) Config() *config.Config {
	return a.cfg
}

// Logger returns the application logger.
func (a *DocChatApp) Logger() docchat.Logger {
	return a.logger
}

// Close stops persisting, closes the state store and the log file.
// It reports the first failed save, if any, together with close errors.
func (a *DocChatApp) Close() error {
	a.unsubscribe()

	var errs []error
	if err := a.persister.Err(); err != nil {
		errs = append(errs, err)
	}
	if err := a.state.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing state store: %w", err))
	}

	a.logger.Debug("app closed", "operation", a.op.Name)
	if a.logFile != nil {
		a.logFile.Close()
	}
	return errors.Join(errs...)
}
