// Package app wires storage, the encounter sync engine, catalogs, and the
// character store into one session shared by every transport.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/hpungsan/hearth/internal/catalog"
	"github.com/hpungsan/hearth/internal/combat"
	"github.com/hpungsan/hearth/internal/config"
	"github.com/hpungsan/hearth/internal/db"
	"github.com/hpungsan/hearth/internal/dice"
	"github.com/hpungsan/hearth/internal/metrics"
	"github.com/hpungsan/hearth/internal/state"
	"github.com/hpungsan/hearth/internal/status"
)

// App is one open session.
type App struct {
	Config  *config.Config
	Log     *zap.Logger
	DB      *sql.DB
	Gateway *db.Gateway
	Metrics *metrics.Metrics
	Status  *status.Board
	Catalog *catalog.Loader
	Combat  *combat.Sync
	Store   *state.Store
}

// Open connects to the configured database and builds the session graph.
// A zero cfg.DiceSeed means rolls are seeded from crypto/rand.
func Open(ctx context.Context, cfg *config.Config, baseDir string, log *zap.Logger) (*App, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if log == nil {
		log = zap.NewNop()
	}

	sqlDB, dialect, err := db.Open(ctx, cfg, baseDir)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	m := metrics.New("hearth")
	gw := db.NewGateway(sqlDB, dialect, m)
	board := status.NewBoard(cfg.StatusTTL())
	roller, err := newRoller(cfg.DiceSeed)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}

	loader := catalog.NewLoader(gw, log, m)
	sync := combat.New(gw, roller, board, log, m)
	store := state.New(state.Options{
		Gateway:   gw,
		Encounter: sync,
		Catalog:   loader,
		Status:    board,
		Roller:    roller,
		Logger:    log,
		Metrics:   m,
	})

	log.Debug("session opened", zap.String("driver", dialect.String()))
	return &App{
		Config:  cfg,
		Log:     log,
		DB:      sqlDB,
		Gateway: gw,
		Metrics: m,
		Status:  board,
		Catalog: loader,
		Combat:  sync,
		Store:   store,
	}, nil
}

// LoadCharacter activates a character, falling back to the configured default user.
func (a *App) LoadCharacter(ctx context.Context, characterID, userID string) error {
	if userID == "" {
		userID = a.Config.DefaultUser
	}
	return a.Store.Load(ctx, characterID, userID)
}

// Close stops the status timer and closes the database.
func (a *App) Close() error {
	a.Status.Clear()
	return a.DB.Close()
}

func newRoller(seed uint64) (dice.Roller, error) {
	if seed != 0 {
		return dice.New(seed), nil
	}
	r, err := dice.NewSeeded()
	if err != nil {
		return nil, fmt.Errorf("seed dice: %w", err)
	}
	return r, nil
}
