// Package catalog loads the read-only reference catalogs (items, heroic abilities)
// at most once per process.
package catalog

import (
	"context"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hpungsan/hearth/internal/character"
	"github.com/hpungsan/hearth/internal/metrics"
)

// State is the loader's lifecycle state.
type State int

const (
	NotLoaded State = iota
	Loading
	Loaded
	Failed
)

func (s State) String() string {
	switch s {
	case NotLoaded:
		return "not_loaded"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Source reads the catalogs.
type Source interface {
	ListItems(ctx context.Context) ([]character.Item, error)
	ListHeroicAbilities(ctx context.Context) ([]character.HeroicAbility, error)
}

// Loader holds the catalogs once loaded.
type Loader struct {
	src     Source
	log     *zap.Logger
	metrics *metrics.Metrics

	mu        sync.RWMutex
	state     State
	err       error
	items     []character.Item
	abilities []character.HeroicAbility
}

// NewLoader creates a Loader in the NotLoaded state.
func NewLoader(src Source, log *zap.Logger, m *metrics.Metrics) *Loader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{src: src, log: log.Named("catalog"), metrics: m}
}

// Ensure loads both catalogs in parallel unless they are loaded or already loading.
// A failed load may be retried by calling Ensure again.
func (l *Loader) Ensure(ctx context.Context) error {
	l.mu.Lock()
	if l.state == Loading || l.state == Loaded {
		l.mu.Unlock()
		return nil
	}
	l.setState(Loading)
	l.mu.Unlock()

	var (
		items     []character.Item
		abilities []character.HeroicAbility
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		items, err = l.src.ListItems(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		abilities, err = l.src.ListHeroicAbilities(gctx)
		return err
	})
	err := g.Wait()

	l.mu.Lock()
	defer l.mu.Unlock()
	if err != nil {
		l.err = err
		l.setState(Failed)
		l.log.Error("catalog load failed", zap.Error(err))
		return err
	}
	l.items, l.abilities, l.err = items, abilities, nil
	l.setState(Loaded)
	l.log.Debug("catalog loaded", zap.Int("items", len(items)), zap.Int("heroic_abilities", len(abilities)))
	return nil
}

// setState must be called with mu held.
func (l *Loader) setState(s State) {
	l.state = s
	l.metrics.SetCatalogState(int(s))
}

// State returns the current lifecycle state.
func (l *Loader) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Err returns the last load error, if the state is Failed.
func (l *Loader) Err() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.err
}

// Items returns a copy of the item catalog (empty until loaded).
func (l *Loader) Items() []character.Item {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return cloneOrEmpty(l.items)
}

// HeroicAbilities returns a copy of the heroic ability catalog (empty until loaded).
func (l *Loader) HeroicAbilities() []character.HeroicAbility {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return cloneOrEmpty(l.abilities)
}

// FindHeroicAbility looks an ability up by case-insensitive name.
func (l *Loader) FindHeroicAbility(name string) (character.HeroicAbility, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, a := range l.abilities {
		if strings.EqualFold(a.Name, name) {
			return a, true
		}
	}
	return character.HeroicAbility{}, false
}

// cloneOrEmpty copies s, returning an empty (non-nil) slice so catalogs encode as [].
func cloneOrEmpty[T any](s []T) []T {
	if s == nil {
		return make([]T, 0)
	}
	return slices.Clone(s)
}
