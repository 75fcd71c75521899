package db

import (
	"context"

	"github.com/hpungsan/hearth/internal/character"
	"github.com/hpungsan/hearth/internal/errors"
)

// ListItems returns the item catalog ordered by name.
func (g *Gateway) ListItems(ctx context.Context) ([]character.Item, error) {
	const op = "list_items"

	query, args, err := g.sb.
		Select("id", "name", "category", "weight", "cost", "description").
		From("items").
		OrderBy("name ASC").
		ToSql()
	if err != nil {
		return nil, g.record(op, errors.NewInternal(err))
	}

	rows, err := g.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, g.record(op, remote(op, err))
	}
	defer rows.Close()

	var out []character.Item
	for rows.Next() {
		var it character.Item
		if err := rows.Scan(&it.ID, &it.Name, &it.Category, &it.Weight, &it.Cost, &it.Description); err != nil {
			return nil, g.record(op, remote(op, err))
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, g.record(op, remote(op, err))
	}

	g.record(op, nil)
	return out, nil
}

// ListHeroicAbilities returns the heroic ability catalog ordered by name.
func (g *Gateway) ListHeroicAbilities(ctx context.Context) ([]character.HeroicAbility, error) {
	const op = "list_heroic_abilities"

	query, args, err := g.sb.
		Select("id", "name", "willpower_cost", "requirement", "description").
		From("heroic_abilities").
		OrderBy("name ASC").
		ToSql()
	if err != nil {
		return nil, g.record(op, errors.NewInternal(err))
	}

	rows, err := g.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, g.record(op, remote(op, err))
	}
	defer rows.Close()

	var out []character.HeroicAbility
	for rows.Next() {
		var a character.HeroicAbility
		if err := rows.Scan(&a.ID, &a.Name, &a.WillpowerCost, &a.Requirement, &a.Description); err != nil {
			return nil, g.record(op, remote(op, err))
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, g.record(op, remote(op, err))
	}

	g.record(op, nil)
	return out, nil
}

// InsertItem adds a catalog item. A missing ID is filled in on it.
func (g *Gateway) InsertItem(ctx context.Context, it *character.Item) error {
	const op = "insert_item"
	if it.ID == "" {
		it.ID = NewID()
	}
	query, args, err := g.sb.
		Insert("items").
		Columns("id", "name", "category", "weight", "cost", "description").
		Values(it.ID, it.Name, it.Category, it.Weight, it.Cost, it.Description).
		ToSql()
	if err != nil {
		return g.record(op, errors.NewInternal(err))
	}
	if _, err := g.db.ExecContext(ctx, query, args...); err != nil {
		return g.record(op, remote(op, err))
	}
	return g.record(op, nil)
}

// InsertHeroicAbility adds a catalog ability. A missing ID is filled in on a.
func (g *Gateway) InsertHeroicAbility(ctx context.Context, a *character.HeroicAbility) error {
	const op = "insert_heroic_ability"
	if a.ID == "" {
		a.ID = NewID()
	}
	query, args, err := g.sb.
		Insert("heroic_abilities").
		Columns("id", "name", "willpower_cost", "requirement", "description").
		Values(a.ID, a.Name, a.WillpowerCost, a.Requirement, a.Description).
		ToSql()
	if err != nil {
		return g.record(op, errors.NewInternal(err))
	}
	if _, err := g.db.ExecContext(ctx, query, args...); err != nil {
		return g.record(op, remote(op, err))
	}
	return g.record(op, nil)
}
