package db

import (
	"context"
	"database/sql"

	"github.com/Masterminds/squirrel"

	"github.com/hpungsan/hearth/internal/character"
	"github.com/hpungsan/hearth/internal/errors"
)

var encounterColumns = []string{"id", "party_id", "name", "status", "created_at", "updated_at"}

var combatantColumns = []string{
	"id", "encounter_id", "character_id", "name",
	"initiative_roll", "current_hp", "current_wp",
	"created_at", "updated_at",
}

// GetLatestEncounterForParty returns the most recently created encounter for the party
// regardless of status, or nil if the party has none.
func (g *Gateway) GetLatestEncounterForParty(ctx context.Context, partyID string) (*character.Encounter, error) {
	const op = "get_latest_encounter"

	query, args, err := g.sb.
		Select(encounterColumns...).
		From("encounters").
		Where(squirrel.Eq{"party_id": partyID}).
		OrderBy("created_at DESC", "id DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, g.record(op, errors.NewInternal(err))
	}

	var e character.Encounter
	err = g.db.QueryRowContext(ctx, query, args...).Scan(
		&e.ID, &e.PartyID, &e.Name, &e.Status, &e.CreatedAt, &e.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, g.record(op, nil)
	}
	if err != nil {
		return nil, g.record(op, remote(op, err))
	}

	g.record(op, nil)
	return &e, nil
}

// ListCombatants returns every combatant in the encounter in insertion order.
func (g *Gateway) ListCombatants(ctx context.Context, encounterID string) ([]character.Combatant, error) {
	const op = "list_combatants"

	query, args, err := g.sb.
		Select(combatantColumns...).
		From("combatants").
		Where(squirrel.Eq{"encounter_id": encounterID}).
		OrderBy("created_at ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, g.record(op, errors.NewInternal(err))
	}

	rows, err := g.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, g.record(op, remote(op, err))
	}
	defer rows.Close()

	var out []character.Combatant
	for rows.Next() {
		c, err := scanCombatant(rows)
		if err != nil {
			return nil, g.record(op, remote(op, err))
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, g.record(op, remote(op, err))
	}

	g.record(op, nil)
	return out, nil
}

// UpdateCombatant writes the fields set in u and returns the stored row.
func (g *Gateway) UpdateCombatant(ctx context.Context, id string, u character.CombatantUpdate) (c *character.Combatant, err error) {
	const op = "update_combatant"
	defer func() { g.record(op, err) }()

	set := map[string]any{"updated_at": g.now()}
	switch {
	case u.ClearInitiative:
		set["initiative_roll"] = nil
	case u.InitiativeRoll != nil:
		set["initiative_roll"] = *u.InitiativeRoll
	}
	setInt(set, "current_hp", u.CurrentHP)
	setInt(set, "current_wp", u.CurrentWP)

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, remote(op, err)
	}
	defer tx.Rollback()

	query, args, err := g.sb.Update("combatants").SetMap(set).Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, remote(op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, remote(op, err)
	}
	if rowsAffected == 0 {
		return nil, errors.NewNotFound("combatant", id)
	}

	query, args, err = g.sb.Select(combatantColumns...).From("combatants").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	c, err = scanCombatant(tx.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, remote(op, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, remote(op, err)
	}
	return c, nil
}

// InsertEncounter stores a new encounter. Missing ID and timestamps are filled in on e.
func (g *Gateway) InsertEncounter(ctx context.Context, e *character.Encounter) error {
	const op = "insert_encounter"

	if e.ID == "" {
		e.ID = NewID()
	}
	if e.CreatedAt == 0 {
		e.CreatedAt = g.now()
	}
	if e.UpdatedAt == 0 {
		e.UpdatedAt = e.CreatedAt
	}

	query, args, err := g.sb.
		Insert("encounters").
		Columns(encounterColumns...).
		Values(e.ID, e.PartyID, e.Name, e.Status, e.CreatedAt, e.UpdatedAt).
		ToSql()
	if err != nil {
		return g.record(op, errors.NewInternal(err))
	}
	if _, err := g.db.ExecContext(ctx, query, args...); err != nil {
		return g.record(op, remote(op, err))
	}
	return g.record(op, nil)
}

// InsertCombatant stores a new combatant. Missing ID and timestamps are filled in on c.
func (g *Gateway) InsertCombatant(ctx context.Context, c *character.Combatant) error {
	const op = "insert_combatant"

	if c.ID == "" {
		c.ID = NewID()
	}
	if c.CreatedAt == 0 {
		c.CreatedAt = g.now()
	}
	if c.UpdatedAt == 0 {
		c.UpdatedAt = c.CreatedAt
	}

	query, args, err := g.sb.
		Insert("combatants").
		Columns(combatantColumns...).
		Values(
			c.ID, c.EncounterID, toNullString(c.CharacterID), c.Name,
			toNullInt(c.InitiativeRoll), c.CurrentHP, c.CurrentWP,
			c.CreatedAt, c.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return g.record(op, errors.NewInternal(err))
	}
	if _, err := g.db.ExecContext(ctx, query, args...); err != nil {
		return g.record(op, remote(op, err))
	}
	return g.record(op, nil)
}

func scanCombatant(row rowScanner) (*character.Combatant, error) {
	var (
		c           character.Combatant
		characterID sql.NullString
		initiative  sql.NullInt64
	)
	err := row.Scan(
		&c.ID, &c.EncounterID, &characterID, &c.Name,
		&initiative, &c.CurrentHP, &c.CurrentWP,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.CharacterID = fromNullString(characterID)
	c.InitiativeRoll = fromNullInt(initiative)
	return &c, nil
}
