package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Masterminds/squirrel"

	"github.com/hpungsan/hearth/internal/character"
	"github.com/hpungsan/hearth/internal/errors"
)

var characterColumns = []string{
	"id", "user_id", "party_id", "name",
	"current_hp", "max_hp", "current_wp", "max_wp",
	"attributes_json", "conditions_json", "skill_levels_json",
	"heroic_abilities_json", "spells_json",
	"death_rolls_passed", "death_rolls_failed", "is_rallied",
	"teacher", "equipment_json",
	"notes", "appearance", "memento", "flaw",
	"created_at", "updated_at",
}

// GetCharacter retrieves a character owned by userID.
// A character that exists but belongs to someone else is reported as NOT_FOUND.
func (g *Gateway) GetCharacter(ctx context.Context, id, userID string) (*character.Character, error) {
	const op = "get_character"

	query, args, err := g.sb.
		Select(characterColumns...).
		From("characters").
		Where(squirrel.Eq{"id": id, "user_id": userID}).
		ToSql()
	if err != nil {
		return nil, g.record(op, errors.NewInternal(err))
	}

	c, err := scanCharacter(g.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, g.record(op, errors.NewNotFound("character", id))
	}
	if err != nil {
		return nil, g.record(op, remote(op, err))
	}

	g.record(op, nil)
	return c, nil
}

// UpdateCharacter writes the fields set in u and stamps updated_at.
// Returns the stamped timestamp.
func (g *Gateway) UpdateCharacter(ctx context.Context, id string, u character.Update) (int64, error) {
	const op = "update_character"

	set, err := characterSetMap(u)
	if err != nil {
		return 0, g.record(op, err)
	}
	now := g.now()
	set["updated_at"] = now

	query, args, err := g.sb.
		Update("characters").
		SetMap(set).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return 0, g.record(op, errors.NewInternal(err))
	}

	result, err := g.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, g.record(op, remote(op, err))
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, g.record(op, remote(op, err))
	}
	if rowsAffected == 0 {
		return 0, g.record(op, errors.NewNotFound("character", id))
	}

	return now, g.record(op, nil)
}

// IncreaseMaxStat raises max_hp or max_wp by one inside a transaction and
// returns the new maximum with the stamped updated_at.
func (g *Gateway) IncreaseMaxStat(ctx context.Context, id string, stat character.Stat) (newMax int, updatedAt int64, err error) {
	const op = "increase_max_stat"
	defer func() { g.record(op, err) }()

	col, err := maxColumn(stat)
	if err != nil {
		return 0, 0, err
	}

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, remote(op, err)
	}
	defer tx.Rollback()

	now := g.now()
	query, args, err := g.sb.
		Update("characters").
		Set(col, squirrel.Expr(col+" + 1")).
		Set("updated_at", now).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return 0, 0, errors.NewInternal(err)
	}
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, 0, remote(op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, 0, remote(op, err)
	}
	if rowsAffected == 0 {
		return 0, 0, errors.NewNotFound("character", id)
	}

	query, args, err = g.sb.Select(col).From("characters").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return 0, 0, errors.NewInternal(err)
	}
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&newMax); err != nil {
		return 0, 0, remote(op, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, remote(op, err)
	}
	return newMax, now, nil
}

// InsertCharacter stores a new character. Missing ID and timestamps are filled in on c.
func (g *Gateway) InsertCharacter(ctx context.Context, c *character.Character) error {
	const op = "insert_character"

	if c.ID == "" {
		c.ID = NewID()
	}
	if c.CreatedAt == 0 {
		c.CreatedAt = g.now()
	}
	if c.UpdatedAt == 0 {
		c.UpdatedAt = c.CreatedAt
	}

	var encoded [6]string
	for i, v := range []any{c.Attributes, c.Conditions, c.SkillLevels, c.HeroicAbilities, c.Spells, c.Equipment} {
		s, err := encodeJSON(v)
		if err != nil {
			return g.record(op, err)
		}
		encoded[i] = s
	}

	query, args, err := g.sb.
		Insert("characters").
		Columns(characterColumns...).
		Values(
			c.ID, c.UserID, toNullString(c.PartyID), c.Name,
			c.CurrentHP, c.MaxHP, c.CurrentWP, c.MaxWP,
			encoded[0], encoded[1], encoded[2],
			encoded[3], encoded[4],
			c.DeathRollsPassed, c.DeathRollsFailed, c.IsRallied,
			toNullString(c.Teacher), encoded[5],
			c.Notes, c.Appearance, c.Memento, c.Flaw,
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

func maxColumn(stat character.Stat) (string, error) {
	switch stat {
	case character.StatHP:
		return "max_hp", nil
	case character.StatWP:
		return "max_wp", nil
	default:
		return "", errors.NewInvalidRequest(fmt.Sprintf("stat must be one of: hp, wp (got %q)", stat))
	}
}

// characterSetMap converts the set fields of u into column assignments.
func characterSetMap(u character.Update) (map[string]any, error) {
	set := map[string]any{}

	setInt(set, "current_hp", u.CurrentHP)
	setInt(set, "max_hp", u.MaxHP)
	setInt(set, "current_wp", u.CurrentWP)
	setInt(set, "max_wp", u.MaxWP)
	setInt(set, "death_rolls_passed", u.DeathRollsPassed)
	setInt(set, "death_rolls_failed", u.DeathRollsFailed)
	if u.IsRallied != nil {
		set["is_rallied"] = *u.IsRallied
	}

	switch {
	case u.ClearTeacher:
		set["teacher"] = nil
	case u.Teacher != nil:
		set["teacher"] = *u.Teacher
	}

	setString(set, "notes", u.Notes)
	setString(set, "appearance", u.Appearance)
	setString(set, "memento", u.Memento)
	setString(set, "flaw", u.Flaw)

	jsonCols := []struct {
		col     string
		present bool
		value   any
	}{
		{"attributes_json", u.Attributes != nil, u.Attributes},
		{"conditions_json", u.Conditions != nil, u.Conditions},
		{"skill_levels_json", u.SkillLevels != nil, u.SkillLevels},
		{"heroic_abilities_json", u.HeroicAbilities != nil, u.HeroicAbilities},
		{"spells_json", u.Spells != nil, u.Spells},
		{"equipment_json", u.Equipment != nil, u.Equipment},
	}
	for _, jc := range jsonCols {
		if !jc.present {
			continue
		}
		s, err := encodeJSON(jc.value)
		if err != nil {
			return nil, err
		}
		set[jc.col] = s
	}

	return set, nil
}

func setInt(set map[string]any, col string, v *int) {
	if v != nil {
		set[col] = *v
	}
}

func setString(set map[string]any, col string, v *string) {
	if v != nil {
		set[col] = *v
	}
}

// scanCharacter scans a single row into a Character.
func scanCharacter(row rowScanner) (*character.Character, error) {
	var (
		c                                                  character.Character
		partyID, teacher                                   sql.NullString
		attrs, conds, skills, abilities, spells, equipment string
	)

	err := row.Scan(
		&c.ID, &c.UserID, &partyID, &c.Name,
		&c.CurrentHP, &c.MaxHP, &c.CurrentWP, &c.MaxWP,
		&attrs, &conds, &skills,
		&abilities, &spells,
		&c.DeathRollsPassed, &c.DeathRollsFailed, &c.IsRallied,
		&teacher, &equipment,
		&c.Notes, &c.Appearance, &c.Memento, &c.Flaw,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.PartyID = fromNullString(partyID)
	c.Teacher = fromNullString(teacher)

	for _, f := range []struct {
		text string
		dst  any
	}{
		{attrs, &c.Attributes},
		{conds, &c.Conditions},
		{skills, &c.SkillLevels},
		{abilities, &c.HeroicAbilities},
		{spells, &c.Spells},
		{equipment, &c.Equipment},
	} {
		if err := decodeJSON(f.text, f.dst); err != nil {
			return nil, fmt.Errorf("decode character %s: %w", c.ID, err)
		}
	}

	return &c, nil
}
