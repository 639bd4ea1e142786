package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"truehabits/internal/models"
)

type PostgresDB struct {
	pool *pgxpool.Pool
}

func NewPostgresDB(cfg struct {
	Host         string
	Port         string
	User         string
	Password     string
	DBName       string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	ConnLifetime time.Duration
}) (*PostgresDB, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s pool_max_conns=%d",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode, cfg.MaxOpenConns,
	)

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DB connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.ConnLifetime
	poolConfig.MaxConnIdleTime = 15 * time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.ConnectConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresDB{pool: pool}, nil
}

func (db *PostgresDB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// Migrate creates the schema if it does not exist. Deletes cascade so that
// removing a habit removes its actions, and removing a user removes
// everything they own.
func (db *PostgresDB) Migrate(ctx context.Context) error {
	schema := `
        CREATE TABLE IF NOT EXISTS users (
            user_id       BIGINT PRIMARY KEY,
            chat_id       BIGINT NOT NULL DEFAULT 0,
            name          TEXT NOT NULL,
            age           INT NOT NULL,
            sex           TEXT NOT NULL,
            premium       BOOLEAN NOT NULL DEFAULT FALSE,
            registered_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );
        CREATE TABLE IF NOT EXISTS habits (
            user_id       BIGINT NOT NULL REFERENCES users (user_id) ON DELETE CASCADE,
            name          TEXT NOT NULL,
            icon          TEXT NOT NULL DEFAULT '',
            category      TEXT NOT NULL DEFAULT '',
            goal          TEXT NOT NULL DEFAULT '',
            frequency     TEXT NOT NULL DEFAULT '',
            goal_unit     TEXT NOT NULL DEFAULT '',
            goal_quantity DOUBLE PRECISION NOT NULL DEFAULT 0,
            PRIMARY KEY (user_id, name)
        );
        CREATE TABLE IF NOT EXISTS actions (
            id           BIGSERIAL PRIMARY KEY,
            user_id      BIGINT NOT NULL,
            habit        TEXT NOT NULL,
            performed_at TIMESTAMPTZ NOT NULL,
            text         TEXT NOT NULL DEFAULT '',
            quantity     DOUBLE PRECISION NOT NULL DEFAULT 0,
            FOREIGN KEY (user_id, habit) REFERENCES habits (user_id, name) ON DELETE CASCADE
        );
        CREATE INDEX IF NOT EXISTS idx_actions_user_habit ON actions (user_id, habit);
    `
	if _, err := db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// withTx runs fn inside a transaction, committing on nil error and rolling
// back otherwise. Every multi-statement mutation goes through here so a
// half-applied habit list can never be observed.
func (db *PostgresDB) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// SaveUser inserts or updates the user record. Registration is
// modify-or-create: resubmitting the form updates the same row.
func (db *PostgresDB) SaveUser(ctx context.Context, user *models.User) error {
	query := `
        INSERT INTO users (user_id, chat_id, name, age, sex)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (user_id) DO UPDATE
        SET chat_id = $2, name = $3, age = $4, sex = $5
        RETURNING registered_at
    `
	err := db.pool.QueryRow(ctx, query,
		user.ID, user.ChatID, user.Name, user.Age, user.Sex,
	).Scan(&user.RegisteredAt)
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

func (db *PostgresDB) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	query := `
        SELECT user_id, chat_id, name, age, sex, premium, registered_at
        FROM users
        WHERE user_id = $1
    `
	var user models.User
	err := db.pool.QueryRow(ctx, query, userID).Scan(
		&user.ID, &user.ChatID, &user.Name, &user.Age, &user.Sex,
		&user.Premium, &user.RegisteredAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (db *PostgresDB) IsRegistered(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := db.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE user_id = $1)`, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check user registration: %w", err)
	}
	return exists, nil
}

func (db *PostgresDB) SetPremium(ctx context.Context, userID int64, premium bool) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE users SET premium = $2 WHERE user_id = $1`, userID, premium)
	if err != nil {
		return fmt.Errorf("failed to update premium flag: %w", err)
	}
	return nil
}

// DeleteUser removes the user; habits and actions go with it.
func (db *PostgresDB) DeleteUser(ctx context.Context, userID int64) error {
	_, err := db.pool.Exec(ctx, `DELETE FROM users WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}

func (db *PostgresDB) GetHabits(ctx context.Context, userID int64) ([]models.Habit, error) {
	query := `
        SELECT user_id, name, icon, category, goal, frequency, goal_unit, goal_quantity
        FROM habits
        WHERE user_id = $1
        ORDER BY name
    `
	rows, err := db.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get habits: %w", err)
	}
	defer rows.Close()

	var habits []models.Habit
	for rows.Next() {
		var h models.Habit
		if err := rows.Scan(
			&h.UserID, &h.Name, &h.Icon, &h.Category, &h.Goal,
			&h.Frequency, &h.GoalUnit, &h.GoalQuantity,
		); err != nil {
			return nil, fmt.Errorf("failed to scan habit: %w", err)
		}
		habits = append(habits, h)
	}
	return habits, rows.Err()
}

func (db *PostgresDB) GetHabit(ctx context.Context, userID int64, name string) (*models.Habit, error) {
	query := `
        SELECT user_id, name, icon, category, goal, frequency, goal_unit, goal_quantity
        FROM habits
        WHERE user_id = $1 AND LOWER(name) = LOWER($2)
    `
	var h models.Habit
	err := db.pool.QueryRow(ctx, query, userID, name).Scan(
		&h.UserID, &h.Name, &h.Icon, &h.Category, &h.Goal,
		&h.Frequency, &h.GoalUnit, &h.GoalQuantity,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get habit: %w", err)
	}
	return &h, nil
}

// ReplaceHabits applies a registration resubmission atomically: habits
// absent from the new list are deleted together with their actions,
// habits present are upserted. A concurrent read sees either the old set
// or the new one, never a mix.
func (db *PostgresDB) ReplaceHabits(ctx context.Context, userID int64, habits []models.Habit) error {
	names := make([]string, 0, len(habits))
	for i := range habits {
		habits[i].UserID = userID
		habits[i].Normalize()
		names = append(names, habits[i].Name)
	}

	return db.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM habits WHERE user_id = $1 AND NOT (name = ANY($2))`,
			userID, names,
		); err != nil {
			return fmt.Errorf("failed to delete stale habits: %w", err)
		}

		upsert := `
            INSERT INTO habits (user_id, name, icon, category, goal, frequency, goal_unit, goal_quantity)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
            ON CONFLICT (user_id, name) DO UPDATE
            SET icon = $3, category = $4, goal = $5, frequency = $6, goal_unit = $7, goal_quantity = $8
        `
		for _, h := range habits {
			if _, err := tx.Exec(ctx, upsert,
				h.UserID, h.Name, h.Icon, h.Category, h.Goal,
				h.Frequency, h.GoalUnit, h.GoalQuantity,
			); err != nil {
				return fmt.Errorf("failed to upsert habit %q: %w", h.Name, err)
			}
		}
		return nil
	})
}

func (db *PostgresDB) SaveAction(ctx context.Context, action *models.Action) error {
	query := `
        INSERT INTO actions (user_id, habit, performed_at, text, quantity)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id
    `
	err := db.pool.QueryRow(ctx, query,
		action.UserID, action.Habit, action.PerformedAt, action.Text, action.Quantity,
	).Scan(&action.ID)
	if err != nil {
		return fmt.Errorf("failed to save action: %w", err)
	}
	return nil
}

func (db *PostgresDB) DeleteAction(ctx context.Context, actionID int64) error {
	_, err := db.pool.Exec(ctx, `DELETE FROM actions WHERE id = $1`, actionID)
	if err != nil {
		return fmt.Errorf("failed to delete action: %w", err)
	}
	return nil
}

func (db *PostgresDB) GetAction(ctx context.Context, actionID int64) (*models.Action, error) {
	query := `
        SELECT id, user_id, habit, performed_at, text, quantity
        FROM actions
        WHERE id = $1
    `
	var a models.Action
	err := db.pool.QueryRow(ctx, query, actionID).Scan(
		&a.ID, &a.UserID, &a.Habit, &a.PerformedAt, &a.Text, &a.Quantity,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get action: %w", err)
	}
	return &a, nil
}

// ReplaceActions deletes every action of the user and inserts the given
// list, in one transaction.
func (db *PostgresDB) ReplaceActions(ctx context.Context, userID int64, actions []models.Action) error {
	return db.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM actions WHERE user_id = $1`, userID,
		); err != nil {
			return fmt.Errorf("failed to delete actions: %w", err)
		}
		insert := `
            INSERT INTO actions (user_id, habit, performed_at, text, quantity)
            VALUES ($1, $2, $3, $4, $5)
        `
		for _, a := range actions {
			if _, err := tx.Exec(ctx, insert,
				userID, a.Habit, a.PerformedAt, a.Text, a.Quantity,
			); err != nil {
				return fmt.Errorf("failed to insert action for habit %q: %w", a.Habit, err)
			}
		}
		return nil
	})
}

// rollupColumns is the shared projection of the habit+action join: one row
// per habit and calendar day, with the dejar-only minimum-lapse signal.
const rollupColumns = `
        h.user_id,
        h.name,
        h.category,
        h.frequency,
        a.performed_at::date AS day,
        SUM(a.quantity) AS total,
        h.goal_quantity,
        AVG(a.quantity) AS mean,
        CASE WHEN LOWER(h.category) = 'dejar' THEN MIN(a.quantity) END AS quit_min
`

const rollupGroupBy = `
        GROUP BY h.user_id, h.name, h.category, h.frequency, a.performed_at::date, h.goal_quantity
`

// AllTimeRollup returns every historical action of the user grouped by
// calendar day. Inner join: habits without actions do not appear.
func (db *PostgresDB) AllTimeRollup(ctx context.Context, userID int64) ([]models.RollupRow, error) {
	query := `
        SELECT ` + rollupColumns + `
        FROM habits h
        JOIN actions a ON h.user_id = a.user_id AND h.name = a.habit
        WHERE h.user_id = $1
    ` + rollupGroupBy
	rows, err := db.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query all-time rollup: %w", err)
	}
	defer rows.Close()
	return scanRollupRows(rows)
}

// CurrentWeekRollup returns the user's rollup for the Monday..Sunday week
// containing now. The outer join keeps habits with zero actions in the
// window as placeholder rows, so unmet goals still register as 0-point
// entries instead of silently disappearing.
func (db *PostgresDB) CurrentWeekRollup(ctx context.Context, userID int64, now time.Time) ([]models.RollupRow, error) {
	start, end := weekWindow(now)
	query := `
        SELECT ` + rollupColumns + `
        FROM habits h
        LEFT JOIN actions a ON h.user_id = a.user_id AND h.name = a.habit
            AND a.performed_at >= $2 AND a.performed_at < $3
        WHERE h.user_id = $1
    ` + rollupGroupBy
	rows, err := db.pool.Query(ctx, query, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query current week rollup: %w", err)
	}
	defer rows.Close()
	return scanRollupRows(rows)
}

// PeerRollup returns the current-week rollup across all users, limited to
// the comparison categories. The requesting user is excluded downstream,
// not here.
func (db *PostgresDB) PeerRollup(ctx context.Context, now time.Time) ([]models.RollupRow, error) {
	start, end := weekWindow(now)
	query := `
        SELECT ` + rollupColumns + `
        FROM habits h
        LEFT JOIN actions a ON h.user_id = a.user_id AND h.name = a.habit
            AND a.performed_at >= $1 AND a.performed_at < $2
        WHERE LOWER(h.category) IN ('deporte', 'estilo-vida')
    ` + rollupGroupBy
	rows, err := db.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query peer rollup: %w", err)
	}
	defer rows.Close()
	return scanRollupRows(rows)
}

func scanRollupRows(rows pgx.Rows) ([]models.RollupRow, error) {
	var out []models.RollupRow
	for rows.Next() {
		var r models.RollupRow
		if err := rows.Scan(
			&r.UserID, &r.Habit, &r.Category, &r.Frequency,
			&r.Day, &r.Total, &r.GoalQuantity, &r.Mean, &r.QuitMin,
		); err != nil {
			return nil, fmt.Errorf("failed to scan rollup row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// weekWindow returns [Monday 00:00, next Monday 00:00) for the week
// containing t.
func weekWindow(t time.Time) (time.Time, time.Time) {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	start := day.AddDate(0, 0, -((int(day.Weekday()) + 6) % 7))
	return start, start.AddDate(0, 0, 7)
}
