package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"guard-go/internal/guard"
	"guard-go/internal/model"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStore implements the TrustStore and SnapshotStore interfaces using
// SQLite. Set-valued columns are stored as JSON arrays.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore creates a new SQLite store.
// path can be a file path or ":memory:" for in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	return &SQLiteStore{db: db, path: path}, nil
}

// NewSQLiteStoreFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteStoreFromDB(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, path: ""}
}

// OpenConnection opens and configures a SQLite database connection with
// appropriate PRAGMAs. Exported for tools and tests that need a properly
// configured connection. path can be a file path or ":memory:".
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign key constraints (SQLite default is OFF for backward compatibility)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Snapshot replacement holds a write transaction for the duration of a
	// capture; wait for locks instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// Trust record operations

func (s *SQLiteStore) TrustRecord(ctx context.Context, guildID string) (*model.TrustRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT guild_id, full_set, owner_set, role_set, channel_set, ban_kick_set
		 FROM trust_records WHERE guild_id = ?`, guildID)

	var rec model.TrustRecord
	var full, owner, role, channel, banKick string
	err := row.Scan(&rec.GuildID, &full, &owner, &role, &channel, &banKick)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding trust record: %w", err)
	}

	for _, col := range []struct {
		raw  string
		dest *[]string
	}{
		{full, &rec.Full},
		{owner, &rec.Owner},
		{role, &rec.Role},
		{channel, &rec.Channel},
		{banKick, &rec.BanAndKick},
	} {
		if err := json.Unmarshal([]byte(col.raw), col.dest); err != nil {
			return nil, fmt.Errorf("decoding trust record for guild %s: %w", guildID, err)
		}
	}
	return &rec, nil
}

func (s *SQLiteStore) CreateTrustRecord(ctx context.Context, rec *model.TrustRecord) error {
	cols, err := encodeTrustSets(rec)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO trust_records (guild_id, full_set, owner_set, role_set, channel_set, ban_kick_set)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.GuildID, cols[0], cols[1], cols[2], cols[3], cols[4])
	if err != nil {
		return fmt.Errorf("creating trust record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveTrustRecord(ctx context.Context, rec *model.TrustRecord) error {
	cols, err := encodeTrustSets(rec)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE trust_records
		 SET full_set = ?, owner_set = ?, role_set = ?, channel_set = ?, ban_kick_set = ?
		 WHERE guild_id = ?`,
		cols[0], cols[1], cols[2], cols[3], cols[4], rec.GuildID)
	if err != nil {
		return fmt.Errorf("saving trust record: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("saving trust record: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("saving trust record: no record for guild %s", rec.GuildID)
	}
	return nil
}

// encodeTrustSets serializes the five scope sets in column order. A nil set
// encodes as an empty JSON array so scans never see SQL NULL.
func encodeTrustSets(rec *model.TrustRecord) ([5]string, error) {
	var cols [5]string
	for i, set := range [][]string{rec.Full, rec.Owner, rec.Role, rec.Channel, rec.BanAndKick} {
		if set == nil {
			set = []string{}
		}
		raw, err := json.Marshal(set)
		if err != nil {
			return cols, fmt.Errorf("encoding trust record: %w", err)
		}
		cols[i] = string(raw)
	}
	return cols, nil
}

// Snapshot operations

// ReplaceRoleSnapshots deletes all stored role snapshots and inserts the given
// set in one transaction. A row that fails to encode is skipped; the returned
// count is the number of rows actually stored.
func (s *SQLiteStore) ReplaceRoleSnapshots(ctx context.Context, snaps []model.RoleSnapshot) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM role_snapshots`); err != nil {
		return 0, fmt.Errorf("clearing role snapshots: %w", err)
	}

	stored := 0
	for i, snap := range snaps {
		members, err := json.Marshal(emptyIfNil(snap.Members))
		if err != nil {
			continue
		}
		overwrites, err := json.Marshal(snap.ChannelOverwrites)
		if err != nil {
			continue
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO role_snapshots
			 (id, name, color, position, permissions, hoist, mentionable, members, channel_overwrites, captured_at, capture_order)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			snap.ID, snap.Name, snap.Color, snap.Position, snap.Permissions,
			snap.Hoist, snap.Mentionable, string(members), string(overwrites),
			snap.CapturedAt, i)
		if err != nil {
			return 0, fmt.Errorf("inserting role snapshot %s: %w", snap.ID, err)
		}
		stored++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}
	return stored, nil
}

// ReplaceChannelSnapshots deletes all stored channel snapshots and inserts the
// given set in one transaction.
func (s *SQLiteStore) ReplaceChannelSnapshots(ctx context.Context, snaps []model.ChannelSnapshot) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM channel_snapshots`); err != nil {
		return 0, fmt.Errorf("clearing channel snapshots: %w", err)
	}

	stored := 0
	for i, snap := range snaps {
		overwrites, err := json.Marshal(snap.PermissionOverwrites)
		if err != nil {
			continue
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO channel_snapshots
			 (id, name, type, parent_id, topic, position, nsfw, user_limit, permission_overwrites, captured_at, capture_order)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			snap.ID, snap.Name, snap.Type, snap.ParentID, snap.Topic,
			snap.Position, snap.NSFW, snap.UserLimit, string(overwrites),
			snap.CapturedAt, i)
		if err != nil {
			return 0, fmt.Errorf("inserting channel snapshot %s: %w", snap.ID, err)
		}
		stored++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}
	return stored, nil
}

// RoleSnapshots returns all stored role snapshots in capture order.
func (s *SQLiteStore) RoleSnapshots(ctx context.Context) ([]model.RoleSnapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, color, position, permissions, hoist, mentionable, members, channel_overwrites, captured_at
		 FROM role_snapshots ORDER BY capture_order`)
	if err != nil {
		return nil, fmt.Errorf("loading role snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []model.RoleSnapshot
	for rows.Next() {
		var snap model.RoleSnapshot
		var members, overwrites string
		var capturedAt time.Time
		err := rows.Scan(&snap.ID, &snap.Name, &snap.Color, &snap.Position,
			&snap.Permissions, &snap.Hoist, &snap.Mentionable,
			&members, &overwrites, &capturedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning role snapshot: %w", err)
		}
		if err := json.Unmarshal([]byte(members), &snap.Members); err != nil {
			return nil, fmt.Errorf("decoding members for role %s: %w", snap.ID, err)
		}
		if err := json.Unmarshal([]byte(overwrites), &snap.ChannelOverwrites); err != nil {
			return nil, fmt.Errorf("decoding overwrites for role %s: %w", snap.ID, err)
		}
		snap.CapturedAt = capturedAt
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("loading role snapshots: %w", err)
	}
	return snaps, nil
}

// ChannelSnapshots returns all stored channel snapshots in capture order.
func (s *SQLiteStore) ChannelSnapshots(ctx context.Context) ([]model.ChannelSnapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, type, parent_id, topic, position, nsfw, user_limit, permission_overwrites, captured_at
		 FROM channel_snapshots ORDER BY capture_order`)
	if err != nil {
		return nil, fmt.Errorf("loading channel snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []model.ChannelSnapshot
	for rows.Next() {
		var snap model.ChannelSnapshot
		var overwrites string
		var capturedAt time.Time
		err := rows.Scan(&snap.ID, &snap.Name, &snap.Type, &snap.ParentID,
			&snap.Topic, &snap.Position, &snap.NSFW, &snap.UserLimit,
			&overwrites, &capturedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning channel snapshot: %w", err)
		}
		if err := json.Unmarshal([]byte(overwrites), &snap.PermissionOverwrites); err != nil {
			return nil, fmt.Errorf("decoding overwrites for channel %s: %w", snap.ID, err)
		}
		snap.CapturedAt = capturedAt
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("loading channel snapshots: %w", err)
	}
	return snaps, nil
}

func emptyIfNil(set []string) []string {
	if set == nil {
		return []string{}
	}
	return set
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteStore) Path() string {
	return s.path
}

// BackupTo creates a complete copy of the database at destPath using VACUUM INTO.
func (s *SQLiteStore) BackupTo(destPath string) error {
	if _, err := s.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Compile-time checks that SQLiteStore implements the store interfaces
var (
	_ guard.TrustStore    = (*SQLiteStore)(nil)
	_ guard.SnapshotStore = (*SQLiteStore)(nil)
)
