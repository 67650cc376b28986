package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/shared"
)

const snapshotColumns = `s.id, s.sequence, s.server_id, s.service_name, s.created_at, s.is_complete`

// SnapshotRepository persists [models.Snapshot] rows.
//
// Deleting a snapshot cascades to its playlists and tracks.
type SnapshotRepository struct {
	db *sql.DB
}

// NewSnapshotRepository creates a new SnapshotRepository with the given database connection
func NewSnapshotRepository(db *sql.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Create inserts a new incomplete snapshot for server.
func (r *SnapshotRepository) Create(server *models.Server, createdAt time.Time) (*models.Snapshot, error) {
	snapshot := &models.Snapshot{
		ID:          shared.GenerateID(),
		ServerID:    server.ID,
		ServiceName: server.ServiceName,
		CreatedAt:   createdAt.UTC(),
	}

	err := inTx(r.db, func(tx *sql.Tx) error {
		sequence, err := NextSequence(tx, "snapshots")
		if err != nil {
			return err
		}
		snapshot.Sequence = sequence

		query := `
			INSERT INTO snapshots (id, sequence, server_id, service_name, created_at, is_complete)
			VALUES (?, ?, ?, ?, ?, 0)
		`
		if _, err := tx.Exec(query, snapshot.ID, snapshot.Sequence, snapshot.ServerID, snapshot.ServiceName, snapshot.CreatedAt); err != nil {
			return fmt.Errorf("failed to insert snapshot: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return snapshot, nil
}

// Complete flips a snapshot to complete.
func (r *SnapshotRepository) Complete(id string) error {
	result, err := r.db.Exec(`UPDATE snapshots SET is_complete = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to complete snapshot: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrSnapshotNotFound, id)
	}
	return nil
}

// Get retrieves a snapshot by ID
func (r *SnapshotRepository) Get(id string) (*models.Snapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM snapshots s WHERE s.id = ?`
	return r.scanOne(r.db.QueryRow(query, id))
}

// LatestComplete returns the newest complete snapshot of the account (service, url).
func (r *SnapshotRepository) LatestComplete(service, url string) (*models.Snapshot, error) {
	query := `
		SELECT ` + snapshotColumns + `
		FROM snapshots s
		JOIN servers sv ON sv.id = s.server_id
		WHERE sv.service_name = ? AND sv.url = ? AND s.is_complete = 1
		ORDER BY s.created_at DESC, s.sequence DESC
		LIMIT 1
	`
	snapshot, err := r.scanOne(r.db.QueryRow(query, service, url))
	if errors.Is(err, shared.ErrSnapshotNotFound) {
		return nil, fmt.Errorf("%w: %s %s", shared.ErrSnapshotNotFound, service, url)
	}
	return snapshot, err
}

// ListByServer retrieves every snapshot of a server, oldest first.
func (r *SnapshotRepository) ListByServer(serverID string) ([]models.Snapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM snapshots s WHERE s.server_id = ? ORDER BY s.created_at, s.sequence`
	return r.list(query, serverID)
}

// List retrieves every snapshot, optionally restricted to one service, oldest first.
func (r *SnapshotRepository) List(service string) ([]models.Snapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM snapshots s`
	args := []any{}
	if service != "" {
		query += ` WHERE s.service_name = ?`
		args = append(args, service)
	}
	query += ` ORDER BY s.created_at, s.sequence`
	return r.list(query, args...)
}

// DeleteMany removes the given snapshots with their playlists and tracks and returns how many were removed.
func (r *SnapshotRepository) DeleteMany(ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	result, err := r.db.Exec(`DELETE FROM snapshots WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete snapshots: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return rows, nil
}

func (r *SnapshotRepository) list(query string, args ...any) ([]models.Snapshot, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []models.Snapshot
	for rows.Next() {
		s, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, *s)
	}
	return snapshots, rows.Err()
}

func (r *SnapshotRepository) scanOne(row *sql.Row) (*models.Snapshot, error) {
	s, err := r.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrSnapshotNotFound
	}
	return s, err
}

func (r *SnapshotRepository) scan(row scanner) (*models.Snapshot, error) {
	var s models.Snapshot
	if err := row.Scan(&s.ID, &s.Sequence, &s.ServerID, &s.ServiceName, &s.CreatedAt, &s.IsComplete); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan snapshot: %w", err)
	}
	return &s, nil
}
