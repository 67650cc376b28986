package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/shared"
)

// ServerRepository persists [models.Server] rows.
type ServerRepository struct {
	db *sql.DB
}

// NewServerRepository creates a new ServerRepository with the given database connection
func NewServerRepository(db *sql.DB) *ServerRepository {
	return &ServerRepository{db: db}
}

// Upsert returns the server for (service, url), creating it when missing.
func (r *ServerRepository) Upsert(service, url string) (*models.Server, error) {
	server, err := r.GetByURL(service, url)
	if err == nil {
		return server, nil
	}
	if !errors.Is(err, shared.ErrServerNotFound) {
		return nil, err
	}

	server = &models.Server{
		ID:          shared.GenerateID(),
		ServiceName: service,
		URL:         url,
		CreatedAt:   time.Now().UTC(),
	}

	query := `
		INSERT INTO servers (id, service_name, url, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (service_name, url) DO NOTHING
	`
	if _, err := r.db.Exec(query, server.ID, server.ServiceName, server.URL, server.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to insert server: %w", err)
	}

	return r.GetByURL(service, url)
}

// Get retrieves a server by ID
func (r *ServerRepository) Get(id string) (*models.Server, error) {
	query := `SELECT id, service_name, url, last_sync_at, created_at FROM servers WHERE id = ?`
	return r.scanOne(r.db.QueryRow(query, id))
}

// GetByURL retrieves a server by service name and url or owner id
func (r *ServerRepository) GetByURL(service, url string) (*models.Server, error) {
	query := `SELECT id, service_name, url, last_sync_at, created_at FROM servers WHERE service_name = ? AND url = ?`
	return r.scanOne(r.db.QueryRow(query, service, url))
}

// List retrieves every known server, ordered by service then url
func (r *ServerRepository) List() ([]*models.Server, error) {
	rows, err := r.db.Query(`SELECT id, service_name, url, last_sync_at, created_at FROM servers ORDER BY service_name, url`)
	if err != nil {
		return nil, fmt.Errorf("failed to list servers: %w", err)
	}
	defer rows.Close()

	var servers []*models.Server
	for rows.Next() {
		s, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		servers = append(servers, s)
	}
	return servers, rows.Err()
}

// TouchLastSync records the time of the last finished pull.
func (r *ServerRepository) TouchLastSync(id string, at time.Time) error {
	result, err := r.db.Exec(`UPDATE servers SET last_sync_at = ? WHERE id = ?`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update last sync time: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrServerNotFound, id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *ServerRepository) scanOne(row *sql.Row) (*models.Server, error) {
	s, err := r.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrServerNotFound
	}
	return s, err
}

func (r *ServerRepository) scan(row scanner) (*models.Server, error) {
	var (
		s        models.Server
		lastSync sql.NullTime
	)

	if err := row.Scan(&s.ID, &s.ServiceName, &s.URL, &lastSync, &s.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan server: %w", err)
	}

	if lastSync.Valid {
		s.LastSyncAt = &lastSync.Time
	}
	return &s, nil
}
