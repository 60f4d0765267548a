package repository

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"tradebridge/internal/models"
)

// Ошибки репозитория связок
var (
	ErrMappingNotFound = errors.New("mapping not found")
	ErrMappingExists   = errors.New("mapping with this id already exists")
)

// Schema - таблица связок. seq задает порядок вставки для списка.
const Schema = `
CREATE TABLE IF NOT EXISTS bridge_mappings (
	seq               BIGSERIAL,
	id                TEXT PRIMARY KEY,
	source_account_id TEXT NOT NULL,
	target_account_id TEXT NOT NULL,
	name              TEXT NOT NULL,
	status            TEXT NOT NULL CHECK (status IN ('active', 'inactive', 'error')),
	sync_mode         TEXT NOT NULL CHECK (sync_mode IN ('one-way', 'two-way')),
	position_sizing   TEXT NOT NULL CHECK (position_sizing IN ('fixed', 'percentage', 'risk-based')),
	position_value    DOUBLE PRECISION NOT NULL CHECK (position_value > 0),
	created_at        TIMESTAMPTZ NOT NULL,
	last_sync_at      TIMESTAMPTZ,
	error             TEXT,
	CHECK (source_account_id <> target_account_id)
)`

// EnsureSchema создает таблицу, если ее нет
func EnsureSchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}

const mappingColumns = `id, source_account_id, target_account_id, name, status,
		sync_mode, position_sizing, position_value, created_at, last_sync_at, error`

// MappingRepository - связки в PostgreSQL
type MappingRepository struct {
	db *sql.DB
}

// NewMappingRepository создает новый экземпляр репозитория
func NewMappingRepository(db *sql.DB) *MappingRepository {
	return &MappingRepository{db: db}
}

// Create сохраняет новую связку
func (r *MappingRepository) Create(m *models.BridgeMapping) error {
	query := `
		INSERT INTO bridge_mappings (` + mappingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.db.Exec(
		query,
		m.ID,
		m.SourceAccountID,
		m.TargetAccountID,
		m.Name,
		m.Status,
		m.SyncMode,
		m.PositionSizing,
		m.PositionValue,
		m.CreatedAt,
		nullTime(m.LastSyncAt),
		nullString(m.Error),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrMappingExists
		}
		return err
	}

	return nil
}

// GetByID возвращает связку по ID
func (r *MappingRepository) GetByID(id string) (*models.BridgeMapping, error) {
	query := `SELECT ` + mappingColumns + ` FROM bridge_mappings WHERE id = $1`

	m, err := scanMapping(r.db.QueryRow(query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMappingNotFound
		}
		return nil, err
	}

	return m, nil
}

// GetAll возвращает все связки в порядке создания
func (r *MappingRepository) GetAll() ([]*models.BridgeMapping, error) {
	query := `SELECT ` + mappingColumns + ` FROM bridge_mappings ORDER BY seq`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mappings []*models.BridgeMapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, m)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return mappings, nil
}

// Update перезаписывает изменяемые поля связки.
// id, счета и created_at не меняются никогда.
func (r *MappingRepository) Update(m *models.BridgeMapping) error {
	query := `
		UPDATE bridge_mappings
		SET name = $1, status = $2, sync_mode = $3, position_sizing = $4,
		    position_value = $5, last_sync_at = $6, error = $7
		WHERE id = $8`

	result, err := r.db.Exec(
		query,
		m.Name,
		m.Status,
		m.SyncMode,
		m.PositionSizing,
		m.PositionValue,
		nullTime(m.LastSyncAt),
		nullString(m.Error),
		m.ID,
	)
	if err != nil {
		return err
	}

	return expectOneRow(result)
}

// Delete удаляет связку по ID
func (r *MappingRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM bridge_mappings WHERE id = $1`, id)
	if err != nil {
		return err
	}

	return expectOneRow(result)
}

// Count возвращает количество связок
func (r *MappingRepository) Count() (int, error) {
	var count int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM bridge_mappings`).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMapping(row rowScanner) (*models.BridgeMapping, error) {
	m := &models.BridgeMapping{}
	var lastSync sql.NullTime
	var errMsg sql.NullString

	err := row.Scan(
		&m.ID,
		&m.SourceAccountID,
		&m.TargetAccountID,
		&m.Name,
		&m.Status,
		&m.SyncMode,
		&m.PositionSizing,
		&m.PositionValue,
		&m.CreatedAt,
		&lastSync,
		&errMsg,
	)
	if err != nil {
		return nil, err
	}

	if lastSync.Valid {
		t := lastSync.Time
		m.LastSyncAt = &t
	}
	if errMsg.Valid {
		s := errMsg.String
		m.Error = &s
	}
	return m, nil
}

func expectOneRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrMappingNotFound
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// isUniqueViolation проверяет, является ли ошибка нарушением UNIQUE constraint
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "duplicate key") || strings.Contains(errStr, "23505")
}
