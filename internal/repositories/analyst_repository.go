package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/upishield/fraud-screening/internal/models"
)

var (
	ErrAnalystNotFound      = errors.New("analyst not found")
	ErrAnalystAlreadyExists = errors.New("analyst already exists")
)

// AnalystRepository handles analyst account database operations
type AnalystRepository struct {
	db *Database
}

// NewAnalystRepository creates a new analyst repository
func NewAnalystRepository(db *Database) *AnalystRepository {
	return &AnalystRepository{db: db}
}

// Create creates a new analyst account
func (r *AnalystRepository) Create(ctx context.Context, analyst *models.Analyst) error {
	analyst.ID = uuid.New()
	analyst.CreatedAt = time.Now()

	query := `
		INSERT INTO analysts (id, email, password_hash, role, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		analyst.ID,
		analyst.Email,
		analyst.PasswordHash,
		analyst.Role,
		analyst.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAnalystAlreadyExists
		}
		return err
	}
	return nil
}

// GetByEmail retrieves an analyst by email
func (r *AnalystRepository) GetByEmail(ctx context.Context, email string) (*models.Analyst, error) {
	query := `SELECT id, email, password_hash, role, created_at FROM analysts WHERE email = $1`

	analyst := &models.Analyst{}
	err := r.db.Pool.QueryRow(ctx, query, email).Scan(
		&analyst.ID,
		&analyst.Email,
		&analyst.PasswordHash,
		&analyst.Role,
		&analyst.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAnalystNotFound
		}
		return nil, err
	}
	return analyst, nil
}

// GetByID retrieves an analyst by ID
func (r *AnalystRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Analyst, error) {
	query := `SELECT id, email, password_hash, role, created_at FROM analysts WHERE id = $1`

	analyst := &models.Analyst{}
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&analyst.ID,
		&analyst.Email,
		&analyst.PasswordHash,
		&analyst.Role,
		&analyst.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAnalystNotFound
		}
		return nil, err
	}
	return analyst, nil
}
