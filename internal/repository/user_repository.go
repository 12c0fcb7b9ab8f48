package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/explanation-reservation/internal/model"
	"github.com/iliyamo/explanation-reservation/internal/utils"
)

var ErrEmailExists = errors.New("email already exists")

const userColumns = `id, email, password_hash, role, is_active, created_at, updated_at`

// UserRepo reads and creates back-office accounts. Emails are stored
// lower-cased, so lookups are case-insensitive.
type UserRepo struct {
	db *sql.DB
	x  *sqlx.DB
}

func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{db: db, x: sqlx.NewDb(db, "mysql")}
}

func normalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

// Create hashes password with cost and inserts an account holding role.
func (r *UserRepo) Create(ctx context.Context, email, password, role string, cost int) (uint64, error) {
	if !model.IsAdminRole(role) {
		return 0, fmt.Errorf("unknown role %q", role)
	}
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (email, password_hash, role) VALUES (?, ?, ?)`,
		normalizeEmail(email), hash, role)
	switch err = mapDBError(err); {
	case errors.Is(err, ErrDuplicate):
		return 0, ErrEmailExists
	case err != nil:
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	return r.getOne(ctx, `email = ?`, normalizeEmail(email))
}

func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return r.getOne(ctx, `id = ?`, id)
}

func (r *UserRepo) getOne(ctx context.Context, cond string, arg any) (model.User, error) {
	var u model.User
	if err := sqlx.GetContext(ctx, r.x, &u, `SELECT `+userColumns+` FROM users WHERE `+cond+` LIMIT 1`, arg); err != nil {
		return model.User{}, mapDBError(err)
	}
	return u, nil
}
