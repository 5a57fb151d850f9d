package store

import (
	"context"
	"database/sql"
	stderrors "errors"

	"notification-workers/internal/common/errors"
	"notification-workers/internal/models"
)

// UserStore reads the sending user and the name of their company.
type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	var (
		u                  models.User
		email, companyName sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT u.id, u.first_name, u.last_name, u.email, c.name
		FROM "user" u
		LEFT JOIN company c ON c.company_id = u.company_id
		WHERE u.id = $1`, id).Scan(&u.ID, &u.FirstName, &u.LastName, &email, &companyName)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("Utilisateur non trouvé", id)
	}
	if err != nil {
		return nil, errors.NewDatabaseError("get user", err)
	}
	u.Email = nullString(email)
	u.CompanyName = nullString(companyName)
	return &u, nil
}
