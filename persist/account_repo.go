package persist

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"
)

const uniqueViolation = "23505"

// AccountRepo keeps accounts in PostgreSQL with bcrypt password hashes.
type AccountRepo struct {
	db *DB
}

func NewAccountRepo(db *DB) *AccountRepo {
	return &AccountRepo{db: db}
}

func (r *AccountRepo) Register(ctx context.Context, email, password string) (*Account, error) {
	email, err := checkCredentials(email, password)
	if err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	acct := &Account{
		Email:       email,
		DisplayName: DisplayName(email),
	}

	var id int64
	err = r.db.Pool.QueryRow(ctx,
		`INSERT INTO accounts (email, password_hash, display_name)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		acct.Email, string(hash), acct.DisplayName,
	).Scan(&id, &acct.CreatedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return nil, ErrAccountExists
	}
	if err != nil {
		return nil, fmt.Errorf("insert account: %w", err)
	}

	acct.ID = strconv.FormatInt(id, 10)

	return acct, nil
}

func (r *AccountRepo) Login(ctx context.Context, email, password string) (*Account, error) {
	email, err := checkCredentials(email, password)
	if err != nil {
		return nil, err
	}

	var (
		id   int64
		hash string
		acct = &Account{}
	)
	err = r.db.Pool.QueryRow(ctx,
		`SELECT id, email, password_hash, display_name, created_at
		 FROM accounts WHERE email = $1`, email,
	).Scan(&id, &acct.Email, &hash, &acct.DisplayName, &acct.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	acct.ID = strconv.FormatInt(id, 10)

	if _, err := r.db.Pool.Exec(ctx,
		`UPDATE accounts SET last_login = $2 WHERE id = $1`, id, time.Now(),
	); err != nil {
		return nil, fmt.Errorf("update last login: %w", err)
	}

	return acct, nil
}
