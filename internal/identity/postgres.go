package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const uniqueViolation = "23505"

// Schema creates the tables used by PostgresStore.
const Schema = `
create table if not exists users (
	normalized_username text primary key,
	username            text not null,
	full_name           text not null default '',
	password_hash       text not null,
	created_at          timestamptz not null default now()
);

create table if not exists user_claims (
	id                  bigserial primary key,
	normalized_username text not null references users(normalized_username) on delete cascade,
	claim_type          text not null,
	claim_value         text not null,
	unique (normalized_username, claim_type, claim_value)
);
`

var _ Store = (*PostgresStore)(nil)

// PostgresStore implements Store on PostgreSQL through database/sql and the
// pgx driver.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres opens a pooled connection for dsn and verifies it.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return NewPostgresStore(db), nil
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate applies Schema. It is idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrate credential store: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByName(ctx context.Context, username string) (*Identity, error) {
	key := NormalizeUsername(username)
	row := s.db.QueryRowContext(ctx,
		`select username, full_name, password_hash, created_at from users where normalized_username=$1`, key)

	var u Identity
	if err := row.Scan(&u.Username, &u.FullName, &u.PasswordHash, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, unavailable(err)
	}

	claims, err := s.claims(ctx, key)
	if err != nil {
		return nil, err
	}
	u.Claims = claims
	return &u, nil
}

func (s *PostgresStore) VerifyPassword(ctx context.Context, username, password string) (*Identity, error) {
	u, err := s.FindByName(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, rejectUnknownUser(password)
		}
		return nil, err
	}
	if err := VerifyPassword(u.PasswordHash, password); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *PostgresStore) ListClaims(ctx context.Context, username string) (Claims, error) {
	key := NormalizeUsername(username)
	if err := s.ensureUser(ctx, key); err != nil {
		return nil, err
	}
	return s.claims(ctx, key)
}

func (s *PostgresStore) Create(ctx context.Context, id Identity, password string, claims ...Claim) error {
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable(err)
	}
	defer tx.Rollback() //nolint:errcheck

	key := NormalizeUsername(id.Username)
	if _, err := tx.ExecContext(ctx,
		`insert into users(normalized_username, username, full_name, password_hash) values($1,$2,$3,$4)`,
		key, id.Username, id.FullName, hash,
	); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrUserExists
		}
		return unavailable(err)
	}

	for _, c := range claims {
		if _, err := tx.ExecContext(ctx,
			`insert into user_claims(normalized_username, claim_type, claim_value) values($1,$2,$3) on conflict do nothing`,
			key, c.Type, c.Value,
		); err != nil {
			return unavailable(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *PostgresStore) AddClaim(ctx context.Context, username string, claim Claim) error {
	key := NormalizeUsername(username)
	if err := s.ensureUser(ctx, key); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`insert into user_claims(normalized_username, claim_type, claim_value) values($1,$2,$3) on conflict do nothing`,
		key, claim.Type, claim.Value,
	)
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *PostgresStore) RemoveClaim(ctx context.Context, username string, claim Claim) error {
	key := NormalizeUsername(username)
	if err := s.ensureUser(ctx, key); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`delete from user_claims where normalized_username=$1 and claim_type=$2 and claim_value=$3`,
		key, claim.Type, claim.Value,
	)
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) ensureUser(ctx context.Context, key string) error {
	var one int
	err := s.db.QueryRowContext(ctx, `select 1 from users where normalized_username=$1`, key).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUserNotFound
		}
		return unavailable(err)
	}
	return nil
}

func (s *PostgresStore) claims(ctx context.Context, key string) (Claims, error) {
	rows, err := s.db.QueryContext(ctx,
		`select claim_type, claim_value from user_claims where normalized_username=$1 order by id`, key)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	var claims Claims
	for rows.Next() {
		var c Claim
		if err := rows.Scan(&c.Type, &c.Value); err != nil {
			return nil, unavailable(err)
		}
		claims = append(claims, c)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return claims, nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}
