package sqlstore

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/goliatone/go-recipe-query/auth"
)

func (s *Store) SignUp(ctx context.Context, in auth.SignUpInput) (auth.Session, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.passwordCost)
	if err != nil {
		return auth.Session{}, fmt.Errorf("hash password: %w", err)
	}

	row := &userRow{
		ID:           uuid.NewString(),
		Email:        normalizeEmail(in.Email),
		DisplayName:  strings.TrimSpace(in.DisplayName),
		PasswordHash: hash,
		CreatedAt:    s.clock.Now().UTC(),
	}
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return auth.Session{}, auth.ErrEmailTaken
		}
		return auth.Session{}, fmt.Errorf("create user: %w", err)
	}
	return s.issue(ctx, row.user())
}

func (s *Store) SignIn(ctx context.Context, in auth.SignInInput) (auth.Session, error) {
	row := new(userRow)
	err := s.db.NewSelect().Model(row).Where("u.email = ?", normalizeEmail(in.Email)).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Session{}, auth.ErrInvalidCredentials
	}
	if err != nil {
		return auth.Session{}, fmt.Errorf("find user: %w", err)
	}
	if bcrypt.CompareHashAndPassword(row.PasswordHash, []byte(in.Password)) != nil {
		return auth.Session{}, auth.ErrInvalidCredentials
	}
	return s.issue(ctx, row.user())
}

func (s *Store) SignOut(ctx context.Context, accessToken string) error {
	_, err := s.db.NewDelete().
		Model((*sessionRow)(nil)).
		Where("token_hash = ?", digest(accessToken)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, accessToken string) (auth.User, error) {
	sess := new(sessionRow)
	err := s.db.NewSelect().Model(sess).Where("ss.token_hash = ?", digest(accessToken)).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, auth.ErrNotAuthenticated
	}
	if err != nil {
		return auth.User{}, fmt.Errorf("find session: %w", err)
	}
	if !s.clock.Now().Before(sess.ExpiresAt) {
		return auth.User{}, auth.ErrNotAuthenticated
	}

	row := new(userRow)
	err = s.db.NewSelect().Model(row).Where("u.id = ?", sess.UserID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, auth.ErrNotAuthenticated
	}
	if err != nil {
		return auth.User{}, fmt.Errorf("find user: %w", err)
	}
	return row.user(), nil
}

// PurgeSessions deletes expired sessions and reports how many were removed.
func (s *Store) PurgeSessions(ctx context.Context) (int64, error) {
	res, err := s.db.NewDelete().
		Model((*sessionRow)(nil)).
		Where("expires_at <= ?", s.clock.Now().UTC()).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) issue(ctx context.Context, u auth.User) (auth.Session, error) {
	sess := auth.Session{
		AccessToken:  uuid.NewString(),
		RefreshToken: uuid.NewString(),
		ExpiresAt:    s.clock.Now().Add(s.sessionTTL).UTC(),
		User:         u,
	}
	row := &sessionRow{
		TokenHash:   digest(sess.AccessToken),
		RefreshHash: digest(sess.RefreshToken),
		UserID:      u.ID,
		ExpiresAt:   sess.ExpiresAt,
	}
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return auth.Session{}, fmt.Errorf("issue session: %w", err)
	}
	return sess, nil
}

func digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
