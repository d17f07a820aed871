package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"fleetshare.app/cloud/internal/logger"
	"fleetshare.app/cloud/models"
)

type SQLiteStorage struct {
	db   *sql.DB
	path string
}

func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps :memory: databases shared and avoids
	// SQLITE_BUSY between writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	storage := &SQLiteStorage{
		db:   db,
		path: path,
	}

	if err := storage.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return storage, nil
}

const organizationColumns = `id, name, plan, subscription_status, trial_ends_at, stripe_customer_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrganization(row rowScanner) (*models.Organization, error) {
	var (
		org              models.Organization
		status           sql.NullString
		trialEndsAt      sql.NullTime
		stripeCustomerID sql.NullString
	)
	err := row.Scan(
		&org.ID,
		&org.Name,
		&org.Plan,
		&status,
		&trialEndsAt,
		&stripeCustomerID,
		&org.CreatedAt,
		&org.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	org.SubscriptionStatus = models.SubscriptionStatus(status.String)
	org.StripeCustomerID = stripeCustomerID.String
	if trialEndsAt.Valid {
		ends := trialEndsAt.Time.UTC()
		org.TrialEndsAt = &ends
	}
	return &org, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func (s *SQLiteStorage) GetOrganization(ctx context.Context, id string) (*models.Organization, error) {
	query := `SELECT ` + organizationColumns + ` FROM organizations WHERE id = ?`

	org, err := scanOrganization(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return org, nil
}

func (s *SQLiteStorage) FindOrganizationByStripeCustomer(ctx context.Context, customerID string) (*models.Organization, error) {
	if customerID == "" {
		return nil, nil
	}
	query := `SELECT ` + organizationColumns + ` FROM organizations WHERE stripe_customer_id = ?`

	org, err := scanOrganization(s.db.QueryRowContext(ctx, query, customerID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find organization by customer: %w", err)
	}
	return org, nil
}

func (s *SQLiteStorage) SaveOrganization(ctx context.Context, org *models.Organization) error {
	query := `
		INSERT INTO organizations (` + organizationColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			plan = excluded.plan,
			subscription_status = excluded.subscription_status,
			trial_ends_at = excluded.trial_ends_at,
			stripe_customer_id = excluded.stripe_customer_id,
			updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		org.ID,
		org.Name,
		org.Plan,
		nullString(string(org.SubscriptionStatus)),
		nullTime(org.TrialEndsAt),
		nullString(org.StripeCustomerID),
		org.CreatedAt.UTC(),
		org.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save organization: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) SetStripeCustomerID(ctx context.Context, orgID, customerID string) (bool, error) {
	query := `
		UPDATE organizations
		SET stripe_customer_id = ?, updated_at = ?
		WHERE id = ? AND (stripe_customer_id IS NULL OR stripe_customer_id = '')`

	result, err := s.db.ExecContext(ctx, query, customerID, time.Now().UTC(), orgID)
	if err != nil {
		return false, fmt.Errorf("failed to set stripe customer: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStorage) ListTrialingOrganizations(ctx context.Context) ([]*models.Organization, error) {
	query := `SELECT ` + organizationColumns + ` FROM organizations WHERE subscription_status = ? ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, models.StatusTrialing)
	if err != nil {
		return nil, fmt.Errorf("failed to query trialing organizations: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			logger.Error("Failed to close rows", map[string]interface{}{"error": err.Error()})
		}
	}()

	var orgs []*models.Organization
	for rows.Next() {
		org, err := scanOrganization(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		orgs = append(orgs, org)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating organizations: %w", err)
	}
	return orgs, nil
}

func (s *SQLiteStorage) ExpireTrials(ctx context.Context, now time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	now = now.UTC()
	result, err := tx.ExecContext(ctx, `
		UPDATE organizations
		SET plan = ?, subscription_status = NULL, trial_ends_at = NULL, updated_at = ?
		WHERE subscription_status = ? AND trial_ends_at IS NOT NULL AND trial_ends_at < ?`,
		models.PlanFree, now, models.StatusTrialing, now)
	if err != nil {
		return 0, fmt.Errorf("error expiring trials: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("error reading affected rows: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("error committing transaction: %w", err)
	}
	return affected, nil
}

func (s *SQLiteStorage) GetUser(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT id, email, name, created_at FROM users WHERE id = ?`

	var user models.User
	err := s.db.QueryRowContext(ctx, query, id).Scan(&user.ID, &user.Email, &user.Name, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func (s *SQLiteStorage) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT id, email, name, created_at FROM users WHERE email = ?`

	var user models.User
	err := s.db.QueryRowContext(ctx, query, email).Scan(&user.ID, &user.Email, &user.Name, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &user, nil
}

func (s *SQLiteStorage) SaveUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, email, name, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET email = excluded.email, name = excluded.name`

	_, err := s.db.ExecContext(ctx, query, user.ID, user.Email, user.Name, user.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) GetMember(ctx context.Context, orgID, userID string) (*models.Member, error) {
	query := `SELECT organization_id, user_id, role, created_at FROM members WHERE organization_id = ? AND user_id = ?`

	var member models.Member
	err := s.db.QueryRowContext(ctx, query, orgID, userID).Scan(
		&member.OrganizationID,
		&member.UserID,
		&member.Role,
		&member.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return &member, nil
}

func (s *SQLiteStorage) SaveMember(ctx context.Context, member *models.Member) error {
	query := `
		INSERT INTO members (organization_id, user_id, role, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(organization_id, user_id) DO UPDATE SET role = excluded.role`

	_, err := s.db.ExecContext(ctx, query, member.OrganizationID, member.UserID, member.Role, member.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save member: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) CountMembers(ctx context.Context, orgID string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM members WHERE organization_id = ?`, orgID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count members: %w", err)
	}
	return count, nil
}

func (s *SQLiteStorage) ListOwners(ctx context.Context, orgID string) ([]*models.User, error) {
	query := `
		SELECT u.id, u.email, u.name, u.created_at
		FROM users u
		JOIN members m ON m.user_id = u.id
		WHERE m.organization_id = ? AND m.role = ?
		ORDER BY u.email`

	rows, err := s.db.QueryContext(ctx, query, orgID, models.RoleOwner)
	if err != nil {
		return nil, fmt.Errorf("failed to query owners: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			logger.Error("Failed to close rows", map[string]interface{}{"error": err.Error()})
		}
	}()

	var owners []*models.User
	for rows.Next() {
		var user models.User
		if err := rows.Scan(&user.ID, &user.Email, &user.Name, &user.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan owner: %w", err)
		}
		owners = append(owners, &user)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating owners: %w", err)
	}
	return owners, nil
}

func (s *SQLiteStorage) SaveAircraft(ctx context.Context, aircraft *models.Aircraft) error {
	query := `
		INSERT INTO aircraft (id, organization_id, registration, model, created_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET registration = excluded.registration, model = excluded.model`

	_, err := s.db.ExecContext(ctx, query,
		aircraft.ID,
		aircraft.OrganizationID,
		aircraft.Registration,
		aircraft.Model,
		aircraft.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save aircraft: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) CountAircraft(ctx context.Context, orgID string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM aircraft WHERE organization_id = ?`, orgID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count aircraft: %w", err)
	}
	return count, nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
