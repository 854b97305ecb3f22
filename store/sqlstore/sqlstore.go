/*
Package sqlstore provides a SQL-backed implementation of campaign.Store.

PURPOSE:
  Persists campaigns, donations, follower edges and reconciliation runs in
  SQLite (default, single file or :memory:) or PostgreSQL. Queries are
  written once with `?` placeholders and rebound per driver by sqlx.

KEY TABLES:
  campaigns:          One row per campaign; status is the only column the
                      reconciler writes
  donations:          One row per donation; amount is never updated
  campaign_followers: Labeled edge, UNIQUE(account_id, campaign_id)
  reconciliation_runs: Audit trail of reconciler ticks

SINGLE-ROW ATOMICITY:
  - UpdateCampaignStatus is `UPDATE ... WHERE id = ? AND status = ?`;
    zero affected rows means someone else moved the campaign first.
  - SaveDonation is an upsert that only touches status on conflict.

TIMESTAMPS:
  Stored as fixed-width UTC text (RFC 3339 with nanoseconds) so that
  lexical order equals chronological order in both dialects.

USAGE:
  store, err := sqlstore.Open("sqlite3", "./data/campaigns.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool with versioned migrations.

SEE ALSO:
  - campaign/store.go: Interface definitions
  - campaign/store/memory.go: In-memory implementation for testing
*/
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/campaign-engine/campaign"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// timeLayout is fixed width; time.RFC3339Nano drops trailing zeros.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store implements campaign.Store and campaign.RunStore.
type Store struct {
	db *sqlx.DB
}

var (
	_ campaign.Store    = (*Store)(nil)
	_ campaign.RunStore = (*Store)(nil)
)

// Open connects to the database and migrates the schema.
// For sqlite3, use ":memory:" for an in-memory database.
func Open(driver, dsn string) (*Store, error) {
	if driver == DriverSQLite && !strings.Contains(dsn, "?") {
		dsn += "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"
	}
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == DriverSQLite && strings.HasPrefix(dsn, ":memory:") {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	store, err := New(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// New wraps an existing connection and migrates the schema.
func New(db *sqlx.DB) (*Store, error) {
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS campaigns (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		image_url TEXT NOT NULL DEFAULT '',
		goal BIGINT NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_campaigns_status ON campaigns(status)`,

	`CREATE TABLE IF NOT EXISTS donations (
		id TEXT PRIMARY KEY,
		campaign_id TEXT NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
		donor_id TEXT,
		amount BIGINT NOT NULL CHECK (amount > 0),
		donated_at TEXT NOT NULL,
		status TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_donations_campaign_status ON donations(campaign_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_donations_donated_at ON donations(donated_at)`,

	`CREATE TABLE IF NOT EXISTS campaign_followers (
		account_id TEXT NOT NULL,
		campaign_id TEXT NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
		address TEXT NOT NULL DEFAULT '',
		receive_notifications BOOLEAN NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE (account_id, campaign_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_followers_campaign ON campaign_followers(campaign_id)`,

	`CREATE TABLE IF NOT EXISTS reconciliation_runs (
		id TEXT PRIMARY KEY,
		trigger_source TEXT NOT NULL,
		started_at TEXT NOT NULL,
		completed_at TEXT NOT NULL DEFAULT '',
		evaluated INTEGER NOT NULL DEFAULT 0,
		transitioned INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON reconciliation_runs(started_at)`,
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// ROW TYPES
// =============================================================================

type campaignRow struct {
	ID          string `db:"id"`
	Name        string `db:"name"`
	Description string `db:"description"`
	ImageURL    string `db:"image_url"`
	Goal        int64  `db:"goal"`
	StartTime   string `db:"start_time"`
	EndTime     string `db:"end_time"`
	Status      string `db:"status"`
	CreatedAt   string `db:"created_at"`
	UpdatedAt   string `db:"updated_at"`
}

func (r campaignRow) toCampaign() campaign.Campaign {
	return campaign.Campaign{
		ID:          campaign.CampaignID(r.ID),
		Name:        r.Name,
		Description: r.Description,
		ImageURL:    r.ImageURL,
		Goal:        r.Goal,
		StartTime:   parseTime(r.StartTime),
		EndTime:     parseTime(r.EndTime),
		Status:      campaign.Status(r.Status),
		CreatedAt:   parseTime(r.CreatedAt),
		UpdatedAt:   parseTime(r.UpdatedAt),
	}
}

type donationRow struct {
	ID         string         `db:"id"`
	CampaignID string         `db:"campaign_id"`
	DonorID    sql.NullString `db:"donor_id"`
	Amount     int64          `db:"amount"`
	DonatedAt  string         `db:"donated_at"`
	Status     string         `db:"status"`
}

func (r donationRow) toDonation() campaign.Donation {
	d := campaign.Donation{
		ID:         campaign.DonationID(r.ID),
		CampaignID: campaign.CampaignID(r.CampaignID),
		Amount:     r.Amount,
		DonatedAt:  parseTime(r.DonatedAt),
		Status:     campaign.DonationStatus(r.Status),
	}
	if r.DonorID.Valid {
		donor := campaign.AccountID(r.DonorID.String)
		d.DonorID = &donor
	}
	return d
}

type followerRow struct {
	AccountID            string `db:"account_id"`
	CampaignID           string `db:"campaign_id"`
	Address              string `db:"address"`
	ReceiveNotifications bool   `db:"receive_notifications"`
	CreatedAt            string `db:"created_at"`
}

type runRow struct {
	ID           string `db:"id"`
	Trigger      string `db:"trigger_source"`
	StartedAt    string `db:"started_at"`
	CompletedAt  string `db:"completed_at"`
	Evaluated    int    `db:"evaluated"`
	Transitioned int    `db:"transitioned"`
	Skipped      int    `db:"skipped"`
	Failed       int    `db:"failed"`
	Error        string `db:"error"`
}

// =============================================================================
// CAMPAIGNS
// =============================================================================

const campaignColumns = `id, name, description, image_url, goal, start_time, end_time, status, created_at, updated_at`

func (s *Store) ListCampaigns(ctx context.Context) ([]campaign.Campaign, error) {
	var rows []campaignRow
	query := s.db.Rebind(`SELECT ` + campaignColumns + ` FROM campaigns ORDER BY created_at, id`)
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	result := make([]campaign.Campaign, len(rows))
	for i, r := range rows {
		result[i] = r.toCampaign()
	}
	return result, nil
}

func (s *Store) GetCampaign(ctx context.Context, id campaign.CampaignID) (*campaign.Campaign, error) {
	var row campaignRow
	query := s.db.Rebind(`SELECT ` + campaignColumns + ` FROM campaigns WHERE id = ?`)
	err := s.db.GetContext(ctx, &row, query, string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, campaign.ErrCampaignNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign %s: %w", id, err)
	}
	c := row.toCampaign()
	return &c, nil
}

func (s *Store) SaveCampaign(ctx context.Context, c campaign.Campaign) error {
	query := s.db.Rebind(`
		INSERT INTO campaigns (` + campaignColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			image_url = excluded.image_url,
			goal = excluded.goal,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			updated_at = excluded.updated_at`)

	_, err := s.db.ExecContext(ctx, query,
		string(c.ID), c.Name, c.Description, c.ImageURL, c.Goal,
		formatTime(c.StartTime), formatTime(c.EndTime), string(c.Status),
		formatTime(c.CreatedAt), formatTime(c.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("save campaign %s: %w", c.ID, err)
	}
	return nil
}

func (s *Store) UpdateCampaignStatus(ctx context.Context, id campaign.CampaignID, from, to campaign.Status) error {
	query := s.db.Rebind(`UPDATE campaigns SET status = ?, updated_at = ? WHERE id = ? AND status = ?`)
	res, err := s.db.ExecContext(ctx, query, string(to), formatTime(time.Now()), string(id), string(from))
	if err != nil {
		return fmt.Errorf("update campaign %s status: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update campaign %s status: %w", id, err)
	}
	if n == 1 {
		return nil
	}

	// Distinguish a missing campaign from a lost race.
	if _, err := s.GetCampaign(ctx, id); err != nil {
		return err
	}
	return campaign.ErrConcurrentModification
}

// DeleteCampaign removes a CREATED campaign with its donations and
// followers in one transaction. The campaign row goes first, conditional on
// status, so a concurrent CREATED -> OPEN makes the whole delete a no-op.
func (s *Store) DeleteCampaign(ctx context.Context, id campaign.CampaignID) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM campaigns WHERE id = ? AND status = ?`),
		string(id), string(campaign.StatusCreated))
	if err != nil {
		return fmt.Errorf("delete campaign %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete campaign %s: %w", id, err)
	}
	if n == 0 {
		var exists int
		err := tx.GetContext(ctx, &exists, tx.Rebind(`SELECT COUNT(*) FROM campaigns WHERE id = ?`), string(id))
		if err != nil {
			return fmt.Errorf("delete campaign %s: %w", id, err)
		}
		if exists == 0 {
			return campaign.ErrCampaignNotFound
		}
		return campaign.ErrCampaignNotDeletable
	}

	// ON DELETE CASCADE covers these when foreign keys are enforced.
	for _, stmt := range []string{
		`DELETE FROM donations WHERE campaign_id = ?`,
		`DELETE FROM campaign_followers WHERE campaign_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, tx.Rebind(stmt), string(id)); err != nil {
			return fmt.Errorf("delete campaign %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// =============================================================================
// DONATIONS
// =============================================================================

const donationColumns = `id, campaign_id, donor_id, amount, donated_at, status`

func (s *Store) ListDonations(ctx context.Context, campaignID campaign.CampaignID, exclude ...campaign.DonationStatus) ([]campaign.Donation, error) {
	query := `SELECT ` + donationColumns + ` FROM donations WHERE campaign_id = ?`
	args := []any{string(campaignID)}
	if len(exclude) > 0 {
		statuses := make([]string, len(exclude))
		for i, st := range exclude {
			statuses[i] = string(st)
		}
		q, inArgs, err := sqlx.In(` AND status NOT IN (?)`, statuses)
		if err != nil {
			return nil, fmt.Errorf("list donations: %w", err)
		}
		query += q
		args = append(args, inArgs...)
	}
	query += ` ORDER BY donated_at DESC, id`
	return s.queryDonations(ctx, query, args...)
}

func (s *Store) ListAllDonations(ctx context.Context) ([]campaign.Donation, error) {
	return s.queryDonations(ctx, `SELECT `+donationColumns+` FROM donations ORDER BY donated_at DESC, id`)
}

func (s *Store) queryDonations(ctx context.Context, query string, args ...any) ([]campaign.Donation, error) {
	var rows []donationRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list donations: %w", err)
	}
	result := make([]campaign.Donation, len(rows))
	for i, r := range rows {
		result[i] = r.toDonation()
	}
	return result, nil
}

func (s *Store) GetDonation(ctx context.Context, id campaign.DonationID) (*campaign.Donation, error) {
	var row donationRow
	query := s.db.Rebind(`SELECT ` + donationColumns + ` FROM donations WHERE id = ?`)
	err := s.db.GetContext(ctx, &row, query, string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, campaign.ErrDonationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get donation %s: %w", id, err)
	}
	d := row.toDonation()
	return &d, nil
}

// SaveDonation inserts d, or updates only the status of an existing row.
func (s *Store) SaveDonation(ctx context.Context, d campaign.Donation) error {
	var donor sql.NullString
	if d.DonorID != nil {
		donor = sql.NullString{String: string(*d.DonorID), Valid: true}
	}

	query := s.db.Rebind(`
		INSERT INTO donations (` + donationColumns + `)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET status = excluded.status`)

	_, err := s.db.ExecContext(ctx, query,
		string(d.ID), string(d.CampaignID), donor, d.Amount,
		formatTime(d.DonatedAt), string(d.Status),
	)
	if err != nil {
		if isForeignKeyError(err) {
			return campaign.ErrCampaignNotFound
		}
		return fmt.Errorf("save donation %s: %w", d.ID, err)
	}
	return nil
}

func (s *Store) UpdateDonationStatus(ctx context.Context, id campaign.DonationID, from, to campaign.DonationStatus) error {
	query := s.db.Rebind(`UPDATE donations SET status = ? WHERE id = ? AND status = ?`)
	res, err := s.db.ExecContext(ctx, query, string(to), string(id), string(from))
	if err != nil {
		return fmt.Errorf("update donation %s status: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update donation %s status: %w", id, err)
	}
	if n == 1 {
		return nil
	}
	if _, err := s.GetDonation(ctx, id); err != nil {
		return err
	}
	return campaign.ErrConcurrentModification
}

// =============================================================================
// FOLLOWERS
// =============================================================================

func (s *Store) SaveFollower(ctx context.Context, f campaign.Follower) error {
	query := s.db.Rebind(`
		INSERT INTO campaign_followers (account_id, campaign_id, address, receive_notifications, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (account_id, campaign_id) DO UPDATE SET
			address = excluded.address,
			receive_notifications = excluded.receive_notifications`)

	_, err := s.db.ExecContext(ctx, query,
		string(f.AccountID), string(f.CampaignID), f.Address, f.ReceiveNotifications, formatTime(f.CreatedAt),
	)
	if err != nil {
		if isForeignKeyError(err) {
			return campaign.ErrCampaignNotFound
		}
		return fmt.Errorf("save follower: %w", err)
	}
	return nil
}

func (s *Store) DeleteFollower(ctx context.Context, accountID campaign.AccountID, campaignID campaign.CampaignID) error {
	query := s.db.Rebind(`DELETE FROM campaign_followers WHERE account_id = ? AND campaign_id = ?`)
	if _, err := s.db.ExecContext(ctx, query, string(accountID), string(campaignID)); err != nil {
		return fmt.Errorf("delete follower: %w", err)
	}
	return nil
}

func (s *Store) ListFollowers(ctx context.Context, campaignID campaign.CampaignID) ([]campaign.Follower, error) {
	var rows []followerRow
	query := s.db.Rebind(`
		SELECT account_id, campaign_id, address, receive_notifications, created_at
		FROM campaign_followers WHERE campaign_id = ? ORDER BY account_id`)
	if err := s.db.SelectContext(ctx, &rows, query, string(campaignID)); err != nil {
		return nil, fmt.Errorf("list followers: %w", err)
	}
	result := make([]campaign.Follower, len(rows))
	for i, r := range rows {
		result[i] = campaign.Follower{
			AccountID:            campaign.AccountID(r.AccountID),
			CampaignID:           campaign.CampaignID(r.CampaignID),
			Address:              r.Address,
			ReceiveNotifications: r.ReceiveNotifications,
			CreatedAt:            parseTime(r.CreatedAt),
		}
	}
	return result, nil
}

// =============================================================================
// RECONCILIATION RUNS
// =============================================================================

func (s *Store) SaveRun(ctx context.Context, run campaign.ReconciliationRun) error {
	var completed string
	if !run.CompletedAt.IsZero() {
		completed = formatTime(run.CompletedAt)
	}

	query := s.db.Rebind(`
		INSERT INTO reconciliation_runs
			(id, trigger_source, started_at, completed_at, evaluated, transitioned, skipped, failed, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			completed_at = excluded.completed_at,
			evaluated = excluded.evaluated,
			transitioned = excluded.transitioned,
			skipped = excluded.skipped,
			failed = excluded.failed,
			error = excluded.error`)

	_, err := s.db.ExecContext(ctx, query,
		run.ID, run.Trigger, formatTime(run.StartedAt), completed,
		run.Evaluated, run.Transitioned, run.Skipped, run.Failed, run.Error,
	)
	if err != nil {
		return fmt.Errorf("save reconciliation run %s: %w", run.ID, err)
	}
	return nil
}

func (s *Store) ListRuns(ctx context.Context, limit int) ([]campaign.ReconciliationRun, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []runRow
	query := s.db.Rebind(`
		SELECT id, trigger_source, started_at, completed_at, evaluated, transitioned, skipped, failed, error
		FROM reconciliation_runs ORDER BY started_at DESC LIMIT ?`)
	if err := s.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("list reconciliation runs: %w", err)
	}
	result := make([]campaign.ReconciliationRun, len(rows))
	for i, r := range rows {
		result[i] = campaign.ReconciliationRun{
			ID:           r.ID,
			Trigger:      r.Trigger,
			StartedAt:    parseTime(r.StartedAt),
			Evaluated:    r.Evaluated,
			Transitioned: r.Transitioned,
			Skipped:      r.Skipped,
			Failed:       r.Failed,
			Error:        r.Error,
		}
		if r.CompletedAt != "" {
			result[i].CompletedAt = parseTime(r.CompletedAt)
		}
	}
	return result, nil
}

// Reset clears all data. For demos and tests.
func (s *Store) Reset(ctx context.Context) error {
	for _, table := range []string{"donations", "campaign_followers", "campaigns", "reconciliation_runs"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("reset %s: %w", table, err)
		}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t.UTC()
}

func isForeignKeyError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "foreign key")
}
