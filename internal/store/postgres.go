package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/edvin/panel/internal/core"
	"github.com/edvin/panel/internal/crypto"
	"github.com/edvin/panel/internal/model"
)

// DB is the subset of pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres stores records in the panel database.
type Postgres struct {
	db DB
	// secretKey seals certificate private keys when set.
	secretKey []byte
}

func NewPostgres(db DB) *Postgres {
	return &Postgres{db: db}
}

// WithSecretKey makes the store seal private keys with key. Rows written
// without a key stay readable.
func (p *Postgres) WithSecretKey(key []byte) *Postgres {
	p.secretKey = key
	return p
}

const sealedPrefix = "sealed:"

func (p *Postgres) sealKey(keyPEM string) (string, error) {
	if p.secretKey == nil || keyPEM == "" {
		return keyPEM, nil
	}
	enc, err := crypto.Encrypt([]byte(keyPEM), p.secretKey)
	if err != nil {
		return "", fmt.Errorf("seal private key: %w", err)
	}
	return sealedPrefix + enc, nil
}

func (p *Postgres) openKey(stored string) (string, error) {
	enc, sealed := strings.CutPrefix(stored, sealedPrefix)
	if !sealed {
		return stored, nil
	}
	if p.secretKey == nil {
		return "", errors.New("private key is sealed but no secret key is configured")
	}
	plain, err := crypto.Decrypt(enc, p.secretKey)
	if err != nil {
		return "", fmt.Errorf("open private key: %w", err)
	}
	return string(plain), nil
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

const certColumns = `id, domain, provider, issuer, email, issued_at, expires_at, auto_renew, cert_pem, key_pem, chain_pem, created_at, updated_at`

func (p *Postgres) scanCertificate(row pgx.Row) (model.Certificate, error) {
	var c model.Certificate
	err := row.Scan(&c.ID, &c.Domain, &c.Provider, &c.Issuer, &c.Email, &c.IssuedAt, &c.ExpiresAt,
		&c.AutoRenew, &c.CertPEM, &c.KeyPEM, &c.ChainPEM, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return c, err
	}
	c.KeyPEM, err = p.openKey(c.KeyPEM)
	return c, err
}

func (p *Postgres) ListCertificates(ctx context.Context) ([]model.Certificate, error) {
	rows, err := p.db.Query(ctx, `SELECT `+certColumns+` FROM certificates ORDER BY domain`)
	if err != nil {
		return nil, fmt.Errorf("list certificates: %w", err)
	}
	defer rows.Close()

	var certs []model.Certificate
	for rows.Next() {
		c, err := p.scanCertificate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan certificate: %w", err)
		}
		certs = append(certs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate certificates: %w", err)
	}
	return certs, nil
}

func (p *Postgres) GetCertificate(ctx context.Context, id string) (model.Certificate, error) {
	c, err := p.scanCertificate(p.db.QueryRow(ctx, `SELECT `+certColumns+` FROM certificates WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Certificate{}, core.Errorf(core.NotFound, "certificate %s not found", id)
	}
	if err != nil {
		return model.Certificate{}, fmt.Errorf("get certificate %s: %w", id, err)
	}
	return c, nil
}

func (p *Postgres) CreateCertificate(ctx context.Context, c model.Certificate) error {
	keyPEM, err := p.sealKey(c.KeyPEM)
	if err != nil {
		return err
	}
	_, err = p.db.Exec(ctx,
		`INSERT INTO certificates (`+certColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		c.ID, c.Domain, c.Provider, c.Issuer, c.Email, c.IssuedAt, c.ExpiresAt,
		c.AutoRenew, c.CertPEM, keyPEM, c.ChainPEM, c.CreatedAt, c.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return core.Errorf(core.AlreadyExists, "certificate for %s already exists", c.Domain)
	}
	if err != nil {
		return fmt.Errorf("insert certificate: %w", err)
	}
	return nil
}

func (p *Postgres) UpdateCertificate(ctx context.Context, c model.Certificate) error {
	keyPEM, err := p.sealKey(c.KeyPEM)
	if err != nil {
		return err
	}
	tag, err := p.db.Exec(ctx,
		`UPDATE certificates SET issuer = $1, email = $2, issued_at = $3, expires_at = $4, auto_renew = $5,
		 cert_pem = $6, key_pem = $7, chain_pem = $8, updated_at = $9 WHERE id = $10`,
		c.Issuer, c.Email, c.IssuedAt, c.ExpiresAt, c.AutoRenew,
		c.CertPEM, keyPEM, c.ChainPEM, c.UpdatedAt, c.ID,
	)
	if err != nil {
		return fmt.Errorf("update certificate %s: %w", c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return core.Errorf(core.NotFound, "certificate %s not found", c.ID)
	}
	return nil
}

func (p *Postgres) DeleteCertificate(ctx context.Context, id string) error {
	tag, err := p.db.Exec(ctx, `DELETE FROM certificates WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete certificate %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return core.Errorf(core.NotFound, "certificate %s not found", id)
	}
	return nil
}

const jobColumns = `id, name, schedule, command, type, enabled, last_run, last_status, next_run, created_at, updated_at`

func scanJob(row pgx.Row) (model.CronJob, error) {
	var j model.CronJob
	err := row.Scan(&j.ID, &j.Name, &j.Schedule, &j.Command, &j.Type, &j.Enabled,
		&j.LastRun, &j.LastStatus, &j.NextRun, &j.CreatedAt, &j.UpdatedAt)
	return j, err
}

func (p *Postgres) ListJobs(ctx context.Context) ([]model.CronJob, error) {
	rows, err := p.db.Query(ctx, `SELECT `+jobColumns+` FROM cron_jobs ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list cron jobs: %w", err)
	}
	defer rows.Close()

	var jobs []model.CronJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cron job: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cron jobs: %w", err)
	}
	return jobs, nil
}

func (p *Postgres) GetJob(ctx context.Context, id string) (model.CronJob, error) {
	j, err := scanJob(p.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM cron_jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.CronJob{}, core.Errorf(core.NotFound, "cron job %s not found", id)
	}
	if err != nil {
		return model.CronJob{}, fmt.Errorf("get cron job %s: %w", id, err)
	}
	return j, nil
}

func (p *Postgres) CreateJob(ctx context.Context, j model.CronJob) error {
	_, err := p.db.Exec(ctx,
		`INSERT INTO cron_jobs (`+jobColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		j.ID, j.Name, j.Schedule, j.Command, j.Type, j.Enabled,
		j.LastRun, j.LastStatus, j.NextRun, j.CreatedAt, j.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return core.Errorf(core.AlreadyExists, "cron job %s already exists", j.ID)
	}
	if err != nil {
		return fmt.Errorf("insert cron job: %w", err)
	}
	return nil
}

func (p *Postgres) UpdateJob(ctx context.Context, j model.CronJob) error {
	tag, err := p.db.Exec(ctx,
		`UPDATE cron_jobs SET name = $1, schedule = $2, command = $3, type = $4, enabled = $5,
		 last_run = $6, last_status = $7, next_run = $8, updated_at = $9 WHERE id = $10`,
		j.Name, j.Schedule, j.Command, j.Type, j.Enabled,
		j.LastRun, j.LastStatus, j.NextRun, j.UpdatedAt, j.ID,
	)
	if err != nil {
		return fmt.Errorf("update cron job %s: %w", j.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return core.Errorf(core.NotFound, "cron job %s not found", j.ID)
	}
	return nil
}

func (p *Postgres) DeleteJob(ctx context.Context, id string) error {
	tag, err := p.db.Exec(ctx, `DELETE FROM cron_jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete cron job %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return core.Errorf(core.NotFound, "cron job %s not found", id)
	}
	return nil
}

func (p *Postgres) RecordRun(ctx context.Context, run model.CronRun, keep int) error {
	_, err := p.db.Exec(ctx,
		`INSERT INTO cron_runs (id, job_id, trigger, started_at, finished_at, exit_code, status, output, timed_out)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		run.ID, run.JobID, run.Trigger, run.StartedAt, run.FinishedAt, run.ExitCode, run.Status, run.Output, run.TimedOut,
	)
	if err != nil {
		return fmt.Errorf("insert cron run for job %s: %w", run.JobID, err)
	}

	if keep > 0 {
		_, err = p.db.Exec(ctx,
			`DELETE FROM cron_runs WHERE job_id = $1 AND id NOT IN (
			   SELECT id FROM cron_runs WHERE job_id = $1 ORDER BY started_at DESC LIMIT $2)`,
			run.JobID, keep,
		)
		if err != nil {
			return fmt.Errorf("trim cron runs for job %s: %w", run.JobID, err)
		}
	}
	return nil
}

func (p *Postgres) Runs(ctx context.Context, jobID string) ([]model.CronRun, error) {
	rows, err := p.db.Query(ctx,
		`SELECT id, job_id, trigger, started_at, finished_at, exit_code, status, output, timed_out
		 FROM cron_runs WHERE job_id = $1 ORDER BY started_at DESC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list cron runs for job %s: %w", jobID, err)
	}
	defer rows.Close()

	var runs []model.CronRun
	for rows.Next() {
		var r model.CronRun
		if err := rows.Scan(&r.ID, &r.JobID, &r.Trigger, &r.StartedAt, &r.FinishedAt,
			&r.ExitCode, &r.Status, &r.Output, &r.TimedOut); err != nil {
			return nil, fmt.Errorf("scan cron run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cron runs: %w", err)
	}
	return runs, nil
}

func (p *Postgres) ListRules(ctx context.Context) ([]model.FirewallRule, error) {
	rows, err := p.db.Query(ctx,
		`SELECT id, position, port, protocol, source, action, description, enabled, created_at
		 FROM firewall_rules ORDER BY position, created_at`)
	if err != nil {
		return nil, fmt.Errorf("list firewall rules: %w", err)
	}
	defer rows.Close()

	var rules []model.FirewallRule
	for rows.Next() {
		var r model.FirewallRule
		if err := rows.Scan(&r.ID, &r.Position, &r.Port, &r.Protocol, &r.Source,
			&r.Action, &r.Description, &r.Enabled, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan firewall rule: %w", err)
		}
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate firewall rules: %w", err)
	}
	return rules, nil
}

// InsertRule shifts and inserts in one statement so a failure leaves the
// list untouched.
func (p *Postgres) InsertRule(ctx context.Context, r model.FirewallRule) error {
	_, err := p.db.Exec(ctx,
		`WITH n AS (SELECT count(*) + 1 AS last FROM firewall_rules),
		 pos AS (SELECT CASE WHEN $2 BETWEEN 1 AND n.last THEN $2 ELSE n.last END AS p FROM n),
		 shifted AS (UPDATE firewall_rules SET position = position + 1
		             WHERE position >= (SELECT p FROM pos))
		 INSERT INTO firewall_rules (id, position, port, protocol, source, action, description, enabled, created_at)
		 SELECT $1, pos.p, $3, $4, $5, $6, $7, $8, $9 FROM pos`,
		r.ID, r.Position, r.Port, r.Protocol, r.Source, r.Action, r.Description, r.Enabled, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert firewall rule: %w", err)
	}
	return nil
}

func (p *Postgres) DeleteRule(ctx context.Context, id string) error {
	var deleted int
	err := p.db.QueryRow(ctx,
		`WITH gone AS (DELETE FROM firewall_rules WHERE id = $1 RETURNING position),
		 shifted AS (UPDATE firewall_rules SET position = position - 1
		             WHERE position > (SELECT position FROM gone))
		 SELECT count(*) FROM gone`, id).Scan(&deleted)
	if err != nil {
		return fmt.Errorf("delete firewall rule %s: %w", id, err)
	}
	if deleted == 0 {
		return core.Errorf(core.NotFound, "firewall rule %s not found", id)
	}
	return nil
}

func (p *Postgres) AppendActivity(ctx context.Context, a model.Activity) error {
	meta, err := json.Marshal(a.Metadata)
	if err != nil {
		return fmt.Errorf("marshal activity metadata: %w", err)
	}
	if a.Metadata == nil {
		meta = []byte("{}")
	}
	_, err = p.db.Exec(ctx,
		`INSERT INTO activities (id, type, title, description, status, actor, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.Type, a.Title, a.Description, a.Status, a.Actor, meta, a.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

func (p *Postgres) ListActivity(ctx context.Context, limit int) ([]model.Activity, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.Query(ctx,
		`SELECT id, type, title, description, status, actor, metadata, created_at
		 FROM activities ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	var out []model.Activity
	for rows.Next() {
		var (
			a    model.Activity
			meta []byte
		)
		if err := rows.Scan(&a.ID, &a.Type, &a.Title, &a.Description, &a.Status, &a.Actor, &meta, &a.Timestamp); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &a.Metadata); err != nil {
				return nil, fmt.Errorf("decode activity metadata: %w", err)
			}
			if len(a.Metadata) == 0 {
				a.Metadata = nil
			}
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity: %w", err)
	}
	return out, nil
}
