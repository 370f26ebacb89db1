//go:build sqlite
// +build sqlite

package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"lastro/internal/broker"
	logx "lastro/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger

	retentionDays int
	opCount       atomic.Uint64
	pruneEvery    uint64
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	retention := cfg.LedgerRetentionDays
	if retention <= 0 {
		retention = 2
	}
	st := &sqliteStore{db: db, log: log, retentionDays: retention, pruneEvery: 200}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) GetBroker(ctx context.Context, id string) (*broker.Broker, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, phone, email, agency, active, prefs, registered_at FROM brokers WHERE id = ?`, id)
	var b broker.Broker
	var active int
	var prefs, email, agency sql.NullString
	var registered string
	if err := row.Scan(&b.ID, &b.Name, &b.Phone, &email, &agency, &active, &prefs, &registered); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	b.Email = email.String
	b.Agency = agency.String
	b.Active = active != 0
	b.RegisteredAt, _ = time.Parse(time.RFC3339Nano, registered)
	if prefs.Valid && prefs.String != "" {
		var p broker.Preferences
		if err := json.Unmarshal([]byte(prefs.String), &p); err == nil {
			b.Prefs = &p
		}
	}
	return &b, nil
}

func (s *sqliteStore) SaveBroker(ctx context.Context, b broker.Broker) error {
	var prefs any
	if b.Prefs != nil {
		j, err := json.Marshal(b.Prefs)
		if err != nil {
			return err
		}
		prefs = string(j)
	}
	if b.RegisteredAt.IsZero() {
		b.RegisteredAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO brokers(id, name, phone, email, agency, active, prefs, registered_at)
		 VALUES(?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   name=excluded.name, phone=excluded.phone, email=excluded.email,
		   agency=excluded.agency, active=excluded.active, prefs=excluded.prefs`,
		b.ID, b.Name, b.Phone, nullStr(b.Email), nullStr(b.Agency), boolInt(b.Active),
		prefs, b.RegisteredAt.Format(time.RFC3339Nano))
	return err
}

func (s *sqliteStore) ListActiveBrokers(ctx context.Context) ([]broker.Broker, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM brokers WHERE active = 1 ORDER BY id`)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]broker.Broker, 0, len(ids))
	for _, id := range ids {
		b, err := s.GetBroker(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, nil
}

func (s *sqliteStore) GetLead(ctx context.Context, id string) (*broker.Lead, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, broker_id, name, phone, source, first_contact, last_inter, search, interactions, score, status, next_step
		 FROM leads WHERE id = ?`, id)
	l, err := scanLead(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (s *sqliteStore) SaveLead(ctx context.Context, l broker.Lead) error {
	search, err := json.Marshal(l.Search)
	if err != nil {
		return err
	}
	inter, err := json.Marshal(l.Interactions)
	if err != nil {
		return err
	}
	var lastInter any
	if !l.LastInteractionAt.IsZero() {
		lastInter = l.LastInteractionAt.Format(time.RFC3339Nano)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO leads(id, broker_id, name, phone, source, first_contact, last_inter, search, interactions, score, status, next_step)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   broker_id=excluded.broker_id, name=excluded.name, phone=excluded.phone,
		   source=excluded.source, last_inter=excluded.last_inter, search=excluded.search,
		   interactions=excluded.interactions, score=excluded.score,
		   status=excluded.status, next_step=excluded.next_step`,
		l.ID, l.BrokerID, l.Name, nullStr(l.Phone), nullStr(l.Source),
		l.FirstContactAt.Format(time.RFC3339Nano), lastInter,
		string(search), string(inter), l.Score, string(l.Status), nullStr(l.NextStep))
	return err
}

func (s *sqliteStore) LeadsByBroker(ctx context.Context, brokerID string) ([]broker.Lead, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, broker_id, name, phone, source, first_contact, last_inter, search, interactions, score, status, next_step
		 FROM leads WHERE broker_id = ? ORDER BY id`, brokerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []broker.Lead
	for rows.Next() {
		l, err := scanLead(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

func scanLead(scan func(...any) error) (*broker.Lead, error) {
	var l broker.Lead
	var phone, source, lastInter, search, inter, nextStep sql.NullString
	var first, status string
	if err := scan(&l.ID, &l.BrokerID, &l.Name, &phone, &source, &first, &lastInter,
		&search, &inter, &l.Score, &status, &nextStep); err != nil {
		return nil, err
	}
	l.Phone = phone.String
	l.Source = source.String
	l.NextStep = nextStep.String
	l.Status = broker.LeadStatus(status)
	l.FirstContactAt, _ = time.Parse(time.RFC3339Nano, first)
	if lastInter.Valid {
		l.LastInteractionAt, _ = time.Parse(time.RFC3339Nano, lastInter.String)
	}
	if search.Valid {
		_ = json.Unmarshal([]byte(search.String), &l.Search)
	}
	if inter.Valid {
		_ = json.Unmarshal([]byte(inter.String), &l.Interactions)
	}
	return &l, nil
}

func (s *sqliteStore) AddInboxMessage(ctx context.Context, brokerID string, m broker.InboxMessage) error {
	if m.At.IsZero() {
		m.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO inbox(broker_id, sender, name, content, at, lead_id, urgent) VALUES(?,?,?,?,?,?,?)`,
		brokerID, m.From, nullStr(m.Name), nullStr(m.Content),
		m.At.Format(time.RFC3339Nano), nullStr(m.LeadID), boolInt(m.UrgentHint))
	return err
}

func (s *sqliteStore) ConsumeInbox(ctx context.Context, brokerID string) ([]broker.InboxMessage, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT sender, name, content, at, lead_id, urgent FROM inbox WHERE broker_id = ? ORDER BY seq`, brokerID)
	if err != nil {
		return nil, err
	}
	var out []broker.InboxMessage
	for rows.Next() {
		var m broker.InboxMessage
		var name, content, leadID sql.NullString
		var at string
		var urgent int
		if err := rows.Scan(&m.From, &name, &content, &at, &leadID, &urgent); err != nil {
			rows.Close()
			return nil, err
		}
		m.Name = name.String
		m.Content = content.String
		m.LeadID = leadID.String
		m.UrgentHint = urgent != 0
		m.At, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM inbox WHERE broker_id = ?`, brokerID); err != nil {
		return nil, err
	}
	return out, tx.Commit()
}

func (s *sqliteStore) AddPortalLead(ctx context.Context, l broker.Lead) error {
	if err := s.SaveLead(ctx, l); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO portal_arrivals(broker_id, lead_id) VALUES(?,?)`, l.BrokerID, l.ID)
	return err
}

func (s *sqliteStore) ConsumePortalLeads(ctx context.Context, brokerID string) ([]broker.Lead, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT lead_id FROM portal_arrivals WHERE broker_id = ? ORDER BY seq`, brokerID)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM portal_arrivals WHERE broker_id = ?`, brokerID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	out := make([]broker.Lead, 0, len(ids))
	for _, id := range ids {
		l, err := s.GetLead(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, *l)
	}
	return out, nil
}

func (s *sqliteStore) SaveAppointment(ctx context.Context, a broker.Appointment) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO appointments(id, broker_id, lead_id, lead_name, listing, at)
		 VALUES(?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET lead_id=excluded.lead_id, lead_name=excluded.lead_name,
		   listing=excluded.listing, at=excluded.at`,
		a.ID, a.BrokerID, nullStr(a.LeadID), nullStr(a.LeadName), nullStr(a.Listing),
		a.At.Format(time.RFC3339Nano))
	return err
}

func (s *sqliteStore) Appointments(ctx context.Context, brokerID string, from, to time.Time) ([]broker.Appointment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, broker_id, lead_id, lead_name, listing, at FROM appointments
		 WHERE broker_id = ? AND at >= ? AND at < ? ORDER BY at`,
		brokerID, from.Format(time.RFC3339Nano), to.Format(time.RFC3339Nano))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []broker.Appointment
	for rows.Next() {
		var a broker.Appointment
		var leadID, leadName, listing sql.NullString
		var at string
		if err := rows.Scan(&a.ID, &a.BrokerID, &leadID, &leadName, &listing, &at); err != nil {
			return nil, err
		}
		a.LeadID = leadID.String
		a.LeadName = leadName.String
		a.Listing = listing.String
		a.At, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *sqliteStore) SaveListing(ctx context.Context, l broker.Listing) error {
	// Price change detection happens here so ConsumeListingChanges stays a read.
	row := s.db.QueryRowContext(ctx, `SELECT price FROM listings WHERE id = ?`, l.ID)
	var prev float64
	err := row.Scan(&prev)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// new listing, no change to record
	case err != nil:
		return err
	case prev != l.Price:
		l.PrevPrice = prev
		if l.ChangedAt.IsZero() {
			l.ChangedAt = time.Now()
		}
	}

	var changedAt any
	if !l.ChangedAt.IsZero() {
		changedAt = l.ChangedAt.Format(time.RFC3339Nano)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO listings(id, broker_id, address, price, prev_price, changed_at)
		 VALUES(?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET broker_id=excluded.broker_id, address=excluded.address,
		   price=excluded.price, prev_price=excluded.prev_price, changed_at=excluded.changed_at`,
		l.ID, l.BrokerID, nullStr(l.Address), l.Price, l.PrevPrice, changedAt)
	return err
}

func (s *sqliteStore) ConsumeListingChanges(ctx context.Context, brokerID string) ([]broker.Listing, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT id, broker_id, address, price, prev_price, changed_at FROM listings
		 WHERE broker_id = ? AND prev_price != 0 ORDER BY id`, brokerID)
	if err != nil {
		return nil, err
	}
	var out []broker.Listing
	for rows.Next() {
		var l broker.Listing
		var address, changedAt sql.NullString
		if err := rows.Scan(&l.ID, &l.BrokerID, &address, &l.Price, &l.PrevPrice, &changedAt); err != nil {
			rows.Close()
			return nil, err
		}
		l.Address = address.String
		if changedAt.Valid {
			l.ChangedAt, _ = time.Parse(time.RFC3339Nano, changedAt.String)
		}
		out = append(out, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE listings SET prev_price = 0 WHERE broker_id = ?`, brokerID); err != nil {
		return nil, err
	}
	return out, tx.Commit()
}

func (s *sqliteStore) AppendLedger(ctx context.Context, brokerID, date string) (int, error) {
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO send_ledger(broker_id, date, count) VALUES(?,?,1)
		 ON CONFLICT(broker_id, date) DO UPDATE SET count = count + 1
		 RETURNING count`, brokerID, date)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	if s.opCount.Add(1)%s.pruneEvery == 0 {
		pctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		s.pruneLedger(pctx, date)
		cancel()
	}
	return count, nil
}

func (s *sqliteStore) ReadLedger(ctx context.Context, brokerID, date string) (int, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT count FROM send_ledger WHERE broker_id = ? AND date = ?`, brokerID, date)
	var count int
	if err := row.Scan(&count); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return count, nil
}

func (s *sqliteStore) pruneLedger(ctx context.Context, today string) {
	t, err := time.Parse(LedgerDate, today)
	if err != nil {
		return
	}
	floor := DateKey(t.AddDate(0, 0, -(s.retentionDays - 1)))
	if _, err := s.db.ExecContext(ctx, `DELETE FROM send_ledger WHERE date < ?`, floor); err != nil {
		s.log.Debug("ledger prune failed", logx.Err(err))
	}
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
