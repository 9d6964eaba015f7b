package pgstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "github.com/lib/pq"

	"github.com/davidahmann/gatelog/internal/audit"
	"github.com/davidahmann/gatelog/pkg/types"
)

// Store persists the audit chain in Postgres.
type Store struct {
	db *sql.DB
}

func OpenPostgres(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return New(db), nil
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Migrate() error {
	return audit.Migrate(s.db, audit.DBPostgres)
}

func (s *Store) Append(event types.AuditEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	var resourceType, resourceID *string
	if event.Resource != nil {
		resourceType = &event.Resource.Type
		resourceID = &event.Resource.ID
	}

	_, err = s.db.Exec(`INSERT INTO audit_events(seq, event_id, ts, event_type, actor_id, actor_type, action, resource_type, resource_id, result, has_violations, previous_hash, hash, body_json)
VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		event.Sequence,
		event.ID,
		event.Timestamp,
		event.EventType,
		event.Actor.ID,
		string(event.Actor.Type),
		event.Action,
		resourceType,
		resourceID,
		string(event.Result),
		len(event.Compliance.Violations) > 0,
		event.PreviousHash,
		event.Hash,
		string(body),
	)
	return err
}

func (s *Store) Get(id string) (types.AuditEvent, bool) {
	row := s.db.QueryRow(`SELECT body_json FROM audit_events WHERE event_id = $1`, id)
	return scanEvent(row)
}

func (s *Store) Last() (types.AuditEvent, bool) {
	row := s.db.QueryRow(`SELECT body_json FROM audit_events ORDER BY seq DESC LIMIT 1`)
	return scanEvent(row)
}

func (s *Store) List() ([]types.AuditEvent, error) {
	rows, err := s.db.Query(`SELECT body_json FROM audit_events ORDER BY seq ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows, audit.Filter{})
}

func (s *Store) Query(filter audit.Filter) ([]types.AuditEvent, error) {
	where, args := buildWhere(filter)
	query := `SELECT body_json FROM audit_events`
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY seq DESC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows, filter)
}

func (s *Store) Len() (int, error) {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM audit_events`).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// Time-range constraints are applied in Go by Filter.Matches, matching the
// sqlite store.
func buildWhere(filter audit.Filter) (string, []any) {
	clauses := []string{}
	args := []any{}
	next := func() string { return fmt.Sprintf("$%d", len(args)+1) }

	if len(filter.EventTypes) > 0 {
		placeholders := make([]string, 0, len(filter.EventTypes))
		for _, eventType := range filter.EventTypes {
			args = append(args, eventType)
			placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
		}
		clauses = append(clauses, "event_type IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.ActorID != "" {
		clauses = append(clauses, "actor_id = "+next())
		args = append(args, filter.ActorID)
	}
	if filter.ResourceType != "" {
		clauses = append(clauses, "resource_type = "+next())
		args = append(args, filter.ResourceType)
	}
	if filter.ResourceID != "" {
		clauses = append(clauses, "resource_id = "+next())
		args = append(args, filter.ResourceID)
	}
	if filter.Result != "" {
		clauses = append(clauses, "result = "+next())
		args = append(args, string(filter.Result))
	}
	if filter.HasViolations != nil {
		clauses = append(clauses, "has_violations = "+next())
		args = append(args, *filter.HasViolations)
	}

	return strings.Join(clauses, " AND "), args
}

func collectEvents(rows *sql.Rows, filter audit.Filter) ([]types.AuditEvent, error) {
	out := []types.AuditEvent{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var event types.AuditEvent
		if err := json.Unmarshal([]byte(body), &event); err != nil {
			return nil, fmt.Errorf("unmarshal audit event: %w", err)
		}
		if !filter.Matches(event) {
			continue
		}
		out = append(out, event)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, rows.Err()
}

func scanEvent(row *sql.Row) (types.AuditEvent, bool) {
	var body string
	if err := row.Scan(&body); err != nil {
		return types.AuditEvent{}, false
	}
	var event types.AuditEvent
	if err := json.Unmarshal([]byte(body), &event); err != nil {
		return types.AuditEvent{}, false
	}
	return event, true
}
