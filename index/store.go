package index

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"dgmarket/core/events"
	"dgmarket/core/types"
)

// Store persists every marketplace event into a SQLite activity log so sale
// history survives restarts and can be queried over RPC. It satisfies
// events.Emitter and can be plugged straight into the engine.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// Activity is one recorded marketplace event.
type Activity struct {
	Sequence   int64             `json:"sequence"`
	OccurredAt int64             `json:"occurredAt"`
	Type       string            `json:"type"`
	Collection string            `json:"collection,omitempty"`
	AssetID    uint64            `json:"assetId,omitempty"`
	Attributes map[string]string `json:"attributes"`
}

// Filter narrows ListActivity results. Zero values match everything.
type Filter struct {
	Collection string
	AssetID    *uint64
	Type       string
	Limit      int
}

const defaultListLimit = 100

func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) init() error {
	schema := `CREATE TABLE IF NOT EXISTS activity (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        occurred_at INTEGER NOT NULL,
        type TEXT NOT NULL,
        collection TEXT,
        asset_id INTEGER,
        attributes BLOB NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_activity_asset ON activity(collection, asset_id);`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

type eventCarrier interface {
	Event() *types.Event
}

// Emit records the event. Storage failures are logged rather than propagated:
// the emitter runs after the state transition has already committed, so the
// transition must not be failed retroactively.
func (s *Store) Emit(evt events.Event) {
	if s == nil || evt == nil {
		return
	}
	carrier, ok := evt.(eventCarrier)
	if !ok {
		return
	}
	payload := carrier.Event()
	if payload == nil {
		return
	}
	attrs, err := json.Marshal(payload.Attributes)
	if err != nil {
		slog.Error("index: encode event attributes", "error", err)
		return
	}
	collection := payload.Attributes["collection"]
	var assetID sql.NullInt64
	if raw, ok := payload.Attributes["assetId"]; ok {
		if parsed, err := strconv.ParseUint(raw, 10, 63); err == nil {
			assetID = sql.NullInt64{Int64: int64(parsed), Valid: true}
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(
		`INSERT INTO activity (occurred_at, type, collection, asset_id, attributes) VALUES (?, ?, ?, ?, ?)`,
		time.Now().Unix(), payload.Type, collection, assetID, attrs,
	)
	if err != nil {
		slog.Error("index: record activity", "type", payload.Type, "error", err)
	}
}

// ListActivity returns recorded events, newest first.
func (s *Store) ListActivity(filter Filter) ([]Activity, error) {
	if s == nil {
		return nil, fmt.Errorf("index: store not initialised")
	}
	clauses := make([]string, 0, 3)
	args := make([]any, 0, 4)
	if trimmed := strings.TrimSpace(filter.Collection); trimmed != "" {
		clauses = append(clauses, "collection = ?")
		args = append(args, strings.ToUpper(trimmed))
	}
	if filter.AssetID != nil {
		// Stored IDs are bounded to 63 bits at ingest, so anything wider
		// can never match; wrapping it into int64 would alias a real row.
		if *filter.AssetID > math.MaxInt64 {
			return []Activity{}, nil
		}
		clauses = append(clauses, "asset_id = ?")
		args = append(args, int64(*filter.AssetID))
	}
	if trimmed := strings.TrimSpace(filter.Type); trimmed != "" {
		clauses = append(clauses, "type = ?")
		args = append(args, trimmed)
	}
	query := "SELECT id, occurred_at, type, collection, asset_id, attributes FROM activity"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]Activity, 0, limit)
	for rows.Next() {
		var (
			entry      Activity
			collection sql.NullString
			assetID    sql.NullInt64
			attrs      []byte
		)
		if err := rows.Scan(&entry.Sequence, &entry.OccurredAt, &entry.Type, &collection, &assetID, &attrs); err != nil {
			return nil, err
		}
		if collection.Valid {
			entry.Collection = collection.String
		}
		if assetID.Valid {
			entry.AssetID = uint64(assetID.Int64)
		}
		if len(attrs) > 0 {
			if err := json.Unmarshal(attrs, &entry.Attributes); err != nil {
				return nil, fmt.Errorf("index: decode attributes: %w", err)
			}
		}
		results = append(results, entry)
	}
	return results, rows.Err()
}
