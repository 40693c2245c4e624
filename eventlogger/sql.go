package eventlogger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

type sqlEventLogger struct {
	db *sql.DB
}

func NewSqlEventLogger(db *sql.DB) *sqlEventLogger {
	return &sqlEventLogger{
		db: db,
	}
}

func (el *sqlEventLogger) Save(ctx context.Context, e Event) error {
	jsonData, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("encoding event data: %w", err)
	}
	jsonMetadata, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("encoding event metadata: %w", err)
	}

	// JSON is sent as text, lib/pq would encode a []byte as bytea
	statement := `INSERT INTO events (id, event_type, event_data, event_metadata, created_at) VALUES ($1, $2, $3, $4, $5)`
	_, err = el.db.ExecContext(ctx, statement, e.ID, e.Type, string(jsonData), string(jsonMetadata), e.CreatedAt)
	return err
}

// GetByType returns every event of the given type, oldest first.
func (el *sqlEventLogger) GetByType(ctx context.Context, eventType string) ([]Event, error) {
	query := `SELECT id, event_type, event_data, event_metadata, created_at FROM events WHERE event_type = $1 ORDER BY created_at`
	result, err := el.db.QueryContext(ctx, query, eventType)
	if err != nil {
		return nil, err
	}
	defer result.Close()

	events := make([]Event, 0)
	for result.Next() {
		var (
			event        Event
			jsonData     []byte
			jsonMetadata []byte
		)
		if err := result.Scan(&event.ID, &event.Type, &jsonData, &jsonMetadata, &event.CreatedAt); err != nil {
			return events, err
		}
		if len(jsonData) > 0 {
			event.Data = json.RawMessage(jsonData)
		}
		event.Metadata = make(map[string]string)
		if len(jsonMetadata) > 0 {
			if err := json.Unmarshal(jsonMetadata, &event.Metadata); err != nil {
				return events, fmt.Errorf("decoding metadata of event %s: %w", event.ID, err)
			}
		}

		events = append(events, event)
	}

	return events, result.Err()
}
