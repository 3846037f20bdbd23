package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/lib/pq"
)

// PostgresSource reads documents out of a jsonb table and follows
// LISTEN/NOTIFY invalidations raised by the table's trigger (see
// migrations/001_create_documents.sql). Writes to the table belong to
// the upstream backends; this side only reads.
type PostgresSource struct {
	db       *sql.DB
	listener *pq.Listener
	watchers *watcherSet
}

const notifyChannel = "doc_events"

func NewPostgresSource(dsn string) (*PostgresSource, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	p := &PostgresSource{db: db, watchers: newWatcherSet()}
	p.listener = pq.NewListener(dsn, 2*time.Second, time.Minute, nil)
	if err := p.listener.Listen(notifyChannel); err != nil {
		_ = p.listener.Close()
		_ = db.Close()
		return nil, err
	}
	go p.fanout()
	return p, nil
}

func (p *PostgresSource) fanout() {
	for n := range p.listener.Notify {
		if n == nil {
			// Reconnect marker from pq; contents may have changed while
			// we were away, so wake every collection.
			for _, coll := range []string{CollectionDrivers, CollectionTrips, CollectionUsers} {
				p.watchers.notify(coll)
			}
			continue
		}
		// Payload is "<collection>" or "<collection>:<id>".
		coll := n.Extra
		if i := strings.IndexByte(coll, ':'); i >= 0 {
			coll = coll[:i]
		}
		p.watchers.notify(coll)
	}
}

func (p *PostgresSource) List(ctx context.Context, collection string) ([]Document, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, data FROM documents WHERE collection = $1 ORDER BY id`, collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var id string
		var data []byte
		if err := rows.Scan(&id, &data); err != nil {
			return nil, err
		}
		out = append(out, Document{ID: id, Data: json.RawMessage(data)})
	}
	return out, rows.Err()
}

func (p *PostgresSource) Watch(collection string, notify func()) (func(), error) {
	return p.watchers.add(collection, notify), nil
}

func (p *PostgresSource) Close() error {
	_ = p.listener.Close()
	return p.db.Close()
}
