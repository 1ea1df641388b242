// Package archive keeps point-in-time dumps of LeaseQ queues in a single
// bbolt file so that the state of a queue can be inspected after the process
// that owned it has gone.
package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/snehjoshi/leaseq/internal/id"
	"github.com/snehjoshi/leaseq/internal/queue"
)

// ErrNotFound is returned by Get when no snapshot has the requested id.
var ErrNotFound = errors.New("archive: snapshot not found")

var bucketSnapshots = []byte("snapshots") // one nested bucket per queue name

// Record is one archived snapshot. Dump holds the JSON form of the queue's
// DumpAll and is omitted by List.
type Record struct {
	ID      string          `json:"id"` // ULID; sorts by TakenAt
	Queue   string          `json:"queue"`
	QueueID string          `json:"queue_id"`
	Reason  string          `json:"reason"`
	TakenAt time.Time       `json:"taken_at"`
	Stats   queue.Stats     `json:"stats"`
	Dump    json.RawMessage `json:"dump,omitempty"`
}

// Store is a bbolt-backed snapshot archive.
//
// Layout:
//
//	snapshots/
//	  <queue name>/
//	    <ULID> → JSON Record
//
// ULID keys sort lexicographically by creation time, so a cursor walk is a
// walk through history.
type Store struct {
	db *bbolt.DB
}

// Open opens (or creates) the archive at path. It fails after one second if
// another process holds the file.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o640, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("archive: open %s: %w", path, err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSnapshots)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("archive: init bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// Snapshot dumps q and stores the result. reason is free text recorded with
// the snapshot ("interval", "timeout", "complete", "manual", ...).
func (s *Store) Snapshot(q queue.Inspector, reason string) (Record, error) {
	dump, err := q.Inspect(queue.PartAll)
	if err != nil {
		return Record{}, fmt.Errorf("archive: dump %s: %w", q.Name(), err)
	}
	raw, err := json.Marshal(dump)
	if err != nil {
		return Record{}, fmt.Errorf("archive: encode dump of %s: %w", q.Name(), err)
	}

	now := time.Now().UTC()
	snapID, err := id.At(now)
	if err != nil {
		return Record{}, fmt.Errorf("archive: snapshot id: %w", err)
	}
	rec := Record{
		ID:      snapID,
		Queue:   q.Name(),
		QueueID: q.ID(),
		Reason:  reason,
		TakenAt: now,
		Stats:   q.Stats(),
		Dump:    raw,
	}
	if err := s.Put(rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Put stores rec under rec.Queue / rec.ID, replacing any record with the
// same id.
func (s *Store) Put(rec Record) error {
	if rec.Queue == "" || rec.ID == "" {
		return errors.New("archive: record needs a queue and an id")
	}
	val, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("archive: marshal %s: %w", rec.ID, err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.Bucket(bucketSnapshots).CreateBucketIfNotExists([]byte(rec.Queue))
		if err != nil {
			return fmt.Errorf("archive: bucket %s: %w", rec.Queue, err)
		}
		return b.Put([]byte(rec.ID), val)
	})
}

// Get returns the full record, dump included.
// Returns ErrNotFound if queueName has no snapshot with that id.
func (s *Store) Get(queueName, snapshotID string) (Record, error) {
	var rec Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketSnapshots).Bucket([]byte(queueName))
		if b == nil {
			return ErrNotFound
		}
		val := b.Get([]byte(snapshotID))
		if val == nil {
			return ErrNotFound
		}
		return json.Unmarshal(val, &rec)
	})
	return rec, err
}

// List returns up to limit records for queueName, newest first, without
// their dumps. limit <= 0 returns everything.
func (s *Store) List(queueName string, limit int) ([]Record, error) {
	var out []Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketSnapshots).Bucket([]byte(queueName))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("archive: decode %s/%s: %w", queueName, k, err)
			}
			rec.Dump = nil
			out = append(out, rec)
			if limit > 0 && len(out) == limit {
				break
			}
		}
		return nil
	})
	return out, err
}

// Queues returns the names of every queue with at least one snapshot, in
// ascending order.
func (s *Store) Queues() ([]string, error) {
	var names []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSnapshots).ForEach(func(k, v []byte) error {
			if v == nil { // nested bucket
				names = append(names, string(k))
			}
			return nil
		})
	})
	return names, err
}

// Prune deletes all but the newest keep snapshots of queueName and returns
// how many were removed. keep <= 0 is a no-op.
func (s *Store) Prune(queueName string, keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}
	removed := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketSnapshots).Bucket([]byte(queueName))
		if b == nil {
			return nil
		}
		excess := b.Stats().KeyN - keep
		if excess <= 0 {
			return nil
		}
		var stale [][]byte
		c := b.Cursor()
		for k, _ := c.First(); k != nil && len(stale) < excess; k, _ = c.Next() {
			stale = append(stale, append([]byte(nil), k...))
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	return removed, err
}

// Close closes the underlying bbolt database.
func (s *Store) Close() error {
	return s.db.Close()
}
