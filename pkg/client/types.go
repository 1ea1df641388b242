package client

import (
	"encoding/json"
	"time"
)

// HealthInfo is the decoded /health response.
type HealthInfo struct {
	Status  string
	Queues  int
	Uptime  time.Duration
	Version string
	Archive bool // the server records snapshots
}

// QueueStats mirrors the server's per-queue counters.
type QueueStats struct {
	ID                   string `json:"id"`
	Name                 string `json:"name"`
	Length               int    `json:"length"` // ready + redelivery
	Ready                int    `json:"ready"`
	Redelivery           int    `json:"redelivery"`
	Locked               int    `json:"locked"`
	MaxLeaseMinutes      int    `json:"max_lease_minutes"`
	SweepIntervalSeconds int    `json:"sweep_interval_seconds"`
	Closed               bool   `json:"closed"`
}

// Item is a queued item. Data is left as raw JSON because the payload type is
// only known to the process that owns the queue.
type Item struct {
	ID               string          `json:"id"`
	Data             json.RawMessage `json:"data"`
	ScheduledTimeout *time.Time      `json:"scheduled_timeout,omitempty"`
}

// Dump is a consistent view of all three containers of a queue.
type Dump struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	TakenAt      time.Time `json:"taken_at"`
	MainQueue    []Item    `json:"main_queue"`
	TimeoutQueue []Item    `json:"timeout_queue"`
	LockList     []Item    `json:"lock_list"`
}

// Part names one container for DumpPart.
type Part string

const (
	PartMain    Part = "main"
	PartTimeout Part = "timeout"
	PartLocks   Part = "locks"
)

// Snapshot is an archived dump. Dump is nil in History listings.
type Snapshot struct {
	ID      string     `json:"id"`
	Queue   string     `json:"queue"`
	QueueID string     `json:"queue_id"`
	Reason  string     `json:"reason"`
	TakenAt time.Time  `json:"taken_at"`
	Stats   QueueStats `json:"stats"`
	Dump    *Dump      `json:"dump,omitempty"`
}

// Event is one frame from the events stream.
type Event struct {
	Type    string          `json:"type"` // "stats" | "timeout" | "complete"
	Queue   string          `json:"queue"`
	QueueID string          `json:"queue_id"`
	ItemID  string          `json:"item_id,omitempty"`
	Item    json.RawMessage `json:"item,omitempty"`
	At      time.Time       `json:"at"`
	Stats   *QueueStats     `json:"stats,omitempty"`
}
