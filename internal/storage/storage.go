package storage

import (
	"context"
	"fmt"
	"sort"
	"time"

	"anonchat/internal/config"
	"anonchat/internal/redis"
)

// Snapshot is the durable state document: every user ever seen plus the
// two rolling activity logs.
type Snapshot struct {
	Users         []int64
	MessageEvents []time.Time
	StartEvents   []time.Time
}

// Backend persists snapshots. Save may fail; Load never does — a missing
// or unreadable snapshot yields an empty Snapshot instead.
type Backend interface {
	Save(ctx context.Context, snap Snapshot) error
	Load(ctx context.Context) Snapshot
	Close() error
}

// Open selects the backend named by cfg.Persistence.Backend: "file",
// "redis", or a databases key such as "sqlite3" or "mysql".
func Open(cfg *config.Config) (Backend, error) {
	switch cfg.Persistence.Backend {
	case "file":
		return NewFileBackend(cfg.Persistence.StateFile), nil
	case "redis":
		client, err := redis.NewClient(cfg)
		if err != nil {
			return nil, fmt.Errorf("connect redis backend: %w", err)
		}
		return NewRedisBackend(client), nil
	default:
		backend, err := openSQL(cfg.Persistence.Backend, cfg)
		if err != nil {
			return nil, err
		}
		return backend, nil
	}
}

// document is the wire shape shared by the file and redis backends.
type document struct {
	Users         []int64  `json:"users"`
	MessageEvents []string `json:"message_events"`
	StartEvents   []string `json:"start_events"`
}

func encodeDocument(snap Snapshot) document {
	users := append([]int64(nil), snap.Users...)
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	return document{
		Users:         users,
		MessageEvents: formatTimes(snap.MessageEvents),
		StartEvents:   formatTimes(snap.StartEvents),
	}
}

func decodeDocument(doc document) Snapshot {
	return Snapshot{
		Users:         doc.Users,
		MessageEvents: parseTimes(doc.MessageEvents),
		StartEvents:   parseTimes(doc.StartEvents),
	}
}

func formatTimes(ts []time.Time) []string {
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.UTC().Format(time.RFC3339))
	}
	return out
}

// parseTimes drops entries that do not parse rather than failing the load.
func parseTimes(raw []string) []time.Time {
	out := make([]time.Time, 0, len(raw))
	for _, s := range raw {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			continue
		}
		out = append(out, t.UTC())
	}
	return out
}
