package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/zaporter/jake/internal/conversation"
	"github.com/zaporter/jake/internal/logging"
)

// BlobVersion is the envelope version written by this package.
const BlobVersion = 1

// BackupTimeFormat names timestamped backups.
const BackupTimeFormat = "2006-01-02-15-04-05"

// ErrUnsupportedVersion is returned for blobs written by an unknown format.
var ErrUnsupportedVersion = errors.New("unsupported conversation blob version")

type envelope struct {
	Version      int                       `json:"version"`
	Conversation conversation.Conversation `json:"conversation"`
}

// Encode serializes conv into the versioned envelope.
func Encode(conv *conversation.Conversation) ([]byte, error) {
	return json.Marshal(envelope{Version: BlobVersion, Conversation: *conv})
}

// Decode parses a versioned envelope. A missing conversation time decodes
// as the current time.
func Decode(data []byte) (*conversation.Conversation, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode conversation: %w", err)
	}
	if env.Version != BlobVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, env.Version)
	}
	conv := env.Conversation
	if conv.Time.IsZero() {
		conv.Time = time.Now().UTC()
	}
	return &conv, nil
}

// Conversations persists whole conversations in one bucket, keyed by id.
type Conversations struct {
	kv     *KV
	bucket string
}

// NewConversations returns the adapter for bucket.
func NewConversations(kv *KV, bucket string) *Conversations {
	return &Conversations{kv: kv, bucket: bucket}
}

// Get returns the conversation with id, or nil when there is none.
func (c *Conversations) Get(ctx context.Context, id string) (*conversation.Conversation, error) {
	data, err := c.kv.Get(ctx, c.bucket, id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	conv, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("conversation %s: %w", id, err)
	}
	conv.ID = id
	return conv, nil
}

// Insert writes conv, assigning a new id first if it has none, and
// returns the id.
func (c *Conversations) Insert(ctx context.Context, conv *conversation.Conversation) (string, error) {
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	data, err := Encode(conv)
	if err != nil {
		return "", fmt.Errorf("encode conversation %s: %w", conv.ID, err)
	}
	if err := c.kv.Put(ctx, c.bucket, conv.ID, data); err != nil {
		return "", err
	}
	logging.StoreDebug("Stored conversation %s (%d messages, %d bytes)", conv.ID, len(conv.Messages), len(data))
	return conv.ID, nil
}

// Delete removes the conversation with id. Missing ids are not an error.
func (c *Conversations) Delete(ctx context.Context, id string) error {
	return c.kv.Delete(ctx, c.bucket, id)
}

// All returns every decodable conversation in key order. Entries that
// fail to decode are logged and skipped.
func (c *Conversations) All(ctx context.Context) ([]*conversation.Conversation, error) {
	var out []*conversation.Conversation
	err := c.kv.Iterate(ctx, c.bucket, func(key string, value []byte) error {
		conv, err := Decode(value)
		if err != nil {
			logging.StoreWarn("Skipping conversation %s: %v", key, err)
			return nil
		}
		conv.ID = key
		out = append(out, conv)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// List returns every conversation, newest first.
func (c *Conversations) List(ctx context.Context) ([]*conversation.Conversation, error) {
	all, err := c.All(ctx)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(all, func(a, b *conversation.Conversation) int {
		return b.Time.Compare(a.Time)
	})
	return all, nil
}

// Update reads the conversation with id, applies fn and writes the result
// back in one transaction. Nothing is written if fn fails.
func (c *Conversations) Update(ctx context.Context, id string, fn func(*conversation.Conversation) error) error {
	return c.kv.Update(ctx, func(tx *Tx) error {
		data, err := tx.Get(c.bucket, id)
		if err != nil {
			return err
		}
		conv, err := Decode(data)
		if err != nil {
			return fmt.Errorf("conversation %s: %w", id, err)
		}
		conv.ID = id

		if err := fn(conv); err != nil {
			return err
		}
		conv.ID = id

		out, err := Encode(conv)
		if err != nil {
			return fmt.Errorf("encode conversation %s: %w", id, err)
		}
		return tx.Put(c.bucket, id, out)
	})
}

// Migrate rewrites every conversation in the current blob format and
// returns how many were rewritten.
func (c *Conversations) Migrate(ctx context.Context) (int, error) {
	all, err := c.All(ctx)
	if err != nil {
		return 0, err
	}
	for _, conv := range all {
		if _, err := c.Insert(ctx, conv); err != nil {
			return 0, fmt.Errorf("migrate %s: %w", conv.ID, err)
		}
	}
	logging.Store("Migrated %d conversation(s)", len(all))
	return len(all), nil
}

// TimestampedBackup backs the database up into dir under a name derived
// from now and returns the backup path.
func TimestampedBackup(ctx context.Context, kv *KV, dir string, now time.Time) (string, error) {
	dest := filepath.Join(dir, now.Format(BackupTimeFormat)+".db")
	if err := kv.Backup(ctx, dest); err != nil {
		return "", err
	}
	return dest, nil
}
