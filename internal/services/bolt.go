package services

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/strayblues/gemchat/internal/models"
)

var (
	messagesBucket = []byte("messages")
	indexBucket    = []byte("messageIndex")
	settingsBucket = []byte("settings")

	themeKey = []byte("theme")
)

// BoltDB persists the conversation transcript and UI settings in a BoltDB
// file. Messages are stored under monotonically increasing sequence keys so
// iteration returns them in insertion order, with a secondary index from
// message ID to sequence key to support in-place updates while streaming.
type BoltDB struct {
	db *bolt.DB
}

// NewBoltDB opens (creating if needed, with 0600 permissions) the database
// at path and initializes the required buckets.
func NewBoltDB(path string) (BoltDB, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return BoltDB{}, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{messagesBucket, indexBucket, settingsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})

	return BoltDB{db: db}, err
}

// Close releases the underlying database file.
func (b BoltDB) Close() error {
	return b.db.Close()
}

// Messages returns the archived transcript in insertion order.
func (b BoltDB) Messages(context.Context) ([]models.Message, error) {
	var messages []models.Message
	err := b.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(messagesBucket)
		if bkt == nil {
			return nil
		}

		return bkt.ForEach(func(_, v []byte) error {
			var message models.Message
			if err := json.Unmarshal(v, &message); err != nil {
				return fmt.Errorf("failed to unmarshal message: %w", err)
			}
			messages = append(messages, message)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// AppendMessage stores a new message at the end of the transcript.
func (b BoltDB) AppendMessage(_ context.Context, message models.Message) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(messagesBucket)
		idx := tx.Bucket(indexBucket)
		if bkt == nil || idx == nil {
			return nil
		}

		seq, err := bkt.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to get next sequence: %w", err)
		}
		key := itob(seq)

		v, err := json.Marshal(message)
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}

		if err := bkt.Put(key, v); err != nil {
			return err
		}
		return idx.Put([]byte(message.ID), key)
	})
}

// UpdateMessage rewrites an archived message in place, keeping its position
// in the transcript. Unknown IDs are silently ignored.
func (b BoltDB) UpdateMessage(_ context.Context, message models.Message) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(messagesBucket)
		idx := tx.Bucket(indexBucket)
		if bkt == nil || idx == nil {
			return nil
		}

		key := idx.Get([]byte(message.ID))
		if key == nil {
			return nil
		}

		v, err := json.Marshal(message)
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}

		return bkt.Put(key, v)
	})
}

// Clear drops the archived transcript, leaving settings untouched.
func (b BoltDB) Clear(context.Context) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{messagesBucket, indexBucket} {
			if err := tx.DeleteBucket(name); err != nil {
				return fmt.Errorf("failed to delete bucket %s: %w", name, err)
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return fmt.Errorf("failed to recreate bucket %s: %w", name, err)
			}
		}
		return nil
	})
}

// Theme returns the persisted theme preference, or an empty string when none
// has been set.
func (b BoltDB) Theme(context.Context) (string, error) {
	var theme string
	err := b.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(settingsBucket)
		if bkt == nil {
			return nil
		}
		theme = string(bkt.Get(themeKey))
		return nil
	})
	return theme, err
}

// SetTheme persists the theme preference.
func (b BoltDB) SetTheme(_ context.Context, theme string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(settingsBucket)
		if bkt == nil {
			return nil
		}
		return bkt.Put(themeKey, []byte(theme))
	})
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
