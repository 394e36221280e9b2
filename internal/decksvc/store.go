package decksvc

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger"

	"github.com/deckbridge/deckd/internal/catalog"
)

// Store persists per-device metadata across runs: when a unit was first and
// last seen and the brightness to restore on reconnect.
type Store struct {
	db  *badger.DB
	now func() time.Time
}

type DeviceRecord struct {
	ID          string    `json:"id"`
	Model       string    `json:"model"`
	Name        string    `json:"name"`
	FirstSeenAt time.Time `json:"firstSeenAt"`
	LastSeenAt  time.Time `json:"lastSeenAt"`
	Brightness  int       `json:"brightness"`
}

func NewStore(db *badger.DB, now func() time.Time) *Store {
	return &Store{db: db, now: now}
}

func deviceKey(id string) []byte {
	return []byte(fmt.Sprintf("devices/%s", id))
}

// Upsert records a sighting of the device and returns the merged record.
func (s *Store) Upsert(id string, v catalog.Variant, defaultBrightness int) (DeviceRecord, error) {
	var rec DeviceRecord
	now := s.now()
	err := s.db.Update(func(txn *badger.Txn) error {
		key := deviceKey(id)
		item, err := txn.Get(key)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			rec = DeviceRecord{
				ID:         id,
				Brightness: defaultBrightness,
			}
		case err != nil:
			return err
		default:
			err = item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return fmt.Errorf("failed to unmarshal device record: %w", err)
			}
		}
		rec.ID = id
		rec.Model = string(v.Model)
		rec.Name = v.Name
		if rec.FirstSeenAt.IsZero() {
			rec.FirstSeenAt = now
		}
		rec.LastSeenAt = now
		b, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal device record: %w", err)
		}
		return txn.Set(key, b)
	})
	if err != nil {
		return DeviceRecord{}, fmt.Errorf("failed to upsert device: %w", err)
	}
	return rec, nil
}

// SetBrightness stores the brightness to restore on the next connect.
func (s *Store) SetBrightness(id string, level int) error {
	return s.db.Update(func(txn *badger.Txn) error {
		key := deviceKey(id)
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		var rec DeviceRecord
		err = item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
		if err != nil {
			return err
		}
		rec.Brightness = level
		b, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return txn.Set(key, b)
	})
}

// List returns every device record ever seen.
func (s *Store) List() ([]DeviceRecord, error) {
	var records []DeviceRecord
	err := s.db.View(func(txn *badger.Txn) error {
		iter := txn.NewIterator(badger.DefaultIteratorOptions)
		defer iter.Close()
		prefix := []byte("devices/")
		for iter.Seek(prefix); iter.ValidForPrefix(prefix); iter.Next() {
			var rec DeviceRecord
			err := iter.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	return records, nil
}
