package profiles

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"time"

	"go.etcd.io/bbolt"

	"github.com/shazow/wifid/wifi"
)

var networksBucket = []byte("networks")

// BoltStore keeps profiles in a bbolt database, one JSON value per essid.
type BoltStore struct {
	db     *bbolt.DB
	logger *slog.Logger
}

var _ Store = (*BoltStore)(nil)

// OpenBolt opens or creates the database at path.
func OpenBolt(path string, logger *slog.Logger) (*BoltStore, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(networksBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltStore{db: db, logger: logger}, nil
}

// List returns every profile in essid order. Entries that fail to decode are
// skipped.
func (s *BoltStore) List() []wifi.KnownNetwork {
	var out []wifi.KnownNetwork
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(networksBucket).ForEach(func(k, v []byte) error {
			var kn wifi.KnownNetwork
			if err := json.Unmarshal(v, &kn); err != nil {
				s.logger.Warn("skipping corrupt profile", "essid", string(k), "error", err)
				return nil
			}
			out = append(out, kn)
			return nil
		})
	})
	if err != nil {
		s.logger.Error("listing profiles", "error", err)
	}
	return out
}

func (s *BoltStore) Lookup(essid string) (wifi.KnownNetwork, bool) {
	if essid == "" {
		return wifi.KnownNetwork{}, false
	}
	var (
		kn wifi.KnownNetwork
		ok bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		kn, ok, err = get(tx, essid)
		return err
	})
	if err != nil {
		s.logger.Warn("reading profile", "essid", essid, "error", err)
		return wifi.KnownNetwork{}, false
	}
	return kn, ok
}

func (s *BoltStore) Save(kn wifi.KnownNetwork) error {
	if err := validate(kn); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return put(tx, kn)
	})
}

func (s *BoltStore) Remove(essid string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(networksBucket).Delete([]byte(essid))
	})
}

// Touch updates the last used time of a known network. Unknown networks are
// ignored.
func (s *BoltStore) Touch(essid string, addr net.HardwareAddr, t time.Time) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		kn, ok, err := get(tx, essid)
		if err != nil || !ok {
			return err
		}
		return put(tx, touched(kn, addr, t))
	})
}

func (s *BoltStore) RememberKey(essid, key string, keyType wifi.KeyType) error {
	if err := validate(wifi.KnownNetwork{Essid: essid, Key: key, KeyType: keyType}); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		kn, _, err := get(tx, essid)
		if err != nil {
			return err
		}
		kn.Essid, kn.Key, kn.KeyType = essid, key, keyType
		return put(tx, kn)
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func get(tx *bbolt.Tx, essid string) (wifi.KnownNetwork, bool, error) {
	var kn wifi.KnownNetwork
	v := tx.Bucket(networksBucket).Get([]byte(essid))
	if v == nil {
		return kn, false, nil
	}
	if err := json.Unmarshal(v, &kn); err != nil {
		return kn, false, fmt.Errorf("decoding profile %q: %w", essid, err)
	}
	return kn, true, nil
}

func put(tx *bbolt.Tx, kn wifi.KnownNetwork) error {
	payload, err := json.Marshal(kn)
	if err != nil {
		return err
	}
	return tx.Bucket(networksBucket).Put([]byte(kn.Essid), payload)
}
