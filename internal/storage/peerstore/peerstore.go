// Package peerstore keeps the peers discovered through beacons in a bbolt
// database.
package peerstore

import (
	"fmt"
	"net/netip"
	"os"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"announce/internal/announcer"
)

const (
	PeersBucket = "peers"
)

type Store struct {
	db         *bbolt.DB
	serializer Serializer
	now        func() time.Time
}

type Config struct {
	Path       string
	FileMode   os.FileMode
	Options    *bbolt.Options
	Serializer Serializer
}

func New(cfg Config) (*Store, error) {
	const op = "peerstore.New"

	if cfg.Serializer == nil {
		cfg.Serializer = &GobSerializer{}
	}
	if cfg.FileMode == 0 {
		cfg.FileMode = 0600
	}
	if cfg.Options == nil {
		cfg.Options = &bbolt.Options{Timeout: time.Second}
	}

	db, err := bbolt.Open(cfg.Path, cfg.FileMode, cfg.Options)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(PeersBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: create bucket: %w", op, err)
	}

	return &Store{
		db:         db,
		serializer: cfg.Serializer,
		now:        time.Now,
	}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return ErrNilDB
	}
	return s.db.Close()
}

// Record stores a beacon heard from peer. It returns the updated peer and
// whether it was seen for the first time.
func (s *Store) Record(peer announcer.Identity, from netip.AddrPort) (Peer, bool, error) {
	const op = "peerstore.Record"

	if peer.PublicKey == "" {
		return Peer{}, false, fmt.Errorf("%s: %w", op, ErrEmptyKey)
	}

	var (
		p     Peer
		isNew bool
	)
	now := s.now()

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(PeersBucket))
		if bucket == nil {
			return ErrBucketNotFound
		}

		key := []byte(peer.PublicKey)
		if data := bucket.Get(key); data != nil {
			if err := s.serializer.Deserialize(data, &p); err != nil {
				return err
			}
		} else {
			isNew = true
			p = Peer{PublicKey: peer.PublicKey, FirstSeen: now}
		}

		p.Addr = peer.Addr.String()
		p.Port = peer.Port
		p.Source = from.String()
		p.LastSeen = now
		p.Seen++

		data, err := s.serializer.Serialize(&p)
		if err != nil {
			return err
		}
		return bucket.Put(key, data)
	})
	if err != nil {
		return Peer{}, false, fmt.Errorf("%s: %w", op, err)
	}
	return p, isNew, nil
}

func (s *Store) Get(publicKey string) (Peer, error) {
	var p Peer

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(PeersBucket))
		if bucket == nil {
			return ErrBucketNotFound
		}

		data := bucket.Get([]byte(publicKey))
		if data == nil {
			return ErrPeerNotFound
		}
		return s.serializer.Deserialize(data, &p)
	})
	if err != nil {
		return Peer{}, err
	}
	return p, nil
}

// List returns all peers, most recently seen first.
func (s *Store) List() ([]Peer, error) {
	var peers []Peer

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(PeersBucket))
		if bucket == nil {
			return nil
		}

		return bucket.ForEach(func(k, v []byte) error {
			var p Peer
			if err := s.serializer.Deserialize(v, &p); err != nil {
				return err
			}
			peers = append(peers, p)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(peers, func(i, j int) bool {
		return peers[i].LastSeen.After(peers[j].LastSeen)
	})
	return peers, nil
}

func (s *Store) Delete(publicKey string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(PeersBucket))
		if bucket == nil {
			return nil
		}
		return bucket.Delete([]byte(publicKey))
	})
}

// Prune removes peers not seen since before. Peers that stop announcing
// have left the network.
func (s *Store) Prune(before time.Time) (int, error) {
	removed := 0

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(PeersBucket))
		if bucket == nil {
			return nil
		}

		var stale [][]byte
		err := bucket.ForEach(func(k, v []byte) error {
			var p Peer
			if err := s.serializer.Deserialize(v, &p); err != nil {
				return err
			}
			if p.LastSeen.Before(before) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, k := range stale {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	return removed, err
}
