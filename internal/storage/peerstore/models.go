package peerstore

import (
	"bytes"
	"encoding/gob"
	"errors"
	"time"
)

var (
	ErrPeerNotFound   = errors.New("peer not found")
	ErrBucketNotFound = errors.New("bucket not found")
	ErrNilDB          = errors.New("database connection is nil")
	ErrEmptyKey       = errors.New("peer public key is empty")
)

// Peer is a node we heard a beacon from.
type Peer struct {
	PublicKey string
	Addr      string
	Port      uint16
	// Source is the UDP address the beacon arrived from.
	Source    string
	FirstSeen time.Time
	LastSeen  time.Time
	Seen      int64
}

// Serializer encodes stored values.
type Serializer interface {
	Serialize(v interface{}) ([]byte, error)
	Deserialize(data []byte, v interface{}) error
}

type GobSerializer struct{}

func (s *GobSerializer) Serialize(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *GobSerializer) Deserialize(data []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}
