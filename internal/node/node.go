// Package node ties an identity to an announcer and lets the identity be
// swapped while the node keeps announcing.
package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"announce/internal/announcer"
	"announce/internal/identity"
	"announce/internal/util/logger/sl"
)

// Settings is everything the announcer needs except the key.
type Settings struct {
	LocalAddr     string
	Port          int
	BroadcastAddr string
	BroadcastPort int
	Interval      time.Duration
}

type Node struct {
	settings Settings
	log      *slog.Logger
	opts     []announcer.Option
	// failed receives the cause when a loop dies on its own
	failed chan error

	mu        sync.Mutex
	keys      *identity.Keypair
	announcer *announcer.Announcer
}

func New(settings Settings, keys *identity.Keypair, log *slog.Logger, opts ...announcer.Option) (*Node, error) {
	const op = "node.New"

	n := &Node{
		settings: settings,
		log:      log.With(slog.String("op", op)),
		failed:   make(chan error, 1),
	}
	n.opts = append([]announcer.Option{
		announcer.WithLogger(log),
		announcer.WithObserver(announcer.ObserverFunc(n.watchLoop)),
	}, opts...)

	a, err := n.newAnnouncer(keys)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	n.keys = keys
	n.announcer = a

	return n, nil
}

func (n *Node) newAnnouncer(keys *identity.Keypair) (*announcer.Announcer, error) {
	return announcer.New(announcer.Config{
		LocalAddr:     n.settings.LocalAddr,
		Port:          n.settings.Port,
		BroadcastAddr: n.settings.BroadcastAddr,
		BroadcastPort: n.settings.BroadcastPort,
		Interval:      n.settings.Interval,
		PublicKey:     keys.ShsKey(),
	}, n.opts...)
}

func (n *Node) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.announcer.Start(); err != nil {
		return err
	}
	n.log.Info("Announcing",
		slog.String("id", n.keys.ID()),
		slog.String("beacon", n.announcer.Identity().String()),
		slog.String("destination", n.announcer.Destination().String()),
	)
	return nil
}

func (n *Node) Stop() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.announcer.Stop()
}

// Run starts announcing and blocks until ctx is done or the loop dies on a
// fatal socket error, which is returned. Key rotations do not end Run.
func (n *Node) Run(ctx context.Context) error {
	const op = "node.Run"

	// drop a failure left over from an earlier run
	select {
	case <-n.failed:
	default:
	}

	if err := n.Start(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-n.failed:
		return fmt.Errorf("%s: announce loop died: %w", op, err)
	}
}

func (n *Node) watchLoop(e announcer.Event) {
	stopped, ok := e.(announcer.LoopStoppedEvent)
	if !ok || stopped.Err == nil {
		return
	}
	select {
	case n.failed <- stopped.Err:
	default:
	}
}

// Close stops announcing if the node is running.
func (n *Node) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.announcer.Close()
}

func (n *Node) Running() bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.announcer.Running()
}

func (n *Node) Identity() announcer.Identity {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.announcer.Identity()
}

func (n *Node) ID() string {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.keys.ID()
}

// Rotate switches to keys. A running node stops the old announcer before
// the new one starts, so peers never see two keys from one node at once.
func (n *Node) Rotate(keys *identity.Keypair) error {
	const op = "node.Rotate"

	next, err := n.newAnnouncer(keys)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.keys.ShsKey() == keys.ShsKey() {
		return nil
	}

	running := n.announcer.Running()
	if running {
		// the loop may have died on its own meanwhile
		if err := n.announcer.Stop(); err != nil && !errors.Is(err, announcer.ErrNotRunning) {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	n.announcer = next
	n.keys = keys

	if running {
		if err := next.Start(); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	n.log.Info("Identity rotated", slog.String("id", keys.ID()), slog.Bool("running", running))
	return nil
}

// ReloadKey loads the key file at path and rotates to it. Failures are
// logged and the current key stays in use.
func (n *Node) ReloadKey(path string) {
	keys, err := identity.Load(path)
	if err != nil {
		n.log.Error("Reload key failed", slog.String("path", path), sl.Err(err))
		return
	}
	if err := n.Rotate(keys); err != nil {
		n.log.Error("Rotate key failed", sl.Err(err))
	}
}
