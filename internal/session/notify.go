package session

import (
	"context"

	"go.uber.org/zap"
)

const observerBacklog = 64

type snapshotKind int

const (
	snapStarted snapshotKind = iota
	snapUpdated
)

type pendingSnapshot struct {
	kind snapshotKind
	snap Snapshot
}

// notifier hands snapshots to an Observer from its own goroutine, in order.
// push never blocks; when the backlog is full the snapshot is dropped.
type notifier struct {
	obs  Observer
	log  *zap.Logger
	ch   chan pendingSnapshot
	done chan struct{}
}

func startNotifier(ctx context.Context, obs Observer, log *zap.Logger) *notifier {
	n := &notifier{
		obs:  obs,
		log:  log,
		ch:   make(chan pendingSnapshot, observerBacklog),
		done: make(chan struct{}),
	}
	go n.drain(ctx)
	return n
}

func (n *notifier) drain(ctx context.Context) {
	defer close(n.done)
	for ps := range n.ch {
		if ps.kind == snapStarted {
			n.obs.SessionStarted(ctx, ps.snap)
			continue
		}
		n.obs.SessionUpdated(ctx, ps.snap)
	}
}

func (n *notifier) push(kind snapshotKind, snap Snapshot) {
	select {
	case n.ch <- pendingSnapshot{kind: kind, snap: snap}:
	default:
		n.log.Warn("observer_backlog_full", zap.String("phase", snap.Phase), zap.Int("moves", snap.Moves))
	}
}

// close waits until every queued snapshot has been delivered.
func (n *notifier) close() {
	close(n.ch)
	<-n.done
}
