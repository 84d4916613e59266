// Package router buffers inbound protocol messages by round and signals
// when a round has enough messages to proceed, generalizing the dedup +
// fan-out shape of drand's internal/dkg/broadcast.go dispatcher from a
// single DKG-specific broadcaster into a reusable, round-indexed router
// usable by both the keygen and signing drivers.
package router

import (
	"context"
	"fmt"
	"sync"

	"github.com/zeebo/blake3"

	"github.com/tangle-network/bls-blueprint/common/bls"
)

// Kind distinguishes the two round shapes spec.md §4.2 defines.
type Kind int

const (
	// Broadcast rounds expect one message from every party j != i.
	Broadcast Kind = iota
	// PointToPoint rounds expect one message from every party j != i
	// addressed to i; messages with a different destination are dropped.
	PointToPoint
)

// Descriptor declares the expectation for one round.
type Descriptor struct {
	Kind Kind
	// MinCount, when non-zero, allows Complete to return early once this
	// many distinct senders (not counting self) have been seen, per
	// spec.md §4.5's note about the signing round shortcutting at t-1
	// received plus self. Zero means "wait for all n-1".
	MinCount int
}

// Envelope is the router's view of one inbound wire message: enough to
// demultiplex it into the right round slot. The payload itself is opaque to
// the router (spec.md §6's "only the outer tag... is semantics for the
// router").
type Envelope struct {
	Round   int
	Source  uint16
	Dest    *uint16 // nil for broadcast messages
	Payload []byte
}

// MissingMessagesError reports which senders never delivered their round
// payload before the inbound stream ended.
type MissingMessagesError struct {
	Round   int
	Missing []uint16
}

func (e *MissingMessagesError) Error() string {
	return fmt.Sprintf("round=%d missing=%v", e.Round, e.Missing)
}

// Router demultiplexes one job's inbound messages into per-round slots. It is
// not safe for concurrent Listen calls, but Complete may be called
// concurrently with Listen draining the inbound channel (the usual shape: one
// goroutine feeds Listen, the driver goroutine awaits Complete).
type Router struct {
	n    uint16
	self uint16

	rounds []Descriptor

	mu     sync.Mutex
	cond   *sync.Cond
	got    []map[uint16][]byte // per round: sender -> payload
	seen   map[string]struct{} // dedup key: round|source|payload hash -> seen (at-least-once transport)
	err    error
	closed bool
}

// New builds a router for a job with the given party-set size, this party's
// index, and the round descriptors in order (round r is descriptors[r]).
func New(n, self uint16, descriptors []Descriptor) *Router {
	r := &Router{
		n:      n,
		self:   self,
		rounds: descriptors,
		got:    make([]map[uint16][]byte, len(descriptors)),
		seen:   make(map[string]struct{}),
	}
	for i := range r.got {
		r.got[i] = make(map[uint16][]byte)
	}
	r.cond = sync.NewCond(&r.mu)
	return r
}

func dedupKey(round int, source uint16, payload []byte) string {
	h := blake3.Sum256(payload)
	return fmt.Sprintf("%d|%d|%x", round, source, h[:8])
}

// Listen drains incoming until ctx is done or the channel closes, dispatching
// each envelope to its round slot. It is meant to run in its own goroutine
// for the lifetime of the job.
func (r *Router) Listen(ctx context.Context, incoming <-chan Envelope) {
	for {
		select {
		case <-ctx.Done():
			r.fail(bls.Wrap(bls.ErrDelivery, "network closed mid-round: %v", ctx.Err()))
			return
		case env, ok := <-incoming:
			if !ok {
				r.fail(nil) // graceful close; Complete will report MissingMessages if short
				return
			}
			if err := r.dispatch(env); err != nil {
				r.fail(err)
				return
			}
		}
	}
}

func (r *Router) dispatch(env Envelope) error {
	if env.Source >= r.n || env.Source == r.self {
		return bls.Wrap(bls.ErrMPC, "bad sender %d for round %d", env.Source, env.Round)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if env.Round < 0 || env.Round >= len(r.rounds) {
		return nil // unknown round, ignore rather than crash a long-lived listener
	}

	desc := r.rounds[env.Round]
	if desc.Kind == PointToPoint {
		if env.Dest == nil || *env.Dest != r.self {
			return nil // not for us; drop per spec.md §4.2
		}
	}

	key := dedupKey(env.Round, env.Source, env.Payload)
	if _, dup := r.seen[key]; dup {
		// at-least-once transport redelivery of a message we already
		// accepted for this round+sender is tolerated, not an error.
		if _, already := r.got[env.Round][env.Source]; already {
			return nil
		}
	}

	if _, already := r.got[env.Round][env.Source]; already {
		return bls.Wrap(bls.ErrMPC, "duplicate message from sender %d in round %d", env.Source, env.Round)
	}

	r.seen[key] = struct{}{}
	r.got[env.Round][env.Source] = env.Payload
	r.cond.Broadcast()
	return nil
}

func (r *Router) fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.err = err
	r.cond.Broadcast()
}

// Complete blocks until round rnd has enough messages (per its Descriptor),
// the inbound stream ends/fails, or ctx is cancelled. On success it returns
// the sender -> payload map for that round, excluding the caller's own
// message.
func (r *Router) Complete(ctx context.Context, rnd int) (map[uint16][]byte, error) {
	stop := context.AfterFunc(ctx, func() {
		r.mu.Lock()
		r.cond.Broadcast()
		r.mu.Unlock()
	})
	defer stop()

	r.mu.Lock()
	defer r.mu.Unlock()

	want := int(r.n) - 1
	if r.rounds[rnd].MinCount > 0 && r.rounds[rnd].MinCount < want {
		want = r.rounds[rnd].MinCount
	}

	for len(r.got[rnd]) < want {
		select {
		case <-ctx.Done():
			return nil, bls.Wrap(bls.ErrDelivery, "round %d cancelled: %v", rnd, ctx.Err())
		default:
		}
		if r.closed {
			missing := r.missingSenders(rnd)
			if r.err != nil {
				return nil, r.err
			}
			return nil, bls.Wrap(bls.ErrMPC, "%s", (&MissingMessagesError{Round: rnd, Missing: missing}).Error())
		}
		r.cond.Wait()
	}

	out := make(map[uint16][]byte, len(r.got[rnd]))
	for k, v := range r.got[rnd] {
		out[k] = v
	}
	return out, nil
}

func (r *Router) missingSenders(rnd int) []uint16 {
	var missing []uint16
	for j := uint16(0); j < r.n; j++ {
		if j == r.self {
			continue
		}
		if _, ok := r.got[rnd][j]; !ok {
			missing = append(missing, j)
		}
	}
	return missing
}
