package signing_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tangle-network/bls-blueprint/crypto"
	"github.com/tangle-network/bls-blueprint/internal/keygen"
	"github.com/tangle-network/bls-blueprint/internal/router"
	"github.com/tangle-network/bls-blueprint/internal/signing"
	"github.com/tangle-network/bls-blueprint/internal/store"
)

// meshSender fans a party's outbound round payloads out to every other
// party's inbound channel directly in-process, standing in for
// internal/transport in these driver-level tests.
type meshSender struct {
	self    uint16
	inbound []chan router.Envelope
}

func (m *meshSender) SendBroadcast(ctx context.Context, round int, payload []byte) error {
	for j, ch := range m.inbound {
		if uint16(j) == m.self {
			continue
		}
		ch <- router.Envelope{Round: round, Source: m.self, Payload: payload}
	}
	return nil
}

func (m *meshSender) SendTo(ctx context.Context, round int, dest uint16, payload []byte) error {
	d := dest
	m.inbound[dest] <- router.Envelope{Round: round, Source: m.self, Dest: &d, Payload: payload}
	return nil
}

// runKeygen produces n stores each holding a consistent BlsState for
// metaHash, the precondition every signing test in this file starts from.
func runKeygen(t *testing.T, sch *crypto.Scheme, n, threshold int, metaHash [32]byte) []*store.Store {
	t.Helper()

	inbound := make([]chan router.Envelope, n)
	routers := make([]*router.Router, n)
	senders := make([]*meshSender, n)
	stores := make([]*store.Store, n)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	for i := 0; i < n; i++ {
		inbound[i] = make(chan router.Envelope, 64)
		routers[i] = router.New(uint16(n), uint16(i), keygen.Descriptors())
		senders[i] = &meshSender{self: uint16(i), inbound: inbound}

		s, err := store.Open(filepath.Join(t.TempDir(), "bls.json"))
		require.NoError(t, err)
		stores[i] = s

		go routers[i].Listen(ctx, inbound[i])
	}

	type outcome struct {
		err error
	}
	results := make(chan outcome, n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			_, err := keygen.Run(ctx, sch, routers[i], senders[i], stores[i], metaHash, 1, threshold, n, uint16(i))
			results <- outcome{err}
		}()
	}
	for i := 0; i < n; i++ {
		o := <-results
		require.NoError(t, o.err)
	}

	return stores
}

func TestSigningDriverFullRunProducesVerifiableSignature(t *testing.T) {
	const n, threshold = 4, 3
	sch := crypto.New()

	var metaHash [32]byte
	metaHash[0] = 0x22

	stores := runKeygen(t, sch, n, threshold, metaHash)

	inbound := make([]chan router.Envelope, n)
	routers := make([]*router.Router, n)
	senders := make([]*meshSender, n)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for i := 0; i < n; i++ {
		inbound[i] = make(chan router.Envelope, 64)
		routers[i] = router.New(uint16(n), uint16(i), signing.Descriptors(0))
		senders[i] = &meshSender{self: uint16(i), inbound: inbound}
		go routers[i].Listen(ctx, inbound[i])
	}

	message := []byte("withdraw 100 units to account 7")

	type outcome struct {
		sig []byte
		err error
	}
	results := make(chan outcome, n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			sig, err := signing.Run(ctx, sch, routers[i], senders[i], stores[i], metaHash, message, threshold, n, uint16(i))
			results <- outcome{sig, err}
		}()
	}

	var outcomes []outcome
	for i := 0; i < n; i++ {
		outcomes = append(outcomes, <-results)
	}

	for _, o := range outcomes {
		require.NoError(t, o.err)
		require.NotEmpty(t, o.sig)
	}

	want := outcomes[0].sig
	for _, o := range outcomes[1:] {
		require.Equal(t, want, o.sig)
	}
}

func TestSigningDriverFailsFastOnUnknownSession(t *testing.T) {
	sch := crypto.New()
	s, err := store.Open(filepath.Join(t.TempDir(), "bls.json"))
	require.NoError(t, err)

	rtr := router.New(2, 0, signing.Descriptors(0))
	sender := &meshSender{self: 0, inbound: []chan router.Envelope{make(chan router.Envelope, 1), make(chan router.Envelope, 1)}}

	var metaHash [32]byte
	metaHash[0] = 0xFF

	_, err = signing.Run(context.Background(), sch, rtr, sender, s, metaHash, []byte("msg"), 1, 2, 0)
	require.Error(t, err)
}

func TestSigningDriverCompletesEarlyWithMinShares(t *testing.T) {
	const n, threshold = 5, 3
	sch := crypto.New()

	var metaHash [32]byte
	metaHash[0] = 0x33

	stores := runKeygen(t, sch, n, threshold, metaHash)

	inbound := make([]chan router.Envelope, n)
	routers := make([]*router.Router, n)
	senders := make([]*meshSender, n)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Only threshold-1 peer shares are required before a router completes,
	// matching the early-completion shortcut signing is allowed at t shares.
	for i := 0; i < n; i++ {
		inbound[i] = make(chan router.Envelope, 64)
		routers[i] = router.New(uint16(n), uint16(i), signing.Descriptors(threshold-1))
		senders[i] = &meshSender{self: uint16(i), inbound: inbound}
		go routers[i].Listen(ctx, inbound[i])
	}

	message := []byte("early completion message")

	// Only the first `threshold` parties participate; the rest never call Run,
	// so their channels stay unconsumed but that's fine since MinCount lets
	// the active parties complete without them.
	type outcome struct {
		sig []byte
		err error
	}
	results := make(chan outcome, threshold)
	for i := 0; i < threshold; i++ {
		i := i
		go func() {
			sig, err := signing.Run(ctx, sch, routers[i], senders[i], stores[i], metaHash, message, threshold, n, uint16(i))
			results <- outcome{sig, err}
		}()
	}

	var outcomes []outcome
	for i := 0; i < threshold; i++ {
		outcomes = append(outcomes, <-results)
	}

	for _, o := range outcomes {
		require.NoError(t, o.err)
		require.NotEmpty(t, o.sig)
	}
}
