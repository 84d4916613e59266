package crypto_test

import (
	"testing"

	"github.com/drand/kyber/share"
	"github.com/drand/kyber/util/random"
	"github.com/stretchr/testify/require"

	"github.com/tangle-network/bls-blueprint/crypto"
)

func TestThresholdSchemeSignRecoverVerify(t *testing.T) {
	sch := crypto.New()
	const n, tt = 5, 3

	secret := sch.KeyGroup.Scalar().Pick(random.New())
	priPoly := share.NewPriPoly(sch.KeyGroup, tt, secret, random.New())
	pubPoly := priPoly.Commit(sch.KeyGroup.Point().Base())
	priShares := priPoly.Shares(n)

	msg := []byte("threshold message")
	sigShares := make([][]byte, 0, tt)
	for _, ps := range priShares[:tt] {
		s, err := sch.Threshold.Sign(ps, msg)
		require.NoError(t, err)
		require.NoError(t, sch.Threshold.VerifyPartial(pubPoly, msg, s))
		sigShares = append(sigShares, s)
	}

	sig, err := sch.Threshold.Recover(pubPoly, msg, sigShares, tt, n)
	require.NoError(t, err)
	require.NoError(t, sch.Threshold.VerifyRecovered(pubPoly.Commit(), msg, sig))
}
