// Copyright 2024 The watcher-core Authors
// This file is part of the watcher-core library.
//
// The watcher-core library is free software: you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// The watcher-core library is distributed in the hope that it will be
// useful, but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the GNU Lesser
// General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the watcher-core library. If not, see
// <http://www.gnu.org/licenses/>.

package core

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/on-community/watcher-core/event"
	"github.com/on-community/watcher-core/exitinfo"
	"github.com/on-community/watcher-core/ife"
	"github.com/on-community/watcher-core/ledger"
	"github.com/on-community/watcher-core/postypes"
	"github.com/on-community/watcher-core/txs"
	"github.com/on-community/watcher-core/watchreq"
)

// fakeBlockStore is a minimal ledger.BlockStore for tests that never
// exercise GetBlocks directly (core's own operations only read
// Request.BlocksResult; BlockStore is used purely for proof assembly).
type fakeBlockStore struct{}

func (fakeBlockStore) GetBlocks(context.Context, []uint64) ([]*ledger.Block, []bool, error) {
	return nil, nil, nil
}

func (fakeBlockStore) InclusionProof(block *ledger.Block, txindex uint32) ([]byte, error) {
	return []byte{0xaa, byte(txindex)}, nil
}

// TestHappyFinalization is seed scenario 1.
func TestHappyFinalization(t *testing.T) {
	owner := common.HexToAddress("0x00000000000000000000000000000000000001")
	pos := postypes.New(1000, 0, 0)
	c := New(10)
	c.State.Exits[pos] = exitinfo.ExitInfo{Amount: uint256.NewInt(10), Owner: owner, Active: true}

	updates, events := c.FinalizeExits([]postypes.Position{pos}, nil)
	require.Len(t, events, 1)
	fin, ok := events[0].(event.ExitFinalized)
	require.True(t, ok)
	require.Equal(t, pos, fin.UTXOPos)
	require.Equal(t, uint256.NewInt(10), fin.Amount)

	require.Len(t, updates, 1)
	require.IsType(t, ledger.DeleteExit{}, updates[0])
	_, stillExists := c.State.Exits[pos]
	require.False(t, stillExists)
}

// TestLateInvalidExit is seed scenario 2.
func TestLateInvalidExit(t *testing.T) {
	owner := common.HexToAddress("0x00000000000000000000000000000000000001")
	pos := postypes.New(1000, 0, 0)
	c := New(10) // sla_margin = 10
	c.State.Exits[pos] = exitinfo.ExitInfo{Owner: owner, Active: true, EthHeight: 100}

	req := watchreq.New(110, 2000).
		WithUTXOsToCheck([]postypes.Position{pos}).
		WithUTXOExistsResult(map[postypes.Position]bool{pos: false})

	status, events, err := c.CheckValidity(req)
	require.NoError(t, err)
	require.Equal(t, StatusUnchallengedExit, status)

	var sawInvalid, sawUnchallenged bool
	for _, e := range events {
		switch ev := e.(type) {
		case event.InvalidExit:
			require.Equal(t, pos, ev.UTXOPos)
			sawInvalid = true
		case event.UnchallengedExit:
			require.Equal(t, pos, ev.UTXOPos)
			sawUnchallenged = true
		}
	}
	require.True(t, sawInvalid)
	require.True(t, sawUnchallenged)
}

// TestPiggybackThenChallengeSeed is seed scenario 3 (output slot 0, oindex 4).
func TestPiggybackThenChallengeSeed(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	owner := crypto.PubkeyToAddress(key.PublicKey)

	var raw txs.Raw
	raw.Inputs[0] = postypes.New(1000, 0, 0)
	raw.Outputs = []txs.Output{{Owner: owner, Currency: txs.ZeroAddr, Amount: uint256.NewInt(1)}}
	sig, err := txs.Sign(raw, key)
	require.NoError(t, err)
	signed := txs.Signed{Raw: raw, Sigs: []txs.Signature{sig}}
	h, err := txs.RawTxHash(raw)
	require.NoError(t, err)

	c := New(10)
	c.State.InFlightExits[h] = ife.Info{SignedTx: signed, Active: true, Canonical: true}

	_, err = c.NewPiggybacks([]PiggybackRequest{{TxHash: h, OutputIndex: 4}})
	require.NoError(t, err)
	require.True(t, c.State.InFlightExits[h].IsOutputPiggybacked(0))

	updates, err := c.ChallengePiggybacks([]PiggybackRequest{{TxHash: h, OutputIndex: 4}})
	require.NoError(t, err)
	require.Len(t, updates, 1)
	require.False(t, c.State.InFlightExits[h].IsOutputPiggybacked(0))

	updates, err = c.ChallengePiggybacks([]PiggybackRequest{{TxHash: h, OutputIndex: 4}})
	require.NoError(t, err)
	require.Len(t, updates, 0)
}

// TestCompetitorFoundOlderWins is seed scenario 4 and invariant I7.
func TestCompetitorFoundOlderWins(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	in := postypes.New(1000, 0, 0)

	mkTx := func(metaByte byte) (txs.Signed, []byte) {
		var raw txs.Raw
		raw.Inputs[0] = in
		raw.Metadata[0] = metaByte
		raw.Outputs = []txs.Output{{Owner: crypto.PubkeyToAddress(key.PublicKey), Currency: txs.ZeroAddr, Amount: uint256.NewInt(1)}}
		sig, err := txs.Sign(raw, key)
		require.NoError(t, err)
		signed := txs.Signed{Raw: raw, Sigs: []txs.Signature{sig}}
		enc, err := txs.Encode(signed)
		require.NoError(t, err)
		return signed, enc
	}

	ifeSigned, ifeTxBytes := mkTx(0)
	ifeHash, err := txs.RawTxHash(ifeSigned.Raw)
	require.NoError(t, err)

	_, comp2000 := mkTx(1)
	_, comp3000 := mkTx(2)

	c := New(10)
	c.State.InFlightExits[ifeHash] = ife.Info{SignedTx: ifeSigned, Active: true, Canonical: true}

	req := watchreq.New(0, 0).WithBlocksResult(map[uint64]*ledger.Block{
		2000: {Number: 2000, Hash: common.Hash{0x20}, Transactions: [][]byte{comp2000}},
		3000: {Number: 3000, Hash: common.Hash{0x30}, Transactions: [][]byte{comp3000}},
	})

	ev, err := c.GetCompetitorForIFE(req, fakeBlockStore{}, ifeTxBytes)
	require.NoError(t, err)
	require.Equal(t, uint64(2000), ev.CompetingTxPos.Blknum)
	require.NotEmpty(t, ev.CompetingProof)
}

// TestInvalidIFEChallengeAndProveCanonical is seed scenario 5.
func TestInvalidIFEChallengeAndProveCanonical(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	var raw txs.Raw
	raw.Inputs[0] = postypes.New(900, 0, 0)
	raw.Outputs = []txs.Output{{Owner: crypto.PubkeyToAddress(key.PublicKey), Currency: txs.ZeroAddr, Amount: uint256.NewInt(1)}}
	sig, err := txs.Sign(raw, key)
	require.NoError(t, err)
	signed := txs.Signed{Raw: raw, Sigs: []txs.Signature{sig}}
	h, err := txs.RawTxHash(raw)
	require.NoError(t, err)
	txBytes, err := txs.Encode(signed)
	require.NoError(t, err)

	c := New(10)
	c.State.InFlightExits[h] = ife.Info{SignedTx: signed, Active: true, Canonical: false}

	req := watchreq.New(0, 0).WithBlocksResult(map[uint64]*ledger.Block{
		5000: {Number: 5000, Hash: common.Hash{0x50}, Transactions: [][]byte{txBytes}},
	})

	_, events, err := c.CheckValidity(req)
	require.NoError(t, err)

	var found bool
	for _, e := range events {
		if ev, ok := e.(event.InvalidIFEChallenge); ok {
			require.Equal(t, txBytes, ev.TxBytes)
			found = true
		}
		_, isAvailable := e.(event.PiggybackAvailable)
		require.False(t, isAvailable) // I8: never for a tx seen in a block
	}
	require.True(t, found)

	canon, err := c.ProveCanonicalForIFE(req, fakeBlockStore{}, txBytes)
	require.NoError(t, err)
	require.Equal(t, uint64(5000), canon.InFlightTxPos.Blknum)
	require.NotEmpty(t, canon.InFlightProof)
}

// TestUnknownFinalization is seed scenario 6.
func TestUnknownFinalization(t *testing.T) {
	c := New(10)
	unknownID := common.Hash{0xde, 0xad}
	_, err := c.FinalizeInFlightExits([]FinalizationPair{{InFlightExitID: unknownID, OutputIndex: 0}}, nil)
	var unknown *UnknownInFlightExitError
	require.ErrorAs(t, err, &unknown)
	require.Equal(t, []common.Hash{unknownID}, unknown.IDs)
	require.Len(t, c.State.InFlightExits, 0)
}
