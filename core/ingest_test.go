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
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/on-community/watcher-core/ife"
	"github.com/on-community/watcher-core/ledger"
	"github.com/on-community/watcher-core/postypes"
	"github.com/on-community/watcher-core/txs"
)

func signedTxSpending(t *testing.T, in postypes.Position) (txs.Signed, common.Hash) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	owner := crypto.PubkeyToAddress(key.PublicKey)

	var raw txs.Raw
	raw.Inputs[0] = in
	raw.Outputs = []txs.Output{{Owner: owner, Currency: txs.ZeroAddr, Amount: uint256.NewInt(1)}}
	sig, err := txs.Sign(raw, key)
	require.NoError(t, err)
	signed := txs.Signed{Raw: raw, Sigs: []txs.Signature{sig}}
	h, err := txs.RawTxHash(raw)
	require.NoError(t, err)
	return signed, h
}

func TestNewExitsInsertsAndSkipsDuplicates(t *testing.T) {
	owner := common.HexToAddress("0x00000000000000000000000000000000000001")
	var raw txs.Raw
	raw.Outputs = []txs.Output{{Owner: owner, Currency: txs.ZeroAddr, Amount: uint256.NewInt(10)}}
	txBytes, err := txs.EncodeRaw(raw)
	require.NoError(t, err)

	pos := postypes.New(1000, 0, 0)
	c := New(10)
	updates, err := c.NewExits(
		[]NewExitEvent{{UTXOPos: pos, OutputTxBytes: txBytes, EthHeight: 5}},
		[]ContractExitStatus{{Owner: owner}},
	)
	require.NoError(t, err)
	require.Len(t, updates, 1)
	require.IsType(t, ledger.PutExit{}, updates[0])

	ei, ok := c.State.Exits[pos]
	require.True(t, ok)
	require.True(t, ei.Active)
	require.Equal(t, owner, ei.Owner)

	updates, err = c.NewExits(
		[]NewExitEvent{{UTXOPos: pos, OutputTxBytes: txBytes, EthHeight: 5}},
		[]ContractExitStatus{{Owner: owner}},
	)
	require.NoError(t, err)
	require.Len(t, updates, 0)
}

func TestNewExitsLengthMismatch(t *testing.T) {
	c := New(10)
	_, err := c.NewExits([]NewExitEvent{{}}, nil)
	require.ErrorIs(t, err, ErrUnexpectedEvents)
}

func TestNewInFlightExitsInserts(t *testing.T) {
	signed, h := signedTxSpending(t, postypes.New(1000, 0, 0))
	txBytes, err := txs.Encode(signed)
	require.NoError(t, err)

	c := New(10)
	updates, err := c.NewInFlightExits(
		[]NewIFEEvent{{TxBytes: txBytes, ContractID: ife.ContractID{1}}},
		[]ContractIFEStatus{{Timestamp: 100, EthHeight: 50}},
	)
	require.NoError(t, err)
	require.Len(t, updates, 1)

	info, ok := c.State.InFlightExits[h]
	require.True(t, ok)
	require.True(t, info.Active)
	require.True(t, info.Canonical)
}

func TestPiggybackThenChallengeIdempotent(t *testing.T) {
	signed, h := signedTxSpending(t, postypes.New(1000, 0, 0))
	c := New(10)
	c.State.InFlightExits[h] = ife.Info{SignedTx: signed, Active: true, Canonical: true}

	updates, err := c.NewPiggybacks([]PiggybackRequest{{TxHash: h, OutputIndex: 4}})
	require.NoError(t, err)
	require.Len(t, updates, 1)
	require.True(t, c.State.InFlightExits[h].IsOutputPiggybacked(0))

	updates, err = c.ChallengePiggybacks([]PiggybackRequest{{TxHash: h, OutputIndex: 4}})
	require.NoError(t, err)
	require.Len(t, updates, 1)
	require.False(t, c.State.InFlightExits[h].IsOutputPiggybacked(0))

	updates, err = c.ChallengePiggybacks([]PiggybackRequest{{TxHash: h, OutputIndex: 4}})
	require.NoError(t, err)
	require.Len(t, updates, 0)
}

func TestNewPiggybacksUnknownIFE(t *testing.T) {
	c := New(10)
	_, err := c.NewPiggybacks([]PiggybackRequest{{TxHash: common.Hash{0x1}, OutputIndex: 0}})
	var unknown *UnknownInFlightExitError
	require.ErrorAs(t, err, &unknown)
}

func TestChallengeExitsIdempotentOnUnknown(t *testing.T) {
	c := New(10)
	pos := postypes.New(1000, 0, 0)
	updates := c.ChallengeExits([]postypes.Position{pos})
	require.Len(t, updates, 0)
}

func TestFinalizeInFlightExitsUnknownID(t *testing.T) {
	c := New(10)
	_, err := c.FinalizeInFlightExits([]FinalizationPair{{InFlightExitID: common.Hash{0x9}, OutputIndex: 0}}, nil)
	var unknown *UnknownInFlightExitError
	require.ErrorAs(t, err, &unknown)
	require.Len(t, c.State.InFlightExits, 0)
}

func TestFinalizeInFlightExitsUnknownPiggyback(t *testing.T) {
	signed, h := signedTxSpending(t, postypes.New(1000, 0, 0))
	c := New(10)
	c.State.InFlightExits[h] = ife.Info{SignedTx: signed, Active: true, Canonical: true}

	_, err := c.FinalizeInFlightExits([]FinalizationPair{{InFlightExitID: h, OutputIndex: 0}}, nil)
	var unknownPB *UnknownPiggybacksError
	require.ErrorAs(t, err, &unknownPB)
}
