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

package knowntx

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/on-community/watcher-core/ledger"
	"github.com/on-community/watcher-core/postypes"
	"github.com/on-community/watcher-core/txs"
)

func signedSpending(t *testing.T, in postypes.Position) txs.Signed {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	owner := crypto.PubkeyToAddress(key.PublicKey)

	var raw txs.Raw
	raw.Inputs[0] = in
	raw.Outputs = []txs.Output{{Owner: owner, Currency: txs.ZeroAddr, Amount: uint256.NewInt(1)}}

	sig, err := txs.Sign(raw, key)
	require.NoError(t, err)
	return txs.Signed{Raw: raw, Sigs: []txs.Signature{sig}}
}

func encodeOrFail(t *testing.T, s txs.Signed) []byte {
	t.Helper()
	b, err := txs.Encode(s)
	require.NoError(t, err)
	return b
}

func TestFindDoubleSpendersAcrossAppendixAndBlocks(t *testing.T) {
	pos := postypes.New(1000, 0, 0)
	ifeTx := signedSpending(t, pos)
	blockTx := signedSpending(t, pos)

	appendix, err := BuildAppendix([]txs.Signed{ifeTx})
	require.NoError(t, err)

	block := &ledger.Block{Number: 2000, Hash: common.Hash{}, Transactions: [][]byte{encodeOrFail(t, blockTx)}}
	idx, err := Build(appendix, []*ledger.Block{block})
	require.NoError(t, err)

	ifeHash, err := txs.RawTxHash(ifeTx.Raw)
	require.NoError(t, err)

	spenders := idx.FindDoubleSpenders(pos, ifeHash)
	require.Len(t, spenders, 1)
	require.True(t, spenders[0].Included)
	require.Equal(t, uint64(2000), spenders[0].Blknum)
}

func TestFindVerbatimMatchesExactBytes(t *testing.T) {
	pos := postypes.New(1000, 0, 0)
	tx := signedSpending(t, pos)
	enc := encodeOrFail(t, tx)

	block := &ledger.Block{Number: 5000, Transactions: [][]byte{enc}}
	idx, err := Build(nil, []*ledger.Block{block})
	require.NoError(t, err)

	matches := idx.FindVerbatim(enc)
	require.Len(t, matches, 1)
	require.Equal(t, uint64(5000), matches[0].Blknum)
}

func TestIncludedPositionsAscendingOldestFirst(t *testing.T) {
	pos := postypes.New(1000, 0, 0)
	tx1 := signedSpending(t, pos)
	tx2 := signedSpending(t, pos)

	blocks := []*ledger.Block{
		{Number: 3000, Transactions: [][]byte{encodeOrFail(t, tx2)}},
		{Number: 2000, Transactions: [][]byte{encodeOrFail(t, tx1)}},
	}
	idx, err := Build(nil, blocks)
	require.NoError(t, err)

	ordered := IncludedPositionsAscending(idx.All())
	require.Equal(t, uint64(2000), ordered[0].Blknum)
	require.Equal(t, uint64(3000), ordered[1].Blknum)
}
