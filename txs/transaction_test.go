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

package txs

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/on-community/watcher-core/postypes"
)

func buildRaw(in postypes.Position, owner common.Address) Raw {
	var r Raw
	r.Inputs[0] = in
	r.Outputs = []Output{{Owner: owner, Currency: ZeroAddr, Amount: uint256.NewInt(100)}}
	return r
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	owner := common.HexToAddress("0x00000000000000000000000000000000000001")
	raw := buildRaw(postypes.New(1000, 0, 0), owner)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	sig, err := Sign(raw, key)
	require.NoError(t, err)

	signed := Signed{Raw: raw, Sigs: []Signature{sig}}
	enc, err := Encode(signed)
	require.NoError(t, err)

	got, err := Decode(enc)
	require.NoError(t, err)
	require.Equal(t, signed.Raw.Inputs, got.Raw.Inputs)
	require.Len(t, got.Raw.Outputs, 1)
	require.Equal(t, owner, got.Raw.Outputs[0].Owner)
	require.Equal(t, signed.Sigs, got.Sigs)
}

func TestGetInputsOmitsEmptySlots(t *testing.T) {
	var r Raw
	r.Inputs[0] = postypes.New(1000, 0, 0)
	r.Inputs[2] = postypes.New(2000, 1, 0)
	inputs := r.GetInputs()
	require.Equal(t, []postypes.Position{postypes.New(1000, 0, 0), postypes.New(2000, 1, 0)}, inputs)
}

func TestGetSpendersRecoversSigner(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	owner := crypto.PubkeyToAddress(key.PublicKey)

	raw := buildRaw(postypes.New(1000, 0, 0), owner)
	sig, err := Sign(raw, key)
	require.NoError(t, err)

	signed := Signed{Raw: raw, Sigs: []Signature{sig}}
	spenders, err := GetSpenders(signed)
	require.NoError(t, err)
	require.Equal(t, []common.Address{owner}, spenders)
}

func TestGetSpendersArityMismatch(t *testing.T) {
	owner := common.HexToAddress("0x00000000000000000000000000000000000001")
	raw := buildRaw(postypes.New(1000, 0, 0), owner)
	signed := Signed{Raw: raw, Sigs: nil}
	_, err := GetSpenders(signed)
	require.ErrorIs(t, err, ErrArityMismatch)
}

func TestDecodeRejectsMalformedBytes(t *testing.T) {
	_, err := Decode([]byte{0xff, 0xff, 0xff})
	require.Error(t, err)
	var de *DecodeError
	require.ErrorAs(t, err, &de)
}

func TestRawTxHashDeterministic(t *testing.T) {
	owner := common.HexToAddress("0x00000000000000000000000000000000000001")
	raw := buildRaw(postypes.New(1000, 0, 0), owner)
	h1, err := RawTxHash(raw)
	require.NoError(t, err)
	h2, err := RawTxHash(raw)
	require.NoError(t, err)
	require.Equal(t, h1, h2)
}
