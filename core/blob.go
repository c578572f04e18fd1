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
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"github.com/on-community/watcher-core/exitinfo"
	"github.com/on-community/watcher-core/ife"
	"github.com/on-community/watcher-core/postypes"
	"github.com/on-community/watcher-core/txs"
)

// exitBlob is the persisted RLP shape of an ExitInfo (spec §6, "OMG.DB").
type exitBlob struct {
	Amount    *uint256.Int
	Currency  common.Address
	Owner     common.Address
	Active    bool
	EthHeight uint64
}

// ExitToBlob serializes an ExitInfo for a Persistence PutExit update.
func ExitToBlob(e exitinfo.ExitInfo) ([]byte, error) {
	amt := e.Amount
	if amt == nil {
		amt = uint256.NewInt(0)
	}
	return rlp.EncodeToBytes(exitBlob{Amount: amt, Currency: e.Currency, Owner: e.Owner, Active: e.Active, EthHeight: e.EthHeight})
}

// ExitFromBlob is the inverse of ExitToBlob.
func ExitFromBlob(blob []byte) (exitinfo.ExitInfo, error) {
	var b exitBlob
	if err := rlp.DecodeBytes(blob, &b); err != nil {
		return exitinfo.ExitInfo{}, wrapErr(KindDecode, "exit blob", err)
	}
	return exitinfo.ExitInfo{Amount: b.Amount, Currency: b.Currency, Owner: b.Owner, Active: b.Active, EthHeight: b.EthHeight}, nil
}

// ifeBlob is the persisted RLP shape of an InFlightExitInfo. TxSeenInBlocksAt
// is intentionally excluded — it is an in-memory-only witness (spec §4.5,
// §9) and must never be part of a durable snapshot.
type ifeBlob struct {
	SignedTxBytes      []byte
	ContractID         [24]byte
	Timestamp          uint64
	EthHeight          uint64
	Active             bool
	Canonical          bool
	PiggybackedInputs  uint8
	PiggybackedOutputs uint8
	ExitMap            uint8
	CompetitorBlknum   uint64
	CompetitorTxindex  uint32
	CompetitorOindex   uint8
}

// IFEToBlob serializes an Info for a Persistence PutIFE update.
func IFEToBlob(i ife.Info) ([]byte, error) {
	txBytes, err := txs.Encode(i.SignedTx)
	if err != nil {
		return nil, err
	}
	return rlp.EncodeToBytes(ifeBlob{
		SignedTxBytes:      txBytes,
		ContractID:         i.ContractID,
		Timestamp:          i.Timestamp,
		EthHeight:          i.EthHeight,
		Active:             i.Active,
		Canonical:          i.Canonical,
		PiggybackedInputs:  uint8(i.PiggybackedInputs),
		PiggybackedOutputs: uint8(i.PiggybackedOutputs),
		ExitMap:            uint8(i.ExitMap),
		CompetitorBlknum:   i.CompetitorPosition.Blknum,
		CompetitorTxindex:  i.CompetitorPosition.Txindex,
		CompetitorOindex:   i.CompetitorPosition.Oindex,
	})
}

// IFEFromBlob is the inverse of IFEToBlob. TxSeenInBlocksAt is always nil on
// the returned Info — find_ifes_in_blocks repopulates it in-memory per
// cycle.
func IFEFromBlob(blob []byte) (ife.Info, error) {
	var b ifeBlob
	if err := rlp.DecodeBytes(blob, &b); err != nil {
		return ife.Info{}, wrapErr(KindDecode, "ife blob", err)
	}
	signed, err := txs.Decode(b.SignedTxBytes)
	if err != nil {
		return ife.Info{}, err
	}
	return ife.Info{
		SignedTx:           signed,
		ContractID:         b.ContractID,
		Timestamp:          b.Timestamp,
		EthHeight:          b.EthHeight,
		Active:             b.Active,
		Canonical:          b.Canonical,
		PiggybackedInputs:  ife.Bitmap(b.PiggybackedInputs),
		PiggybackedOutputs: ife.Bitmap(b.PiggybackedOutputs),
		ExitMap:            ife.Bitmap(b.ExitMap),
		CompetitorPosition: postypes.Position{Blknum: b.CompetitorBlknum, Txindex: b.CompetitorTxindex, Oindex: b.CompetitorOindex},
	}, nil
}

// competitorBlob is the persisted RLP shape of a CompetitorInfo.
type competitorBlob struct {
	SignedTxBytes       []byte
	CompetingInputIndex uint8
}

// CompetitorToBlob serializes a CompetitorInfo for a Persistence
// PutCompetitor update.
func CompetitorToBlob(c ife.CompetitorInfo) ([]byte, error) {
	txBytes, err := txs.Encode(c.SignedTx)
	if err != nil {
		return nil, err
	}
	return rlp.EncodeToBytes(competitorBlob{SignedTxBytes: txBytes, CompetingInputIndex: c.CompetingInputIndex})
}

// CompetitorFromBlob is the inverse of CompetitorToBlob.
func CompetitorFromBlob(blob []byte) (ife.CompetitorInfo, error) {
	var b competitorBlob
	if err := rlp.DecodeBytes(blob, &b); err != nil {
		return ife.CompetitorInfo{}, wrapErr(KindDecode, "competitor blob", err)
	}
	signed, err := txs.Decode(b.SignedTxBytes)
	if err != nil {
		return ife.CompetitorInfo{}, err
	}
	return ife.CompetitorInfo{SignedTx: signed, CompetingInputIndex: b.CompetingInputIndex}, nil
}
