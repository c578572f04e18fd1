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

// Package ife holds the records for in-flight exits and their competitors.
package ife

import (
	"github.com/on-community/watcher-core/postypes"
	"github.com/on-community/watcher-core/txs"
)

// ContractID is the 24-byte (192-bit) in-flight exit identifier assigned by
// the root contract.
type ContractID [24]byte

// InclusionWitness records where a transaction was found included in a
// child-chain block and the proof of that inclusion.
type InclusionWitness struct {
	Position postypes.Position
	Proof    []byte
}

// Info is the state kept for one in-flight exit, keyed by RawTxHash in
// core.State.
type Info struct {
	SignedTx   txs.Signed
	ContractID ContractID
	Timestamp  uint64
	EthHeight  uint64

	// Active mirrors contract state; it is additionally forced true on
	// invalid finalization (spec §3).
	Active bool

	// Canonical starts true and flips false on the first successful
	// competitor challenge; a later canonical response can flip it back
	// (see core.RespondToCanonicalChallenge, DESIGN.md Open Questions).
	Canonical bool

	PiggybackedInputs  Bitmap
	PiggybackedOutputs Bitmap

	// CompetitorPosition is recorded by new_ife_challenges alongside the
	// canonicity flip (spec §4.2); it is the position of the competitor
	// named by the most recent challenge, each challenge overwriting it.
	CompetitorPosition postypes.Position

	// ExitMap tracks, per oindex (0-3 inputs, 4-7 outputs), whether that
	// piggyback slot has been finalized.
	ExitMap Bitmap

	// TxSeenInBlocksAt is set in-memory only by core.FindIFEsInBlocks; it
	// is never persisted (spec §4.5, §9).
	TxSeenInBlocksAt *InclusionWitness
}

// RawTxHash is the key this IFE is stored under.
func (i Info) RawTxHash() ([32]byte, error) {
	h, err := txs.RawTxHash(i.SignedTx.Raw)
	if err != nil {
		return [32]byte{}, err
	}
	return h, nil
}

// IsInputPiggybacked reports whether input slot idx (0-3) is piggybacked.
func (i Info) IsInputPiggybacked(idx uint8) bool { return i.PiggybackedInputs.IsSet(idx) }

// IsOutputPiggybacked reports whether output slot idx (0-3, i.e. oindex
// idx+4) is piggybacked.
func (i Info) IsOutputPiggybacked(idx uint8) bool { return i.PiggybackedOutputs.IsSet(idx) }

// InputPosition returns the position of input slot idx, or the empty
// position if that slot is unused.
func (i Info) InputPosition(idx uint8) postypes.Position {
	if int(idx) >= len(i.SignedTx.Raw.Inputs) {
		return postypes.Empty
	}
	return i.SignedTx.Raw.Inputs[idx]
}

// CompetitorInfo is the record for a known competing transaction attached
// to an IFE, keyed by its own RawTxHash in core.State.
type CompetitorInfo struct {
	SignedTx            txs.Signed
	CompetingInputIndex uint8
}
