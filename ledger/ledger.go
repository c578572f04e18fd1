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

// Package ledger defines the external collaborator interfaces the core
// consumes — it performs no I/O itself (spec §1, §6). The only
// implementation in this module is memledger, an in-memory reference one.
package ledger

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/on-community/watcher-core/postypes"
)

// Ledger answers UTXO-existence and spend-provenance questions the core
// cannot derive on its own (it does not own the canonical UTXO set, spec
// §1).
type Ledger interface {
	// UTXOExists reports, for each position, whether it is currently an
	// unspent output. Parallel to positions.
	UTXOExists(ctx context.Context, positions []postypes.Position) ([]bool, error)

	// SpentBlknum returns the block in which position was spent, or
	// (0, false) if unknown (may legitimately happen when a UTXO was
	// removed by exit finalization rather than by a spend — spec §4.3).
	SpentBlknum(ctx context.Context, position postypes.Position) (uint64, bool, error)
}

// Block is one fetched child-chain block.
type Block struct {
	Number       uint64
	Hash         common.Hash
	Transactions [][]byte // canonical wire-encoded signed transactions
}

// BlockStore fetches child-chain blocks and produces Merkle inclusion
// proofs against a block's hash (the core never verifies these proofs
// itself — spec §1).
type BlockStore interface {
	// GetBlocks returns, for each blknum, the block or (nil, false) if not
	// found.
	GetBlocks(ctx context.Context, blknums []uint64) ([]*Block, []bool, error)

	// InclusionProof returns the Merkle proof for the transaction at
	// txindex within block, against block.Hash.
	InclusionProof(block *Block, txindex uint32) ([]byte, error)
}

// DbUpdate is an opaque persistence instruction the core emits; the driver
// applies it atomically with accepting the ingest call that produced it
// (spec §5, §6).
type DbUpdate interface {
	isDbUpdate()
}

// PutExit upserts the blob for the exit at Position.
type PutExit struct {
	Position postypes.Position
	Blob     []byte
}

// DeleteExit removes the exit at Position.
type DeleteExit struct {
	Position postypes.Position
}

// PutIFE upserts the blob for the in-flight exit keyed by RawTxHash.
type PutIFE struct {
	RawTxHash common.Hash
	Blob      []byte
}

// PutCompetitor upserts the blob for the competitor keyed by RawTxHash.
type PutCompetitor struct {
	RawTxHash common.Hash
	Blob      []byte
}

func (PutExit) isDbUpdate()       {}
func (DeleteExit) isDbUpdate()    {}
func (PutIFE) isDbUpdate()        {}
func (PutCompetitor) isDbUpdate() {}

// Persistence is the key-value store the driver applies DbUpdates to, and
// the source of a Core's startup snapshot (spec §6, "OMG.DB").
type Persistence interface {
	Apply(ctx context.Context, updates []DbUpdate) error
}
