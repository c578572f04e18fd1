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

// Package watchreq implements the immutable Request value threaded through
// query planning and validity analysis (spec §4.3, §4.4).
package watchreq

import (
	"github.com/on-community/watcher-core/ledger"
	"github.com/on-community/watcher-core/postypes"
)

// Request carries one validity cycle's query plan and the external answers
// collected for it. Every planning/analysis function takes a Request by
// value and returns a new Request with additional fields populated — none
// mutate the receiver, so a Request is safe to branch and compare across
// phases (spec §5: "every read-analysis function takes &State").
type Request struct {
	EthHeightNow uint64
	BlknumNow    uint64

	// UTXOsToCheck is the deduplicated, sorted position list produced by
	// DetermineUTXOExistenceToGet (plus the IFE-input subset from
	// DetermineIFEInputUTXOsExistenceToGet, unioned in).
	UTXOsToCheck []postypes.Position

	// UTXOExistsResult answers UTXOsToCheck, keyed by position. A position
	// absent from this map defaults to "exists" per spec §4.3.
	UTXOExistsResult map[postypes.Position]bool

	// SpendsToGet is produced by DetermineSpendsToGet once
	// UTXOExistsResult is populated.
	SpendsToGet []postypes.Position

	// SpentBlknumResult maps each of SpendsToGet that the ledger could
	// answer to the block it was spent in; positions answered NotFound are
	// simply absent (spec §4.3, handle_spent_blknum_result).
	SpentBlknumResult map[postypes.Position]uint64

	// BlocksToFetch is the deduplicated set of blknums derived from
	// SpentBlknumResult.
	BlocksToFetch []uint64

	// BlocksResult holds every block BlocksToFetch could resolve, keyed by
	// blknum; an unresolved blknum is simply absent.
	BlocksResult map[uint64]*ledger.Block
}

// New starts a Request for one validity cycle.
func New(ethHeightNow, blknumNow uint64) Request {
	return Request{EthHeightNow: ethHeightNow, BlknumNow: blknumNow}
}

// WithUTXOsToCheck returns a copy of r with UTXOsToCheck set.
func (r Request) WithUTXOsToCheck(positions []postypes.Position) Request {
	r.UTXOsToCheck = postypes.SortPositions(positions)
	return r
}

// WithUTXOExistsResult returns a copy of r with the ledger's existence
// answers attached.
func (r Request) WithUTXOExistsResult(result map[postypes.Position]bool) Request {
	r.UTXOExistsResult = result
	return r
}

// Exists reports whether position is known to exist, defaulting to true
// when the position was never checked (spec §4.3).
func (r Request) Exists(position postypes.Position) bool {
	if r.UTXOExistsResult == nil {
		return true
	}
	v, ok := r.UTXOExistsResult[position]
	if !ok {
		return true
	}
	return v
}

// WithSpendsToGet returns a copy of r with SpendsToGet set.
func (r Request) WithSpendsToGet(positions []postypes.Position) Request {
	r.SpendsToGet = postypes.SortPositions(positions)
	return r
}

// WithSpentBlknumResult returns a copy of r with the ledger's spend-query
// answers attached and BlocksToFetch derived from their unique blknums.
func (r Request) WithSpentBlknumResult(result map[postypes.Position]uint64) Request {
	r.SpentBlknumResult = result
	seen := make(map[uint64]struct{}, len(result))
	var blknums []uint64
	for _, bn := range result {
		if _, ok := seen[bn]; ok {
			continue
		}
		seen[bn] = struct{}{}
		blknums = append(blknums, bn)
	}
	r.BlocksToFetch = blknums
	return r
}

// WithBlocksResult returns a copy of r with fetched blocks attached.
func (r Request) WithBlocksResult(blocks map[uint64]*ledger.Block) Request {
	r.BlocksResult = blocks
	return r
}

// Blocks returns every successfully fetched block, in no particular order.
func (r Request) Blocks() []*ledger.Block {
	out := make([]*ledger.Block, 0, len(r.BlocksResult))
	for _, b := range r.BlocksResult {
		if b != nil {
			out = append(out, b)
		}
	}
	return out
}
