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
	"github.com/on-community/watcher-core/ife"
	"github.com/on-community/watcher-core/postypes"
	"github.com/on-community/watcher-core/watchreq"
)

// DetermineUTXOExistenceToGet plans the existence query for one validity
// cycle: the union of active standard-exit positions, active IFE input
// positions, and active IFE piggybacked-output positions, filtered to
// 0 < blknum < blknum_now (spec §4.3).
func (c *Core) DetermineUTXOExistenceToGet(req watchreq.Request) watchreq.Request {
	var positions []postypes.Position

	for pos, ei := range c.State.Exits {
		if ei.Active {
			positions = append(positions, pos)
		}
	}
	for _, info := range c.State.InFlightExits {
		if !info.Active {
			continue
		}
		positions = append(positions, info.SignedTx.Raw.GetInputs()...)
		for _, idx := range info.PiggybackedOutputs.Indices(postypes.MaxOutputs) {
			positions = append(positions, outputPiggybackPosition(info, idx))
		}
	}

	filtered := make([]postypes.Position, 0, len(positions))
	for _, p := range positions {
		if p.Blknum > 0 && p.Blknum < req.BlknumNow {
			filtered = append(filtered, p)
		}
	}
	return req.WithUTXOsToCheck(filtered)
}

// outputPiggybackPosition derives the UTXO position of an IFE's piggybacked
// output, from its own recorded inclusion witness if known. Until the IFE's
// inclusion is discovered (find_ifes_in_blocks), a piggybacked output has
// no ledger position to check — outputPiggybackPosition returns the empty
// position, which DetermineUTXOExistenceToGet's blknum filter then drops.
func outputPiggybackPosition(info ife.Info, idx uint8) postypes.Position {
	if info.TxSeenInBlocksAt == nil {
		return postypes.Empty
	}
	w := info.TxSeenInBlocksAt.Position
	return postypes.New(w.Blknum, w.Txindex, postypes.MaxInputs+idx)
}

// DetermineIFEInputUTXOsExistenceToGet plans the subset of
// DetermineUTXOExistenceToGet that is specifically the inputs of active
// IFEs that have at least one piggybacked output — because an
// output-piggyback claim additionally requires proving its inputs were not
// spent (spec §4.3).
func (c *Core) DetermineIFEInputUTXOsExistenceToGet(req watchreq.Request) watchreq.Request {
	var positions []postypes.Position
	for _, info := range c.State.InFlightExits {
		if !info.Active || !info.PiggybackedOutputs.Any() {
			continue
		}
		positions = append(positions, info.SignedTx.Raw.GetInputs()...)
	}
	merged := append(append([]postypes.Position{}, req.UTXOsToCheck...), positions...)
	return req.WithUTXOsToCheck(merged)
}

// DetermineSpendsToGet plans the spend-location query once UTXOExistsResult
// is populated: the union of (IFE inputs ∪ IFE piggybacked outputs) found
// missing (spec §4.3). A position absent from UTXOExistsResult defaults to
// "exists" and is excluded.
func (c *Core) DetermineSpendsToGet(req watchreq.Request) watchreq.Request {
	var candidates []postypes.Position
	for _, info := range c.State.InFlightExits {
		if !info.Active {
			continue
		}
		candidates = append(candidates, info.SignedTx.Raw.GetInputs()...)
		for _, idx := range info.PiggybackedOutputs.Indices(postypes.MaxOutputs) {
			if pos := outputPiggybackPosition(info, idx); !pos.IsEmpty() {
				candidates = append(candidates, pos)
			}
		}
	}

	var missing []postypes.Position
	for _, p := range candidates {
		if !req.Exists(p) {
			missing = append(missing, p)
		}
	}
	return req.WithSpendsToGet(missing)
}

// HandleSpentBlknumResult filters a raw ledger answer for SpendsToGet,
// dropping positions the ledger could not resolve (which legitimately
// happens when the UTXO was removed by exit finalization rather than a
// spend) and returns the resolved position-to-blknum map (spec §4.3). The
// unique blknums to fetch are derived from that map by
// watchreq.Request.WithSpentBlknumResult.
func HandleSpentBlknumResult(answers map[postypes.Position]*uint64) map[postypes.Position]uint64 {
	out := make(map[postypes.Position]uint64, len(answers))
	for pos, bn := range answers {
		if bn == nil {
			log_.Warn("spent_blknum: position not found, likely removed by finalization rather than spend", "position", pos)
			continue
		}
		out[pos] = *bn
	}
	return out
}
