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
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/on-community/watcher-core/event"
	"github.com/on-community/watcher-core/exitinfo"
	"github.com/on-community/watcher-core/ife"
	"github.com/on-community/watcher-core/ledger"
	"github.com/on-community/watcher-core/postypes"
	"github.com/on-community/watcher-core/txs"
)

// NewExitEvent is one standard-exit-started event reported by the root
// contract.
type NewExitEvent struct {
	UTXOPos       postypes.Position
	OutputTxBytes []byte // the raw transaction that produced UTXOPos
	EthHeight     uint64
}

// ContractExitStatus is the contract's on-chain status for one exit at the
// time it was reported.
type ContractExitStatus struct {
	Owner common.Address
}

// NewExits ingests standard-exit-started events, inserting one ExitInfo per
// event (spec §4.2).
func (c *Core) NewExits(events []NewExitEvent, statuses []ContractExitStatus) ([]ledger.DbUpdate, error) {
	if len(events) != len(statuses) {
		return nil, wrapErr(KindUnexpectedEvents, fmt.Sprintf("%d events, %d statuses", len(events), len(statuses)), ErrUnexpectedEvents)
	}
	exits := cloneExits(c.State.Exits)
	var updates []ledger.DbUpdate
	for i, ev := range events {
		if _, exists := exits[ev.UTXOPos]; exists {
			continue // insertion never overwrites — assumed unique from the contract
		}
		raw, err := txs.DecodeRawOnly(ev.OutputTxBytes)
		if err != nil {
			return nil, err
		}
		if int(ev.UTXOPos.Oindex) >= len(raw.Outputs) {
			return nil, wrapErr(KindDecode, "output index out of range for decoded transaction", nil)
		}
		out := raw.Outputs[ev.UTXOPos.Oindex]
		ei := exitinfo.ExitInfo{
			Amount:    out.Amount,
			Currency:  out.Currency,
			Owner:     out.Owner,
			Active:    statuses[i].Owner != txs.ZeroAddr,
			EthHeight: ev.EthHeight,
		}
		exits[ev.UTXOPos] = ei
		blob, err := ExitToBlob(ei)
		if err != nil {
			return nil, err
		}
		updates = append(updates, ledger.PutExit{Position: ev.UTXOPos, Blob: blob})
		log_.Debug("new standard exit", "position", ev.UTXOPos, "active", ei.Active)
	}
	c.State.Exits = exits
	c.refreshGauges()
	return updates, nil
}

// NewIFEEvent is one in-flight-exit-started event reported by the root
// contract. TxBytes is the full signed-transaction wire encoding (raw
// transaction plus per-input signatures, spec §4.2).
type NewIFEEvent struct {
	TxBytes    []byte
	ContractID ife.ContractID
}

// ContractIFEStatus is the contract's on-chain status for one in-flight
// exit at the time it was reported.
type ContractIFEStatus struct {
	Timestamp uint64
	EthHeight uint64
}

// NewInFlightExits ingests in-flight-exit-started events (spec §4.2).
func (c *Core) NewInFlightExits(events []NewIFEEvent, statuses []ContractIFEStatus) ([]ledger.DbUpdate, error) {
	if len(events) != len(statuses) {
		return nil, wrapErr(KindUnexpectedEvents, fmt.Sprintf("%d events, %d statuses", len(events), len(statuses)), ErrUnexpectedEvents)
	}
	ifes := cloneIFEs(c.State.InFlightExits)
	var updates []ledger.DbUpdate
	for i, ev := range events {
		signed, err := txs.Decode(ev.TxBytes)
		if err != nil {
			return nil, err
		}
		h, err := txs.RawTxHash(signed.Raw)
		if err != nil {
			return nil, err
		}
		if _, exists := ifes[h]; exists {
			continue
		}
		info := ife.Info{
			SignedTx:   signed,
			ContractID: ev.ContractID,
			Timestamp:  statuses[i].Timestamp,
			EthHeight:  statuses[i].EthHeight,
			Active:     statuses[i].Timestamp != 0,
			Canonical:  true,
		}
		ifes[h] = info
		blob, err := IFEToBlob(info)
		if err != nil {
			return nil, err
		}
		updates = append(updates, ledger.PutIFE{RawTxHash: h, Blob: blob})
		log_.Debug("new in-flight exit", "hash", h, "active", info.Active)
	}
	c.State.InFlightExits = ifes
	c.refreshGauges()
	return updates, nil
}

// PiggybackRequest names one in-flight exit's slot to piggyback or
// un-piggyback. OutputIndex follows the oindex convention: [0,4) addresses
// an input slot, [4,8) an output slot (spec §3).
type PiggybackRequest struct {
	TxHash      common.Hash
	OutputIndex uint8
}

func (c *Core) getIFE(h common.Hash) (ife.Info, bool) {
	info, ok := c.State.InFlightExits[h]
	return info, ok
}

// NewPiggybacks sets the piggyback bit for each request's slot. Unknown IFEs
// are a hard error (the slot cannot exist without its IFE); piggybacking an
// already-piggybacked slot is a no-op (spec §4.2, I3).
func (c *Core) NewPiggybacks(requests []PiggybackRequest) ([]ledger.DbUpdate, error) {
	ifes := cloneIFEs(c.State.InFlightExits)
	var updates []ledger.DbUpdate
	for _, r := range requests {
		info, ok := ifes[r.TxHash]
		if !ok {
			return nil, &UnknownInFlightExitError{IDs: []common.Hash{r.TxHash}}
		}
		if r.OutputIndex < postypes.MaxInputs {
			if info.PiggybackedInputs.IsSet(r.OutputIndex) {
				continue
			}
			info.PiggybackedInputs = info.PiggybackedInputs.Set(r.OutputIndex)
		} else {
			idx := r.OutputIndex - postypes.MaxInputs
			if info.PiggybackedOutputs.IsSet(idx) {
				continue
			}
			info.PiggybackedOutputs = info.PiggybackedOutputs.Set(idx)
		}
		ifes[r.TxHash] = info
		blob, err := IFEToBlob(info)
		if err != nil {
			return nil, err
		}
		updates = append(updates, ledger.PutIFE{RawTxHash: r.TxHash, Blob: blob})
	}
	c.State.InFlightExits = ifes
	return updates, nil
}

// ChallengePiggybacks clears the piggyback bit for each request's slot.
// Unknown IFEs or non-piggybacked slots are silently skipped (spec §4.2).
func (c *Core) ChallengePiggybacks(requests []PiggybackRequest) ([]ledger.DbUpdate, error) {
	ifes := cloneIFEs(c.State.InFlightExits)
	var updates []ledger.DbUpdate
	for _, r := range requests {
		info, ok := ifes[r.TxHash]
		if !ok {
			continue
		}
		var changed bool
		if r.OutputIndex < postypes.MaxInputs {
			if info.PiggybackedInputs.IsSet(r.OutputIndex) {
				info.PiggybackedInputs = info.PiggybackedInputs.Clear(r.OutputIndex)
				changed = true
			}
		} else {
			idx := r.OutputIndex - postypes.MaxInputs
			if info.PiggybackedOutputs.IsSet(idx) {
				info.PiggybackedOutputs = info.PiggybackedOutputs.Clear(idx)
				changed = true
			}
		}
		if !changed {
			continue
		}
		ifes[r.TxHash] = info
		blob, err := IFEToBlob(info)
		if err != nil {
			return nil, err
		}
		updates = append(updates, ledger.PutIFE{RawTxHash: r.TxHash, Blob: blob})
	}
	c.State.InFlightExits = ifes
	return updates, nil
}

// ChallengeExits drops the listed positions from Exits (spec §4.2, I2:
// idempotent on unknown positions).
func (c *Core) ChallengeExits(positions []postypes.Position) []ledger.DbUpdate {
	exits := cloneExits(c.State.Exits)
	var updates []ledger.DbUpdate
	for _, p := range positions {
		if _, ok := exits[p]; !ok {
			continue
		}
		delete(exits, p)
		updates = append(updates, ledger.DeleteExit{Position: p})
	}
	c.State.Exits = exits
	c.refreshGauges()
	return updates
}

// FinalizeExits processes both a batch of validly-finalized positions (which
// are dropped, emitting ExitFinalized) and a batch of invalidly-finalized
// positions (which are re-activated so they keep producing events, spec
// §4.2, I1).
func (c *Core) FinalizeExits(validPositions, invalidPositions []postypes.Position) ([]ledger.DbUpdate, []event.Event) {
	exits := cloneExits(c.State.Exits)
	var updates []ledger.DbUpdate
	var events []event.Event

	for _, p := range validPositions {
		ei, ok := exits[p]
		if !ok {
			continue
		}
		events = append(events, event.ExitFinalized{UTXOPos: p, Owner: ei.Owner, Currency: ei.Currency, Amount: ei.Amount})
		delete(exits, p)
		updates = append(updates, ledger.DeleteExit{Position: p})
	}
	for _, p := range invalidPositions {
		ei, ok := exits[p]
		if !ok {
			continue
		}
		ei.Active = true
		exits[p] = ei
		blob, err := ExitToBlob(ei)
		if err != nil {
			continue // the blob can always be re-derived next cycle; never block finalization on it
		}
		updates = append(updates, ledger.PutExit{Position: p, Blob: blob})
	}

	c.State.Exits = exits
	c.refreshGauges()
	return updates, events
}

// IFEChallengeEvent is one in-flight-exit non-canonicity challenge reported
// by the root contract: a competing transaction sharing an input position
// with the challenged IFE.
type IFEChallengeEvent struct {
	IFETxHash           common.Hash
	CompetingTxBytes    []byte
	CompetingInputIndex uint8
	CompetitorPosition  postypes.Position
}

// NewIFEChallenges decodes and stores one CompetitorInfo per event, flips
// the referenced IFE's canonicity to false, and records the competitor
// position (spec §4.2). It fails hard if the referenced IFE is unknown.
func (c *Core) NewIFEChallenges(events []IFEChallengeEvent) ([]ledger.DbUpdate, error) {
	ifes := cloneIFEs(c.State.InFlightExits)
	competitors := cloneCompetitors(c.State.Competitors)
	var updates []ledger.DbUpdate

	for _, ev := range events {
		info, ok := ifes[ev.IFETxHash]
		if !ok {
			return nil, wrapErr(KindIFENotKnownForTx, ev.IFETxHash.Hex(), nil)
		}
		competingSigned, err := txs.Decode(ev.CompetingTxBytes)
		if err != nil {
			return nil, err
		}
		competingHash, err := txs.RawTxHash(competingSigned.Raw)
		if err != nil {
			return nil, err
		}
		ci := ife.CompetitorInfo{SignedTx: competingSigned, CompetingInputIndex: ev.CompetingInputIndex}
		competitors[competingHash] = ci
		cblob, err := CompetitorToBlob(ci)
		if err != nil {
			return nil, err
		}
		updates = append(updates, ledger.PutCompetitor{RawTxHash: competingHash, Blob: cblob})

		info.Canonical = false
		info.CompetitorPosition = ev.CompetitorPosition
		ifes[ev.IFETxHash] = info
		iblob, err := IFEToBlob(info)
		if err != nil {
			return nil, err
		}
		updates = append(updates, ledger.PutIFE{RawTxHash: ev.IFETxHash, Blob: iblob})
		log_.Warn("in-flight exit challenged as non-canonical", "hash", ev.IFETxHash, "competitor", competingHash)
	}

	c.State.InFlightExits = ifes
	c.State.Competitors = competitors
	return updates, nil
}

// RespondToCanonicalChallenge flips txHash's IFE back to canonical, per the
// Open Question resolution in DESIGN.md: a later, stronger canonicity proof
// (the contract's respondToNonCanonicalChallenge) supersedes an earlier
// competitor challenge.
func (c *Core) RespondToCanonicalChallenge(txHash common.Hash) ([]ledger.DbUpdate, error) {
	ifes := cloneIFEs(c.State.InFlightExits)
	info, ok := ifes[txHash]
	if !ok {
		return nil, &UnknownInFlightExitError{IDs: []common.Hash{txHash}}
	}
	info.Canonical = true
	ifes[txHash] = info
	blob, err := IFEToBlob(info)
	if err != nil {
		return nil, err
	}
	c.State.InFlightExits = ifes
	return []ledger.DbUpdate{ledger.PutIFE{RawTxHash: txHash, Blob: blob}}, nil
}

// FinalizationPair names one in-flight exit slot to finalize.
type FinalizationPair struct {
	InFlightExitID common.Hash
	OutputIndex    uint8
}

func (c *Core) validateFinalizationPairs(pairs []FinalizationPair) error {
	var unknownIDs []common.Hash
	seenUnknown := map[common.Hash]struct{}{}
	for _, p := range pairs {
		if _, ok := c.State.InFlightExits[p.InFlightExitID]; !ok {
			if _, seen := seenUnknown[p.InFlightExitID]; !seen {
				seenUnknown[p.InFlightExitID] = struct{}{}
				unknownIDs = append(unknownIDs, p.InFlightExitID)
			}
		}
	}
	if len(unknownIDs) > 0 {
		return &UnknownInFlightExitError{IDs: unknownIDs}
	}

	var unknownPBs []UnknownPiggyback
	for _, p := range pairs {
		info := c.State.InFlightExits[p.InFlightExitID]
		var piggybacked bool
		if p.OutputIndex < postypes.MaxInputs {
			piggybacked = info.PiggybackedInputs.IsSet(p.OutputIndex)
		} else {
			piggybacked = info.PiggybackedOutputs.IsSet(p.OutputIndex - postypes.MaxInputs)
		}
		if !piggybacked {
			unknownPBs = append(unknownPBs, UnknownPiggyback{TxHash: p.InFlightExitID, OutputIndex: p.OutputIndex})
		}
	}
	if len(unknownPBs) > 0 {
		return &UnknownPiggybacksError{List: unknownPBs}
	}
	return nil
}

// FinalizeInFlightExits validates then applies a batch of in-flight exit
// finalizations, two-phase per spec §4.2: first every (id, output_index)
// must be known and piggybacked, then each is marked finalized. Any IFE
// named in invaliditiesByID with a non-empty invalidity list is forced
// active post-finalization so it keeps producing events; every other IFE
// with at least one slot finalized in this batch goes inactive (spec §3
// Lifecycle). Piggyback bitmaps are
// left unchanged on the finalized slot, per the Open Question resolution in
// DESIGN.md.
func (c *Core) FinalizeInFlightExits(pairs []FinalizationPair, invaliditiesByID map[common.Hash][]uint8) ([]ledger.DbUpdate, error) {
	if err := c.validateFinalizationPairs(pairs); err != nil {
		return nil, err
	}

	ifes := cloneIFEs(c.State.InFlightExits)
	touched := map[common.Hash]struct{}{}
	for _, p := range pairs {
		info := ifes[p.InFlightExitID]
		if !info.Active {
			continue
		}
		info.ExitMap = info.ExitMap.Set(p.OutputIndex)
		ifes[p.InFlightExitID] = info
		touched[p.InFlightExitID] = struct{}{}
	}

	var updates []ledger.DbUpdate
	for id := range touched {
		info := ifes[id]
		if len(invaliditiesByID[id]) > 0 {
			info.Active = true
		} else {
			info.Active = false
		}
		ifes[id] = info
		blob, err := IFEToBlob(info)
		if err != nil {
			return nil, err
		}
		updates = append(updates, ledger.PutIFE{RawTxHash: id, Blob: blob})
	}

	c.State.InFlightExits = ifes
	c.refreshGauges()
	return updates, nil
}

// FinalizationPositions are the UTXO positions a driver must additionally
// exit when finalizing an in-flight exit, split between input positions
// (already-existing UTXOs the IFE consumed) and output references (the
// IFE's own outputs, which may not have any real on-chain position yet).
type FinalizationPositions struct {
	InputPositions []postypes.Position
	OutputRefs     []OutputRef
}

// OutputRef names an in-flight exit's output slot that has no fixed
// position of its own until the exit is processed.
type OutputRef struct {
	TxHash      common.Hash
	OutputIndex uint8
}

// PrepareUTXOExitsForInFlightExitFinalizations is a dry-run variant of
// FinalizeInFlightExits: for each validated pair it returns which UTXOs a
// driver must additionally arrange to exit, without mutating state or
// producing db updates (spec §4.2).
func (c *Core) PrepareUTXOExitsForInFlightExitFinalizations(pairs []FinalizationPair) (map[common.Hash]FinalizationPositions, error) {
	if err := c.validateFinalizationPairs(pairs); err != nil {
		return nil, err
	}
	out := make(map[common.Hash]FinalizationPositions)
	for _, p := range pairs {
		info := c.State.InFlightExits[p.InFlightExitID]
		fp := out[p.InFlightExitID]
		if p.OutputIndex < postypes.MaxInputs {
			fp.InputPositions = append(fp.InputPositions, info.InputPosition(p.OutputIndex))
		} else {
			fp.OutputRefs = append(fp.OutputRefs, OutputRef{TxHash: p.InFlightExitID, OutputIndex: p.OutputIndex - postypes.MaxInputs})
		}
		out[p.InFlightExitID] = fp
	}
	return out, nil
}
