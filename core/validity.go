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

	"github.com/on-community/watcher-core/event"
	"github.com/on-community/watcher-core/ife"
	"github.com/on-community/watcher-core/knowntx"
	"github.com/on-community/watcher-core/postypes"
	"github.com/on-community/watcher-core/txs"
	"github.com/on-community/watcher-core/watchreq"
)

// ChainStatus classifies the chain as healthy or byzantine for one validity
// cycle (spec §4.4). UnchallengedExit is the only non-Ok value.
type ChainStatus int

const (
	StatusOk ChainStatus = iota
	StatusUnchallengedExit
)

func (s ChainStatus) String() string {
	if s == StatusUnchallengedExit {
		return "unchallenged_exit"
	}
	return "ok"
}

// buildIndex assembles the KnownTx substrate for one validity cycle: every
// signed transaction known from the IFE appendix, merged with every
// transaction of every fetched block.
func (c *Core) buildIndex(req watchreq.Request) (knowntx.Index, error) {
	var ifeTxs []txs.Signed
	for _, info := range c.State.InFlightExits {
		ifeTxs = append(ifeTxs, info.SignedTx)
	}
	appendix, err := knowntx.BuildAppendix(ifeTxs)
	if err != nil {
		return knowntx.Index{}, err
	}
	return knowntx.Build(appendix, req.Blocks())
}

// CheckValidity is the core's read-only validity analysis: given a Request
// whose UTXOsToCheck/UTXOExistsResult/BlocksResult are populated, it
// returns the chain's status and every event this cycle's state justifies
// (spec §4.4). It is a pure function of (State, Request) — I4.
func (c *Core) CheckValidity(req watchreq.Request) (ChainStatus, []event.Event, error) {
	idx, err := c.buildIndex(req)
	if err != nil {
		return StatusOk, nil, err
	}

	missing := make(map[postypes.Position]struct{})
	for _, p := range req.UTXOsToCheck {
		if v, ok := req.UTXOExistsResult[p]; ok && !v {
			missing[p] = struct{}{}
		}
	}

	status := StatusOk
	var events []event.Event

	// 2+3+8: invalid standard exits, optionally late, unioned with the
	// IFE-appendix-overlap check below, deduplicated by position.
	invalidPositions := make(map[postypes.Position]struct{})

	for pos, ei := range c.State.Exits {
		if !ei.Active {
			continue
		}
		if _, isMissing := missing[pos]; isMissing {
			invalidPositions[pos] = struct{}{}
		}
	}

	// 8: standard exits whose position equals an input of any transaction
	// in the IFE appendix.
	for _, info := range c.State.InFlightExits {
		for _, in := range info.SignedTx.Raw.GetInputs() {
			if ei, ok := c.State.Exits[in]; ok && ei.Active {
				invalidPositions[in] = struct{}{}
			}
		}
	}

	for pos := range invalidPositions {
		ei := c.State.Exits[pos]
		metricInvalidExit.Inc(1)
		events = append(events, event.InvalidExit{UTXOPos: pos, Owner: ei.Owner, Currency: ei.Currency, Amount: ei.Amount, EthHeight: ei.EthHeight})
		if ei.EthHeight+c.State.SLAMargin <= req.EthHeightNow {
			status = StatusUnchallengedExit
			metricUnchallenged.Inc(1)
			events = append(events, event.UnchallengedExit{UTXOPos: pos, Owner: ei.Owner, Currency: ei.Currency, Amount: ei.Amount, EthHeight: ei.EthHeight})
		}
	}

	// 4: IFEs with competitors.
	for h, info := range c.State.InFlightExits {
		if !info.Canonical {
			continue
		}
		if hasDoubleSpentInput(idx, info, h) {
			txBytes, err := txs.Encode(info.SignedTx)
			if err != nil {
				return StatusOk, nil, err
			}
			metricNonCanonical.Inc(1)
			events = append(events, event.NonCanonicalIFE{TxBytes: txBytes})
		}
	}

	// 5: invalid IFE challenges — a non-canonical IFE whose raw tx appears
	// verbatim in a fetched block.
	for _, info := range c.State.InFlightExits {
		if info.Canonical {
			continue
		}
		txBytes, err := txs.Encode(info.SignedTx)
		if err != nil {
			return StatusOk, nil, err
		}
		if len(idx.FindVerbatim(txBytes)) > 0 {
			metricInvalidIFEChal.Inc(1)
			events = append(events, event.InvalidIFEChallenge{TxBytes: txBytes})
		}
	}

	// 6: invalid piggybacks.
	for h, info := range c.State.InFlightExits {
		inv, ok, err := invalidPiggybacksFor(idx, info, h)
		if err != nil {
			return StatusOk, nil, err
		}
		if ok {
			metricInvalidPB.Inc(1)
			events = append(events, inv)
		}
	}

	// 7: available piggybacks — active IFEs not found verbatim in any
	// fetched block.
	for _, info := range c.State.InFlightExits {
		if !info.Active {
			continue
		}
		txBytes, err := txs.Encode(info.SignedTx)
		if err != nil {
			return StatusOk, nil, err
		}
		if len(idx.FindVerbatim(txBytes)) > 0 {
			continue
		}
		avail, err := availablePiggybacksFor(info, txBytes)
		if err != nil {
			return StatusOk, nil, err
		}
		if avail != nil {
			metricPBAvailable.Inc(1)
			events = append(events, *avail)
		}
	}

	return status, events, nil
}

func hasDoubleSpentInput(idx knowntx.Index, info ife.Info, ifeHash common.Hash) bool {
	for _, in := range info.SignedTx.Raw.GetInputs() {
		if len(idx.FindDoubleSpenders(in, ifeHash)) > 0 {
			return true
		}
	}
	return false
}

func invalidPiggybacksFor(idx knowntx.Index, info ife.Info, ifeHash common.Hash) (event.InvalidPiggyback, bool, error) {
	var inputs, outputs []uint8

	for _, i := range info.PiggybackedInputs.Indices(postypes.MaxInputs) {
		pos := info.InputPosition(i)
		if pos.IsEmpty() {
			continue
		}
		if len(idx.FindDoubleSpenders(pos, ifeHash)) > 0 {
			inputs = append(inputs, i)
		}
	}
	for _, o := range info.PiggybackedOutputs.Indices(postypes.MaxOutputs) {
		if info.TxSeenInBlocksAt == nil {
			continue // an unincluded output has no position to double-spend
		}
		w := info.TxSeenInBlocksAt.Position
		pos := postypes.New(w.Blknum, w.Txindex, postypes.MaxInputs+o)
		if len(idx.FindDoubleSpenders(pos, ifeHash)) > 0 {
			outputs = append(outputs, o)
		}
	}

	if len(inputs) == 0 && len(outputs) == 0 {
		return event.InvalidPiggyback{}, false, nil
	}
	txBytes, err := txs.Encode(info.SignedTx)
	if err != nil {
		return event.InvalidPiggyback{}, false, err
	}
	return event.InvalidPiggyback{TxBytes: txBytes, Inputs: inputs, Outputs: outputs}, true, nil
}

func availablePiggybacksFor(info ife.Info, txBytes []byte) (*event.PiggybackAvailable, error) {
	spenders, err := txs.GetSpendersBySlot(info.SignedTx)
	if err != nil {
		return nil, err
	}

	var availIn, availOut []event.PiggybackSlot
	for i := uint8(0); i < postypes.MaxInputs; i++ {
		if info.PiggybackedInputs.IsSet(i) {
			continue
		}
		addr := spenders[i]
		if isNonZeroAddress(addr) {
			availIn = append(availIn, event.PiggybackSlot{Index: i, Address: addr})
		}
	}
	for i := uint8(0); i < postypes.MaxOutputs; i++ {
		if info.PiggybackedOutputs.IsSet(i) {
			continue
		}
		if int(i) >= len(info.SignedTx.Raw.Outputs) {
			continue
		}
		addr := info.SignedTx.Raw.Outputs[i].Owner
		if isNonZeroAddress(addr) {
			availOut = append(availOut, event.PiggybackSlot{Index: i, Address: addr})
		}
	}

	if len(availIn) == 0 && len(availOut) == 0 {
		return nil, nil
	}
	return &event.PiggybackAvailable{TxBytes: txBytes, AvailableInputs: availIn, AvailableOutputs: availOut}, nil
}

// isNonZeroAddress is named for what it keeps, not the source's inverted
// "zero_address?" name (spec §9 Open Questions): the available-piggybacks
// filter surfaces only non-zero spenders/owners.
func isNonZeroAddress(addr common.Address) bool {
	return addr != txs.ZeroAddr
}
