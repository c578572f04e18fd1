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

// Package event defines the closed set of events the core surfaces to
// downstream consumers (spec §6, §9 — "tagged-variant events... a closed
// sum type").
package event

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/on-community/watcher-core/postypes"
)

// Event is implemented by every event variant below. The unexported marker
// method seals the set so a type switch over Event is exhaustive-checkable
// at the dispatch boundary.
type Event interface {
	isEvent()
}

// InvalidExit is emitted for an active standard exit whose position no
// longer exists in the ledger.
type InvalidExit struct {
	UTXOPos   postypes.Position
	Owner     common.Address
	Currency  common.Address
	Amount    *uint256.Int
	EthHeight uint64
}

// UnchallengedExit is emitted alongside InvalidExit once the SLA margin has
// elapsed without a challenge.
type UnchallengedExit struct {
	UTXOPos   postypes.Position
	Owner     common.Address
	Currency  common.Address
	Amount    *uint256.Int
	EthHeight uint64
}

// NonCanonicalIFE is emitted for a canonical in-flight exit for which a
// double-spending competitor has been found.
type NonCanonicalIFE struct {
	TxBytes []byte
}

// InvalidIFEChallenge is emitted when a non-canonical in-flight exit's own
// transaction is found verbatim in a fetched block — i.e. the
// non-canonicity challenge itself was wrong and should be challenged back.
type InvalidIFEChallenge struct {
	TxBytes []byte
}

// PiggybackSlot names one available piggyback slot and the address that may
// claim it.
type PiggybackSlot struct {
	Index   uint8
	Address common.Address
}

// InvalidPiggyback is emitted per in-flight exit for every piggybacked slot
// found to be double-spent.
type InvalidPiggyback struct {
	TxBytes []byte
	Inputs  []uint8
	Outputs []uint8
}

// PiggybackAvailable is emitted for active in-flight exits not found in any
// fetched block, listing not-yet-piggybacked slots with a non-zero spender
// or owner.
type PiggybackAvailable struct {
	TxBytes          []byte
	AvailableInputs  []PiggybackSlot
	AvailableOutputs []PiggybackSlot
}

// ExitFinalized is emitted for every validly finalized standard exit.
type ExitFinalized struct {
	UTXOPos  postypes.Position
	Owner    common.Address
	Currency common.Address
	Amount   *uint256.Int
}

func (InvalidExit) isEvent()         {}
func (UnchallengedExit) isEvent()    {}
func (NonCanonicalIFE) isEvent()     {}
func (InvalidIFEChallenge) isEvent() {}
func (InvalidPiggyback) isEvent()    {}
func (PiggybackAvailable) isEvent()  {}
func (ExitFinalized) isEvent()       {}
