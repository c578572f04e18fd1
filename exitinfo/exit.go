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

// Package exitinfo holds the record for one standard UTXO exit.
package exitinfo

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ExitInfo is the state kept for a single standard exit, keyed by its UTXO
// position in core.State. Once Active is true it stays true until the exit
// is either validly finalized or successfully challenged; an invalid
// finalization re-activates it (see core.FinalizeExits).
type ExitInfo struct {
	Amount    *uint256.Int
	Currency  common.Address
	Owner     common.Address
	Active    bool
	EthHeight uint64
}
