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

// Package knowntx provides the TxAppendix projection (all signed
// transactions currently known from in-flight exits) and the unified
// KnownTx index over the appendix and fetched block transactions — the
// double-spend search substrate for validity analysis and challenge
// assembly.
package knowntx

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/on-community/watcher-core/txs"
)

// Appendix is the set of all signed transactions currently known from
// in-flight exits, keyed by raw tx hash.
type Appendix map[common.Hash]txs.Signed

// BuildAppendix projects ifeTxs (one per in-flight exit) into an Appendix.
func BuildAppendix(ifeTxs []txs.Signed) (Appendix, error) {
	a := make(Appendix, len(ifeTxs))
	for _, s := range ifeTxs {
		h, err := txs.RawTxHash(s.Raw)
		if err != nil {
			return nil, err
		}
		a[h] = s
	}
	return a, nil
}
