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

	"github.com/on-community/watcher-core/knowntx"
	"github.com/on-community/watcher-core/postypes"
	"github.com/on-community/watcher-core/txs"
	"github.com/on-community/watcher-core/watchreq"
)

// StandardExitChallengeEvidence is the tuple the root contract accepts to
// challenge a standard exit as spent (spec §4.6).
type StandardExitChallengeEvidence struct {
	ExitPos    postypes.Position
	InputIndex uint8
	TxBytes    []byte
	Sig        txs.Signature
}

// PlanStandardExitChallengeQuery starts the one-position query a standard
// exit challenge needs: where pos was spent, then which block that was in
// (spec §4.6). The caller resolves SpendsToGet and BlocksToFetch the same
// way as any other cycle, then passes the completed Request to
// StandardExitChallenge.
func PlanStandardExitChallengeQuery(ethHeightNow, blknumNow uint64, pos postypes.Position) watchreq.Request {
	return watchreq.New(ethHeightNow, blknumNow).WithSpendsToGet([]postypes.Position{pos})
}

// StandardExitChallenge locates, within req's fetched blocks, the
// transaction that spends pos and assembles the challenge tuple for it
// (spec §4.6). req must already carry BlocksResult for the block pos was
// reported spent in.
func (c *Core) StandardExitChallenge(req watchreq.Request, pos postypes.Position) (StandardExitChallengeEvidence, error) {
	idx, err := c.buildIndex(req)
	if err != nil {
		return StandardExitChallengeEvidence{}, err
	}

	spenders := idx.FindDoubleSpenders(pos, common.Hash{})
	var chosen *knowntx.Entry
	for _, e := range spenders {
		e := e
		if !e.Included {
			continue
		}
		if chosen == nil || e.Blknum < chosen.Blknum || (e.Blknum == chosen.Blknum && e.Txindex < chosen.Txindex) {
			chosen = &e
		}
	}
	if chosen == nil {
		return StandardExitChallengeEvidence{}, newErr(KindSpenderNotFound, pos.String())
	}

	slot, ok := sharedInputSlot(chosen.SignedTx.Raw, pos)
	if !ok {
		panic("core: find_sig invariant violated: spender does not actually spend the claimed position")
	}
	sigs, err := sigsBySlot(chosen.SignedTx)
	if err != nil {
		return StandardExitChallengeEvidence{}, err
	}
	sig := sigs[slot]
	if sig == nil {
		panic("core: find_sig invariant violated: no signature at spending slot")
	}
	txBytes, err := txs.Encode(chosen.SignedTx)
	if err != nil {
		return StandardExitChallengeEvidence{}, err
	}

	return StandardExitChallengeEvidence{
		ExitPos:    pos,
		InputIndex: slot,
		TxBytes:    txBytes,
		Sig:        *sig,
	}, nil
}
