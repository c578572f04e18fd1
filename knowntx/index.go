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

package knowntx

import (
	"bytes"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/on-community/watcher-core/ledger"
	"github.com/on-community/watcher-core/postypes"
	"github.com/on-community/watcher-core/txs"
)

// Entry is one transaction in the KnownTx index: a signed transaction plus,
// if it was found in a fetched block, the position it was included at.
type Entry struct {
	Hash     common.Hash
	SignedTx txs.Signed

	// Included is true if this entry came from a fetched block rather than
	// the IFE appendix.
	Included   bool
	Blknum     uint64
	Txindex    uint32
	RawTxBytes []byte // exact wire bytes as fetched, for verbatim-match checks
}

// Index is the unified view over (IFE transactions ∪ fetched block
// transactions), with optional inclusion position — the double-spend
// search substrate for check_validity and challenge-data assembly.
type Index struct {
	entries []Entry
}

// Build merges an Appendix with the transactions of fetched blocks into a
// single Index. Appendix entries are added first, then block entries — so
// when both exist for the same hash (an IFE transaction later included in a
// block), callers see both: the appendix entry lacks inclusion data, the
// block entry carries it.
func Build(appendix Appendix, blocks []*ledger.Block) (Index, error) {
	var idx Index
	for h, s := range appendix {
		idx.entries = append(idx.entries, Entry{Hash: h, SignedTx: s})
	}
	for _, b := range blocks {
		if b == nil {
			continue
		}
		for ti, raw := range b.Transactions {
			s, err := txs.Decode(raw)
			if err != nil {
				continue // a malformed block transaction cannot double-spend anything
			}
			h, err := txs.RawTxHash(s.Raw)
			if err != nil {
				continue
			}
			idx.entries = append(idx.entries, Entry{
				Hash:       h,
				SignedTx:   s,
				Included:   true,
				Blknum:     b.Number,
				Txindex:    uint32(ti),
				RawTxBytes: raw,
			})
		}
	}
	return idx, nil
}

// All returns every entry in the index.
func (idx Index) All() []Entry { return idx.entries }

// FindDoubleSpenders returns every entry, other than one whose hash equals
// exclude, whose inputs contain position.
func (idx Index) FindDoubleSpenders(position postypes.Position, exclude common.Hash) []Entry {
	var out []Entry
	for _, e := range idx.entries {
		if e.Hash == exclude {
			continue
		}
		for _, in := range e.SignedTx.Raw.GetInputs() {
			if in == position {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

// FindVerbatim returns the block entries whose exact raw encoding equals
// txBytes, used by InvalidIFEChallenge / ProveCanonicalForIFE to detect a
// transaction's actual on-chain inclusion.
func (idx Index) FindVerbatim(txBytes []byte) []Entry {
	var out []Entry
	for _, e := range idx.entries {
		if !e.Included {
			continue
		}
		if bytes.Equal(e.RawTxBytes, txBytes) {
			out = append(out, e)
		}
	}
	return out
}

// IncludedPositionsAscending sorts included entries by (blknum, txindex)
// ascending — the "oldest competitor wins" / "oldest block wins" order
// spec §4.5/§4.4 require.
func IncludedPositionsAscending(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	copy(out, entries)
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func less(a, b Entry) bool {
	if !a.Included || !b.Included {
		// unincluded (appendix-only) entries sort after included ones —
		// an included competitor is always preferred evidence.
		return a.Included && !b.Included
	}
	if a.Blknum != b.Blknum {
		return a.Blknum < b.Blknum
	}
	return a.Txindex < b.Txindex
}
