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

	"github.com/on-community/watcher-core/ife"
	"github.com/on-community/watcher-core/knowntx"
	"github.com/on-community/watcher-core/ledger"
	"github.com/on-community/watcher-core/postypes"
	"github.com/on-community/watcher-core/txs"
	"github.com/on-community/watcher-core/watchreq"
)

// CompetitorEvidence is the tuple the root contract accepts to challenge an
// in-flight exit as non-canonical (spec §4.5).
type CompetitorEvidence struct {
	InFlightTxBytes   []byte
	InFlightInputIdx  uint8
	CompetingTxBytes  []byte
	CompetingInputIdx uint8
	CompetingSig      txs.Signature
	CompetingTxPos    postypes.Position
	CompetingProof    []byte
}

// findIFEByTxBytes decodes ifeTxBytes and looks the referenced IFE up by its
// raw tx hash.
func (c *Core) findIFEByTxBytes(ifeTxBytes []byte) (common.Hash, ife.Info, error) {
	signed, err := txs.Decode(ifeTxBytes)
	if err != nil {
		return common.Hash{}, ife.Info{}, err
	}
	h, err := txs.RawTxHash(signed.Raw)
	if err != nil {
		return common.Hash{}, ife.Info{}, err
	}
	info, ok := c.State.InFlightExits[h]
	if !ok {
		return common.Hash{}, ife.Info{}, wrapErr(KindIFENotKnownForTx, h.Hex(), nil)
	}
	return h, info, nil
}

// sharedInputSlot returns the slot index of raw's inputs array that equals
// pos, or false if none does.
func sharedInputSlot(raw txs.Raw, pos postypes.Position) (uint8, bool) {
	for i, in := range raw.Inputs {
		if !in.IsEmpty() && in == pos {
			return uint8(i), true
		}
	}
	return 0, false
}

// GetCompetitorForIFE assembles the evidence to challenge ifeTxBytes as
// non-canonical: the oldest (by ascending (blknum, txindex), spec I7)
// transaction in KnownTx that shares an input position with the IFE and is
// not the IFE itself.
func (c *Core) GetCompetitorForIFE(req watchreq.Request, bs ledger.BlockStore, ifeTxBytes []byte) (CompetitorEvidence, error) {
	ifeHash, info, err := c.findIFEByTxBytes(ifeTxBytes)
	if err != nil {
		return CompetitorEvidence{}, err
	}

	idx, err := c.buildIndex(req)
	if err != nil {
		return CompetitorEvidence{}, err
	}

	var best *competitorCandidate
	for _, in := range info.SignedTx.Raw.GetInputs() {
		for _, e := range idx.FindDoubleSpenders(in, ifeHash) {
			compSlot, ok := sharedInputSlot(e.SignedTx.Raw, in)
			if !ok {
				continue
			}
			ifeSlot, _ := sharedInputSlot(info.SignedTx.Raw, in)
			cand := competitorCandidate{entry: e, ifeSlot: ifeSlot, compSlot: compSlot}
			if best == nil || cand.less(*best) {
				best = &cand
			}
		}
	}
	if best == nil {
		return CompetitorEvidence{}, newErr(KindCompetitorNotFound, ifeHash.Hex())
	}

	ifeSpenders, err := txs.GetSpendersBySlot(info.SignedTx)
	if err != nil {
		return CompetitorEvidence{}, err
	}
	ifeAddr := ifeSpenders[best.ifeSlot]

	compSigs, err := sigsBySlot(best.entry.SignedTx)
	if err != nil {
		return CompetitorEvidence{}, err
	}
	compSig := compSigs[best.compSlot]
	if compSig == nil {
		panic(fmt.Sprintf("core: find_sig invariant violated: no signature at competitor slot %d", best.compSlot))
	}
	recovered, err := txs.RecoverSigner(mustTypedHash(best.entry.SignedTx.Raw), *compSig)
	if err != nil || recovered != ifeAddr {
		panic("core: find_sig invariant violated: competitor signature does not match the shared input's owner")
	}

	ifeTxBytesCanonical, err := txs.Encode(info.SignedTx)
	if err != nil {
		return CompetitorEvidence{}, err
	}
	compTxBytes, err := txs.Encode(best.entry.SignedTx)
	if err != nil {
		return CompetitorEvidence{}, err
	}

	ev := CompetitorEvidence{
		InFlightTxBytes:   ifeTxBytesCanonical,
		InFlightInputIdx:  best.ifeSlot,
		CompetingTxBytes:  compTxBytes,
		CompetingInputIdx: best.compSlot,
		CompetingSig:      *compSig,
	}
	if best.entry.Included {
		ev.CompetingTxPos = postypes.New(best.entry.Blknum, best.entry.Txindex, 0)
		block := req.BlocksResult[best.entry.Blknum]
		if block != nil && bs != nil {
			proof, err := bs.InclusionProof(block, best.entry.Txindex)
			if err != nil {
				return CompetitorEvidence{}, err
			}
			ev.CompetingProof = proof
		}
	}
	return ev, nil
}

type competitorCandidate struct {
	entry    knowntx.Entry
	ifeSlot  uint8
	compSlot uint8
}

func (a competitorCandidate) less(b competitorCandidate) bool {
	if a.entry.Included != b.entry.Included {
		return a.entry.Included
	}
	if !a.entry.Included {
		return false
	}
	if a.entry.Blknum != b.entry.Blknum {
		return a.entry.Blknum < b.entry.Blknum
	}
	return a.entry.Txindex < b.entry.Txindex
}

func mustTypedHash(r txs.Raw) common.Hash {
	h, err := txs.TypedDataHash(r)
	if err != nil {
		panic(fmt.Sprintf("core: typed data hash: %v", err))
	}
	return h
}

func sigsBySlot(s txs.Signed) ([postypes.MaxInputs]*txs.Signature, error) {
	var out [postypes.MaxInputs]*txs.Signature
	i := 0
	for slot, in := range s.Raw.Inputs {
		if in.IsEmpty() {
			continue
		}
		if i >= len(s.Sigs) {
			return out, fmt.Errorf("txs: %w", txs.ErrArityMismatch)
		}
		sig := s.Sigs[i]
		out[slot] = &sig
		i++
	}
	return out, nil
}

// CanonicalEvidence is the tuple proving an in-flight exit's transaction was
// actually included in a child-chain block (spec §4.5).
type CanonicalEvidence struct {
	InFlightTxBytes []byte
	InFlightTxPos   postypes.Position
	InFlightProof   []byte
}

// ProveCanonicalForIFE finds a known block transaction whose raw tx equals
// ifeTxBytes and returns its inclusion evidence.
func (c *Core) ProveCanonicalForIFE(req watchreq.Request, bs ledger.BlockStore, ifeTxBytes []byte) (CanonicalEvidence, error) {
	idx, err := c.buildIndex(req)
	if err != nil {
		return CanonicalEvidence{}, err
	}
	matches := idx.FindVerbatim(ifeTxBytes)
	if len(matches) == 0 {
		return CanonicalEvidence{}, newErr(KindCanonicalNotFound, "")
	}
	m := matches[0]
	block := req.BlocksResult[m.Blknum]
	var proof []byte
	if block != nil && bs != nil {
		proof, err = bs.InclusionProof(block, m.Txindex)
		if err != nil {
			return CanonicalEvidence{}, err
		}
	}
	return CanonicalEvidence{
		InFlightTxBytes: ifeTxBytes,
		InFlightTxPos:   postypes.New(m.Blknum, m.Txindex, 0),
		InFlightProof:   proof,
	}, nil
}

// PiggybackChallengeEvidence is the per-slot tuple proving a piggybacked
// input or output was double-spent (spec §4.5).
type PiggybackChallengeEvidence struct {
	TxBytes           []byte
	SpendingTxBytes   []byte
	SpendingInputIdx  uint8
	SpendingSig       txs.Signature
	SpendingTxPos     postypes.Position
	SpendingProof     []byte
	InFlightOutputPos postypes.Position // output variant only
	InFlightProof     []byte            // output variant only
}

// GetInputChallengeData rebuilds the invalid-piggyback proof for
// (ifeTxBytes, inputIndex) and returns the first spending transaction's
// evidence.
func (c *Core) GetInputChallengeData(req watchreq.Request, bs ledger.BlockStore, ifeTxBytes []byte, inputIndex uint8) (PiggybackChallengeEvidence, error) {
	if inputIndex >= postypes.MaxInputs {
		return PiggybackChallengeEvidence{}, newErr(KindPiggybackedIndexOutOfRange, fmt.Sprintf("input index %d", inputIndex))
	}
	ifeHash, info, err := c.findIFEByTxBytes(ifeTxBytes)
	if err != nil {
		return PiggybackChallengeEvidence{}, err
	}
	pos := info.InputPosition(inputIndex)
	if pos.IsEmpty() {
		return PiggybackChallengeEvidence{}, newErr(KindNoDoubleSpendOnPiggyback, "empty input slot")
	}
	idx, err := c.buildIndex(req)
	if err != nil {
		return PiggybackChallengeEvidence{}, err
	}
	spenders := idx.FindDoubleSpenders(pos, ifeHash)
	if len(spenders) == 0 {
		return PiggybackChallengeEvidence{}, newErr(KindNoDoubleSpendOnPiggyback, pos.String())
	}
	e := spenders[0]
	return c.buildSpendEvidence(req, bs, ifeTxBytes, pos, e)
}

// GetOutputChallengeData is the output-slot analogue of
// GetInputChallengeData; it additionally reports the IFE's own inclusion.
func (c *Core) GetOutputChallengeData(req watchreq.Request, bs ledger.BlockStore, ifeTxBytes []byte, outputIndex uint8) (PiggybackChallengeEvidence, error) {
	if outputIndex >= postypes.MaxOutputs {
		return PiggybackChallengeEvidence{}, newErr(KindPiggybackedIndexOutOfRange, fmt.Sprintf("output index %d", outputIndex))
	}
	ifeHash, info, err := c.findIFEByTxBytes(ifeTxBytes)
	if err != nil {
		return PiggybackChallengeEvidence{}, err
	}
	if info.TxSeenInBlocksAt == nil {
		return PiggybackChallengeEvidence{}, newErr(KindNoDoubleSpendOnPiggyback, "in-flight exit not yet seen included")
	}
	w := info.TxSeenInBlocksAt.Position
	pos := postypes.New(w.Blknum, w.Txindex, postypes.MaxInputs+outputIndex)

	idx, err := c.buildIndex(req)
	if err != nil {
		return PiggybackChallengeEvidence{}, err
	}
	spenders := idx.FindDoubleSpenders(pos, ifeHash)
	if len(spenders) == 0 {
		return PiggybackChallengeEvidence{}, newErr(KindNoDoubleSpendOnPiggyback, pos.String())
	}
	e := spenders[0]
	ev, err := c.buildSpendEvidence(req, bs, ifeTxBytes, pos, e)
	if err != nil {
		return PiggybackChallengeEvidence{}, err
	}
	ev.InFlightOutputPos = postypes.New(w.Blknum, w.Txindex, 0)
	ev.InFlightProof = info.TxSeenInBlocksAt.Proof
	return ev, nil
}

func (c *Core) buildSpendEvidence(req watchreq.Request, bs ledger.BlockStore, ifeTxBytes []byte, pos postypes.Position, e knowntx.Entry) (PiggybackChallengeEvidence, error) {
	slot, ok := sharedInputSlot(e.SignedTx.Raw, pos)
	if !ok {
		panic("core: find_sig invariant violated: spending transaction does not actually spend the claimed position")
	}
	sigs, err := sigsBySlot(e.SignedTx)
	if err != nil {
		return PiggybackChallengeEvidence{}, err
	}
	sig := sigs[slot]
	if sig == nil {
		panic("core: find_sig invariant violated: no signature at spending slot")
	}
	spendingTxBytes, err := txs.Encode(e.SignedTx)
	if err != nil {
		return PiggybackChallengeEvidence{}, err
	}

	ev := PiggybackChallengeEvidence{
		TxBytes:          ifeTxBytes,
		SpendingTxBytes:  spendingTxBytes,
		SpendingInputIdx: slot,
		SpendingSig:      *sig,
	}
	if e.Included {
		ev.SpendingTxPos = postypes.New(e.Blknum, e.Txindex, 0)
		block := req.BlocksResult[e.Blknum]
		if block != nil && bs != nil {
			proof, err := bs.InclusionProof(block, e.Txindex)
			if err != nil {
				return PiggybackChallengeEvidence{}, err
			}
			ev.SpendingProof = proof
		}
	}
	return ev, nil
}

// FindIFEsInBlocks scans fetched blocks for the exact encoded signed
// transaction of every IFE still lacking an inclusion witness, recording
// the witness in-memory only — it produces no db updates (spec §4.5, §9).
func (c *Core) FindIFEsInBlocks(req watchreq.Request, bs ledger.BlockStore) error {
	idx, err := c.buildIndex(req)
	if err != nil {
		return err
	}
	ifes := cloneIFEs(c.State.InFlightExits)
	for h, info := range ifes {
		if info.TxSeenInBlocksAt != nil {
			continue
		}
		txBytes, err := txs.Encode(info.SignedTx)
		if err != nil {
			return err
		}
		matches := idx.FindVerbatim(txBytes)
		if len(matches) == 0 {
			continue
		}
		m := matches[0]
		var proof []byte
		if bs != nil {
			if block := req.BlocksResult[m.Blknum]; block != nil {
				proof, err = bs.InclusionProof(block, m.Txindex)
				if err != nil {
					return err
				}
			}
		}
		info.TxSeenInBlocksAt = &ife.InclusionWitness{
			Position: postypes.New(m.Blknum, m.Txindex, 0),
			Proof:    proof,
		}
		ifes[h] = info
	}
	c.State.InFlightExits = ifes
	return nil
}
