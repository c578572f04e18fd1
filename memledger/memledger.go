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

// Package memledger is a reference, in-memory implementation of the
// ledger.Ledger, ledger.BlockStore and ledger.Persistence interfaces, for
// tests and local experimentation — never production use (spec §6 leaves
// all three as driver responsibilities; this is one driver).
package memledger

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"

	"github.com/on-community/watcher-core/core"
	"github.com/on-community/watcher-core/exitinfo"
	"github.com/on-community/watcher-core/ife"
	"github.com/on-community/watcher-core/ledger"
	"github.com/on-community/watcher-core/postypes"
)

var (
	exitPrefix       = []byte("e:")
	ifePrefix        = []byte("i:")
	competitorPrefix = []byte("c:")
)

// Store is a concurrency-safe, in-memory Ledger + BlockStore + Persistence.
// The UTXO and spend indices are held directly in memory (populated by
// tests via PutUTXO/MarkSpent); blob persistence rides on
// github.com/ethereum/go-ethereum/ethdb/memorydb the same way a production
// driver would ride a real key-value store.
type Store struct {
	mu sync.RWMutex

	db     ethdb.KeyValueStore
	utxos  map[postypes.Position]struct{}
	spent  map[postypes.Position]uint64
	blocks map[uint64]*ledger.Block
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		db:     memorydb.New(),
		utxos:  make(map[postypes.Position]struct{}),
		spent:  make(map[postypes.Position]uint64),
		blocks: make(map[uint64]*ledger.Block),
	}
}

// PutUTXO marks pos as currently unspent.
func (s *Store) PutUTXO(pos postypes.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.utxos[pos] = struct{}{}
}

// MarkSpent removes pos from the unspent set and records it as spent in
// blknum.
func (s *Store) MarkSpent(pos postypes.Position, blknum uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.utxos, pos)
	s.spent[pos] = blknum
}

// PutBlock makes b available to GetBlocks/InclusionProof.
func (s *Store) PutBlock(b *ledger.Block) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks[b.Number] = b
}

// UTXOExists implements ledger.Ledger.
func (s *Store) UTXOExists(_ context.Context, positions []postypes.Position) ([]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]bool, len(positions))
	for i, p := range positions {
		_, out[i] = s.utxos[p]
	}
	return out, nil
}

// SpentBlknum implements ledger.Ledger.
func (s *Store) SpentBlknum(_ context.Context, position postypes.Position) (uint64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bn, ok := s.spent[position]
	return bn, ok, nil
}

// GetBlocks implements ledger.BlockStore.
func (s *Store) GetBlocks(_ context.Context, blknums []uint64) ([]*ledger.Block, []bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	blocks := make([]*ledger.Block, len(blknums))
	found := make([]bool, len(blknums))
	for i, bn := range blknums {
		if b, ok := s.blocks[bn]; ok {
			blocks[i] = b
			found[i] = true
		}
	}
	return blocks, found, nil
}

// InclusionProof implements ledger.BlockStore with a minimal, self-checking
// proof: keccak256(block.Hash || txindex). It is opaque to the core (spec
// §1: the core never verifies proofs itself) and exists only so tests and
// local drivers have a deterministic, non-empty proof to carry around.
func (s *Store) InclusionProof(block *ledger.Block, txindex uint32) ([]byte, error) {
	if block == nil {
		return nil, fmt.Errorf("memledger: nil block")
	}
	var idx [4]byte
	binary.BigEndian.PutUint32(idx[:], txindex)
	h := crypto.Keccak256(block.Hash.Bytes(), idx[:])
	return h, nil
}

// Apply implements ledger.Persistence.
func (s *Store) Apply(_ context.Context, updates []ledger.DbUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := s.db.NewBatch()
	for _, u := range updates {
		switch v := u.(type) {
		case ledger.PutExit:
			if err := batch.Put(exitKey(v.Position), v.Blob); err != nil {
				return err
			}
		case ledger.DeleteExit:
			if err := batch.Delete(exitKey(v.Position)); err != nil {
				return err
			}
		case ledger.PutIFE:
			if err := batch.Put(ifeKey(v.RawTxHash), v.Blob); err != nil {
				return err
			}
		case ledger.PutCompetitor:
			if err := batch.Put(competitorKey(v.RawTxHash), v.Blob); err != nil {
				return err
			}
		default:
			return fmt.Errorf("memledger: unknown db update %T", u)
		}
	}
	return batch.Write()
}

// LoadSnapshot decodes every persisted blob back into the maps core.Init
// expects, the same "read everything back at startup" step spec §6
// describes for OMG.DB.
func (s *Store) LoadSnapshot() (map[postypes.Position]exitinfo.ExitInfo, map[common.Hash]ife.Info, map[common.Hash]ife.CompetitorInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exits := make(map[postypes.Position]exitinfo.ExitInfo)
	it := s.db.NewIterator(exitPrefix, nil)
	for it.Next() {
		pos, err := decodeExitKey(it.Key())
		if err != nil {
			it.Release()
			return nil, nil, nil, err
		}
		e, err := core.ExitFromBlob(it.Value())
		if err != nil {
			it.Release()
			return nil, nil, nil, err
		}
		exits[pos] = e
	}
	it.Release()
	if err := it.Error(); err != nil {
		return nil, nil, nil, err
	}

	ifes := make(map[common.Hash]ife.Info)
	it = s.db.NewIterator(ifePrefix, nil)
	for it.Next() {
		h := common.BytesToHash(it.Key()[len(ifePrefix):])
		info, err := core.IFEFromBlob(it.Value())
		if err != nil {
			it.Release()
			return nil, nil, nil, err
		}
		ifes[h] = info
	}
	it.Release()
	if err := it.Error(); err != nil {
		return nil, nil, nil, err
	}

	competitors := make(map[common.Hash]ife.CompetitorInfo)
	it = s.db.NewIterator(competitorPrefix, nil)
	for it.Next() {
		h := common.BytesToHash(it.Key()[len(competitorPrefix):])
		c, err := core.CompetitorFromBlob(it.Value())
		if err != nil {
			it.Release()
			return nil, nil, nil, err
		}
		competitors[h] = c
	}
	it.Release()
	if err := it.Error(); err != nil {
		return nil, nil, nil, err
	}

	return exits, ifes, competitors, nil
}

func exitKey(pos postypes.Position) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], pos.Encode())
	return append(append([]byte{}, exitPrefix...), buf[:]...)
}

func decodeExitKey(key []byte) (postypes.Position, error) {
	raw := key[len(exitPrefix):]
	if len(raw) != 8 {
		return postypes.Position{}, fmt.Errorf("memledger: malformed exit key")
	}
	return postypes.Decode(binary.BigEndian.Uint64(raw)), nil
}

func ifeKey(h common.Hash) []byte {
	return append(append([]byte{}, ifePrefix...), h.Bytes()...)
}

func competitorKey(h common.Hash) []byte {
	return append(append([]byte{}, competitorPrefix...), h.Bytes()...)
}
