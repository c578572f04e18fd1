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

// Package txs decodes and encodes Plasma transactions, computes their
// canonical and typed-data hashes, and recovers input spenders from
// per-input signatures.
package txs

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"github.com/on-community/watcher-core/postypes"
)

// DecodeError wraps all malformed-input failures from Decode and Sign
// recovery, per spec §6 ("decoder must reject malformed input with
// DecodeError").
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("txs: decode error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("txs: decode error: %s", e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ErrInvalidSignature and ErrArityMismatch are the two GetSpenders failure
// kinds named in spec §4.1.
var (
	ErrInvalidSignature = errors.New("txs: invalid signature")
	ErrArityMismatch    = errors.New("txs: signature count does not match input count")
)

// SigLen is the length of a Plasma signature: 65 bytes (r||s||v).
const SigLen = 65

// Signature is a 65-byte (r||s||v) signature over a transaction's typed-data
// hash.
type Signature [SigLen]byte

// Output is one transaction output slot: an owner, a currency (ZeroAddr for
// ether), and an amount.
type Output struct {
	Owner    common.Address
	Currency common.Address
	Amount   *uint256.Int
}

// ZeroAddr is the sentinel for "ether" (as a currency) and "no owner" (as an
// owner), per spec §3.
var ZeroAddr = common.Address{}

// wireRaw is the canonical RLP shape of a raw transaction: up to MaxInputs
// packed input positions (0 = empty slot), up to MaxOutputs outputs, and a
// fixed 32-byte metadata field.
type wireRaw struct {
	Inputs   [postypes.MaxInputs]uint64
	Outputs  []wireOutput
	Metadata [32]byte
}

type wireOutput struct {
	Owner    common.Address
	Currency common.Address
	Amount   *uint256.Int
}

// wireSigned is the canonical RLP shape of a signed transaction on the wire:
// the raw transaction fields followed by a parallel signature list.
type wireSigned struct {
	Inputs   [postypes.MaxInputs]uint64
	Outputs  []wireOutput
	Metadata [32]byte
	Sigs     [][]byte
}

// Raw is a decoded raw (unsigned) transaction.
type Raw struct {
	Inputs   [postypes.MaxInputs]postypes.Position
	Outputs  []Output
	Metadata [32]byte
}

// Signed bundles a raw transaction with its parallel per-input signatures.
type Signed struct {
	Raw  Raw
	Sigs []Signature
}

// NumInputs reports the number of non-empty input slots.
func (r Raw) NumInputs() int {
	n := 0
	for _, in := range r.Inputs {
		if !in.IsEmpty() {
			n++
		}
	}
	return n
}

// GetInputs returns the non-empty input positions, in slot order, per spec
// §4.1 ("omits empty (0,0,0) positions").
func (r Raw) GetInputs() []postypes.Position {
	out := make([]postypes.Position, 0, postypes.MaxInputs)
	for _, in := range r.Inputs {
		if !in.IsEmpty() {
			out = append(out, in)
		}
	}
	return out
}

// GetOutputs returns the transaction's outputs.
func (r Raw) GetOutputs() []Output {
	return r.Outputs
}

func toWireRaw(r Raw) wireRaw {
	var w wireRaw
	for i, in := range r.Inputs {
		w.Inputs[i] = in.Encode()
	}
	w.Outputs = make([]wireOutput, len(r.Outputs))
	for i, o := range r.Outputs {
		amt := o.Amount
		if amt == nil {
			amt = uint256.NewInt(0)
		}
		w.Outputs[i] = wireOutput{Owner: o.Owner, Currency: o.Currency, Amount: amt}
	}
	w.Metadata = r.Metadata
	return w
}

func fromWireRaw(w wireRaw) Raw {
	var r Raw
	for i, enc := range w.Inputs {
		if enc == 0 {
			continue
		}
		r.Inputs[i] = postypes.Decode(enc)
	}
	r.Outputs = make([]Output, len(w.Outputs))
	for i, o := range w.Outputs {
		r.Outputs[i] = Output{Owner: o.Owner, Currency: o.Currency, Amount: o.Amount}
	}
	r.Metadata = w.Metadata
	return r
}

// EncodeRaw produces the canonical raw-transaction encoding that RawTxHash
// hashes, using RLP — the same encode/decode idiom the teacher's core/types
// package exercises via rlp.EncodeToBytes.
func EncodeRaw(r Raw) ([]byte, error) {
	return rlp.EncodeToBytes(toWireRaw(r))
}

// Encode produces the canonical wire encoding of a signed transaction.
func Encode(s Signed) ([]byte, error) {
	w := wireSigned{Inputs: toWireRaw(s.Raw).Inputs, Outputs: toWireRaw(s.Raw).Outputs, Metadata: s.Raw.Metadata}
	w.Sigs = make([][]byte, len(s.Sigs))
	for i, sig := range s.Sigs {
		b := make([]byte, SigLen)
		copy(b, sig[:])
		w.Sigs[i] = b
	}
	return rlp.EncodeToBytes(w)
}

// Decode is the inverse of Encode: it parses a signed transaction's wire
// bytes, rejecting malformed input with a *DecodeError.
func Decode(raw []byte) (Signed, error) {
	var w wireSigned
	if err := rlp.DecodeBytes(raw, &w); err != nil {
		return Signed{}, &DecodeError{Reason: "malformed rlp", Err: err}
	}
	if len(w.Outputs) > postypes.MaxOutputs {
		return Signed{}, &DecodeError{Reason: "too many outputs"}
	}
	for _, sig := range w.Sigs {
		if len(sig) != SigLen {
			return Signed{}, &DecodeError{Reason: "malformed signature length"}
		}
	}
	raw2 := fromWireRaw(wireRaw{Inputs: w.Inputs, Outputs: w.Outputs, Metadata: w.Metadata})
	sigs := make([]Signature, len(w.Sigs))
	for i, sig := range w.Sigs {
		copy(sigs[i][:], sig)
	}
	return Signed{Raw: raw2, Sigs: sigs}, nil
}

// DecodeRawOnly decodes just the unsigned raw transaction, as used by
// get_inputs/get_outputs style callers that never touch signatures — e.g.
// the output transaction supplied with a standard-exit event.
func DecodeRawOnly(raw []byte) (Raw, error) {
	var w wireRaw
	if err := rlp.DecodeBytes(raw, &w); err != nil {
		return Raw{}, &DecodeError{Reason: "malformed rlp", Err: err}
	}
	return fromWireRaw(w), nil
}

// RawTxHash is the keccak of the canonical raw encoding — the db/ife key and
// the hash used to detect "same transaction" across IFE appendix and
// fetched blocks.
func RawTxHash(r Raw) (common.Hash, error) {
	enc, err := EncodeRaw(r)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(enc), nil
}

// typedDataPrefix is prepended to the raw encoding before hashing for
// signature recovery, so signers sign over a prefixed hash rather than the
// bare raw encoding. It is a fixed string: it carries no chain id or
// contract address, and the resulting hash is not an EIP-712 typed-data
// hash with a domain separator.
var typedDataPrefix = []byte("\x19Plasma Transaction:\n")

// TypedDataHash is the sole message fed to signature recovery, per spec
// §4.1.
func TypedDataHash(r Raw) (common.Hash, error) {
	enc, err := EncodeRaw(r)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(typedDataPrefix, enc), nil
}

// GetSpenders recovers, for each input position of s (in slot order), the
// address that produced the matching signature.
func GetSpenders(s Signed) ([]common.Address, error) {
	n := s.Raw.NumInputs()
	if len(s.Sigs) != n {
		return nil, &DecodeError{Reason: "spenders", Err: fmt.Errorf("%w: have %d sigs, want %d", ErrArityMismatch, len(s.Sigs), n)}
	}
	hash, err := TypedDataHash(s.Raw)
	if err != nil {
		return nil, err
	}
	out := make([]common.Address, n)
	for i := 0; i < n; i++ {
		addr, err := RecoverSigner(hash, s.Sigs[i])
		if err != nil {
			return nil, &DecodeError{Reason: "spenders", Err: fmt.Errorf("input %d: %w: %v", i, ErrInvalidSignature, err)}
		}
		out[i] = addr
	}
	return out, nil
}

// GetSpendersBySlot returns, for each of the MaxInputs input slots, the
// recovered spender address (ZeroAddr for an empty slot), letting callers
// index by slot number directly instead of by position-in-non-empty-list.
func GetSpendersBySlot(s Signed) ([postypes.MaxInputs]common.Address, error) {
	var out [postypes.MaxInputs]common.Address
	spenders, err := GetSpenders(s)
	if err != nil {
		return out, err
	}
	i := 0
	for slot, in := range s.Raw.Inputs {
		if in.IsEmpty() {
			continue
		}
		out[slot] = spenders[i]
		i++
	}
	return out, nil
}

// RecoverSigner recovers the signing address of sig over hash, the same
// Ecrecover/SigToPub shape the teacher's crypto package exercises in
// TestRecoverSanity/TestRecoverSanity2.
func RecoverSigner(hash common.Hash, sig Signature) (common.Address, error) {
	pub, err := crypto.SigToPub(hash.Bytes(), sig[:])
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Sign produces a Signature over r's typed-data hash using priv, exposed so
// tests can build fixture transactions the same way a wallet would.
func Sign(r Raw, priv *ecdsa.PrivateKey) (Signature, error) {
	hash, err := TypedDataHash(r)
	if err != nil {
		return Signature{}, err
	}
	sig, err := crypto.Sign(hash.Bytes(), priv)
	if err != nil {
		return Signature{}, err
	}
	if len(sig) != SigLen {
		return Signature{}, fmt.Errorf("txs: signer returned %d bytes, want %d", len(sig), SigLen)
	}
	var out Signature
	copy(out[:], sig)
	return out, nil
}
