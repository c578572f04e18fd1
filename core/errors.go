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
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Kind names one category of the error taxonomy in spec §7.
type Kind string

const (
	KindUnexpectedEvents           Kind = "unexpected_events"
	KindUnknownInFlightExit        Kind = "unknown_in_flight_exit"
	KindUnknownPiggybacks          Kind = "unknown_piggybacks"
	KindIFENotKnownForTx           Kind = "ife_not_known_for_tx"
	KindCompetitorNotFound         Kind = "competitor_not_found"
	KindCanonicalNotFound          Kind = "canonical_not_found"
	KindNoDoubleSpendOnPiggyback   Kind = "no_double_spend_on_particular_piggyback"
	KindPiggybackedIndexOutOfRange Kind = "piggybacked_index_out_of_range"
	KindSpenderNotFound            Kind = "spender_not_found"
	KindDecode                     Kind = "decode_error"
)

// Error is the core's kinded error type: a failure reported through it
// carries a Kind so callers can branch on it via errors.As. Unknown-IFE and
// unknown-piggyback failures are reported as *UnknownInFlightExitError and
// *UnknownPiggybacksError instead, and transaction decode failures pass
// through as *txs.DecodeError.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("core: %s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("core: %s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

func wrapErr(kind Kind, msg string, err error) error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// ErrUnexpectedEvents is returned when paired event/status lists differ in
// length.
var ErrUnexpectedEvents = errors.New("core: events and contract statuses have different lengths")

// UnknownInFlightExitError carries the set of in-flight exit ids that the
// state does not recognize.
type UnknownInFlightExitError struct {
	IDs []common.Hash
}

func (e *UnknownInFlightExitError) Error() string {
	return fmt.Sprintf("core: unknown in-flight exit ids: %v", e.IDs)
}

// UnknownPiggyback names one (tx_hash, output_index) pair that
// FinalizeInFlightExits was asked to finalize without a matching piggyback.
type UnknownPiggyback struct {
	TxHash      common.Hash
	OutputIndex uint8
}

// UnknownPiggybacksError carries every UnknownPiggyback found during
// validation.
type UnknownPiggybacksError struct {
	List []UnknownPiggyback
}

func (e *UnknownPiggybacksError) Error() string {
	return fmt.Sprintf("core: unknown piggybacks: %v", e.List)
}
