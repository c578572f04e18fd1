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

// Package core implements the Watcher Exit Processor's state container and
// its ingestion, validity-analysis and challenge-assembly algorithms (spec
// §4). The core performs no I/O, does no internal concurrency and exposes
// only pure functions over an explicit State value (spec §5).
package core

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"

	"github.com/on-community/watcher-core/exitinfo"
	"github.com/on-community/watcher-core/ife"
	"github.com/on-community/watcher-core/postypes"
)

// State is the exit processor's entire owned state (spec §3). Every other
// value the core touches (transactions, blocks, UTXO-existence answers) is
// borrowed per Request.
type State struct {
	SLAMargin     uint64
	Exits         map[postypes.Position]exitinfo.ExitInfo
	InFlightExits map[common.Hash]ife.Info
	Competitors   map[common.Hash]ife.CompetitorInfo
}

// NewState returns an empty State with the given SLA margin.
func NewState(slaMargin uint64) State {
	return State{
		SLAMargin:     slaMargin,
		Exits:         make(map[postypes.Position]exitinfo.ExitInfo),
		InFlightExits: make(map[common.Hash]ife.Info),
		Competitors:   make(map[common.Hash]ife.CompetitorInfo),
	}
}

// Core is the single-owner state machine the driver holds behind a mutex or
// actor mailbox (spec §5). It has no fields beyond State. Core's mutating
// methods never modify the maps of the State they start from: they build
// new maps and install them in c.State, so a driver can snapshot Core by
// copying State.
type Core struct {
	State State
}

var (
	log_ = log.New("pkg", "core")

	metricActiveExits    = metrics.NewRegisteredGauge("watcher/exits/active", nil)
	metricActiveIFEs     = metrics.NewRegisteredGauge("watcher/ifes/active", nil)
	metricInvalidExit    = metrics.NewRegisteredCounter("watcher/events/invalid_exit", nil)
	metricUnchallenged   = metrics.NewRegisteredCounter("watcher/events/unchallenged_exit", nil)
	metricNonCanonical   = metrics.NewRegisteredCounter("watcher/events/noncanonical_ife", nil)
	metricInvalidIFEChal = metrics.NewRegisteredCounter("watcher/events/invalid_ife_challenge", nil)
	metricInvalidPB      = metrics.NewRegisteredCounter("watcher/events/invalid_piggyback", nil)
	metricPBAvailable    = metrics.NewRegisteredCounter("watcher/events/piggyback_available", nil)
)

// Init reconstructs a Core from a persisted snapshot, as the persistence
// layer streams back (exits, in_flight_exits, competitors, sla_margin) on
// startup (spec §6).
func Init(slaMargin uint64, exits map[postypes.Position]exitinfo.ExitInfo, ifes map[common.Hash]ife.Info, competitors map[common.Hash]ife.CompetitorInfo) *Core {
	if exits == nil {
		exits = make(map[postypes.Position]exitinfo.ExitInfo)
	}
	if ifes == nil {
		ifes = make(map[common.Hash]ife.Info)
	}
	if competitors == nil {
		competitors = make(map[common.Hash]ife.CompetitorInfo)
	}
	c := &Core{State: State{SLAMargin: slaMargin, Exits: exits, InFlightExits: ifes, Competitors: competitors}}
	c.refreshGauges()
	return c
}

// New starts a Core with empty state, for tests and fresh-chain bootstrap.
func New(slaMargin uint64) *Core {
	return &Core{State: NewState(slaMargin)}
}

func (c *Core) refreshGauges() {
	active := 0
	for _, e := range c.State.Exits {
		if e.Active {
			active++
		}
	}
	metricActiveExits.Update(int64(active))
	activeIFEs := 0
	for _, i := range c.State.InFlightExits {
		if i.Active {
			activeIFEs++
		}
	}
	metricActiveIFEs.Update(int64(activeIFEs))
}

// cloneExits returns a shallow copy of m suitable as the basis for a new
// State — ingestion operations never mutate the map they were handed.
func cloneExits(m map[postypes.Position]exitinfo.ExitInfo) map[postypes.Position]exitinfo.ExitInfo {
	out := make(map[postypes.Position]exitinfo.ExitInfo, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneIFEs(m map[common.Hash]ife.Info) map[common.Hash]ife.Info {
	out := make(map[common.Hash]ife.Info, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneCompetitors(m map[common.Hash]ife.CompetitorInfo) map[common.Hash]ife.CompetitorInfo {
	out := make(map[common.Hash]ife.CompetitorInfo, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
