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

package postypes

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Position{
		New(0, 0, 0),
		New(1000, 0, 0),
		New(1000, 1, 4),
		New(999999, 9999, 7),
	}
	for _, p := range cases {
		require.Equal(t, p, Decode(p.Encode()))
	}
}

func TestIsEmpty(t *testing.T) {
	require.True(t, Empty.IsEmpty())
	require.True(t, New(0, 0, 0).IsEmpty())
	require.False(t, New(1, 0, 0).IsEmpty())
}

func TestLessOrdering(t *testing.T) {
	a := New(1000, 0, 0)
	b := New(1000, 1, 0)
	c := New(2000, 0, 0)
	require.True(t, a.Less(b))
	require.True(t, b.Less(c))
	require.False(t, c.Less(a))
}

func TestSlotKinds(t *testing.T) {
	require.True(t, IsInputSlot(0))
	require.True(t, IsInputSlot(3))
	require.False(t, IsInputSlot(4))
	require.True(t, IsOutputSlot(4))
	require.True(t, IsOutputSlot(7))
	require.False(t, IsOutputSlot(8))
}

func TestSortPositionsDedupsAndOrders(t *testing.T) {
	in := []Position{New(3000, 0, 0), New(1000, 0, 0), New(2000, 0, 0), New(1000, 0, 0)}
	out := SortPositions(in)
	require.Equal(t, []Position{New(1000, 0, 0), New(2000, 0, 0), New(3000, 0, 0)}, out)
}

func TestNewPanicsOnOutOfRangeOindex(t *testing.T) {
	require.Panics(t, func() { New(1, 0, 8) })
}
