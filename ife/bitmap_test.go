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

package ife

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBitmapSetClear(t *testing.T) {
	var b Bitmap
	require.False(t, b.Any())

	b = b.Set(2)
	require.True(t, b.IsSet(2))
	require.False(t, b.IsSet(1))
	require.True(t, b.Any())

	b = b.Set(2) // idempotent
	require.True(t, b.IsSet(2))

	b = b.Clear(2)
	require.False(t, b.IsSet(2))
	require.False(t, b.Any())
}

func TestBitmapIndices(t *testing.T) {
	var b Bitmap
	b = b.Set(0).Set(3).Set(6)

	require.Equal(t, []uint8{0, 3}, b.Indices(4))
	require.Equal(t, []uint8{0, 3, 6}, b.Indices(8))
	require.Nil(t, Bitmap(0).Indices(8))
}

func TestBitmapOutOfRange(t *testing.T) {
	var b Bitmap
	require.False(t, b.IsSet(8))
	require.Panics(t, func() { b.Set(8) })
	require.Panics(t, func() { b.Clear(9) })
}
