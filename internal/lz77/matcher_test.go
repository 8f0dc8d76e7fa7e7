// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package lz77

import "testing"

func TestNoMatchOnFirstOccurrence(t *testing.T) {
	window := []byte("abcdefgh")
	m := NewMatcher(window)
	length, _ := m.InsertAndFind(0, len(window))
	if length != 0 {
		t.Fatalf("length = %d, want 0 (nothing inserted yet)", length)
	}
}

func TestFindsRepeatedRun(t *testing.T) {
	window := []byte("abcabcabc")
	m := NewMatcher(window)
	for i := 0; i < 3; i++ {
		m.InsertAndFind(i, len(window))
	}
	length, distance := m.InsertAndFind(3, len(window))
	if length < MinMatch {
		t.Fatalf("length = %d, want >= %d", length, MinMatch)
	}
	if distance != 3 {
		t.Fatalf("distance = %d, want 3", distance)
	}
}

func TestPrefersNearestOnTie(t *testing.T) {
	window := []byte("xyzxyzxyz")
	m := NewMatcher(window)
	for i := 0; i < 6; i++ {
		m.InsertAndFind(i, len(window))
	}
	_, distance := m.InsertAndFind(6, len(window))
	if distance != 3 {
		t.Fatalf("distance = %d, want nearest occurrence at 3", distance)
	}
}

func TestMatchCappedAtMaxPos(t *testing.T) {
	window := []byte("aaaaaaaaaaaaaaaa")
	m := NewMatcher(window)
	for i := 0; i < 4; i++ {
		m.Insert(i)
	}
	length, _ := m.InsertAndFind(4, 6)
	if length > 2 {
		t.Fatalf("length = %d, want capped to maxPos-pos = 2", length)
	}
}

func TestNoMatchNearEndOfWindow(t *testing.T) {
	window := []byte("ab")
	m := NewMatcher(window)
	length, distance := m.InsertAndFind(0, len(window))
	if length != 0 || distance != 0 {
		t.Fatalf("got (%d,%d), want (0,0) for window shorter than MinMatch", length, distance)
	}
}
