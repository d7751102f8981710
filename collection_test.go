/*
Copyright © 2019 the SEBAL authors.
This file is part of SEBAL.

SEBAL is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

SEBAL is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with SEBAL.  If not, see <http://www.gnu.org/licenses/>.
*/

package sebal

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

// countingCollection records how many scenes have been loaded.
type countingCollection struct {
	SliceCollection
	loads int32
}

func (c *countingCollection) Scene(ctx context.Context, i int) (*Scene, error) {
	atomic.AddInt32(&c.loads, 1)
	return c.SliceCollection.Scene(ctx, i)
}

func TestSliceCollection(t *testing.T) {
	c := SliceCollection{testScene("a")}
	s, err := c.Scene(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	s.FillBand(BandRn, "", "", 1)
	if c[0].HasBand(BandRn) {
		t.Error("scenes should be copies")
	}
	if _, err := c.Scene(context.Background(), 1); err == nil {
		t.Error("expected an out of range error")
	}
}

func TestSequence(t *testing.T) {
	c := &countingCollection{SliceCollection: SliceCollection{
		testScene("a"), uniformScene("u"), testScene("b"),
	}}
	q := NewSequence(c, testOrchestrator())
	ctx := context.Background()

	if !q.Next(ctx) {
		t.Fatal("expected a scene")
	}
	if n := atomic.LoadInt32(&c.loads); n != 1 {
		t.Errorf("loaded %d scenes after one call to Next", n)
	}
	if r := q.Result(); r.Err != nil || r.ID() != "a" {
		t.Errorf("first result: %s, %v", r.ID(), r.Err)
	}

	var ids []string
	var failed int
	for q.Next(ctx) {
		r := q.Result()
		ids = append(ids, r.ID())
		if r.Err != nil {
			failed++
			if !errors.Is(r.Err, ErrInsufficientEndmemberData) {
				t.Errorf("have error %v", r.Err)
			}
		}
	}
	if q.Err() != nil {
		t.Fatal(q.Err())
	}
	if len(ids) != 2 || ids[0] != "u" || ids[1] != "b" || failed != 1 {
		t.Errorf("ids %v, %d failed", ids, failed)
	}

	q.Reset()
	if !q.Next(ctx) || q.Result().ID() != "a" {
		t.Error("sequence did not restart")
	}

	t.Run("cancelled", func(t *testing.T) {
		q.Reset()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if q.Next(ctx) {
			t.Error("cancelled sequence should stop")
		}
		if !errors.Is(q.Err(), context.Canceled) {
			t.Errorf("have error %v", q.Err())
		}
	})
}
