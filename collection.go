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
	"fmt"
)

// Collection is an ordered set of scenes that are loaded on demand.
type Collection interface {
	// Len returns the number of scenes.
	Len() int

	// Scene loads scene i. Each call returns a new Scene that the
	// caller may modify.
	Scene(ctx context.Context, i int) (*Scene, error)
}

// SliceCollection is a Collection of scenes held in memory. Scene returns
// deep copies, so a SliceCollection can be processed more than once.
type SliceCollection []*Scene

// Len implements Collection.
func (c SliceCollection) Len() int { return len(c) }

// Scene implements Collection.
func (c SliceCollection) Scene(_ context.Context, i int) (*Scene, error) {
	if i < 0 || i >= len(c) {
		return nil, fmt.Errorf("sebal: scene index %d out of range [0, %d)", i, len(c))
	}
	s := *c[i]
	s.Raster = c[i].Raster.Copy()
	return &s, nil
}

// Sequence lazily processes the scenes of a collection one at a time.
// Scenes are loaded and processed only when Next is called, so stopping
// the iteration stops the work. A Sequence can be restarted with Reset.
//
//	q := NewSequence(c, o)
//	for q.Next(ctx) {
//		r := q.Result()
//		...
//	}
//	if err := q.Err(); err != nil {
//		...
//	}
type Sequence struct {
	c   Collection
	o   *Orchestrator
	i   int
	res SceneResult
	err error
}

// NewSequence returns a Sequence that runs o on each scene in c.
func NewSequence(c Collection, o *Orchestrator) *Sequence {
	return &Sequence{c: c, o: o}
}

// Next processes the next scene and reports whether there was one. A
// scene that fails to load or process does not stop the sequence; the
// failure is reported in its Result.
func (q *Sequence) Next(ctx context.Context) bool {
	if q.err != nil || q.i >= q.c.Len() {
		return false
	}
	if err := ctx.Err(); err != nil {
		q.err = err
		return false
	}
	q.res = process(ctx, q.c, q.o, q.i)
	q.i++
	return true
}

// Result returns the result for the scene processed by the last call to
// Next.
func (q *Sequence) Result() SceneResult { return q.res }

// Err returns the error, if any, that stopped the iteration early.
func (q *Sequence) Err() error { return q.err }

// Reset restarts the sequence at the first scene.
func (q *Sequence) Reset() {
	q.i = 0
	q.res = SceneResult{}
	q.err = nil
}

// process loads and processes scene i of c.
func process(ctx context.Context, c Collection, o *Orchestrator, i int) SceneResult {
	s, err := c.Scene(ctx, i)
	if err != nil {
		return SceneResult{Err: fmt.Errorf("sebal: loading scene %d: %w", i, err)}
	}
	return o.Run(ctx, s)
}
