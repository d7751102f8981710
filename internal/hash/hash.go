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

// Package hash builds cache keys from arbitrary values, such as the
// raster grids that resampled DEMs are cached under.
package hash

import (
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/davecgh/go-spew/spew"
)

// dumper prints values that gob can't encode, such as nil pointers or
// structs without exported fields, deterministically.
var dumper = spew.ConfigState{
	Indent:                  " ",
	SortKeys:                true,
	DisableMethods:          true,
	SpewKeys:                true,
	DisablePointerAddresses: true,
	DisableCapacities:       true,
}

// Digest returns a 128-bit FNV-1a digest of object in hexadecimal.
// A fmt.Stringer is represented by its String method instead.
func Digest(object interface{}) string {
	if s, ok := object.(fmt.Stringer); ok {
		return s.String()
	}
	h := fnv.New128a()
	if err := gob.NewEncoder(h).Encode(object); err != nil {
		h.Reset()
		dumper.Fprintf(h, "%#v", object)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Key returns prefix and the digests of objects, joined by underscores.
func Key(prefix string, objects ...interface{}) string {
	parts := make([]string, 0, len(objects)+1)
	parts = append(parts, prefix)
	for _, o := range objects {
		parts = append(parts, Digest(o))
	}
	return strings.Join(parts, "_")
}
