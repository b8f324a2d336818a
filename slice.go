// SPDX-License-Identifier: Apache-2.0

package alloc

const growThreshold = 256

// SliceAppend appends data to a slice whose backing store came from a
// (via MakeSlice or an earlier SliceAppend). When the capacity runs out a
// larger backing block is allocated, the elements copied, and the old block
// returned to the allocator; under an arena that return is a no-op and the
// old store is simply abandoned until the arena resets.
func SliceAppend[T any](a Allocator, s []T, data ...T) ([]T, error) {
	s, err := growSlice(a, s, len(data))
	if err != nil {
		return s, err
	}
	return append(s, data...), nil
}

func growSlice[T any](a Allocator, s []T, dataLen int) ([]T, error) {
	newLen := len(s) + dataLen
	newCap := cap(s)

	if newCap > 0 {
		for newLen > newCap {
			if newCap < growThreshold {
				newCap *= 2
			} else {
				newCap += newCap / 4
			}
		}
	} else {
		newCap = dataLen
	}
	if newCap == cap(s) {
		return s, nil
	}
	s2, err := MakeSlice[T](a, len(s), newCap)
	if err != nil {
		return s, err
	}
	copy(s2, s)
	FreeSlice(a, s)
	return s2, nil
}
