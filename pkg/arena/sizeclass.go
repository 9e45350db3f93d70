//go:build go1.22

package arena

// numClasses is K from the spec: the fixed number of free lists.
const numClasses = 12

// classFloor[i] is the smallest size that belongs to class i. Class i (for
// i < numClasses-1) covers [classFloor[i], classFloor[i+1]); the last class
// covers [classFloor[numClasses-1], +inf).
//
// classFloor[0] doubles as freeMin, the minimum segment size: 128, 256,
// 512, 1k, 2k, 4k, 8k, 16k, 32k, 64k, 128k, 256k.
var classFloor = [numClasses]int{
	1 << 7, 1 << 8, 1 << 9, 1 << 10, 1 << 11, 1 << 12,
	1 << 13, 1 << 14, 1 << 15, 1 << 16, 1 << 17, 1 << 18,
}

// freeMin is the minimum segment size, the floor of class 0.
const freeMin = classFloor[0]

// sourceIndex returns the smallest free-list index i such that every
// segment on free list i is guaranteed to be at least size bytes. Used by
// Allocate to pick which list to search.
func sourceIndex(size int) int {
	l, h := 0, numClasses-1
	for l < h-1 {
		m := l + (h-l)/2
		switch {
		case classFloor[m] == size:
			return m
		case size < classFloor[m]:
			h = m
		default:
			l = m
		}
	}
	if size <= classFloor[l] {
		return l
	}
	return h
}

// destIndex returns the free-list index a segment of the given size files
// into. It equals sourceIndex for sizes exactly on a class boundary or in
// the last class; otherwise it is one less than sourceIndex — the class
// whose range actually contains size.
func destIndex(size int) int {
	src := sourceIndex(size)
	if classFloor[src] == size || src == numClasses-1 {
		return src
	}
	return src - 1
}
