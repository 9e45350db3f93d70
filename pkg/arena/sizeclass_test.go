//go:build go1.22

package arena

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestSourceIndex(t *testing.T) {
	Convey("Given the class floor table", t, func() {
		Convey("When the size is exactly on a class boundary", func() {
			for i, floor := range classFloor {
				So(sourceIndex(floor), ShouldEqual, i)
			}
		})

		Convey("When the size falls strictly between two boundaries", func() {
			So(sourceIndex(classFloor[0]+1), ShouldEqual, 1)
			So(sourceIndex(classFloor[3]+17), ShouldEqual, 4)
		})

		Convey("When the size is below the smallest class", func() {
			So(sourceIndex(1), ShouldEqual, 0)
		})

		Convey("When the size exceeds every class floor", func() {
			So(sourceIndex(classFloor[numClasses-1]*4), ShouldEqual, numClasses-1)
		})
	})
}

func TestDestIndex(t *testing.T) {
	Convey("Given a segment size", t, func() {
		Convey("When the size sits exactly on a boundary", func() {
			for i, floor := range classFloor {
				So(destIndex(floor), ShouldEqual, i)
			}
		})

		Convey("When the size is one below the next boundary", func() {
			So(destIndex(classFloor[1]-1), ShouldEqual, 0)
			So(destIndex(classFloor[5]-1), ShouldEqual, 4)
		})

		Convey("When the size overflows every boundary", func() {
			So(destIndex(classFloor[numClasses-1]*100), ShouldEqual, numClasses-1)
		})
	})
}

func TestSourceDestConsistency(t *testing.T) {
	Convey("Given sizes from freeMin up to twice the last class floor", t, func() {
		Convey("Then a segment filed via destIndex is never smaller than its class floor, so every request sourceIndex routes to that class fits it", func() {
			for size := freeMin; size < classFloor[numClasses-1]*2; size += 37 {
				d := destIndex(size)
				So(classFloor[d], ShouldBeLessThanOrEqualTo, size)
			}
		})
	})
}
