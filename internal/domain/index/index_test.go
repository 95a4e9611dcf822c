package index_test

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/okian/frameevents/internal/domain/index"
	"github.com/okian/frameevents/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestOrderKey(t *testing.T) {
	Convey("Given identifiers with trailing frame numbers", t, func() {
		cases := map[string]int{
			"frame2.tiff":          2,
			"frame12.tiff":         12,
			"run3_frame0007.tif":   7,
			"cam1-000123.ome.tiff": 123,
			"42":                   42,
			"frame.0042":           42,
			"frame9.":              9,
			"shot_00.png":          0,
		}
		for id, want := range cases {
			Convey("Then "+id+" should parse to its trailing integer", func() {
				key, err := index.OrderKey(id)
				So(err, ShouldBeNil)
				So(key, ShouldEqual, want)
			})
		}
	})

	Convey("Given identifiers without a trailing integer", t, func() {
		for _, id := range []string{"notes.txt", "frame12a.tiff", "", ".hidden", "Thumbs.db"} {
			Convey(fmt.Sprintf("Then %q should be malformed", id), func() {
				_, err := index.OrderKey(id)
				So(err, ShouldNotBeNil)
				So(errors.Is(err, index.ErrMalformedIdentifier), ShouldBeTrue)

				var issue *index.IssueError
				So(errors.As(err, &issue), ShouldBeTrue)
				So(issue.Identifier, ShouldEqual, id)
			})
		}
	})

	Convey("Given a digit run too large for an int", t, func() {
		_, err := index.OrderKey("frame99999999999999999999999.tiff")

		Convey("Then it should be reported as malformed with the parse cause", func() {
			So(errors.Is(err, index.ErrMalformedIdentifier), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "out of range")
		})
	})
}

func TestStem(t *testing.T) {
	Convey("Given identifiers with type suffixes", t, func() {
		So(index.Stem("frame_0001.tiff"), ShouldEqual, "frame_0001")
		So(index.Stem("a_7.ome.tif"), ShouldEqual, "a_7")
		So(index.Stem("frame.0042"), ShouldEqual, "frame.0042")
		So(index.Stem("plain"), ShouldEqual, "plain")
	})
}

func TestIndex(t *testing.T) {
	Convey("Given an empty collection", t, func() {
		res := index.Index(nil)

		Convey("Then the result should be empty and error free", func() {
			So(res.Frames, ShouldBeEmpty)
			So(res.Issues, ShouldBeEmpty)
			So(res.Err(), ShouldBeNil)
		})
	})

	Convey("Given identifiers whose lexicographic order disagrees with numeric order", t, func() {
		res := index.Index([]string{"f12.tiff", "f2.tiff", "f100.tiff", "f1.tiff"})

		Convey("Then they should be ordered numerically with contiguous positions", func() {
			So(res.Err(), ShouldBeNil)
			So(res.Identifiers(), ShouldResemble, []string{"f1.tiff", "f2.tiff", "f12.tiff", "f100.tiff"})
			for i, f := range res.Frames {
				So(f.Position, ShouldEqual, i)
			}
			So(res.Frames[2], ShouldResemble, model.FrameRef{Identifier: "f12.tiff", OrderKey: 12, Position: 2})
		})
	})

	Convey("Given order keys with gaps", t, func() {
		res := index.Index([]string{"x_500.tif", "x_3.tif", "x_40.tif"})

		Convey("Then positions stay contiguous while keys keep their gaps", func() {
			So(len(res.Frames), ShouldEqual, 3)
			So(res.Frames[0].OrderKey, ShouldEqual, 3)
			So(res.Frames[1].OrderKey, ShouldEqual, 40)
			So(res.Frames[2].OrderKey, ShouldEqual, 500)
			So(res.Frames[2].Position, ShouldEqual, 2)
		})
	})

	Convey("Given stray files among the frames", t, func() {
		res := index.Index([]string{"f3.tiff", "README.md", "f1.tiff", "desktop.ini"})

		Convey("Then they should be reported while the rest is indexed", func() {
			So(res.Identifiers(), ShouldResemble, []string{"f1.tiff", "f3.tiff"})
			So(len(res.Issues), ShouldEqual, 2)
			So(res.Issues[0].Identifier, ShouldEqual, "README.md")
			So(res.Issues[1].Identifier, ShouldEqual, "desktop.ini")
			So(errors.Is(res.Err(), index.ErrMalformedIdentifier), ShouldBeTrue)
		})
	})

	Convey("Given two identifiers that resolve to the same key", t, func() {
		res := index.Index([]string{"b_007.tiff", "f5.tiff", "a_7.tiff"})

		Convey("Then the smallest identifier keeps the key and the other is surfaced", func() {
			So(res.Identifiers(), ShouldResemble, []string{"f5.tiff", "a_7.tiff"})
			So(len(res.Issues), ShouldEqual, 1)

			issue := res.Issues[0]
			So(errors.Is(issue, index.ErrDuplicateOrderKey), ShouldBeTrue)
			So(issue.Identifier, ShouldEqual, "b_007.tiff")
			So(issue.Conflict, ShouldEqual, "a_7.tiff")
			So(issue.OrderKey, ShouldEqual, 7)
			So(issue.Error(), ShouldContainSubstring, "a_7.tiff")
		})
	})

	Convey("Given a shuffled collection of unique keys", t, func() {
		rng := rand.New(rand.NewSource(7))
		ids := make([]string, 0, 200)
		for _, k := range rng.Perm(200) {
			ids = append(ids, fmt.Sprintf("frame%d.tiff", k*3))
		}
		res := index.Index(ids)

		Convey("Then order keys should be strictly increasing by position", func() {
			So(res.Err(), ShouldBeNil)
			So(len(res.Frames), ShouldEqual, 200)
			for i := 1; i < len(res.Frames); i++ {
				So(res.Frames[i].OrderKey, ShouldBeGreaterThan, res.Frames[i-1].OrderKey)
				So(res.Frames[i].Position, ShouldEqual, i)
			}
		})
	})
}

func TestOutputName(t *testing.T) {
	Convey("Given an emitted window", t, func() {
		w := model.EventWindow{StartPosition: 4, EndPosition: 9, StartIdentifier: "img_0005.tiff", EndOrderKey: 10}

		Convey("Then its name should join the start stem and the end key", func() {
			So(index.OutputName(w, ".tiff"), ShouldEqual, "img_0005-10.tiff")
			So(index.OutputName(w, ""), ShouldEqual, "img_0005-10")
		})
	})
}
