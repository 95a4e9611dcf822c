package sink

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestFS(t *testing.T) {
	Convey("Given a filesystem sink", t, func() {
		ctx := context.Background()
		dir := filepath.Join(t.TempDir(), "events")

		Convey("Prepare creates the directory", func() {
			s := NewFS(dir, WithRequireEmpty(true))
			So(s.Prepare(ctx), ShouldBeNil)
			info, err := os.Stat(dir)
			So(err, ShouldBeNil)
			So(info.IsDir(), ShouldBeTrue)
		})

		Convey("Prepare rejects a non-empty directory when emptiness is required", func() {
			So(os.MkdirAll(dir, 0o755), ShouldBeNil)
			So(os.WriteFile(filepath.Join(dir, "old.tiff"), []byte("x"), 0o644), ShouldBeNil)

			err := NewFS(dir, WithRequireEmpty(true)).Prepare(ctx)
			So(errors.Is(err, ErrOutputNotEmpty), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "old.tiff")

			So(NewFS(dir).Prepare(ctx), ShouldBeNil)
		})

		Convey("Put writes the artifact and leaves no temporary files", func() {
			s := NewFS(dir)
			So(s.Prepare(ctx), ShouldBeNil)
			So(s.Put(ctx, "frame1-3.tiff", strings.NewReader("payload"), 7, "image/tiff"), ShouldBeNil)

			data, err := os.ReadFile(s.Location("frame1-3.tiff"))
			So(err, ShouldBeNil)
			So(string(data), ShouldEqual, "payload")

			entries, err := os.ReadDir(dir)
			So(err, ShouldBeNil)
			So(len(entries), ShouldEqual, 1)
		})

		Convey("Put fails with ErrPut when the directory is missing", func() {
			err := NewFS(dir).Put(ctx, "a.tiff", strings.NewReader("x"), 1, "")
			So(errors.Is(err, ErrPut), ShouldBeTrue)
		})

		Convey("Put honours a canceled context", func() {
			s := NewFS(dir)
			So(s.Prepare(ctx), ShouldBeNil)
			canceled, cancel := context.WithCancel(ctx)
			cancel()
			So(errors.Is(s.Put(canceled, "a.tiff", strings.NewReader("x"), 1, ""), context.Canceled), ShouldBeTrue)
		})

		Convey("Kind names the sink", func() {
			So(NewFS(dir).Kind(), ShouldEqual, "fs")
		})
	})
}
