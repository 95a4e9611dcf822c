package main

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/smartystreets/goconvey/convey"
)

// writeFrames stores one 4x4 gray PNG per value, named frame<i>.png.
func writeFrames(t *testing.T, dir string, maxima ...uint8) {
	t.Helper()
	for i, m := range maxima {
		img := image.NewGray(image.Rect(0, 0, 4, 4))
		img.SetGray(2, 2, color.Gray{Y: m})
		f, err := os.Create(filepath.Join(dir, fmt.Sprintf("frame%d.png", i)))
		if err != nil {
			t.Fatal(err)
		}
		if err := png.Encode(f, img); err != nil {
			t.Fatal(err)
		}
		if err := f.Close(); err != nil {
			t.Fatal(err)
		}
	}
}

func TestRun(t *testing.T) {
	convey.Convey("Given a directory of numbered frames", t, func() {
		t.Setenv("FRAMEEVENTS_CONFIG", "")
		dir := t.TempDir()
		writeFrames(t, dir, 1, 1, 50, 1, 1, 1, 1, 60, 1, 1)
		ctx := context.Background()
		var stdout, stderr bytes.Buffer

		convey.Convey("When extracting with one frame of padding", func() {
			code := run(ctx, []string{"-threshold", "40", "-before", "1", "-after", "1", "-log-level", "error", dir}, &stdout, &stderr)

			convey.Convey("Then each event is written to <input>/events", func() {
				convey.So(code, convey.ShouldEqual, exitOK)
				for _, name := range []string{"frame1-3.tiff", "frame6-8.tiff", "events.json"} {
					_, err := os.Stat(filepath.Join(dir, "events", name))
					convey.So(err, convey.ShouldBeNil)
				}
				convey.So(stdout.String(), convey.ShouldContainSubstring, "2 events from 10 frames")
			})

			convey.Convey("And a second run refuses the populated output", func() {
				stdout.Reset()
				again := run(ctx, []string{"-threshold", "40", "-log-level", "error", dir}, &stdout, &stderr)
				convey.So(again, convey.ShouldEqual, exitFailure)

				convey.So(run(ctx, []string{"-threshold", "40", "-allow-nonempty", "-log-level", "error", dir}, &stdout, &stderr), convey.ShouldEqual, exitOK)
			})
		})

		convey.Convey("When the output is given explicitly without a manifest", func() {
			out := filepath.Join(t.TempDir(), "out")
			code := run(ctx, []string{"-input", dir, "-output", out, "-before", "0", "-after", "0", "-no-manifest", "-log-level", "error"}, &stdout, &stderr)

			convey.So(code, convey.ShouldEqual, exitOK)
			entries, err := os.ReadDir(out)
			convey.So(err, convey.ShouldBeNil)
			convey.So(len(entries), convey.ShouldEqual, 2)
		})

		convey.Convey("When the context is canceled", func() {
			canceled, cancel := context.WithCancel(ctx)
			cancel()
			code := run(canceled, []string{"-log-level", "error", dir}, &stdout, &stderr)
			convey.So(code, convey.ShouldEqual, exitCanceled)
		})
	})
}

func TestRunUsageErrors(t *testing.T) {
	convey.Convey("Given bad invocations", t, func() {
		t.Setenv("FRAMEEVENTS_CONFIG", "")
		ctx := context.Background()
		var stdout, stderr bytes.Buffer

		convey.Convey("An unknown flag is a usage error", func() {
			convey.So(run(ctx, []string{"-nope"}, &stdout, &stderr), convey.ShouldEqual, exitUsage)
		})

		convey.Convey("Help exits cleanly", func() {
			convey.So(run(ctx, []string{"-h"}, &stdout, &stderr), convey.ShouldEqual, exitOK)
			convey.So(stderr.String(), convey.ShouldContainSubstring, "Usage: frameevents")
		})

		convey.Convey("Negative padding fails validation", func() {
			convey.So(run(ctx, []string{"-before", "-1", t.TempDir()}, &stdout, &stderr), convey.ShouldEqual, exitUsage)
			convey.So(stderr.String(), convey.ShouldContainSubstring, "before must be >= 0")
		})

		convey.Convey("A MinIO sink without an endpoint fails validation", func() {
			convey.So(run(ctx, []string{"-sink", "minio", t.TempDir()}, &stdout, &stderr), convey.ShouldEqual, exitUsage)
		})

		convey.Convey("An invalid metrics namespace is rejected before running", func() {
			_ = os.Setenv("FRAMEEVENTS_METRICS_NAMESPACE", "9lives")
			defer func() { _ = os.Unsetenv("FRAMEEVENTS_METRICS_NAMESPACE") }()
			convey.So(run(ctx, []string{t.TempDir()}, &stdout, &stderr), convey.ShouldEqual, exitUsage)
			convey.So(stderr.String(), convey.ShouldContainSubstring, "invalid metrics option")
		})

		convey.Convey("Two positional arguments are rejected", func() {
			convey.So(run(ctx, []string{"a", "b"}, &stdout, &stderr), convey.ShouldEqual, exitUsage)
		})

		convey.Convey("A missing config file is reported", func() {
			missing := filepath.Join(t.TempDir(), "missing.yaml")
			convey.So(run(ctx, []string{"-config", missing}, &stdout, &stderr), convey.ShouldEqual, exitUsage)
		})

		convey.Convey("An empty directory has nothing to scan", func() {
			convey.So(run(ctx, []string{"-log-level", "error", t.TempDir()}, &stdout, &stderr), convey.ShouldEqual, exitFailure)
		})
	})
}
