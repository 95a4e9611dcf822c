package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	. "github.com/smartystreets/goconvey/convey"
)

func family(g prometheus.Gatherer, name string) *dto.MetricFamily {
	families, err := g.Gather()
	So(err, ShouldBeNil)
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	return nil
}

func TestManagerCreation(t *testing.T) {
	Convey("Given a manager on a private registry", t, func() {
		registry := prometheus.NewRegistry()
		manager := NewManager(
			WithNamespace("test"),
			WithHistogramBuckets([]float64{1, 10}),
			WithCustomLabels(map[string]string{"env": "test"}),
			WithPrometheusRegistry(registry),
		)

		Convey("Then its metrics should be registered under the namespace", func() {
			manager.triggers.Inc()
			f := family(registry, "test_extract_triggers_total")
			So(f, ShouldNotBeNil)
			So(f.GetMetric()[0].GetCounter().GetValue(), ShouldEqual, 1.0)
			So(f.GetMetric()[0].GetLabel()[0].GetName(), ShouldEqual, "env")
		})

		Convey("Then its gatherer should be the registry", func() {
			g, err := manager.Gatherer()
			So(err, ShouldBeNil)
			So(g == prometheus.Gatherer(registry), ShouldBeTrue)
		})
	})

	Convey("Given a manager on a registerer that cannot gather", t, func() {
		manager := NewManager(WithPrometheusRegistry(prometheus.WrapRegistererWithPrefix("x_", prometheus.NewRegistry())))

		Convey("Then Gatherer should report a mismatch", func() {
			_, err := manager.Gatherer()
			So(err, ShouldEqual, ErrRegistryMismatch)
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics", t, func() {
		Convey("When recording scan activity", func() {
			before := family(GetRegistry(), "frameevents_extract_windows_emitted_total").GetMetric()[0].GetCounter().GetValue()
			RecordFrameScanned()
			RecordTrigger()
			RecordWindowEmitted(3)
			RecordFetchLatency(2.5)

			Convey("Then the counters should move", func() {
				after := family(GetRegistry(), "frameevents_extract_windows_emitted_total").GetMetric()[0].GetCounter().GetValue()
				So(after, ShouldEqual, before+1)
			})
		})

		Convey("When recording labelled metrics", func() {
			So(func() {
				RecordFramesIndexed(10)
				RecordIndexIssue("malformed_identifier")
				RecordFetchError()
				UpdateScanProgress(0.5)
				RecordEventWritten("fs", 3, 1024)
				RecordEncodeLatency(1)
				RecordPutLatency("fs", 1)
				RecordWriteError("fs", "put")
				UpdateQueueSize(1)
				UpdateQueueCapacity(8)
				UpdateQueueUtilization(0.125)
				RecordQueueEnqueue()
				RecordQueueDequeue()
				RecordQueueEnqueueError("closed")
				UpdateWorkerActiveCount(2)
				RecordWorkerProcessingLatency(4)
				RecordRun("ok", 1.2)
				RecordHTTPRequest("stats", "GET", "200")
				RecordHTTPRequestDuration("stats", "GET", "200", 0.3)
				RecordHTTPError("stats", "POST", "method_not_allowed")
				UpdateSystemMemoryUsage(1 << 20)
				UpdateSystemGoroutineCount(12)
			}, ShouldNotPanic)

			Convey("Then labelled series should be gathered", func() {
				f := family(GetRegistry(), "frameevents_extract_index_issues_total")
				So(f, ShouldNotBeNil)
				So(f.GetMetric()[0].GetLabel()[0].GetValue(), ShouldEqual, "malformed_identifier")
			})
		})
	})
}

func TestConfigure(t *testing.T) {
	Convey("Given the global metrics", t, func() {
		Reset(func() {
			So(Configure(), ShouldBeNil)
		})

		Convey("When configured with a namespace, labels and buckets", func() {
			err := Configure(
				WithNamespace("lab"),
				WithCustomLabels(map[string]string{"site": "bench"}),
				WithHistogramBuckets([]float64{1, 10}),
			)
			So(err, ShouldBeNil)
			RecordTrigger()
			RecordEncodeLatency(5)

			Convey("Then recordings land in the new registry under the namespace", func() {
				f := family(GetRegistry(), "lab_extract_triggers_total")
				So(f, ShouldNotBeNil)
				So(f.GetMetric()[0].GetCounter().GetValue(), ShouldEqual, 1.0)
				So(f.GetMetric()[0].GetLabel()[0].GetName(), ShouldEqual, "site")
				So(f.GetMetric()[0].GetLabel()[0].GetValue(), ShouldEqual, "bench")
				So(family(GetRegistry(), "frameevents_extract_triggers_total"), ShouldBeNil)

				h := family(GetRegistry(), "lab_extract_encode_latency_milliseconds")
				So(h, ShouldNotBeNil)
				So(h.GetMetric()[0].GetHistogram().GetBucket(), ShouldHaveLength, 2)
			})
		})

		Convey("When the options would break registration", func() {
			registry := GetRegistry()
			cases := []Option{
				WithNamespace("9lives"),
				WithCustomLabels(map[string]string{"sink": "fs"}),
				WithCustomLabels(map[string]string{"__name": "x"}),
				WithHistogramBuckets([]float64{10, 1}),
			}

			Convey("Then each is rejected and the global registry is kept", func() {
				for _, opt := range cases {
					So(errors.Is(Configure(opt), ErrInvalidOption), ShouldBeTrue)
				}
				So(GetRegistry() == registry, ShouldBeTrue)
			})
		})
	})
}
