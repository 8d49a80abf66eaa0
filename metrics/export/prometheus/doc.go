// Package prometheus renders life-helper engine metrics in Prometheus text
// exposition format.
//
// [NewPrometheusExporter] accepts a [lifehelper.Engine] and exposes an
// [http.Handler] that renders every engine counter and histogram. Counter
// names are prefixed lifehelper_*_total; histograms end in _seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry; callers mount the Handler.
//   - Mutate engine state.
package prometheus
