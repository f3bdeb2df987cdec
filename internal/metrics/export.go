package metrics

import "time"

// Export run outcomes.
const (
	ExportSucceeded = "succeeded"
	ExportPartial   = "partial"
	ExportFailed    = "failed"
	ExportCanceled  = "canceled"
)

// ExportCompleted records a finished export run. The status is derived from
// how many images failed out of total.
func ExportCompleted(format string, duration time.Duration, total, failed int) {
	status := ExportSucceeded
	switch {
	case failed == 0:
	case failed < total:
		status = ExportPartial
	default:
		status = ExportFailed
	}
	ExportsTotal.WithLabelValues(format, status).Inc()
	ExportDuration.WithLabelValues(format).Observe(duration.Seconds())
}

// ExportAbandoned records a run stopped by context cancellation.
func ExportAbandoned(format string) {
	ExportsTotal.WithLabelValues(format, ExportCanceled).Inc()
}

// ImageExported records one successfully written artifact.
func ImageExported(format string, bytes int64) {
	ExportImagesTotal.WithLabelValues(format, "succeeded").Inc()
	ExportBytesTotal.WithLabelValues(format).Add(float64(bytes))
}

// ImageExportFailed records one image that could not be exported.
func ImageExportFailed(format string) {
	ExportImagesTotal.WithLabelValues(format, "failed").Inc()
}

// IntakeRejected records a dropped file that was not kept.
func IntakeRejected(reason string) {
	IntakeRejections.WithLabelValues(reason).Inc()
}
