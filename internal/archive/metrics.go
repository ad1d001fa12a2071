package archive

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Archive metrics, exposed by the HTTP server at /metrics.
var (
	savesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archive_saves_total",
		Help: "Document saves by result.",
	}, []string{"result"})

	saveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "archive_save_duration_seconds",
		Help:    "Duration of document saves, blob write through catalog commit.",
		Buckets: prometheus.DefBuckets,
	})

	wordsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "archive_words_total",
		Help: "Words archived across all saved documents.",
	})

	searchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archive_searches_total",
		Help: "Searches by mode and result.",
	}, []string{"mode", "result"})

	deletesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "archive_deletes_total",
		Help: "Documents deleted.",
	})
)

func searchResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case isQuerySyntax(err):
		return "query_syntax"
	default:
		return "error"
	}
}
