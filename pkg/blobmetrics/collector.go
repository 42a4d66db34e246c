// Package blobmetrics exposes blob cache statistics as Prometheus
// metrics.
//
// Register a [Collector] with a prometheus.Registerer to scrape every
// live cache:
//
//	registry := prometheus.NewRegistry()
//	registry.MustRegister(blobmetrics.NewCollector())
package blobmetrics

import (
	"github.com/calvinalkan/blobcache/pkg/blobcache"
	"github.com/prometheus/client_golang/prometheus"
)

// Collector gathers statistics from every live blob cache at scrape
// time. Scrapes run on the collector's caller, so they follow the same
// single-threaded discipline as the caches themselves.
type Collector struct {
	dataBytes   *prometheus.Desc
	limitBytes  *prometheus.Desc
	entries     *prometheus.Desc
	blocks      *prometheus.Desc
	openMaps    *prometheus.Desc
	lockGen     *prometheus.Desc
	purges      *prometheus.Desc
	purgedBytes *prometheus.Desc
}

// NewCollector creates a collector over the process-wide cache
// registry.
func NewCollector() *Collector {
	labels := []string{"cache"}

	return &Collector{
		dataBytes: prometheus.NewDesc("blobcache_data_bytes",
			"Current cached data size, including entry and block overhead.", labels, nil),
		limitBytes: prometheus.NewDesc("blobcache_data_limit_bytes",
			"Soft data limit above which blocks are recycled.", labels, nil),
		entries: prometheus.NewDesc("blobcache_entries",
			"Number of per-source entries.", labels, nil),
		blocks: prometheus.NewDesc("blobcache_blocks",
			"Number of cached blocks across all entries.", labels, nil),
		openMaps: prometheus.NewDesc("blobcache_open_maps",
			"Number of open mapping contexts.", labels, nil),
		lockGen: prometheus.NewDesc("blobcache_lock_generation",
			"Current lock generation.", labels, nil),
		purges: prometheus.NewDesc("blobcache_purges_total",
			"Number of purges that freed memory.", labels, nil),
		purgedBytes: prometheus.NewDesc("blobcache_purged_bytes_total",
			"Total bytes freed by purges.", labels, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.dataBytes
	ch <- c.limitBytes
	ch <- c.entries
	ch <- c.blocks
	ch <- c.openMaps
	ch <- c.lockGen
	ch <- c.purges
	ch <- c.purgedBytes
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, s := range blobcache.CachesStats() {
		ch <- prometheus.MustNewConstMetric(c.dataBytes, prometheus.GaugeValue, float64(s.DataSize), s.Name)
		ch <- prometheus.MustNewConstMetric(c.limitBytes, prometheus.GaugeValue, float64(s.DataLimit), s.Name)
		ch <- prometheus.MustNewConstMetric(c.entries, prometheus.GaugeValue, float64(s.Entries), s.Name)
		ch <- prometheus.MustNewConstMetric(c.blocks, prometheus.GaugeValue, float64(s.Blocks), s.Name)
		ch <- prometheus.MustNewConstMetric(c.openMaps, prometheus.GaugeValue, float64(s.OpenMaps), s.Name)
		ch <- prometheus.MustNewConstMetric(c.lockGen, prometheus.GaugeValue, float64(s.LockGeneration), s.Name)
		ch <- prometheus.MustNewConstMetric(c.purges, prometheus.CounterValue, float64(s.Purges), s.Name)
		ch <- prometheus.MustNewConstMetric(c.purgedBytes, prometheus.CounterValue, float64(s.PurgedBytes), s.Name)
	}
}
