// Package metrics aggregates iteration outcomes into latency and status statistics.
//
// Every request worker records exactly one [Outcome] per iteration into a shared
// [Collector]:
//
//	collector := metrics.NewCollector()
//	collector.Start()
//
//	collector.Record(metrics.Outcome{
//		Iteration:  it.Index,
//		Timestamp:  time.Now(),
//		Latency:    latency,
//		Success:    true,
//		StatusCode: 201,
//	})
//
//	stats := collector.Stats(collector.Elapsed())
//
// # Percentiles
//
// [Collector.Stats] sorts every recorded latency and reports nearest-rank
// percentiles (see [Percentile]), so the reported p95 is always a latency that was
// actually observed. [Collector.Live] reads an HDR histogram instead and is cheap
// enough to call from a progress ticker while the run is still going.
//
// # Thread Safety
//
// All Collector state sits behind one mutex. Record, RecordDropped, Stats and Live
// may be called from any goroutine.
package metrics
