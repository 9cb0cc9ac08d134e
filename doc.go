// Package ticktock is a single-process time-series database for DevOps,
// IoT and financial metrics, exposing an OpenTSDB-compatible HTTP API.
//
// Data points are written into time-partitioned shards (Tsdb). Queries are
// parsed from the OpenTSDB GET and POST wire shapes, planned into per-series
// tasks, executed across a bounded worker pool, downsampled, grouped by tag
// wildcards, aggregated point-wise and optionally rate-converted before
// being serialized back in the OpenTSDB JSON envelope.
//
// Basic usage:
//
//	db, err := ticktock.Open(ticktock.DefaultConfig(dir))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer db.Close()
//
//	db.Put("cpu.usage", ticktock.TagList{{Key: "host", Value: "web-1"}},
//		ticktock.DataPoint{Timestamp: 1672531200, Value: 0.42})
//
//	srv := ticktock.NewHTTPServer(db, db.Config().HTTP)
//	log.Fatal(srv.ListenAndServe())
package ticktock
