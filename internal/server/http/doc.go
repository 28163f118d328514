// Package httpserver provides the REST gateway for Hose: status ingest and
// newline-delimited JSON subscription streams relayed from the outgoing
// channels.
//
// Example:
//
//	rt, _ := runtime.Open(ctx, runtime.Options{DataDir: "./data", Config: config.Default()})
//	s := httpserver.New(rt, nil)
//	_ = s.ListenAndServe(ctx, ":8080")
package httpserver
