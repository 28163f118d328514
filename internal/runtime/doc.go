// Package runtime wires storage, channels, and config into a single-node
// Hose instance. It exposes Open/Close, a basic health check, and the
// backend pair (message store + subscriber channels) used by higher-level
// services.
//
// Example:
//
//	cfg := config.Default()
//	rt, _ := runtime.Open(context.Background(), runtime.Options{DataDir: "./data", Config: cfg})
//	defer rt.Close()
//	_ = rt.CheckHealth(context.Background())
//	id, _ := ingest.Post(context.Background(), rt.Store(), map[string]any{"text": "hello"})
package runtime
