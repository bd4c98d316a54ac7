// Package kvsdk bootstraps a kvdb.Client from the environment. KVDB_RUNTIME_MODE
// selects "http" (REPLIT_DB_URL or KVDB_URL must be set), "mock" (an
// in-memory store, optionally seeded from KVDB_MOCK_SEED) or "auto", which
// picks http when a URL is available and falls back to the mock otherwise.
package kvsdk
