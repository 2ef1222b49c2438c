// Package cmd defines the refinery CLI.
//
// Architecture overview:
//   - run streams a pipeline run over a names file to stdout. The four phases (Discovery, Scoring,
//     Enrichment, Verification) are driven by internal/pipeline.Controller; every record write lands in
//     the configured store (memory, SQLite or Postgres).
//   - serve exposes the same controller over the HTTP API in internal/api: start/stop a run, tail its
//     progress log, list and wipe records, and read status counts. SIGINT/SIGTERM drain the server.
//   - records, wipe and export are operator commands against the store. export writes a JSON Lines
//     snapshot to a local directory or a gs:// bucket.
//
// Configuration comes from an optional YAML file (--config) plus REFINERY_* environment overrides;
// see internal/config for every key.
package cmd
