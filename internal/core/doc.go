// Package core provides the business logic for registry import operations.
//
// This package holds the importer's domain logic, independent of any
// transport or storage engine. It is driven by the HTTP server, the CLI and
// tests through [Service], and persists through the [Store] interface.
//
// # Pipeline
//
// An import streams one semicolon-delimited registry extract into the
// registry store with O(batch_size) memory:
//
//  1. [OpenSource] counts raw bytes, decodes legacy encodings and splits
//     universal newlines ([LineReader])
//  2. the first non-empty line becomes a [ColumnMapper] over [RegistryColumns]
//  3. each data line goes through [SplitLine], [ColumnMapper.Map] and the
//     optional [DepartmentFilter]
//  4. an [Accumulator] groups records; a [WriteStrategy] writes each batch
//     with the conflict policy of the [ImportMode]
//  5. counts are checkpointed to the [JobStore] every CheckpointEvery lines,
//     and a heartbeat keeps the job alive during long batch writes
//
// A bad line never stops a run: it is counted in [JobCounts.Errors]. Only
// fatal failures (no header, read errors, lost store connection) end the job
// as failed.
//
// # Modes
//
//   - full: truncate, then insert-only. Needs sole access to the registry.
//   - update: upsert keyed by SIRET, last occurrence wins.
//   - departments: insert-only of the requested department prefixes.
//
// # Job lifecycle
//
// Jobs start running and end completed, failed or cancelled. Jobs of a
// process that died are moved to abandoned by the reaper ([Service.StartReaper])
// once their heartbeat is older than StaleAfter.
//
// # Error Handling
//
// Sentinel errors are matched with errors.Is and mapped to operator
// messages with codes by [MapError]:
//
//   - IMP001-IMP007: import lifecycle (cancelled, busy, conflict, not found)
//   - FILE001-FILE006: source file (unreadable, no header, encoding)
//   - VAL001-VAL003: request validation (mode, departments)
//   - DB001-DB007: database errors matched on the driver message
package core
