// Package source implements the data source router.
//
// The router:
//   - Presents one "get current state" operation over the live feed
//     and the snapshot store
//   - Selects a mode per call (forced > preferred > automatic)
//   - Falls back to snapshots when the live feed fails
//   - Reports aggregated source status for diagnostics
package source
