// Package services defines shared utilities consumed by the lifecycle engine
// and the inference client.
//
// Key responsibilities:
//   - Context helpers that stamp task IDs, stage names, and correlation
//     identifiers for logging.
//   - Error markers plus the Wrap and Kind helpers that let the engine and the
//     CLI classify failures (config, parse, filesystem, dispatch) uniformly.
package services
