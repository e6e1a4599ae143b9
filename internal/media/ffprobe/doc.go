// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Key types:
//   - Result: parsed ffprobe output containing streams and format metadata
//   - Verifier: rejects merged files that carry no video or no duration
//
// Inspect executes ffprobe and returns the parsed Result. Helper methods on
// Result expose stream counts and container duration.
package ffprobe
