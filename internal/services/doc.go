// Package services defines shared utilities consumed by the merge pipeline and
// external tool integrations.
//
// Key responsibilities:
//   - Context helpers that stamp merge job IDs and API correlation identifiers
//     for logging.
//   - Structured error markers plus the Wrap helper so failures from ffmpeg,
//     ffprobe, and configuration surface with consistent hints.
//
// Tool wrappers live in subpackages (ffmpeg) and keep a commandContext seam so
// tests never execute real binaries.
package services
