// Package ffmpeg wraps the ffmpeg concat demuxer so merge workers can join
// dash cam segments losslessly.
//
// The CLI writes a temporary concat list next to the output, stream-copies
// every input into a hidden partial file, and renames it into place only after
// ffmpeg exits cleanly. Tests replace commandContext to avoid executing the
// real binary.
package ffmpeg
