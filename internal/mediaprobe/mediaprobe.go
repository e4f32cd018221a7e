// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package mediaprobe extracts a best-effort duration hint from a RIFF/WAV
// container, for use as the fallback in the report stage's duration
// resolution chain when no ASR track reported segment timestamps.
package mediaprobe

import (
	"bytes"
	"errors"
	"io"
	"time"

	"github.com/youpy/go-wav"
)

// ErrNotWAV is returned when the input is not a readable RIFF/WAVE
// container; callers should treat this as "no duration hint available",
// not a hard failure — most meeting recordings are mp4/mkv/opus, for which
// this cheap, dependency-light probe intentionally has no support.
var ErrNotWAV = errors.New("mediaprobe: not a RIFF/WAVE container")

const readChunkFrames = 4096

// Duration computes the playback duration of a WAV stream by counting
// frames against its declared sample rate.
func Duration(r io.Reader) (time.Duration, error) {
	// wav.NewReader requires a riff.RIFFReader (io.Reader + io.ReaderAt), but
	// callers pass a forward-only stream (e.g. an S3 object body); buffer it
	// so it can be read at random offsets.
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, ErrNotWAV
	}
	reader := wav.NewReader(bytes.NewReader(data))

	format, err := reader.Format()
	if err != nil || format.SampleRate == 0 {
		return 0, ErrNotWAV
	}

	var frames uint32
	for {
		samples, err := reader.ReadSamples(readChunkFrames)
		frames += uint32(len(samples))
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, ErrNotWAV
		}
	}
	if frames == 0 {
		return 0, ErrNotWAV
	}

	seconds := float64(frames) / float64(format.SampleRate)
	return time.Duration(seconds * float64(time.Second)), nil
}
