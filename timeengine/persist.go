package timeengine

import (
	"encoding/binary"
	"fmt"
)

// blobSize is four int32 date fields, one int32 scale ordinal, and one
// byte paused flag, spec.md §4.5 / §6: "four integer date fields + scale
// ordinal + boolean". In-flight events and messages are explicitly not
// persisted here (spec.md §4.5: "not required to persist in this
// specification").
const blobSize = 4*4 + 4 + 1

// Save serializes the engine's persistent state (date, scale, paused)
// into a fixed-size blob.
func (e *Engine) Save() []byte {
	date := e.clock.currentDate()
	scale := e.clock.getScale()
	paused := e.clock.isPaused()

	buf := make([]byte, blobSize)
	binary.BigEndian.PutUint32(buf[0:4], uint32(date.Year))
	binary.BigEndian.PutUint32(buf[4:8], uint32(date.Month))
	binary.BigEndian.PutUint32(buf[8:12], uint32(date.Day))
	binary.BigEndian.PutUint32(buf[12:16], uint32(date.Hour))
	binary.BigEndian.PutUint32(buf[16:20], uint32(scale))
	if paused {
		buf[20] = 1
	}
	return buf
}

// Load restores the engine's persistent state from a blob produced by
// Save. Returns an error if blob is not exactly blobSize bytes.
func (e *Engine) Load(blob []byte) error {
	if len(blob) != blobSize {
		return fmt.Errorf("timeengine: invalid save blob length %d, want %d", len(blob), blobSize)
	}

	date := GameDate{
		Year:  int(int32(binary.BigEndian.Uint32(blob[0:4]))),
		Month: int(int32(binary.BigEndian.Uint32(blob[4:8]))),
		Day:   int(int32(binary.BigEndian.Uint32(blob[8:12]))),
		Hour:  int(int32(binary.BigEndian.Uint32(blob[12:16]))),
	}
	scale := TimeScale(binary.BigEndian.Uint32(blob[16:20]))
	paused := blob[20] != 0

	e.clock.setDate(date)
	e.clock.setScale(scale)
	if paused {
		e.clock.pause()
	} else {
		e.clock.resume()
	}
	return nil
}
