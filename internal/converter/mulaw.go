package converter

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
)

// MuLawConverter turns WAV input into 8-bit G.711 mu-law: downmix to mono,
// resample, then companding. With IncludeHeader it prepends the fixed
// 24-byte big-endian .snd header some telephony stacks expect. Buffers the
// full input because the header carries the data size.
type MuLawConverter struct {
	Rate          int
	IncludeHeader bool
}

func NewMuLawConverter(rate int, includeHeader bool) *MuLawConverter {
	if rate <= 0 {
		rate = 8000
	}
	return &MuLawConverter{Rate: rate, IncludeHeader: includeHeader}
}

func (c *MuLawConverter) Convert(_ context.Context, in io.Reader) (io.ReadCloser, error) {
	data, err := io.ReadAll(in)
	if err != nil {
		return nil, convErr(err, "read mu-law input")
	}

	w, err := decodeWave(data)
	if err != nil {
		return nil, convErr(err, "parse mu-law input")
	}

	samples := w.samples()
	if w.channels > 1 {
		samples = downmixMono(samples, w.channels)
	}
	if w.sampleRate != c.Rate {
		samples = resampleLinear(samples, w.sampleRate, c.Rate, 1)
	}

	encoded := make([]byte, len(samples))
	for i, s := range samples {
		encoded[i] = linearToMuLaw(s)
	}

	if c.IncludeHeader {
		out := &bytes.Buffer{}
		writeSndHeader(out, len(encoded), c.Rate, 1)
		out.Write(encoded)
		return io.NopCloser(bytes.NewReader(out.Bytes())), nil
	}
	return io.NopCloser(bytes.NewReader(encoded)), nil
}

func downmixMono(samples []int16, channels int) []int16 {
	frames := len(samples) / channels
	out := make([]int16, frames)
	for i := 0; i < frames; i++ {
		sum := 0
		for ch := 0; ch < channels; ch++ {
			sum += int(samples[i*channels+ch])
		}
		out[i] = int16(sum / channels)
	}
	return out
}

const (
	muLawBias = 0x84
	muLawClip = 32635
)

// linearToMuLaw compands one signed 16-bit sample to G.711 mu-law.
func linearToMuLaw(sample int16) byte {
	sign := byte(0)
	s := int(sample)
	if s < 0 {
		s = -s
		sign = 0x80
	}
	if s > muLawClip {
		s = muLawClip
	}
	s += muLawBias

	exponent := 7
	for mask := 0x4000; exponent > 0 && s&mask == 0; mask >>= 1 {
		exponent--
	}
	mantissa := (s >> (exponent + 3)) & 0x0F
	return ^(sign | byte(exponent<<4) | byte(mantissa))
}

// writeSndHeader emits the 24-byte big-endian .snd header: magic, header
// size, data size, encoding (1 = mu-law), sample rate, channels, reserved.
func writeSndHeader(w io.Writer, dataSize, sampleRate, channels int) {
	w.Write([]byte(".snd"))
	binary.Write(w, binary.BigEndian, uint32(24))
	binary.Write(w, binary.BigEndian, uint32(dataSize))
	binary.Write(w, binary.BigEndian, uint32(1))
	binary.Write(w, binary.BigEndian, uint32(sampleRate))
	binary.Write(w, binary.BigEndian, uint32(channels))
	binary.Write(w, binary.BigEndian, uint32(0))
}
