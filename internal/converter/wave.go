package converter

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
)

// WaveConverter rewrites a WAV stream to a target sample rate and sample
// width. It buffers the full input: the output header needs the total frame
// count up front.
type WaveConverter struct {
	SampleRate  int // output frames per second
	SampleWidth int // output bytes per sample, 1 or 2
}

func NewWaveConverter(sampleRate, sampleWidth int) *WaveConverter {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	if sampleWidth != 1 {
		sampleWidth = 2
	}
	return &WaveConverter{SampleRate: sampleRate, SampleWidth: sampleWidth}
}

func (c *WaveConverter) Convert(_ context.Context, in io.Reader) (io.ReadCloser, error) {
	data, err := io.ReadAll(in)
	if err != nil {
		return nil, convErr(err, "read wave input")
	}

	w, err := decodeWave(data)
	if err != nil {
		return nil, convErr(err, "parse wave input")
	}

	samples := w.samples()
	if w.sampleRate != c.SampleRate {
		samples = resampleLinear(samples, w.sampleRate, c.SampleRate, w.channels)
	}

	out := encodeWave(samples, c.SampleRate, c.SampleWidth, w.channels)
	return io.NopCloser(bytes.NewReader(out)), nil
}

type waveData struct {
	channels    int
	sampleRate  int
	sampleWidth int // bytes per sample
	frames      []byte
}

// samples normalizes PCM frames to signed 16-bit values. 8-bit WAV audio is
// unsigned with a 128 midpoint, so widening removes the DC bias.
func (w *waveData) samples() []int16 {
	if w.sampleWidth == 1 {
		out := make([]int16, len(w.frames))
		for i, b := range w.frames {
			out[i] = (int16(b) - 128) << 8
		}
		return out
	}
	out := make([]int16, len(w.frames)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(w.frames[i*2:]))
	}
	return out
}

func decodeWave(data []byte) (*waveData, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, errors.New("not a RIFF/WAVE container")
	}

	w := &waveData{}
	haveFmt := false
	pos := 12
	for pos+8 <= len(data) {
		chunkID := string(data[pos : pos+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		if body+chunkSize > len(data) {
			chunkSize = len(data) - body
		}

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return nil, errors.New("fmt chunk too short")
			}
			audioFormat := binary.LittleEndian.Uint16(data[body:])
			if audioFormat != 1 {
				return nil, errors.New("only PCM wave data is supported")
			}
			w.channels = int(binary.LittleEndian.Uint16(data[body+2:]))
			w.sampleRate = int(binary.LittleEndian.Uint32(data[body+4:]))
			w.sampleWidth = int(binary.LittleEndian.Uint16(data[body+14:])) / 8
			haveFmt = true
		case "data":
			w.frames = data[body : body+chunkSize]
		}

		pos = body + chunkSize
		if chunkSize%2 == 1 {
			pos++ // chunks are word-aligned
		}
	}

	if !haveFmt || w.frames == nil {
		return nil, errors.New("missing fmt or data chunk")
	}
	if w.channels <= 0 || w.sampleRate <= 0 || (w.sampleWidth != 1 && w.sampleWidth != 2) {
		return nil, errors.New("unsupported wave format parameters")
	}
	return w, nil
}

func encodeWave(samples []int16, sampleRate, sampleWidth, channels int) []byte {
	var frames []byte
	if sampleWidth == 1 {
		frames = make([]byte, len(samples))
		for i, s := range samples {
			// Back to unsigned 8-bit: shift the signed midpoint up by 128.
			frames[i] = byte((s >> 8) + 128)
		}
	} else {
		frames = make([]byte, len(samples)*2)
		for i, s := range samples {
			binary.LittleEndian.PutUint16(frames[i*2:], uint16(s))
		}
	}

	blockAlign := channels * sampleWidth
	buf := &bytes.Buffer{}
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+len(frames)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, uint16(channels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*blockAlign))
	binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(buf, binary.LittleEndian, uint16(sampleWidth*8))
	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(len(frames)))
	buf.Write(frames)
	return buf.Bytes()
}

// resampleLinear converts the sample rate with linear interpolation between
// neighboring frames, independently per channel.
func resampleLinear(input []int16, inputRate, outputRate, channels int) []int16 {
	if inputRate == outputRate || len(input) == 0 {
		return input
	}

	inputFrames := len(input) / channels
	if inputFrames == 0 {
		return nil
	}

	ratio := float64(inputRate) / float64(outputRate)
	outputFrames := int(float64(inputFrames)/ratio + 0.5)
	if outputFrames < 1 {
		outputFrames = 1
	}
	output := make([]int16, outputFrames*channels)

	for outFrame := 0; outFrame < outputFrames; outFrame++ {
		position := float64(outFrame) * ratio
		inFrame := int(position)
		frac := position - float64(inFrame)
		if inFrame >= inputFrames-1 {
			inFrame = inputFrames - 1
			frac = 0
		}

		for ch := 0; ch < channels; ch++ {
			s1 := float64(input[inFrame*channels+ch])
			s2 := s1
			if inFrame+1 < inputFrames {
				s2 = float64(input[(inFrame+1)*channels+ch])
			}
			output[outFrame*channels+ch] = int16(s1*(1-frac) + s2*frac)
		}
	}
	return output
}
