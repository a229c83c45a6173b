package converter

import (
	"bytes"
	"context"
	"io"
	"os/exec"
	"strings"
	"sync"
)

// MP3Converter transcodes audio to MP3 by piping it through an external
// ffmpeg process. Input is fed on a separate goroutine while output is
// drained by the caller, so neither side can deadlock on a full pipe buffer.
type MP3Converter struct {
	FFmpegPath string
	Bitrate    string
}

func NewMP3Converter(bitrate string) *MP3Converter {
	if bitrate == "" {
		bitrate = "64k"
	}
	return &MP3Converter{FFmpegPath: "ffmpeg", Bitrate: bitrate}
}

func (c *MP3Converter) Convert(ctx context.Context, in io.Reader) (io.ReadCloser, error) {
	cmd := exec.CommandContext(ctx, c.FFmpegPath,
		"-y",
		"-i", "-",
		"-f", "mp3",
		"-b:a", c.Bitrate,
		"-",
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, convErr(err, "ffmpeg stdin")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, convErr(err, "ffmpeg stdout")
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, convErr(err, "start ffmpeg")
	}

	go func() {
		// A write error here means ffmpeg exited early; its exit status is
		// surfaced when the output stream is drained.
		io.Copy(stdin, in)
		stdin.Close()
	}()

	return &mp3Stream{cmd: cmd, out: stdout, stderr: &stderr}, nil
}

type mp3Stream struct {
	cmd     *exec.Cmd
	out     io.ReadCloser
	stderr  *bytes.Buffer
	waitOne sync.Once
	waitErr error
}

func (s *mp3Stream) Read(p []byte) (int, error) {
	n, err := s.out.Read(p)
	if err == io.EOF {
		if werr := s.wait(); werr != nil {
			return n, werr
		}
	}
	return n, err
}

func (s *mp3Stream) Close() error {
	s.out.Close()
	s.wait()
	return nil
}

func (s *mp3Stream) wait() error {
	s.waitOne.Do(func() {
		if err := s.cmd.Wait(); err != nil {
			msg := strings.TrimSpace(s.stderr.String())
			if msg == "" {
				msg = err.Error()
			}
			s.waitErr = &Error{Msg: "ffmpeg conversion failed: " + msg}
		}
	})
	return s.waitErr
}
