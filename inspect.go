package main

import (
	"fmt"
	"io"
	"os"
	"time"

	gowav "github.com/go-audio/wav"

	"vadcap/wav"
)

type fileReport struct {
	Format     wav.Format
	Frames     int64
	Duration   time.Duration
	Consistent bool
	// Trailing is the number of bytes on disk beyond the declared data.
	Trailing int64
}

// inspectFile checks the canonical header vadcap writes and cross-reads the
// file with an independent decoder.
func inspectFile(path string) (fileReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return fileReport{}, err
	}
	defer f.Close()

	h, err := wav.ReadHeader(f)
	if err != nil {
		return fileReport{}, err
	}
	st, err := f.Stat()
	if err != nil {
		return fileReport{}, err
	}
	r := fileReport{
		Format:     h.Format(),
		Frames:     h.Frames(),
		Consistent: h.Consistent(),
		Trailing:   st.Size() - wav.HeaderSize - int64(h.DataSize),
	}

	if r.Format.SampleRate > 0 {
		r.Duration = time.Duration(r.Frames) * time.Second / time.Duration(r.Format.SampleRate)
	}
	if !r.Consistent || r.Trailing != 0 {
		return r, nil
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return r, err
	}
	d := gowav.NewDecoder(f)
	if !d.IsValidFile() {
		return r, fmt.Errorf("rejected by wav decoder")
	}
	got := wav.Format{SampleRate: int(d.SampleRate), Channels: int(d.NumChans), BitDepth: int(d.BitDepth)}
	if got != r.Format {
		return r, fmt.Errorf("decoder reads %s, header says %s", got, r.Format)
	}
	if err := d.FwdToPCM(); err != nil {
		return r, fmt.Errorf("decoder: %w", err)
	}
	if d.PCMLen() != int64(h.DataSize) {
		return r, fmt.Errorf("decoder reads %d data bytes, header says %d", d.PCMLen(), h.DataSize)
	}
	return r, nil
}

func runInspect(paths []string, out io.Writer) int {
	if len(paths) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: vadcap inspect <file.wav>...")
		return 1
	}
	code := 0
	for _, p := range paths {
		r, err := inspectFile(p)
		if err != nil {
			fmt.Fprintf(out, "%s: %v\n", p, err)
			code = 1
			continue
		}
		state := "ok"
		switch {
		case !r.Consistent:
			state = "inconsistent header"
			code = 1
		case r.Trailing < 0:
			state = fmt.Sprintf("truncated, %d bytes missing", -r.Trailing)
			code = 1
		case r.Trailing > 0:
			state = fmt.Sprintf("header not finalized, %d bytes after data", r.Trailing)
			code = 1
		}
		fmt.Fprintf(out, "%s: %s, %d frames, %s [%s]\n", p, r.Format, r.Frames, r.Duration.Round(time.Millisecond), state)
	}
	return code
}
