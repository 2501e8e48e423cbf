// Package capture runs a recording session: it reads fixed-size buffers
// from a source, archives every byte, and cuts utterance segments out of
// the stream as it flows.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"

	"vadcap/log"
	"vadcap/metrics"
	"vadcap/segment"
	"vadcap/vad"
	"vadcap/wav"
)

var (
	ErrArchiveWrite = errors.New("archive write failed")
	ErrSegmentWrite = errors.New("segment write failed")
	ErrSegmentOpen  = errors.New("segment open failed")
	ErrPartition    = errors.New("window does not partition the buffer")
)

// Source delivers captured audio. ReadBuffer fills p and returns the number
// of bytes placed in it; io.EOF marks the end of a finite source.
type Source interface {
	ReadBuffer(ctx context.Context, p []byte) (int, error)
}

// Archive is the continuous recording of the whole session.
type Archive interface {
	io.Writer
	Frames() int64
	Close() error
}

// Options configure a Loop. Zero thresholds are not valid; start from
// vad.DefaultThresholds.
type Options struct {
	Format       wav.Format
	BufferFrames int
	WindowFrames int
	Thresholds   vad.Thresholds

	// PreRollWindows idle windows before an onset are written at the start
	// of the new segment.
	PreRollWindows int
	// TrimTrailingSilence cuts the quiet windows written while the offset
	// debounce was running.
	TrimTrailingSilence bool

	// Retune delivers replacement thresholds, applied between buffers.
	// Thresholds that cannot be used with the window size are ignored.
	Retune <-chan vad.Thresholds

	// Status, when set, receives a snapshot after every buffer. It runs on
	// the loop goroutine and must not block.
	Status  func(Status)
	Metrics *metrics.Metrics
}

// Status is a per-buffer snapshot for live displays.
type Status struct {
	// Level is the buffer peak relative to full scale, 0..1.
	Level    float64
	State    vad.State
	Segments int
	Frames   int64
}

// Summary describes a finished session.
type Summary struct {
	Buffers       int
	ArchiveFrames int64
	Segments      []segment.Info
	Aborted       int
	// ReadErr is the device error that ended the session, if any.
	ReadErr error
	Reason  string
}

// Loop owns the classifier, state machine, open segment and archive for
// one session. It is not safe for concurrent use.
type Loop struct {
	src      Source
	archive  Archive
	segments *segment.Writer
	opts     Options

	classifier  *vad.Classifier
	machine     *vad.Machine
	bufferBytes int
	windowBytes int
	fullScale   float64

	open      *segment.Segment
	quietTail int64
	preroll   [][]byte
	prerollN  int
	overruns  int64
	summary   Summary
}

// New validates the buffer/window geometry and builds a loop.
func New(src Source, archive Archive, segments *segment.Writer, opts Options) (*Loop, error) {
	block := opts.Format.BlockAlign()
	if block <= 0 {
		return nil, fmt.Errorf("invalid format %s", opts.Format)
	}
	if opts.BufferFrames <= 0 || opts.WindowFrames <= 0 || opts.BufferFrames%opts.WindowFrames != 0 {
		return nil, fmt.Errorf("%w: %d frames into windows of %d", ErrPartition, opts.BufferFrames, opts.WindowFrames)
	}
	if samples := opts.WindowFrames * opts.Format.Channels; samples <= opts.Thresholds.QuietRun {
		return nil, fmt.Errorf("%w: %d samples per window can never exceed quiet run %d",
			ErrPartition, samples, opts.Thresholds.QuietRun)
	}
	if err := opts.Thresholds.Validate(); err != nil {
		return nil, err
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Default()
	}

	l := &Loop{
		src:         src,
		archive:     archive,
		segments:    segments,
		opts:        opts,
		classifier:  vad.NewClassifier(opts.Thresholds, opts.Format.BitDepth),
		machine:     vad.NewMachine(opts.Thresholds),
		bufferBytes: opts.BufferFrames * block,
		windowBytes: opts.WindowFrames * block,
		fullScale:   float64(int64(1) << (opts.Format.BitDepth - 1)),
	}
	if opts.PreRollWindows > 0 {
		l.preroll = make([][]byte, opts.PreRollWindows)
		for i := range l.preroll {
			l.preroll[i] = make([]byte, 0, l.windowBytes)
		}
	}
	return l, nil
}

// Run captures until ctx is canceled or the source fails or ends. The
// returned error is non-nil only for failures that abort the session
// (archive writes, segment creation); a device read error ends the session
// normally and is reported in Summary.ReadErr. The archive is finalized and
// any open segment closed before Run returns.
func (l *Loop) Run(ctx context.Context) (Summary, error) {
	buf := make([]byte, l.bufferBytes)
	var fatal error

	for fatal == nil {
		if ctx.Err() != nil {
			l.summary.Reason = "canceled"
			break
		}
		select {
		case t := <-l.opts.Retune:
			l.retune(t)
		default:
		}
		n, err := l.src.ReadBuffer(ctx, buf)
		if n > 0 {
			fatal = l.process(ctx, buf[:n])
		}
		if err != nil {
			switch {
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				l.summary.Reason = "canceled"
			case errors.Is(err, io.EOF):
				l.summary.Reason = "end_of_stream"
			default:
				l.summary.Reason = "read_error"
				l.summary.ReadErr = err
				log.Errorf("device read failed: %v", err)
			}
			break
		}
		l.checkOverruns(ctx)
	}
	if fatal != nil {
		l.summary.Reason = "write_error"
	}

	if ev := l.machine.ForceEnd(); ev.Kind == vad.End {
		l.end(ctx)
	}
	if err := l.archive.Close(); err != nil && fatal == nil {
		fatal = fmt.Errorf("%w: finalizing archive: %w", ErrArchiveWrite, err)
	}
	l.summary.ArchiveFrames = l.archive.Frames()
	log.SessionEnd(l.summary.ArchiveFrames, len(l.summary.Segments), l.summary.Aborted, l.summary.Reason)
	return l.summary, fatal
}

func (l *Loop) process(ctx context.Context, buf []byte) error {
	l.summary.Buffers++
	if _, err := l.archive.Write(buf); err != nil {
		return fmt.Errorf("%w: %w", ErrArchiveWrite, err)
	}
	l.opts.Metrics.ArchiveBytes.Add(ctx, int64(len(buf)))

	var peak int32
	err := vad.Windows(buf, l.windowBytes, func(w vad.Window) error {
		if len(w) < l.windowBytes {
			l.tail(ctx, w)
			return nil
		}
		v := l.classifier.Classify(w)
		peak = max(peak, v.Peak)
		l.opts.Metrics.RecordWindow(ctx, v.Quiet)

		switch ev := l.machine.Step(v); ev.Kind {
		case vad.Begin:
			if err := l.begin(ctx, ev.Index); err != nil {
				return err
			}
		case vad.End:
			l.end(ctx)
		}

		if l.machine.Recording() {
			l.append(ctx, w, v.Quiet)
		} else {
			l.remember(w)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if l.opts.Status != nil {
		l.opts.Status(Status{
			Level:    float64(peak) / l.fullScale,
			State:    l.machine.State(),
			Segments: len(l.summary.Segments),
			Frames:   l.archive.Frames(),
		})
	}
	return nil
}

// tail handles a final window too short to hold a quiet run. It is not
// classified; it extends whatever the previous window started.
func (l *Loop) tail(ctx context.Context, w []byte) {
	if l.machine.Recording() {
		l.append(ctx, w, l.quietTail > 0)
	} else {
		l.remember(w)
	}
}

func (l *Loop) begin(ctx context.Context, index int) error {
	seg, err := l.segments.Open(index)
	if err != nil {
		l.machine.Abort()
		return fmt.Errorf("%w: %w", ErrSegmentOpen, err)
	}
	l.open = seg
	l.quietTail = 0
	log.SegmentOpen(index, seg.Path())
	l.opts.Metrics.Recording.Add(ctx, 1)

	for _, w := range l.drainPreroll() {
		if !l.append(ctx, w, false) {
			break
		}
	}
	return nil
}

// append writes w to the open segment. A failed write aborts the segment
// and reports false.
func (l *Loop) append(ctx context.Context, w []byte, quiet bool) bool {
	if err := l.segments.Append(l.open, w); err != nil {
		l.abort(ctx, fmt.Errorf("%w: %w", ErrSegmentWrite, err))
		return false
	}
	l.machine.Wrote(len(w))
	if quiet {
		l.quietTail += int64(len(w))
	} else {
		l.quietTail = 0
	}
	return true
}

func (l *Loop) abort(ctx context.Context, cause error) {
	idx, _ := l.machine.Abort()
	if err := l.segments.Abort(l.open); err != nil {
		cause = errors.Join(cause, err)
	}
	l.open = nil
	l.summary.Aborted++
	log.SegmentAbort(idx, cause)
	l.opts.Metrics.Recording.Add(ctx, -1)
	l.opts.Metrics.RecordSegment(ctx, metrics.OutcomeAborted, 0)
}

func (l *Loop) end(ctx context.Context) {
	seg := l.open
	l.open = nil
	l.opts.Metrics.Recording.Add(ctx, -1)

	var trim int64
	if l.opts.TrimTrailingSilence {
		trim = l.quietTail
	}
	info, err := l.segments.CloseTrimmed(seg, trim)
	if err != nil {
		l.machine.Reclaim(seg.Index())
		l.summary.Aborted++
		log.SegmentAbort(seg.Index(), fmt.Errorf("%w: %w", ErrSegmentWrite, err))
		l.opts.Metrics.RecordSegment(ctx, metrics.OutcomeAborted, 0)
		return
	}
	l.summary.Segments = append(l.summary.Segments, info)
	log.SegmentClose(log.SegmentRecord{
		Index:     info.Index,
		Path:      info.Path,
		Frames:    info.Frames,
		DurationS: info.Duration.Seconds(),
		Trimmed:   trim,
	})
	l.opts.Metrics.RecordSegment(ctx, metrics.OutcomeClosed, info.Duration.Seconds())
}

func (l *Loop) retune(t vad.Thresholds) {
	err := t.Validate()
	if samples := l.opts.WindowFrames * l.opts.Format.Channels; err == nil && samples <= t.QuietRun {
		err = fmt.Errorf("%w: %d samples per window can never exceed quiet run %d", ErrPartition, samples, t.QuietRun)
	}
	if err != nil {
		log.Warnf("thresholds not applied: %v", err)
		return
	}
	l.opts.Thresholds = t
	l.classifier = vad.NewClassifier(t, l.opts.Format.BitDepth)
	l.machine.SetThresholds(t)
	log.ThresholdsReload(t.SilenceAmplitude, t.QuietRun, t.OnsetWindows, t.OffsetWindows)
}

// remember keeps the most recent idle windows for pre-roll.
func (l *Loop) remember(w []byte) {
	if len(l.preroll) == 0 {
		return
	}
	if l.prerollN == len(l.preroll) {
		first := l.preroll[0]
		copy(l.preroll, l.preroll[1:])
		l.preroll[len(l.preroll)-1] = first
		l.prerollN--
	}
	slot := l.preroll[l.prerollN]
	l.preroll[l.prerollN] = append(slot[:0], w...)
	l.prerollN++
}

func (l *Loop) drainPreroll() [][]byte {
	ws := l.preroll[:l.prerollN]
	l.prerollN = 0
	return ws
}

type overrunCounter interface {
	Overruns() int64
}

func (l *Loop) checkOverruns(ctx context.Context) {
	oc, ok := l.src.(overrunCounter)
	if !ok {
		return
	}
	if total := oc.Overruns(); total > l.overruns {
		dropped := total - l.overruns
		l.overruns = total
		log.DeviceOverrun(dropped, total)
		l.opts.Metrics.Overruns.Add(ctx, dropped)
	}
}
