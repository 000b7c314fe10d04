package encoder

import (
	"context"
	"strconv"
)

// DefaultBatchSize caps the number of inputs decoded by one ffmpeg
// process. Each input holds a full decoder open, so the batch size
// bounds peak memory while still amortizing process startup.
const DefaultBatchSize = 10

// Job is one independent (input, output) transcode unit. InputArgs must
// end with "-i <file>"; OutputArgs must end with the output path.
type Job struct {
	InputArgs  []string
	OutputArgs []string
}

// Dispatch partitions jobs into consecutive batches of at most batchSize
// and issues one multi-input/multi-output ffmpeg invocation per batch.
// Within a batch, output i is mapped to the video stream of input i; the
// mapping must stay positional or outputs land on the wrong windows.
// A non-zero exit from any batch aborts the remaining batches.
func (f *FFmpeg) Dispatch(ctx context.Context, stage string, jobs []Job, batchSize int) error {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	for start := 0; start < len(jobs); start += batchSize {
		end := start + batchSize
		if end > len(jobs) {
			end = len(jobs)
		}
		batch := jobs[start:end]

		// Passthrough sync: every input is an independently seeked
		// window, so frame timing must not be rewritten across inputs.
		args := []string{"-vsync", "passthrough"}
		for _, j := range batch {
			args = append(args, j.InputArgs...)
		}
		for i, j := range batch {
			args = append(args, "-map", strconv.Itoa(i)+":v")
			args = append(args, j.OutputArgs...)
		}
		if err := f.run(ctx, stage, args); err != nil {
			return err
		}
	}
	return nil
}
