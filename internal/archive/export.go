package archive

import (
	"fmt"
	"io"
	"time"

	"github.com/arloliu/mebo"

	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/fault"
	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/record"
)

// Format selects how Export writes an archive.
type Format string

const (
	// FormatCSV is the stored line format, copied verbatim.
	FormatCSV Format = "csv"
	// FormatMebo is a mebo numeric blob: delta-encoded microsecond
	// timestamps and Gorilla-encoded values.
	FormatMebo Format = "mebo"
)

// ParseFormat maps a user-supplied format name to a Format.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatCSV, "":
		return FormatCSV, nil
	case FormatMebo:
		return FormatMebo, nil
	}
	return "", fmt.Errorf("archive: unknown export format %q (want csv or mebo)", s)
}

// MetricName is the mebo metric holding the first block of samples. Further
// blocks are "<MetricName>.1", "<MetricName>.2" and so on.
const MetricName = "degree"

// maxBlock is the most data points mebo accepts per metric.
const maxBlock = 65535

func blockName(i int) string {
	if i == 0 {
		return MetricName
	}
	return fmt.Sprintf("%s.%d", MetricName, i)
}

// Export writes the archive called name to w in format f.
func Export(roomDir, name string, f Format, w io.Writer) error {
	switch f {
	case FormatCSV, "":
		return Copy(roomDir, name, w)
	case FormatMebo:
		samples, err := Read(roomDir, name)
		if err != nil {
			return err
		}
		blob, err := EncodeMebo(samples)
		if err != nil {
			return err
		}
		if _, err := w.Write(blob); err != nil {
			return fault.Wrap(fault.Storage, "export archive", err)
		}
		return nil
	}
	return fmt.Errorf("archive: unknown export format %q", f)
}

// EncodeMebo packs time-sorted samples into a mebo numeric blob.
func EncodeMebo(samples []record.Sample) ([]byte, error) {
	if len(samples) == 0 {
		return nil, fault.New(fault.EmptyArchive, "encode mebo")
	}
	enc, err := mebo.NewDefaultNumericEncoder(samples[0].Time)
	if err != nil {
		return nil, fmt.Errorf("archive: mebo encoder: %w", err)
	}
	for i := 0; len(samples) > 0; i++ {
		block := samples[:min(len(samples), maxBlock)]
		samples = samples[len(block):]

		if err := enc.StartMetricName(blockName(i), len(block)); err != nil {
			return nil, fmt.Errorf("archive: mebo start %s: %w", blockName(i), err)
		}
		for _, s := range block {
			if err := enc.AddDataPoint(s.Time.UnixMicro(), float64(s.Value), ""); err != nil {
				return nil, fmt.Errorf("archive: mebo add: %w", err)
			}
		}
		if err := enc.EndMetric(); err != nil {
			return nil, fmt.Errorf("archive: mebo end %s: %w", blockName(i), err)
		}
	}
	data, err := enc.Finish()
	if err != nil {
		return nil, fmt.Errorf("archive: mebo finish: %w", err)
	}
	return data, nil
}

// DecodeMebo unpacks a blob written by EncodeMebo. Timestamps are placed in
// loc since the blob does not carry offsets.
func DecodeMebo(data []byte, loc *time.Location) ([]record.Sample, error) {
	dec, err := mebo.NewNumericDecoder(data)
	if err != nil {
		return nil, fmt.Errorf("archive: mebo decoder: %w", err)
	}
	blob, err := dec.Decode()
	if err != nil {
		return nil, fmt.Errorf("archive: mebo decode: %w", err)
	}
	var samples []record.Sample
	for i := 0; blob.HasMetricName(blockName(i)); i++ {
		for _, dp := range blob.AllByName(blockName(i)) {
			samples = append(samples, record.Sample{
				Time:  time.UnixMicro(dp.Ts).In(loc),
				Value: float32(dp.Val),
			})
		}
	}
	return samples, nil
}
