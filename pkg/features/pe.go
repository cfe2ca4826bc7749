package features

import (
	"bytes"
	"debug/pe"
	"math"
)

// peSectionColumns are the per-section measurements aggregated into the
// file classifier's feature schema.
var peSectionColumns = []string{"size_of_data", "virtual_address", "entropy", "virtual_size"}

// PEFeatures parses data as a Portable Executable and aggregates per-section
// statistics (mean, max, min, population std) for each section measurement.
// Returns nil when the bytes are not a valid PE or carry no sections; the
// caller short-circuits to a NOT_PE_OR_INVALID verdict without touching the
// classifiers.
func PEFeatures(data []byte) map[string]float64 {
	if len(data) == 0 {
		return nil
	}

	file, err := pe.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil
	}
	defer file.Close()

	if len(file.Sections) == 0 {
		return nil
	}

	columns := make(map[string][]float64, len(peSectionColumns))
	for _, section := range file.Sections {
		raw, err := section.Data()
		if err != nil {
			raw = nil
		}
		columns["size_of_data"] = append(columns["size_of_data"], float64(section.Size))
		columns["virtual_address"] = append(columns["virtual_address"], float64(section.VirtualAddress))
		columns["entropy"] = append(columns["entropy"], byteEntropy(raw))
		columns["virtual_size"] = append(columns["virtual_size"], float64(section.VirtualSize))
	}

	features := make(map[string]float64, len(peSectionColumns)*4)
	for _, name := range peSectionColumns {
		mean, max, min, std := aggregate(columns[name])
		features[name+"_mean"] = mean
		features[name+"_max"] = max
		features[name+"_min"] = min
		features[name+"_std"] = std
	}
	return features
}

// aggregate returns mean, max, min and population standard deviation.
// A single-section file has std 0, never NaN.
func aggregate(values []float64) (mean, max, min, std float64) {
	if len(values) == 0 {
		return 0, 0, 0, 0
	}

	max = values[0]
	min = values[0]
	sum := 0.0
	for _, v := range values {
		sum += v
		if v > max {
			max = v
		}
		if v < min {
			min = v
		}
	}
	mean = sum / float64(len(values))

	variance := 0.0
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))
	std = math.Sqrt(variance)
	return mean, max, min, std
}
