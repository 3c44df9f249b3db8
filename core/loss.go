package core

import (
	"strings"

	"github.com/signalsfoundry/fibertrace/model"
)

// LossModel holds the attenuation constants used to estimate end-to-end
// optical loss. All values are in dB. A LossModel is read-only once handed to
// a Tracer.
type LossModel struct {
	// PerKmDb maps a normalised fiber class (see ParseCableType) to dB/km.
	PerKmDb map[string]float64
	// DefaultPerKmDb applies to classes missing from PerKmDb and to codes
	// that do not parse.
	DefaultPerKmDb float64

	// SpliceLossDb is added once per splice traversed at a joint or chamber.
	SpliceLossDb float64

	// SplitterLossDb maps a ratio string ("1:8") to insertion loss.
	SplitterLossDb map[string]float64
	// DefaultSplitterLossDb applies to unknown or empty ratios.
	DefaultSplitterLossDb float64
}

// DefaultLossModel returns typical planning figures at 1310 nm for
// single-mode plant and PLC splitters.
func DefaultLossModel() LossModel {
	return LossModel{
		PerKmDb: map[string]float64{
			"G652":   0.35,
			"G652D":  0.35,
			"G655":   0.30,
			"G657A1": 0.40,
			"G657A2": 0.40,
			"G657B3": 0.45,
		},
		DefaultPerKmDb: 0.40,
		SpliceLossDb:   0.1,
		SplitterLossDb: map[string]float64{
			"1:2":  3.7,
			"1:4":  7.3,
			"1:8":  10.5,
			"1:16": 13.5,
			"1:32": 17.5,
			"1:64": 21.0,
		},
		DefaultSplitterLossDb: 17.5,
	}
}

// PerKmAttenuation returns the dB/km figure for a cable type code.
func (m LossModel) PerKmAttenuation(typeCode string) float64 {
	if v, ok := m.PerKmDb[CableClass(typeCode)]; ok {
		return v
	}
	return m.DefaultPerKmDb
}

// CableLossDb is lengthMeters/1000 times the per-km attenuation of the
// cable's type.
func (m LossModel) CableLossDb(c *model.Cable) float64 {
	if c == nil || c.LengthMeters <= 0 {
		return 0
	}
	return c.LengthMeters / 1000 * m.PerKmAttenuation(c.TypeCode)
}

// SplitterLoss returns the insertion loss of a splitter with the given ratio.
func (m LossModel) SplitterLoss(ratio string) float64 {
	r := strings.ReplaceAll(strings.TrimSpace(ratio), " ", "")
	if v, ok := m.SplitterLossDb[r]; ok {
		return v
	}
	return m.DefaultSplitterLossDb
}

// Merge returns a copy of m with every non-zero value from override applied.
func (m LossModel) Merge(override LossModel) LossModel {
	out := LossModel{
		PerKmDb:               make(map[string]float64, len(m.PerKmDb)+len(override.PerKmDb)),
		DefaultPerKmDb:        m.DefaultPerKmDb,
		SpliceLossDb:          m.SpliceLossDb,
		SplitterLossDb:        make(map[string]float64, len(m.SplitterLossDb)+len(override.SplitterLossDb)),
		DefaultSplitterLossDb: m.DefaultSplitterLossDb,
	}
	for k, v := range m.PerKmDb {
		out.PerKmDb[k] = v
	}
	for k, v := range override.PerKmDb {
		out.PerKmDb[normaliseClass(k)] = v
	}
	for k, v := range m.SplitterLossDb {
		out.SplitterLossDb[k] = v
	}
	for k, v := range override.SplitterLossDb {
		out.SplitterLossDb[strings.ReplaceAll(k, " ", "")] = v
	}
	if override.DefaultPerKmDb > 0 {
		out.DefaultPerKmDb = override.DefaultPerKmDb
	}
	if override.SpliceLossDb > 0 {
		out.SpliceLossDb = override.SpliceLossDb
	}
	if override.DefaultSplitterLossDb > 0 {
		out.DefaultSplitterLossDb = override.DefaultSplitterLossDb
	}
	return out
}
