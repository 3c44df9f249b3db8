package core

import (
	"fmt"
	"strconv"
	"strings"
)

// CableType is a parsed cable type code such as "G652D-48".
type CableType struct {
	// Class is the ITU-T fiber class that selects the attenuation figure.
	Class string
	// Strands is the strand count encoded in the code.
	Strands int
}

// ParseCableType splits a "<class>-<strands>" code. The class is normalised to
// upper case with dots and spaces removed, so "g.652.d-24" parses as G652D/24.
func ParseCableType(code string) (CableType, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return CableType{}, fmt.Errorf("empty cable type code")
	}
	cut := strings.LastIndex(code, "-")
	if cut <= 0 || cut == len(code)-1 {
		return CableType{}, fmt.Errorf("cable type code %q: want <class>-<strands>", code)
	}
	n, err := strconv.Atoi(code[cut+1:])
	if err != nil || n <= 0 {
		return CableType{}, fmt.Errorf("cable type code %q: invalid strand count", code)
	}
	return CableType{Class: normaliseClass(code[:cut]), Strands: n}, nil
}

// CableClass returns the fiber class of a type code, or "" when the code does
// not parse.
func CableClass(code string) string {
	ct, err := ParseCableType(code)
	if err != nil {
		return ""
	}
	return ct.Class
}

func normaliseClass(s string) string {
	s = strings.ToUpper(s)
	s = strings.NewReplacer(".", "", " ", "", "_", "").Replace(s)
	return s
}

// strandColors is the TIA-598 fiber colour sequence, repeated per tube.
var strandColors = [12]string{
	"blue", "orange", "green", "brown", "slate", "white",
	"red", "black", "yellow", "violet", "rose", "aqua",
}

// StrandColor returns the colour and 1-based buffer tube of a strand under the
// 12-fiber-per-tube convention.
func StrandColor(strand int) (color string, tube int) {
	if strand < 1 {
		return "", 0
	}
	i := strand - 1
	return strandColors[i%12], i/12 + 1
}
