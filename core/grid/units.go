package grid

import "math"

// Base holds the process-wide per-unit system base.
type Base struct {
	SBaseMVA float64 `json:"sbase_mva"`
	VBaseKV  float64 `json:"vbase_kv"`
}

// ZBase returns the base impedance in ohms: V^2 / S.
func (b Base) ZBase() float64 { return b.VBaseKV * b.VBaseKV / b.SBaseMVA }

// PUToOhm converts a per-unit impedance to ohms.
func (b Base) PUToOhm(z float64) float64 { return z * b.ZBase() }

// OhmToPU converts an impedance in ohms to per-unit.
func (b Base) OhmToPU(z float64) float64 { return z / b.ZBase() }

// IBaseKA returns the three-phase base current in kA.
func (b Base) IBaseKA() float64 { return b.SBaseMVA / (math.Sqrt(3) * b.VBaseKV) }

// Valid reports whether both base values are strictly positive.
func (b Base) Valid() bool { return b.SBaseMVA > 0 && b.VBaseKV > 0 }
