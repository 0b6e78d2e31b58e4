// Package sensor provides the ambient value sources sampled by the daemon.
package sensor

// Kind identifies what a sensor measures.
type Kind string

const (
	Temperature Kind = "temperature"
	Power       Kind = "power"
)

// Unit returns the display unit for the kind.
func (k Kind) Unit() string {
	switch k {
	case Temperature:
		return "°C"
	case Power:
		return "W"
	default:
		return ""
	}
}

// Sensor reads the current value of one quantity.
type Sensor interface {
	Read() (float64, error)
	Close() error
}
