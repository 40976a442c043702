// README: Geographic point used by courier availability and ETA lookups.
package types

type Point struct {
	Lat float64
	Lng float64
}
