package geo

// Option applies a configuration option to the Index.
type Option func(*Index)

// WithCellDegrees sets the grid cell edge in degrees.
func WithCellDegrees(deg float64) Option {
	return func(idx *Index) {
		if deg > 0 {
			idx.cellDegrees = deg
		}
	}
}
