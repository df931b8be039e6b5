package regionstats

import "math"

// fitEllipse computes the best-fit ellipse of a pixel set from its second
// central moments, the same approach ImageJ's EllipseFitter takes: axis
// directions from the moment eigenvectors, axis lengths scaled so the
// ellipse area equals the region's pixel area. Angle is in degrees in
// [0, 180), measured counter-clockwise from the x-axis with y pointing up.
// Returns ok=false for degenerate pixel sets.
func fitEllipse(xs, ys []float64, area float64) (major, minor, angle float64, ok bool) {
	n := float64(len(xs))
	if n < 2 || area <= 0 {
		return 0, 0, 0, false
	}

	var sumX, sumY float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
	}
	cx := sumX / n
	cy := sumY / n

	// Normalized central moments with the 1/12 single-pixel extent term.
	var m20, m02, m11 float64
	for i := range xs {
		dx := xs[i] - cx
		dy := ys[i] - cy
		m20 += dx * dx
		m02 += dy * dy
		m11 += dx * dy
	}
	m20 = m20/n + 1.0/12.0
	m02 = m02/n + 1.0/12.0
	m11 /= n

	common := math.Sqrt(math.Pow(m20-m02, 2) + 4*m11*m11)
	lambda1 := (m20 + m02 + common) / 2
	lambda2 := (m20 + m02 - common) / 2
	if lambda1 <= 0 {
		return 0, 0, 0, false
	}
	if lambda2 < 0 {
		lambda2 = 0
	}

	// For an ideal ellipse the eigenvalue equals semiAxis²/4.
	semiMajor := 2 * math.Sqrt(lambda1)
	semiMinor := 2 * math.Sqrt(lambda2)

	// Scale so that pi * a * b matches the pixel area.
	if semiMinor > 0 {
		scale := math.Sqrt(area / (math.Pi * semiMajor * semiMinor))
		semiMajor *= scale
		semiMinor *= scale
	} else {
		// Degenerate (collinear pixels): keep the length, zero width.
		semiMinor = 0
	}

	theta := 0.5 * math.Atan2(2*m11, m20-m02)
	// Image rows grow downward; report the angle as if y grew upward.
	angle = -theta * 180 / math.Pi
	for angle < 0 {
		angle += 180
	}
	for angle >= 180 {
		angle -= 180
	}

	return 2 * semiMajor, 2 * semiMinor, angle, true
}
