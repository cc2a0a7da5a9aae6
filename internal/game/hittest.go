package game

// HitTest returns the candidate nearest to p whose centre lies strictly
// within radius. ok is false when nothing was hit.
func HitTest(cands []Candidate, p Point, radius float64) (hit Candidate, ok bool) {
	best := radius
	for _, c := range cands {
		if d := c.Pos.Dist(p); d < best {
			hit, best, ok = c, d, true
		}
	}
	return hit, ok
}
