package types

// FaceResult is one face reported by the encoder for a single image.
type FaceResult struct {
	Loc []int     `json:"loc"` // [top, right, bottom, left]
	Vec []float64 `json:"vec"` // 128-d face encoding
}

// Width and Height of the face box in pixels. Zero for malformed locations.
func (f FaceResult) Width() int {
	if len(f.Loc) != 4 {
		return 0
	}
	return f.Loc[1] - f.Loc[3]
}

func (f FaceResult) Height() int {
	if len(f.Loc) != 4 {
		return 0
	}
	return f.Loc[2] - f.Loc[0]
}
