package domain

// AspectRatio is one entry of the fixed aspect ratio table.
type AspectRatio struct {
	ID    string  `json:"id"`
	Label string  `json:"label"`
	Ratio float64 `json:"ratio"`
}

// DefaultAspectRatioID is assigned to images that never had a ratio selected.
const DefaultAspectRatioID = "1:1"

var aspectRatios = []AspectRatio{
	{ID: "1:1", Label: "1:1", Ratio: 1},
	{ID: "16:9", Label: "16:9", Ratio: 16.0 / 9.0},
	{ID: "9:16", Label: "9:16", Ratio: 9.0 / 16.0},
	{ID: "4:3", Label: "4:3", Ratio: 4.0 / 3.0},
	{ID: "3:4", Label: "3:4", Ratio: 3.0 / 4.0},
}

// AspectRatios returns a copy of the aspect ratio table in display order.
func AspectRatios() []AspectRatio {
	out := make([]AspectRatio, len(aspectRatios))
	copy(out, aspectRatios)
	return out
}

// LookupAspectRatio finds a table entry by ID.
func LookupAspectRatio(id string) (AspectRatio, bool) {
	for _, ar := range aspectRatios {
		if ar.ID == id {
			return ar, true
		}
	}
	return AspectRatio{}, false
}

// AspectRatioFor returns the numeric ratio for id, or 1 for unknown IDs.
func AspectRatioFor(id string) float64 {
	if ar, ok := LookupAspectRatio(id); ok {
		return ar.Ratio
	}
	return 1
}

// IsValidAspectRatio returns true if id names a table entry.
func IsValidAspectRatio(id string) bool {
	_, ok := LookupAspectRatio(id)
	return ok
}
