package model

// NA marks a field that was attempted but not found.
const NA = "NA"

// EnrichmentResult is the fully populated output for one name.
type EnrichmentResult struct {
	ProfileURL string `json:"profile_url"`
	Size       string `json:"size"`
	Industry   string `json:"industry"`
}

// Values returns the result cells in sheet column order.
func (r EnrichmentResult) Values() []string {
	return []string{r.ProfileURL, r.Size, r.Industry}
}

// Partial is what item processing resolved. Empty fields were not resolved.
type Partial struct {
	ProfileURL string `json:"profile_url,omitempty"`
	Size       string `json:"size,omitempty"`
	Industry   string `json:"industry,omitempty"`
}

// Empty reports whether nothing was resolved.
func (p Partial) Empty() bool {
	return p.ProfileURL == "" && p.Size == "" && p.Industry == ""
}

// Merge fills every unresolved field with NA.
func (p Partial) Merge() EnrichmentResult {
	return EnrichmentResult{
		ProfileURL: orNA(p.ProfileURL),
		Size:       orNA(p.Size),
		Industry:   orNA(p.Industry),
	}
}

func orNA(s string) string {
	if s == "" {
		return NA
	}
	return s
}

// CycleMap holds the results accumulated during one cycle, keyed by name.
type CycleMap map[string]EnrichmentResult

// Put merges a partial result for name, overwriting any previous entry.
func (m CycleMap) Put(name string, p Partial) {
	m[name] = p.Merge()
}

// Ensure inserts an all-NA result for name unless one is present.
func (m CycleMap) Ensure(name string) {
	if _, ok := m[name]; !ok {
		m[name] = Partial{}.Merge()
	}
}
