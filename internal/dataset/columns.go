// Package dataset reads company rows from a spreadsheet and writes lookup
// results back into it.
package dataset

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Columns names the spreadsheet columns by their A1 letters.
type Columns struct {
	Name     string `mapstructure:"name"`
	Profile  string `mapstructure:"profile"`
	Size     string `mapstructure:"size"`
	Industry string `mapstructure:"industry"`
}

// DefaultColumns returns A through D.
func DefaultColumns() Columns {
	return Columns{Name: "A", Profile: "B", Size: "C", Industry: "D"}
}

// ColumnIndex converts column letters to a zero-based index (A=0, Z=25,
// AA=26).
func ColumnIndex(letters string) (int, error) {
	letters = strings.ToUpper(strings.TrimSpace(letters))
	if letters == "" {
		return 0, eris.New("dataset: empty column")
	}
	idx := 0
	for _, r := range letters {
		if r < 'A' || r > 'Z' {
			return 0, eris.Errorf("dataset: invalid column %q", letters)
		}
		idx = idx*26 + int(r-'A'+1)
	}
	return idx - 1, nil
}

// ColumnLetters converts a zero-based index back to column letters.
func ColumnLetters(idx int) string {
	var b []byte
	for n := idx + 1; n > 0; n = (n - 1) / 26 {
		b = append([]byte{byte('A' + (n-1)%26)}, b...)
	}
	return string(b)
}

// Validate checks that the profile, size, and industry columns immediately
// follow the name column. Rows are read across that span, so the known
// profile URL lands in the second cell and any row already carrying results
// is wider than two cells.
func (c Columns) Validate() error {
	name, err := ColumnIndex(c.Name)
	if err != nil {
		return err
	}
	for i, col := range []string{c.Profile, c.Size, c.Industry} {
		idx, err := ColumnIndex(col)
		if err != nil {
			return err
		}
		if idx != name+i+1 {
			return eris.Errorf("dataset: column %s must be %s (columns %s..%s must be contiguous)",
				strings.ToUpper(col), ColumnLetters(name+i+1), strings.ToUpper(c.Name), strings.ToUpper(c.Industry))
		}
	}
	return nil
}

// nameIndex and profileIndex assume Validate passed.
func (c Columns) nameIndex() int {
	idx, _ := ColumnIndex(c.Name)
	return idx
}

func (c Columns) profileIndex() int {
	return c.nameIndex() + 1
}

// span returns the A1 column range Name:Industry.
func (c Columns) span() string {
	return strings.ToUpper(c.Name) + ":" + strings.ToUpper(c.Industry)
}
