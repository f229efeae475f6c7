package schedule

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/MrJamesThe3rd/medtrain/internal/catalogue"
	enc "github.com/MrJamesThe3rd/medtrain/internal/encoding"
)

var ErrNoProfile = errors.New("no matching schedule format found: expected the template or rota columns")

// Parser reads session schedule spreadsheets exported as CSV. It detects the
// layout from the header row and the delimiter from the first line.
type Parser struct {
	loc *time.Location
}

// NewParser interprets dates and times in loc. A nil loc means UTC.
func NewParser(loc *time.Location) *Parser {
	if loc == nil {
		loc = time.UTC
	}

	return &Parser{loc: loc}
}

func (p *Parser) Parse(r io.Reader) ([]catalogue.SessionParams, error) {
	utf8r, err := enc.NewUTF8Reader(r)
	if err != nil {
		return nil, fmt.Errorf("detect encoding: %w", err)
	}

	data, err := io.ReadAll(utf8r)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = sniffDelimiter(data)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}

	profile, cols, headerIdx := detectProfile(rows)
	if profile == nil {
		return nil, ErrNoProfile
	}

	return p.parseRows(profile, cols, rows[headerIdx+1:], headerIdx)
}

// sniffDelimiter picks whichever of comma, semicolon or tab is most frequent
// on the first non-empty line.
func sniffDelimiter(data []byte) rune {
	for line := range bytes.Lines(data) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		best, count := ',', bytes.Count(line, []byte{','})

		for _, d := range []rune{';', '\t'} {
			if n := bytes.Count(line, []byte(string(d))); n > count {
				best, count = d, n
			}
		}

		return best
	}

	return ','
}

// colIndex maps lower-cased column names to their index in the row.
type colIndex map[string]int

func (c colIndex) get(row []string, name string) string {
	if name == "" {
		return ""
	}

	idx, ok := c[name]
	if !ok || idx >= len(row) {
		return ""
	}

	return strings.TrimSpace(row[idx])
}

func detectProfile(rows [][]string) (*Profile, colIndex, int) {
	for rowIdx, row := range rows {
		cols := make(colIndex)

		for i, cell := range row {
			name := strings.ToLower(strings.TrimSpace(cell))
			if name != "" {
				cols[name] = i
			}
		}

		for i := range profiles {
			if matchesProfile(&profiles[i], cols) {
				return &profiles[i], cols, rowIdx
			}
		}
	}

	return nil, nil, 0
}

func matchesProfile(p *Profile, cols colIndex) bool {
	for _, name := range p.requiredCols() {
		if _, ok := cols[name]; !ok {
			return false
		}
	}

	return true
}

// parseRows converts data rows into session params. Rows without a course
// code are skipped so totals and notes at the bottom of a sheet are ignored.
// headerRowNum is the 0-based index of the header row.
func (p *Parser) parseRows(pr *Profile, cols colIndex, rows [][]string, headerRowNum int) ([]catalogue.SessionParams, error) {
	var sessions []catalogue.SessionParams

	for i, row := range rows {
		rowNum := headerRowNum + i + 2

		course := cols.get(row, pr.CourseCol)
		if course == "" {
			continue
		}

		startsAt, err := p.parseDateTime(pr.DateLayout, cols.get(row, pr.DateCol), cols.get(row, pr.StartCol))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", rowNum, err)
		}

		duration, err := p.parseDuration(pr, cols, row, startsAt)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", rowNum, err)
		}

		capacity, err := parseOptionalInt(cols.get(row, pr.CapacityCol))
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid capacity: %w", rowNum, err)
		}

		s := catalogue.SessionParams{
			ID:              cols.get(row, pr.IDCol),
			CourseCode:      strings.ToUpper(course),
			StartsAt:        startsAt,
			DurationMinutes: duration,
			TrainerName:     cols.get(row, pr.TrainerCol),
			TrainerEmail:    strings.ToLower(cols.get(row, pr.EmailCol)),
			Venue:           cols.get(row, pr.VenueCol),
			Capacity:        capacity,
		}

		if raw := cols.get(row, pr.PriceCol); raw != "" {
			price, err := parsePrice(raw)
			if err != nil {
				return nil, fmt.Errorf("row %d: invalid price %q: %w", rowNum, raw, err)
			}

			s.Price = &price
		}

		sessions = append(sessions, s)
	}

	return sessions, nil
}

func (p *Parser) parseDateTime(layout, date, clock string) (time.Time, error) {
	if date == "" || clock == "" {
		return time.Time{}, errors.New("missing date or start time")
	}

	t, err := time.ParseInLocation(layout+" 15:04", date+" "+clock, p.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date/time %q %q", date, clock)
	}

	return t, nil
}

func (p *Parser) parseDuration(pr *Profile, cols colIndex, row []string, startsAt time.Time) (int, error) {
	switch pr.DurationMode {
	case durationEndTime:
		end, err := time.ParseInLocation("15:04", cols.get(row, pr.EndCol), p.loc)
		if err != nil {
			return 0, fmt.Errorf("invalid end time %q", cols.get(row, pr.EndCol))
		}

		minutes := end.Hour()*60 + end.Minute() - (startsAt.Hour()*60 + startsAt.Minute())
		if minutes <= 0 {
			return 0, errors.New("end time is not after start time")
		}

		return minutes, nil
	default:
		minutes, err := parseOptionalInt(cols.get(row, pr.DurationCol))
		if err != nil {
			return 0, fmt.Errorf("invalid duration: %w", err)
		}

		return minutes, nil
	}
}

// parseOptionalInt returns 0 for an empty cell.
func parseOptionalInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}

	if n < 0 {
		return 0, fmt.Errorf("negative value %d", n)
	}

	return n, nil
}
