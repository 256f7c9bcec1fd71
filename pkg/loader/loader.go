// Package loader ingests the sectioned CSV planning export into a registry.
//
// The export is a single text document with ==== SECTION ==== markers
// separating typed CSV tables. Malformed rows are logged and skipped; a load
// only fails when the document itself is unreadable.
package loader

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/registry"
)

// Section markers recognized in the planning export.
const (
	SectionTasks               = "TASK DURATIONS AND RESOURCES"
	SectionRelationships       = "TASK RELATIONSHIPS"
	SectionProducts            = "PRODUCT DELIVERY SCHEDULE"
	SectionTeams               = "TEAM CAPACITY"
	SectionShifts              = "SHIFT HOURS"
	SectionHolidays            = "HOLIDAYS"
	SectionLateParts           = "LATE PARTS"
	SectionRework              = "REWORK"
	SectionQualityInspections  = "QUALITY INSPECTIONS"
	SectionCustomerInspections = "CUSTOMER INSPECTIONS"
)

const (
	dateFormat      = "2006-01-02"
	shiftTimeFormat = "15:04"
)

var sectionMarker = regexp.MustCompile(`^====\s*(.+?)\s*====$`)

// Options tune how generated work is derived during load.
type Options struct {
	// LatePartDelayDays is added to each late part's on-dock date before
	// flooring to the 06:00 working-day start.
	LatePartDelayDays float64
}

// DefaultOptions returns the standard load options.
func DefaultOptions() Options {
	return Options{LatePartDelayDays: 1.0}
}

// Summary reports what a load produced.
type Summary struct {
	Tasks       int `json:"tasks"`
	Products    int `json:"products"`
	Teams       int `json:"teams"`
	Constraints int `json:"constraints"`
	Warnings    int `json:"warnings"`
}

// Loader parses planning exports into a registry.
type Loader struct {
	logger ectologger.Logger
	opts   Options
}

// New creates a loader.
func New(logger ectologger.Logger, opts Options) *Loader {
	if opts.LatePartDelayDays <= 0 {
		opts.LatePartDelayDays = DefaultOptions().LatePartDelayDays
	}
	return &Loader{logger: logger, opts: opts}
}

type taskDef struct {
	baseID    int
	name      string
	duration  int
	team      string
	headcount int
}

// Load reads a planning export and populates the registry.
func (l *Loader) Load(r io.Reader, reg *registry.Registry) (*Summary, error) {
	sections, err := splitSections(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read planning export: %w", err)
	}

	summary := &Summary{}

	l.loadShifts(sections[SectionShifts], reg, summary)
	l.loadTeams(sections[SectionTeams], reg, summary)
	products := l.loadProducts(sections[SectionProducts], reg, summary)
	defs := l.parseTaskDefs(sections[SectionTasks], summary)
	l.loadHolidays(sections[SectionHolidays], reg, summary)

	// Expand baseline tasks per product within each product's remaining
	// range.
	for _, p := range products {
		for _, def := range defs {
			if !p.InRange(def.baseID) {
				continue
			}
			reg.AddTask(&models.TaskInstance{
				ID:              models.InstanceID(p.Name, def.baseID),
				BaseID:          def.baseID,
				Product:         p.Name,
				Kind:            models.TaskKindBaseline,
				Name:            def.name,
				DurationMinutes: def.duration,
				Team:            def.team,
				Headcount:       def.headcount,
			})
			summary.Tasks++
		}
	}

	l.loadRelationships(sections[SectionRelationships], reg, summary)
	l.loadLateParts(sections[SectionLateParts], reg, summary)
	l.loadRework(sections[SectionRework], reg, summary)
	l.loadInspections(sections[SectionQualityInspections], reg, models.TeamKindQuality, summary)
	l.loadInspections(sections[SectionCustomerInspections], reg, models.TeamKindCustomer, summary)

	l.logger.WithFields(map[string]any{
		"tasks":       summary.Tasks,
		"products":    summary.Products,
		"teams":       summary.Teams,
		"constraints": summary.Constraints,
		"warnings":    summary.Warnings,
	}).Info("Planning export loaded")

	return summary, nil
}

// splitSections slices the document into per-section CSV rows, header row
// excluded.
func splitSections(r io.Reader) (map[string][][]string, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	sections := make(map[string][][]string)
	current := ""
	var body []string

	flush := func() error {
		if current == "" || len(body) == 0 {
			return nil
		}
		reader := csv.NewReader(strings.NewReader(strings.Join(body, "\n")))
		reader.FieldsPerRecord = -1
		reader.TrimLeadingSpace = true
		rows, err := reader.ReadAll()
		if err != nil {
			return fmt.Errorf("section %q: %w", current, err)
		}
		if len(rows) > 1 {
			sections[current] = rows[1:]
		}
		return nil
	}

	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimRight(line, "\r")
		if m := sectionMarker.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			if err := flush(); err != nil {
				return nil, err
			}
			current = strings.ToUpper(m[1])
			body = body[:0]
			continue
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		body = append(body, line)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return sections, nil
}

func (l *Loader) skipRow(section string, row []string, reason string, summary *Summary) {
	summary.Warnings++
	l.logger.WithFields(map[string]any{
		"section": section,
		"row":     strings.Join(row, ","),
	}).Warnf("Skipping row: %s", reason)
}

func (l *Loader) parseTaskDefs(rows [][]string, summary *Summary) []taskDef {
	defs := make([]taskDef, 0, len(rows))
	for _, row := range rows {
		if len(row) < 4 {
			l.skipRow(SectionTasks, row, "expected at least 4 columns", summary)
			continue
		}
		baseID, err := strconv.Atoi(strings.TrimSpace(row[0]))
		if err != nil {
			l.skipRow(SectionTasks, row, "task id is not numeric", summary)
			continue
		}
		duration, err := strconv.Atoi(strings.TrimSpace(row[1]))
		if err != nil || duration <= 0 {
			l.skipRow(SectionTasks, row, "invalid duration", summary)
			continue
		}
		headcount, err := strconv.Atoi(strings.TrimSpace(row[3]))
		if err != nil || headcount <= 0 {
			l.skipRow(SectionTasks, row, "invalid headcount", summary)
			continue
		}
		def := taskDef{
			baseID:    baseID,
			duration:  duration,
			team:      strings.TrimSpace(row[2]),
			headcount: headcount,
		}
		if len(row) > 4 {
			def.name = strings.TrimSpace(row[4])
		}
		defs = append(defs, def)
	}
	return defs
}

func (l *Loader) loadProducts(rows [][]string, reg *registry.Registry, summary *Summary) []models.Product {
	products := make([]models.Product, 0, len(rows))
	for _, row := range rows {
		if len(row) < 4 {
			l.skipRow(SectionProducts, row, "expected 4 columns", summary)
			continue
		}
		delivery, err := time.Parse(dateFormat, strings.TrimSpace(row[1]))
		if err != nil {
			l.skipRow(SectionProducts, row, "invalid delivery date", summary)
			continue
		}
		first, err1 := strconv.Atoi(strings.TrimSpace(row[2]))
		last, err2 := strconv.Atoi(strings.TrimSpace(row[3]))
		if err1 != nil || err2 != nil || last < first {
			l.skipRow(SectionProducts, row, "invalid task range", summary)
			continue
		}
		p := models.Product{
			Name:         strings.TrimSpace(row[0]),
			DeliveryDate: delivery,
			FirstTaskID:  first,
			LastTaskID:   last,
		}
		reg.SetProduct(p)
		products = append(products, p)
		summary.Products++
	}
	return products
}

func (l *Loader) loadTeams(rows [][]string, reg *registry.Registry, summary *Summary) {
	for _, row := range rows {
		if len(row) < 2 {
			l.skipRow(SectionTeams, row, "expected at least 2 columns", summary)
			continue
		}
		capacity, err := strconv.Atoi(strings.TrimSpace(row[1]))
		if err != nil || capacity <= 0 {
			l.skipRow(SectionTeams, row, "invalid capacity", summary)
			continue
		}
		name := strings.TrimSpace(row[0])
		team := models.Team{
			Name:     name,
			Kind:     teamKindFor(name),
			Capacity: capacity,
		}
		if len(row) > 2 && strings.TrimSpace(row[2]) != "" {
			for _, shift := range strings.Split(row[2], ";") {
				team.Shifts = append(team.Shifts, strings.TrimSpace(shift))
			}
		}
		reg.AddTeam(team)
		summary.Teams++
	}
}

func teamKindFor(name string) models.TeamKind {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "quality"):
		return models.TeamKindQuality
	case strings.Contains(lower, "customer"):
		return models.TeamKindCustomer
	default:
		return models.TeamKindMechanic
	}
}

func (l *Loader) loadShifts(rows [][]string, reg *registry.Registry, summary *Summary) {
	if len(rows) == 0 {
		return
	}
	shifts := make([]models.ShiftDefinition, 0, len(rows))
	for _, row := range rows {
		if len(row) < 3 {
			l.skipRow(SectionShifts, row, "expected 3 columns", summary)
			continue
		}
		start, err1 := time.Parse(shiftTimeFormat, strings.TrimSpace(row[1]))
		end, err2 := time.Parse(shiftTimeFormat, strings.TrimSpace(row[2]))
		if err1 != nil || err2 != nil {
			l.skipRow(SectionShifts, row, "invalid shift times", summary)
			continue
		}
		shifts = append(shifts, models.ShiftDefinition{
			Name:  strings.TrimSpace(row[0]),
			Start: start.Hour()*60 + start.Minute(),
			End:   end.Hour()*60 + end.Minute(),
		})
	}
	if len(shifts) > 0 {
		reg.SetShifts(shifts)
	}
}

func (l *Loader) loadHolidays(rows [][]string, reg *registry.Registry, summary *Summary) {
	for _, row := range rows {
		if len(row) < 2 {
			l.skipRow(SectionHolidays, row, "expected 2 columns", summary)
			continue
		}
		day, err := time.Parse(dateFormat, strings.TrimSpace(row[1]))
		if err != nil {
			l.skipRow(SectionHolidays, row, "invalid date", summary)
			continue
		}
		reg.AddHoliday(strings.TrimSpace(row[0]), day)
	}
}

func (l *Loader) loadRelationships(rows [][]string, reg *registry.Registry, summary *Summary) {
	for _, row := range rows {
		if len(row) < 2 {
			l.skipRow(SectionRelationships, row, "expected at least 2 columns", summary)
			continue
		}
		first, err1 := strconv.Atoi(strings.TrimSpace(row[0]))
		second, err2 := strconv.Atoi(strings.TrimSpace(row[1]))
		if err1 != nil || err2 != nil {
			l.skipRow(SectionRelationships, row, "task ids are not numeric", summary)
			continue
		}
		raw := ""
		if len(row) > 2 {
			raw = row[2]
		}
		kind, recognized := models.NormalizeRelation(raw)
		if !recognized && strings.TrimSpace(raw) != "" {
			summary.Warnings++
			l.logger.WithFields(map[string]any{
				"relationship": raw,
				"first":        first,
				"second":       second,
			}).Warn("Unknown relationship type, defaulting to Finish <= Start")
		}
		reg.AddConstraint(models.RawConstraint{
			FirstBaseID:  first,
			SecondBaseID: second,
			Kind:         kind,
		})
		summary.Constraints++
	}
}

func (l *Loader) loadLateParts(rows [][]string, reg *registry.Registry, summary *Summary) {
	for _, row := range rows {
		if len(row) < 6 {
			l.skipRow(SectionLateParts, row, "expected at least 6 columns", summary)
			continue
		}
		baseID, err := strconv.Atoi(strings.TrimSpace(row[0]))
		if err != nil {
			l.skipRow(SectionLateParts, row, "task id is not numeric", summary)
			continue
		}
		duration, err := strconv.Atoi(strings.TrimSpace(row[2]))
		if err != nil || duration <= 0 {
			l.skipRow(SectionLateParts, row, "invalid duration", summary)
			continue
		}
		headcount, err := strconv.Atoi(strings.TrimSpace(row[4]))
		if err != nil || headcount <= 0 {
			l.skipRow(SectionLateParts, row, "invalid headcount", summary)
			continue
		}
		onDock, err := time.Parse(dateFormat, strings.TrimSpace(row[5]))
		if err != nil {
			l.skipRow(SectionLateParts, row, "invalid on-dock date", summary)
			continue
		}

		reg.AddTask(&models.TaskInstance{
			ID:              models.LatePartID(baseID),
			BaseID:          baseID,
			Product:         strings.TrimSpace(row[1]),
			Kind:            models.TaskKindLatePart,
			DurationMinutes: duration,
			Team:            strings.TrimSpace(row[3]),
			Headcount:       headcount,
			EarliestStart:   FloorToWorkingDayStart(addDays(onDock, l.opts.LatePartDelayDays)),
		})
		summary.Tasks++

		if len(row) > 6 && strings.TrimSpace(row[6]) != "" {
			successor, err := strconv.Atoi(strings.TrimSpace(row[6]))
			if err != nil {
				l.skipRow(SectionLateParts, row, "successor task id is not numeric", summary)
				continue
			}
			reg.AddLatePartConstraint(models.RawConstraint{
				FirstBaseID:  baseID,
				SecondBaseID: successor,
				Kind:         models.RelationFinishStart,
			})
			summary.Constraints++
		}
	}
}

func (l *Loader) loadRework(rows [][]string, reg *registry.Registry, summary *Summary) {
	for _, row := range rows {
		if len(row) < 5 {
			l.skipRow(SectionRework, row, "expected at least 5 columns", summary)
			continue
		}
		baseID, err := strconv.Atoi(strings.TrimSpace(row[0]))
		if err != nil {
			l.skipRow(SectionRework, row, "task id is not numeric", summary)
			continue
		}
		duration, err := strconv.Atoi(strings.TrimSpace(row[2]))
		if err != nil || duration <= 0 {
			l.skipRow(SectionRework, row, "invalid duration", summary)
			continue
		}
		headcount, err := strconv.Atoi(strings.TrimSpace(row[4]))
		if err != nil || headcount <= 0 {
			l.skipRow(SectionRework, row, "invalid headcount", summary)
			continue
		}

		task := &models.TaskInstance{
			ID:              models.ReworkID(baseID),
			BaseID:          baseID,
			Product:         strings.TrimSpace(row[1]),
			Kind:            models.TaskKindRework,
			DurationMinutes: duration,
			Team:            strings.TrimSpace(row[3]),
			Headcount:       headcount,
		}
		reg.AddTask(task)
		summary.Tasks++

		if len(row) > 5 && strings.TrimSpace(row[5]) != "" {
			predecessor, err := strconv.Atoi(strings.TrimSpace(row[5]))
			if err != nil {
				l.skipRow(SectionRework, row, "predecessor task id is not numeric", summary)
			} else {
				reg.AddReworkConstraint(models.RawConstraint{
					FirstBaseID:  predecessor,
					SecondBaseID: baseID,
					Kind:         models.RelationFinishStart,
				})
				summary.Constraints++
			}
		}
		if len(row) > 6 && strings.TrimSpace(row[6]) != "" {
			successor, err := strconv.Atoi(strings.TrimSpace(row[6]))
			if err != nil {
				l.skipRow(SectionRework, row, "successor task id is not numeric", summary)
			} else {
				reg.AddReworkConstraint(models.RawConstraint{
					FirstBaseID:  baseID,
					SecondBaseID: successor,
					Kind:         models.RelationFinishStart,
				})
				summary.Constraints++
			}
		}
	}
}

// loadInspections attaches quality or customer inspections to every product
// instance of the listed base tasks. The inspection pool is the one paired
// with the primary's mechanic team by trailing number; unmappable rows warn
// and are skipped.
func (l *Loader) loadInspections(rows [][]string, reg *registry.Registry, kind models.TeamKind, summary *Summary) {
	section := SectionQualityInspections
	if kind == models.TeamKindCustomer {
		section = SectionCustomerInspections
	}

	for _, row := range rows {
		if len(row) < 2 {
			l.skipRow(section, row, "expected 2 columns", summary)
			continue
		}
		baseID, err := strconv.Atoi(strings.TrimSpace(row[0]))
		if err != nil {
			l.skipRow(section, row, "task id is not numeric", summary)
			continue
		}
		duration, err := strconv.Atoi(strings.TrimSpace(row[1]))
		if err != nil || duration <= 0 {
			l.skipRow(section, row, "invalid duration", summary)
			continue
		}

		for _, p := range reg.Products() {
			primary, ok := reg.Task(models.InstanceID(p.Name, baseID))
			if !ok {
				continue
			}
			team, ok := models.MapInspectionTeam(primary.Team, kind)
			if !ok {
				l.skipRow(section, row, "primary team has no pairing number", summary)
				continue
			}
			if _, ok := reg.Team(team); !ok {
				l.skipRow(section, row, fmt.Sprintf("inspection team %q is not defined", team), summary)
				continue
			}

			inspection := &models.TaskInstance{
				BaseID:          baseID,
				Product:         p.Name,
				DurationMinutes: duration,
				Team:            team,
				Headcount:       1,
			}
			switch kind {
			case models.TeamKindQuality:
				inspection.ID = models.QualityInspectionID(primary)
				inspection.Kind = models.TaskKindQualityInspection
				reg.AddTask(inspection)
				reg.RequireQualityInspection(primary.ID, inspection.ID)
			case models.TeamKindCustomer:
				inspection.ID = models.CustomerInspectionID(primary)
				inspection.Kind = models.TaskKindCustomerInspection
				reg.AddTask(inspection)
				reg.RequireCustomerInspection(primary.ID, inspection.ID)
			}
			summary.Tasks++
		}
	}
}

// FloorToWorkingDayStart clamps an instant to 06:00 of its calendar day.
func FloorToWorkingDayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 6, 0, 0, 0, t.Location())
}

func addDays(t time.Time, days float64) time.Time {
	return t.Add(time.Duration(days * 24 * float64(time.Hour)))
}
