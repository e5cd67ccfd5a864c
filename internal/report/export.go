package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/suratbrts/cms/internal/apperr"
	"github.com/suratbrts/cms/internal/model"
	"github.com/suratbrts/cms/internal/store"
)

// MaxExportRows caps a single export.
const MaxExportRows = 10000

type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

const (
	summarySheet   = "Summary"
	complaintSheet = "Complaints"
)

var complaintHeaders = []string{
	"ID", "Token", "Type", "Status", "Priority", "Stop", "Location", "Description",
	"User ID", "Anonymous", "Assigned To", "Points", "Reason", "Incident At", "Created At", "Updated At",
}

// Metadata describes how an export was produced.
type Metadata struct {
	GeneratedAt time.Time         `json:"generatedAt"`
	Filters     map[string]string `json:"filters"`
	RowCount    int               `json:"rowCount"`
}

type Export struct {
	Filename    string
	ContentType string
	Data        []byte
	Meta        Metadata
}

func filterMeta(f store.ComplaintFilter) map[string]string {
	m := make(map[string]string)
	if f.Status != "" {
		m["status"] = string(f.Status)
	}
	if f.Type != "" {
		m["type"] = f.Type
	}
	if f.Priority != "" {
		m["priority"] = string(f.Priority)
	}
	if f.AssignedTo != nil {
		m["assignedTo"] = strconv.FormatInt(*f.AssignedTo, 10)
	}
	if f.Search != "" {
		m["search"] = f.Search
	}
	if f.From != nil {
		m["from"] = f.From.UTC().Format(time.RFC3339)
	}
	if f.To != nil {
		m["to"] = f.To.UTC().Format(time.RFC3339)
	}
	return m
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func complaintRow(c model.Complaint) []string {
	userID, assignedTo, incident := "", "", ""
	if id, ok := c.Owner.UserID(); ok {
		userID = strconv.FormatInt(id, 10)
	}
	if c.AssignedTo != nil {
		assignedTo = strconv.FormatInt(*c.AssignedTo, 10)
	}
	if c.IncidentAt != nil {
		incident = c.IncidentAt.UTC().Format(time.RFC3339)
	}
	return []string{
		strconv.FormatInt(c.ID, 10), c.Token, c.Type, string(c.Status), string(c.Priority),
		c.Stop, c.Location, c.Description, userID, strconv.FormatBool(c.IsAnonymous), assignedTo,
		strconv.Itoa(c.Points), c.Reason, incident,
		c.CreatedAt.UTC().Format(time.RFC3339), c.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// ExportComplaints renders the complaints matching f as a spreadsheet or CSV.
func (s *Service) ExportComplaints(ctx context.Context, f store.ComplaintFilter, format Format) (*Export, error) {
	if format == "" {
		format = FormatXLSX
	}
	if format != FormatXLSX && format != FormatCSV {
		return nil, apperr.Validation("Format must be xlsx or csv")
	}

	complaints, err := s.complaints.ListAll(ctx, f, MaxExportRows)
	if err != nil {
		return nil, apperr.Wrap(err, "Failed to load complaints")
	}
	meta := Metadata{
		GeneratedAt: s.now().UTC(),
		Filters:     filterMeta(f),
		RowCount:    len(complaints),
	}
	stamp := meta.GeneratedAt.Format("20060102-150405")

	var data []byte
	var contentType string
	switch format {
	case FormatCSV:
		data, err = complaintsCSV(complaints, meta)
		contentType = "text/csv"
	default:
		data, err = complaintsXLSX(complaints, meta)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	if err != nil {
		return nil, apperr.Wrap(err, "Failed to render export")
	}

	s.logger.Info("complaints exported", "format", format, "rows", meta.RowCount)
	return &Export{
		Filename:    fmt.Sprintf("complaints-%s.%s", stamp, format),
		ContentType: contentType,
		Data:        data,
		Meta:        meta,
	}, nil
}

// complaintsCSV writes the metadata as leading # comment lines.
func complaintsCSV(complaints []model.Complaint, meta Metadata) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# generatedAt: %s\n", meta.GeneratedAt.Format(time.RFC3339))
	for _, k := range sortedKeys(meta.Filters) {
		fmt.Fprintf(&buf, "# filter.%s: %s\n", k, strings.ReplaceAll(meta.Filters[k], "\n", " "))
	}
	fmt.Fprintf(&buf, "# rowCount: %d\n", meta.RowCount)

	w := csv.NewWriter(&buf)
	if err := w.Write(complaintHeaders); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, c := range complaints {
		if err := w.Write(complaintRow(c)); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func setCellValue(f *excelize.File, sheet string, col, row int, value any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	return f.SetCellValue(sheet, cell, value)
}

// complaintsXLSX puts the metadata on a Summary sheet and the rows on a
// Complaints sheet with a bold, frozen header.
func complaintsXLSX(complaints []model.Complaint, meta Metadata) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	summary := [][2]any{
		{"Generated At", meta.GeneratedAt.Format(time.RFC3339)},
		{"Row Count", meta.RowCount},
	}
	for _, k := range sortedKeys(meta.Filters) {
		summary = append(summary, [2]any{"Filter: " + k, meta.Filters[k]})
	}
	for i, kv := range summary {
		if err := setCellValue(f, summarySheet, 1, i+1, kv[0]); err != nil {
			return nil, err
		}
		if err := setCellValue(f, summarySheet, 2, i+1, kv[1]); err != nil {
			return nil, err
		}
	}

	if _, err := f.NewSheet(complaintSheet); err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#D9E1F2"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}
	for col, h := range complaintHeaders {
		if err := setCellValue(f, complaintSheet, col+1, 1, h); err != nil {
			return nil, err
		}
	}
	last, err := excelize.CoordinatesToCellName(len(complaintHeaders), 1)
	if err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(complaintSheet, "A1", last, headerStyle); err != nil {
		return nil, fmt.Errorf("style header: %w", err)
	}

	for i, c := range complaints {
		for col, v := range complaintRow(c) {
			if err := setCellValue(f, complaintSheet, col+1, i+2, v); err != nil {
				return nil, err
			}
		}
	}

	if err := f.SetPanes(complaintSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("freeze header: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write xlsx: %w", err)
	}
	return buf.Bytes(), nil
}
