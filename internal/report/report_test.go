package report

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/xuri/excelize/v2"

	"github.com/suratbrts/cms/internal/apperr"
	"github.com/suratbrts/cms/internal/database"
	"github.com/suratbrts/cms/internal/ledger"
	"github.com/suratbrts/cms/internal/model"
	"github.com/suratbrts/cms/internal/store"
)

// mockS3Client implements s3Client for testing.
type mockS3Client struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newMockS3() *mockS3Client {
	return &mockS3Client{objects: make(map[string][]byte)}
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, _ := io.ReadAll(input.Body)
	m.objects[*input.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func setupReport(t *testing.T) (*Service, *sql.DB) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(db, NewArchiver(S3Config{}, logger), logger), db
}

func seed(t *testing.T, db *sql.DB) {
	t.Helper()
	ctx := context.Background()
	cs := store.NewComplaintStore(db)
	u, err := store.NewUserStore(db).Create(ctx, "9300000001", "Citizen")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	rows := []struct {
		token, typ string
		owner      model.Owner
		status     model.ComplaintStatus
	}{
		{"BRTS000001", "Bus Delay", model.OwnedBy(u.ID), model.ComplaintPending},
		{"BRTS000002", "Bus Delay", model.Anonymous(), model.ComplaintPending},
		{"BRTS000003", "Cleanliness", model.OwnedBy(u.ID), model.ComplaintApproved},
	}
	for _, r := range rows {
		_, err := cs.Create(ctx, &model.Complaint{
			Token:       r.token,
			Type:        r.typ,
			Description: "Description, with a comma",
			Stop:        "Udhna Darwaja",
			Status:      r.status,
			Priority:    model.PriorityMedium,
			Owner:       r.owner,
		})
		if err != nil {
			t.Fatalf("create complaint: %v", err)
		}
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	admin, err := store.NewAdminStore(db).Create(ctx, "Root", "root@brts.in", "hash", nil)
	if err != nil {
		t.Fatalf("create admin: %v", err)
	}
	if _, err := ledger.New(db, logger).AdminAdjust(ctx, u.ID, 40, "opening", admin.ID); err != nil {
		t.Fatalf("adjust: %v", err)
	}
}

func TestDashboard(t *testing.T) {
	svc, db := setupReport(t)
	seed(t, db)

	d, err := svc.Dashboard(context.Background())
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if d.Complaints.Total != 3 {
		t.Errorf("complaints total = %d, want 3", d.Complaints.Total)
	}
	if d.Complaints.ByStatus["pending"] != 2 || d.Complaints.ByStatus["approved"] != 1 {
		t.Errorf("by status = %v", d.Complaints.ByStatus)
	}
	if d.Complaints.ByType["Bus Delay"] != 2 {
		t.Errorf("by type = %v", d.Complaints.ByType)
	}
	if d.TotalUsers != 1 {
		t.Errorf("users = %d, want 1", d.TotalUsers)
	}
	if d.Points.Adjusted != 40 {
		t.Errorf("adjusted = %d, want 40", d.Points.Adjusted)
	}
	if d.Withdrawals.Total != 0 {
		t.Errorf("withdrawals = %d, want 0", d.Withdrawals.Total)
	}
}

func TestExportCSV(t *testing.T) {
	svc, db := setupReport(t)
	seed(t, db)

	exp, err := svc.ExportComplaints(context.Background(), store.ComplaintFilter{Type: "Bus Delay"}, FormatCSV)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if exp.Meta.RowCount != 2 || exp.Meta.Filters["type"] != "Bus Delay" {
		t.Errorf("meta = %+v", exp.Meta)
	}
	if !strings.HasSuffix(exp.Filename, ".csv") {
		t.Errorf("filename = %q", exp.Filename)
	}

	text := string(exp.Data)
	if !strings.Contains(text, "# rowCount: 2\n") || !strings.Contains(text, "# filter.type: Bus Delay\n") {
		t.Errorf("missing metadata comments:\n%s", text)
	}
	if !strings.Contains(text, `"Description, with a comma"`) {
		t.Errorf("expected quoted description:\n%s", text)
	}
	if strings.Contains(text, "BRTS000003") {
		t.Error("filtered-out complaint present in export")
	}
}

func TestExportXLSX(t *testing.T) {
	svc, db := setupReport(t)
	seed(t, db)

	exp, err := svc.ExportComplaints(context.Background(), store.ComplaintFilter{}, "")
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(exp.Data))
	if err != nil {
		t.Fatalf("open xlsx: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(complaintSheet)
	if err != nil {
		t.Fatalf("get rows: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("rows = %d, want header + 3", len(rows))
	}
	if rows[0][1] != "Token" {
		t.Errorf("header = %v", rows[0])
	}

	count, err := f.GetCellValue(summarySheet, "B2")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if count != "3" {
		t.Errorf("summary row count = %q, want 3", count)
	}
}

func TestExportBadFormat(t *testing.T) {
	svc, _ := setupReport(t)
	if _, err := svc.ExportComplaints(context.Background(), store.ComplaintFilter{}, "pdf"); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("err = %v, want validation", err)
	}
}

func TestArchiveComplaints(t *testing.T) {
	svc, db := setupReport(t)
	seed(t, db)

	if _, err := svc.ArchiveComplaints(context.Background(), store.ComplaintFilter{}); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("disabled err = %v, want validation", err)
	}

	mock := newMockS3()
	svc.archiver.client = mock
	svc.archiver.bucket = "brts-reports"

	res, err := svc.ArchiveComplaints(context.Background(), store.ComplaintFilter{})
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if !strings.HasPrefix(res.Key, "reports/complaints-") || !strings.HasSuffix(res.Key, ".xlsx") {
		t.Errorf("key = %q", res.Key)
	}
	if len(mock.objects[res.Key]) == 0 {
		t.Error("expected uploaded object")
	}

	svc.archiver.passphrase = "archive-pass"
	sealed, err := svc.ArchiveComplaints(context.Background(), store.ComplaintFilter{})
	if err != nil {
		t.Fatalf("sealed archive: %v", err)
	}
	if !strings.HasSuffix(sealed.Key, ".xlsx.enc") {
		t.Errorf("sealed key = %q", sealed.Key)
	}
	plain, err := Open(mock.objects[sealed.Key], "archive-pass")
	if err != nil {
		t.Fatalf("open sealed object: %v", err)
	}
	if _, err := excelize.OpenReader(bytes.NewReader(plain)); err != nil {
		t.Errorf("sealed object is not a workbook: %v", err)
	}

	mock.putErr = errors.New("bucket gone")
	if _, err := svc.ArchiveComplaints(context.Background(), store.ComplaintFilter{}); !apperr.Is(err, apperr.KindInternal) {
		t.Errorf("upload failure err = %v, want internal", err)
	}
}
