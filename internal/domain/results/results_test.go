package results_test

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/bebra552/TgGroopSoft/internal/domain/members"
	"github.com/bebra552/TgGroopSoft/internal/domain/results"
)

func sampleRecords() []members.Record {
	return []members.Record{
		{
			ID: "1", Username: "ivan", FirstName: "Иван", LastName: "Петров, мл.",
			Phone: "", Status: members.StatusOnline, LastOnline: members.StatusOnline,
			IsBot: members.No, IsVerified: members.No, IsScam: members.No, IsPremium: members.Yes,
		},
		{
			ID: "2", Username: "", FirstName: `Say "hi"`, LastName: "line\nbreak",
			Phone: "79990000000", Status: members.StatusOffline, LastOnline: "2024-03-01 10:20:30",
			IsBot: members.Yes, IsVerified: members.No, IsScam: members.No, IsPremium: members.No,
		},
	}
}

func TestSinkColumnsAndRows(t *testing.T) {
	t.Parallel()

	s := results.NewSink()
	assert.Nil(t, s.Columns(), "у пустого набора нет колонок")
	assert.Empty(t, s.Rows(0))

	s.Replace("Gophers", sampleRecords())
	assert.Equal(t, members.Columns, s.Columns())
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, "Gophers", s.Chat())
	assert.False(t, s.Updated().IsZero())

	rows := s.Rows(1)
	require.Len(t, rows, 1)
	assert.Equal(t, "ivan", rows[0][1])

	s.Clear()
	assert.Equal(t, 0, s.Len())
	assert.Nil(t, s.Columns())
}

func TestWriteCSVRoundTrip(t *testing.T) {
	t.Parallel()

	s := results.NewSink()
	recs := sampleRecords()
	s.Replace("chat", recs)

	var buf bytes.Buffer
	require.NoError(t, s.WriteCSV(&buf))
	assert.True(t, strings.HasPrefix(buf.String(), "ID,Username,First Name,Last Name,Phone,Status,Last Online,Is Bot,Is Verified,Is Scam,Is Premium\r\n"))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, len(recs)+1)
	assert.Equal(t, members.Columns, rows[0])
	for i, r := range recs {
		assert.Equal(t, r.Fields(), rows[i+1])
	}
}

func TestSaveCSVAndXLSX(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := results.NewSink()
	s.Replace("chat", sampleRecords())

	csvPath := filepath.Join(dir, "out.csv")
	format, err := s.Save(csvPath)
	require.NoError(t, err)
	assert.Equal(t, results.FormatCSV, format)
	data, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Иван")

	xlsxPath := filepath.Join(dir, "out.xlsx")
	format, err = s.Save(xlsxPath)
	require.NoError(t, err)
	assert.Equal(t, results.FormatXLSX, format)

	f, err := excelize.OpenFile(xlsxPath)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	rows, err := f.GetRows(results.SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, members.Columns, rows[0])
	assert.Equal(t, "Иван", rows[1][2])
}

func TestSaveEmpty(t *testing.T) {
	t.Parallel()

	_, err := results.NewSink().Save(filepath.Join(t.TempDir(), "x.csv"))
	require.ErrorIs(t, err, results.ErrEmpty)
}

func TestResolvePath(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 6, 7, 8, 9, 0, time.Local)
	stamp := now.Format("20060102_150405")
	saveDir := filepath.Join("home", "Desktop")

	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "по умолчанию", in: "", want: filepath.Join(saveDir, "telegram_members_extended_"+stamp+".csv")},
		{name: "только формат", in: "xlsx", want: filepath.Join(saveDir, "telegram_members_extended_"+stamp+".xlsx")},
		{name: "имя файла", in: "members.csv", want: filepath.Join(saveDir, "members.csv")},
		{name: "каталог", in: "out/", want: filepath.Join("out", "telegram_members_extended_"+stamp+".csv")},
		{name: "путь", in: filepath.Join("tmp", "a.xlsx"), want: filepath.Join("tmp", "a.xlsx")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, results.ResolvePath(saveDir, tc.in, now))
		})
	}
}

func TestCheckFileName(t *testing.T) {
	t.Parallel()

	for _, ok := range []string{"", " xlsx ", "members.csv", "отчёт.xlsx", "..members.csv"} {
		assert.NoError(t, results.CheckFileName(ok), ok)
	}
	for _, bad := range []string{"/etc/passwd", "../members.csv", "out/", "tmp/a.xlsx", `..\a.csv`, "..", "."} {
		assert.ErrorIs(t, results.CheckFileName(bad), results.ErrUnsafePath, bad)
	}
}
