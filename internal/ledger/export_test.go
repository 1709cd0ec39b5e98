package ledger

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestWriteGroupCSV(t *testing.T) {
	group := PostingGroup{
		ID:          42,
		PostingDate: time.Date(2025, 7, 10, 0, 0, 0, 0, time.UTC),
		SourceType:  SourceIssue,
		SourceID:    uuid.MustParse("3f6f2b6e-6f0a-4f4b-9a0b-7a9d35c5f111"),
		Entries: []LedgerEntry{
			{AccountCode: "5100", Currency: "PKR", Debit: mustDec(t, "6600.50")},
			{AccountCode: "1400", Currency: "PKR", Credit: mustDec(t, "6600.50")},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteGroupCSV(&buf, group, "en"))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, "account_code", records[0][4])
	require.Equal(t, "5100", records[1][4])
	require.Equal(t, "6600.5", records[1][6], "raw decimal column keeps the exact value")
	require.Equal(t, "6,600.50", records[1][8], "display column groups digits")
	require.Equal(t, "6,600.50", records[2][9])
}

func TestWriteGroupCSVFallsBackToEnglish(t *testing.T) {
	group := PostingGroup{ID: 1, PostingDate: time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		SourceType: SourceJournal, SourceID: uuid.New()}

	var buf bytes.Buffer
	require.NoError(t, WriteGroupCSV(&buf, group, "not-a-locale"))
	require.True(t, strings.HasPrefix(buf.String(), "posting_group_id,"))
}
