package ledger

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// WriteGroupCSV streams one posting group with its entries as CSV. Amounts
// are grouped per the requested locale for spreadsheet consumption; the
// raw decimal string rides in a separate column.
func WriteGroupCSV(w io.Writer, group PostingGroup, locale string) error {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	printer := message.NewPrinter(tag)

	writer := csv.NewWriter(w)
	writer.UseCRLF = true

	header := []string{"posting_group_id", "posting_date", "source_type", "source_id", "account_code", "currency", "debit", "credit", "debit_display", "credit_display"}
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, entry := range group.Entries {
		row := []string{
			fmt.Sprintf("%d", group.ID),
			group.PostingDate.Format("2006-01-02"),
			string(group.SourceType),
			group.SourceID.String(),
			entry.AccountCode,
			entry.Currency,
			entry.Debit.String(),
			entry.Credit.String(),
			displayAmount(printer, entry.Debit),
			displayAmount(printer, entry.Credit),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func displayAmount(printer *message.Printer, amount decimal.Decimal) string {
	value, _ := amount.Float64()
	return printer.Sprintf("%.2f", value)
}
