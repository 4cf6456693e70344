package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"garagelog/internal/domain"
)

// ServiceHistoryFilename is the suggested download name for exports.
const ServiceHistoryFilename = "service_history.csv"

var serviceHistoryHeader = []string{"Date", "Service Type", "Cost", "Notes"}

// WriteServiceHistory writes the user's maintenance records as CSV: a header
// row followed by one row per record in the order given (date descending, as
// the repository returns them). Quoting follows encoding/csv.
func WriteServiceHistory(w io.Writer, records []domain.MaintenanceRecord) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(serviceHistoryHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, record := range records {
		row := []string{
			record.Date.Format("2006-01-02"),
			record.ServiceType,
			strconv.FormatFloat(record.Cost, 'f', -1, 64),
			record.Notes,
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}
