package order

import (
	"bufio"
	"context"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
)

// csvHeader is the fixed column set of the order export.
var csvHeader = []string{
	"Order ID", "Customer", "Email", "Phone", "Status",
	"Total", "Items", "Tracking Number", "Order Date", "Address",
}

// ExportCSV writes the filtered orders as CSV to w, unpaginated, one row
// per order in descending creation order. Every cell is double-quoted.
func (s *Service) ExportCSV(ctx context.Context, w io.Writer, f Filter) error {
	rows, err := s.orders.ListForExport(ctx, f)
	if err != nil {
		return errors.Wrap(err, "list orders for export")
	}

	bw := bufio.NewWriter(w)
	writeCSVRow(bw, csvHeader)
	for _, r := range rows {
		writeCSVRow(bw, []string{
			strconv.FormatInt(r.OrderID, 10),
			r.CustomerName,
			r.CustomerEmail,
			r.CustomerPhone,
			string(r.Status),
			r.TotalAmount.StringFixed(2),
			r.ItemSummary,
			r.TrackingNumber,
			r.CreatedAt.Format(time.RFC3339),
			r.Address,
		})
	}
	return bw.Flush()
}

// ExportCSVGzip is ExportCSV with gzip compression on the output stream.
func (s *Service) ExportCSVGzip(ctx context.Context, w io.Writer, f Filter) error {
	gz := pgzip.NewWriter(w)
	if err := s.ExportCSV(ctx, gz, f); err != nil {
		_ = gz.Close()
		return err
	}
	return gz.Close()
}

// writeCSVRow writes one comma-joined row with each cell quoted, escaping
// embedded quotes by doubling them.
func writeCSVRow(w *bufio.Writer, cells []string) {
	for i, cell := range cells {
		if i > 0 {
			_ = w.WriteByte(',')
		}
		_ = w.WriteByte('"')
		_, _ = w.WriteString(strings.ReplaceAll(cell, `"`, `""`))
		_ = w.WriteByte('"')
	}
	_, _ = w.WriteString("\r\n")
}
