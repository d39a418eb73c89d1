package handlers

import (
	"bytes"
	"fmt"

	"hawkinsfarm/internal/models"

	"github.com/jung-kurt/gofpdf"
)

// RenderReceipt lays out an order as a one-table A4 receipt.
func RenderReceipt(order *models.Order) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	margin := 20.0
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(true, margin)
	pdf.SetTitle(fmt.Sprintf("Receipt %s", order.ID), true)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.SetTextColor(33, 37, 41)
	pdf.Cell(0, 10, "HAWKIN'S FARM ORDER RECEIPT")
	pdf.Ln(14)

	pdf.SetFont("Arial", "", 10)
	for _, line := range []string{
		fmt.Sprintf("Order: %s", order.ID),
		fmt.Sprintf("Placed: %s", order.CreatedAt.Format("02-Jan-2006 15:04 MST")),
		fmt.Sprintf("Status: %s", order.Status),
		fmt.Sprintf("Payment: %s", order.PaymentMethod),
	} {
		pdf.Cell(0, 6, tr(line))
		pdf.Ln(6)
	}
	pdf.Ln(2)
	pdf.SetFont("Arial", "B", 10)
	pdf.Cell(0, 6, "SHIP TO:")
	pdf.Ln(6)
	pdf.SetFont("Arial", "", 10)
	pdf.MultiCell(0, 5, tr(order.ShippingAddress), "", "L", false)
	pdf.Ln(6)

	headers := []string{"Product", "Qty", "Price", "Amount"}
	widths := []float64{90, 20, 30, 30}
	aligns := []string{"L", "C", "R", "R"}

	pdf.SetFont("Arial", "B", 10)
	pdf.SetFillColor(240, 240, 240)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 8, h, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 10)
	for _, item := range order.Items {
		cells := []string{
			tr(item.Name),
			fmt.Sprintf("%d", item.Quantity),
			item.Price.StringFixed(2),
			item.LineTotal().StringFixed(2),
		}
		for i, text := range cells {
			pdf.CellFormat(widths[i], 8, text, "1", 0, aligns[i], false, 0, "")
		}
		pdf.Ln(-1)
	}

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(widths[0]+widths[1]+widths[2], 8, "Total", "1", 0, "R", false, 0, "")
	pdf.CellFormat(widths[3], 8, order.TotalAmount.StringFixed(2), "1", 0, "R", false, 0, "")
	pdf.Ln(-1)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render receipt for order %s: %w", order.ID, err)
	}
	return buf.Bytes(), nil
}
