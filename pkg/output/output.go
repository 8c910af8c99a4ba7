// Package output persists run artifacts: QR images, JSON snapshots and
// the optional summary CSV.
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// SummaryRow is one legacy-mode result line in the summary CSV.
type SummaryRow struct {
	VendorUserID string
	Deeplink     string
	QRCodePath   string
}

// WriteQRCode writes a QR PNG as qrcode-<name>.png and returns the path.
func WriteQRCode(dir, name string, png []byte) (string, error) {
	path := filepath.Join(dir, "qrcode-"+name+".png")
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return "", fmt.Errorf("writing QR code: %w", err)
	}
	return path, nil
}

// WriteJSON writes v as indented JSON to <name>.json and returns the path.
func WriteJSON(dir, name string, v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, name+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing %s.json: %w", name, err)
	}
	return path, nil
}

// WriteSummaryCSV writes the per-recipient summary as <name>.csv. Values
// containing commas or quotes are escaped by the CSV encoder, so deep
// links survive round-tripping.
func WriteSummaryCSV(dir, name, vendorIDColumn string, rows []SummaryRow) (string, error) {
	path := filepath.Join(dir, name+".csv")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating summary CSV: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{vendorIDColumn, "deeplink", "qrcodepath"}); err != nil {
		return "", err
	}
	for _, row := range rows {
		if err := w.Write([]string{row.VendorUserID, row.Deeplink, row.QRCodePath}); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return path, nil
}
