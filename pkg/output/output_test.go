package output

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteQRCode(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteQRCode(dir, "joan.lee@sap.com", []byte{0x89, 'P', 'N', 'G'})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "qrcode-joan.lee@sap.com.png"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, data)
}

func TestWriteJSON(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteJSON(dir, "lastrun", map[string]string{"disclosureId": "disc-1"})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"disclosureId": "disc-1"`)
}

func TestWriteSummaryCSV_QuotesCommas(t *testing.T) {
	dir := t.TempDir()
	rows := []SummaryRow{
		{VendorUserID: "joan.lee@sap.com", Deeplink: "velocity://offer?a=1,b=2", QRCodePath: "/out/qrcode-joan.png"},
		{VendorUserID: `smith, john`, Deeplink: "velocity://offer?c=3", QRCodePath: "/out/qrcode-john.png"},
	}

	path, err := WriteSummaryCSV(dir, "output", "email", rows)
	require.NoError(t, err)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, records, 3)
	assert.Equal(t, []string{"email", "deeplink", "qrcodepath"}, records[0])
	assert.Equal(t, "velocity://offer?a=1,b=2", records[1][1], "commas must survive a round trip")
	assert.Equal(t, "smith, john", records[2][0])
}
