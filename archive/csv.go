package archive

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/termsync/termsync/entry"
)

// ExportCSV flattens every JSON file in logDir into one Ghostwriter-import
// CSV in exportDir and returns the file's path. It is a plain format
// conversion: no merging or reconciliation happens here.
func ExportCSV(logDir, exportDir string) (string, error) {
	stamp := time.Now().UTC().Format("2006-01-02_150405")
	outPath := filepath.Join(exportDir, fmt.Sprintf("termsync_export_%s.csv", stamp))

	matches, err := filepath.Glob(filepath.Join(logDir, "*.json"))
	if err != nil {
		return "", fmt.Errorf("scan %s: %w", logDir, err)
	}

	out, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	defer out.Close()

	w := csv.NewWriter(out)
	if err := w.Write(entry.RestColumns); err != nil {
		return "", err
	}

	for _, name := range matches {
		data, err := os.ReadFile(name)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", name, err)
		}

		var e entry.Entry
		if err := json.Unmarshal(data, &e); err != nil {
			return "", fmt.Errorf("decode %s: %w", name, err)
		}

		fields := e.RestFields()
		row := make([]string, len(entry.RestColumns))
		for i, col := range entry.RestColumns {
			switch v := fields[col].(type) {
			case nil:
				row[i] = ""
			case string:
				row[i] = v
			default:
				row[i] = fmt.Sprint(v)
			}
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return outPath, nil
}
