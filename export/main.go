// termsync-export converts the local JSON archive into a single CSV file
// ready for manual import into Ghostwriter.
package main

import (
	"fmt"
	"log"

	"github.com/spf13/pflag"

	"github.com/termsync/termsync/archive"
	"github.com/termsync/termsync/config"
)

func main() {
	log.SetFlags(0)

	var (
		logDir    string
		outputDir string
	)
	pflag.StringVarP(&logDir, "log-dir", "l", "", "directory containing the archived JSON log entries")
	pflag.StringVarP(&outputDir, "output-dir", "o", ".", "directory where the CSV file is written")
	pflag.Parse()

	if logDir == "" {
		cfg, err := config.Load("")
		if err != nil {
			log.Fatalf("configuration error: %v", err)
		}
		logDir = cfg.JSONLogDir
	}

	path, err := archive.ExportCSV(logDir, outputDir)
	if err != nil {
		log.Fatalf("[!] export failed: %v", err)
	}
	fmt.Printf("[+] Exported logs to %s\n", path)
}
