// Command adsync synchronizes a roster CSV file into a directory service.
package main

import (
	"os"

	"keepersecurity.com/ksm-adsync/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
