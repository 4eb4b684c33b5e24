package logging

import (
	"log"
	"os"
)

func init() {
	// Set the global logger to use standard output with a date and time
	// prefix; each line is additionally tagged with its own component
	// prefix.
	log.SetOutput(os.Stdout)
	log.SetFlags(log.Ldate | log.Ltime)
}
