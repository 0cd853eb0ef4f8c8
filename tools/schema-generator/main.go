// Command schema-generator writes the JSON Schema for tdm.yml, including
// extension sections, so it can be committed and published for editors.
package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"

	"github.com/Unidata/tds-sub001/cmd"
)

func main() {
	output := flag.String("o", "schema/definitions/tdm.schema.json", "output file")
	flag.Parse()

	schemaBytes, err := cmd.FullSchema()
	if err != nil {
		log.Fatalf("Error generating schema: %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(*output), 0755); err != nil {
		log.Fatalf("Error creating schema directory: %v", err)
	}
	if err := os.WriteFile(*output, append(schemaBytes, '\n'), 0644); err != nil {
		log.Fatalf("Error writing schema file: %v", err)
	}

	log.Printf("Successfully generated schema at %s", *output)
}
