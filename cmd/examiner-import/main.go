// README: CSV roster importer; loads examiner records into the database.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"checkride/internal/config"
	"checkride/internal/infra"
	"checkride/internal/modules/examiner"
)

// Expected CSV header:
// name,email,phone,address,website,qualification,fsdo,aircraft,notes
func main() {
	path := flag.String("file", "", "CSV file with examiner roster")
	flag.Parse()
	if *path == "" {
		log.Fatal("usage: examiner-import -file roster.csv")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatal(err)
	}
	defer dbPool.Close()
	store := examiner.NewStore(dbPool)

	f, err := os.Open(*path)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		log.Fatalf("read header: %v", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	imported, skipped := 0, 0
	for line := 2; ; line++ {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatalf("line %d: %v", line, err)
		}

		e := &examiner.Examiner{
			Name:          field(row, "name"),
			Email:         field(row, "email"),
			Phone:         field(row, "phone"),
			Address:       field(row, "address"),
			Website:       field(row, "website"),
			Qualification: field(row, "qualification"),
			FSDO:          field(row, "fsdo"),
			Aircraft:      field(row, "aircraft"),
			Notes:         field(row, "notes"),
			Active:        true,
		}
		if e.Email == "" {
			fmt.Fprintf(os.Stderr, "line %d: skipping row without email\n", line)
			skipped++
			continue
		}
		if err := store.Create(ctx, e); err != nil {
			log.Fatalf("line %d: import %s: %v", line, e.Email, err)
		}
		imported++
	}

	fmt.Printf("imported %d examiner(s), skipped %d\n", imported, skipped)
}
