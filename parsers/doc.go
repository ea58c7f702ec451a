// Package parsers provides the CSV parsing used for the catalog data files.
//
// The format is deliberately loose: a double quote toggles quoted mode,
// every field is trimmed, blank lines are ignored and rows whose field count
// does not match the header are dropped instead of failing the file.
//
// ParseText handles an in-memory blob. ParseCSV streams the same semantics
// through channels so large files never have to be held as one string.
// Both channels must be consumed to avoid goroutine leaks.
//
// Example usage:
//
//	file, _ := os.Open("data/colors.csv")
//	defer file.Close()
//	records, errors := parsers.ParseCSV(file)
//
//	go func() {
//	    for err := range errors {
//	        log.Printf("CSV error: %v", err)
//	    }
//	}()
//
//	for record := range records {
//	    fmt.Println(record["name"])
//	}
package parsers
