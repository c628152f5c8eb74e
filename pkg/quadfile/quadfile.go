// Package quadfile reads and writes quads in plain-text formats and loads
// them into a quad store.
//
// Supported formats, picked by file extension:
//   - .yaml / .yml: a document with a "quads" list of subject/predicate/object/context maps
//   - .tsv / .txt:  one quad per line, tab separated, context optional, '#' comments;
//     fields are trimmed, so values with tabs, line breaks or surrounding
//     spaces, and subjects starting with '#', cannot be written as TSV
//   - .jsonl:       one JSON object per line with the same keys as YAML
//
// Example YAML:
//
//	quads:
//	  - {subject: alice, predicate: knows, object: bob}
//	  - {subject: bob, predicate: knows, object: carol, context: social}
package quadfile

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/Vanaheimr/Balder-sub010/pkg/storage"
)

// Format identifies a quad file encoding.
type Format string

const (
	FormatYAML  Format = "yaml"
	FormatTSV   Format = "tsv"
	FormatJSONL Format = "jsonl"
)

// Record is one quad as written in a file. An empty Context means the
// store default.
type Record struct {
	Subject   string `yaml:"subject" json:"subject"`
	Predicate string `yaml:"predicate" json:"predicate"`
	Object    string `yaml:"object" json:"object"`
	Context   string `yaml:"context,omitempty" json:"context,omitempty"`
}

type document struct {
	Quads []Record `yaml:"quads"`
}

// FormatFromPath picks a format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".tsv", ".txt":
		return FormatTSV, nil
	case ".jsonl", ".ndjson":
		return FormatJSONL, nil
	default:
		return "", fmt.Errorf("unknown quad file extension %q", filepath.Ext(path))
	}
}

// ReadFile parses every record in path.
func ReadFile(path string) ([]Record, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer file.Close()

	records, err := Parse(file, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

// Parse reads every record from r.
func Parse(r io.Reader, format Format) ([]Record, error) {
	switch format {
	case FormatYAML:
		var doc document
		if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
			if err == io.EOF {
				return nil, nil
			}
			return nil, fmt.Errorf("decoding YAML: %w", err)
		}
		return doc.Quads, nil
	case FormatTSV:
		return parseLines(r, parseTSVLine)
	case FormatJSONL:
		return parseLines(r, func(line string) (Record, error) {
			var rec Record
			if err := json.Unmarshal([]byte(line), &rec); err != nil {
				return Record{}, fmt.Errorf("parsing JSON: %w", err)
			}
			return rec, nil
		})
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}

func parseLines(r io.Reader, parse func(string) (Record, error)) ([]Record, error) {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	var records []Record
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rec, err := parse(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning file: %w", err)
	}
	return records, nil
}

func parseTSVLine(line string) (Record, error) {
	fields := strings.Split(line, "\t")
	if len(fields) < 3 || len(fields) > 4 {
		return Record{}, fmt.Errorf("expected 3 or 4 tab-separated fields, got %d", len(fields))
	}
	rec := Record{
		Subject:   strings.TrimSpace(fields[0]),
		Predicate: strings.TrimSpace(fields[1]),
		Object:    strings.TrimSpace(fields[2]),
	}
	if len(fields) == 4 {
		rec.Context = strings.TrimSpace(fields[3])
	}
	return rec, nil
}

// Encode writes records to w in the given format.
func Encode(w io.Writer, format Format, records []Record) error {
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(document{Quads: records}); err != nil {
			return fmt.Errorf("encoding YAML: %w", err)
		}
		return enc.Close()
	case FormatTSV:
		for i, rec := range records {
			if err := checkTSV(rec); err != nil {
				return fmt.Errorf("record %d: %w", i+1, err)
			}
		}
		bw := bufio.NewWriter(w)
		for _, rec := range records {
			fmt.Fprintf(bw, "%s\t%s\t%s\t%s\n", rec.Subject, rec.Predicate, rec.Object, rec.Context)
		}
		return bw.Flush()
	case FormatJSONL:
		enc := json.NewEncoder(w)
		for _, rec := range records {
			if err := enc.Encode(rec); err != nil {
				return fmt.Errorf("encoding JSON: %w", err)
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}

// checkTSV rejects records that would not read back unchanged.
func checkTSV(rec Record) error {
	fields := [...]struct{ name, value string }{
		{"subject", rec.Subject},
		{"predicate", rec.Predicate},
		{"object", rec.Object},
		{"context", rec.Context},
	}
	for _, f := range fields {
		if strings.ContainsAny(f.value, "\t\r\n") {
			return fmt.Errorf("%s %q contains a tab or line break", f.name, f.value)
		}
		if strings.TrimSpace(f.value) != f.value {
			return fmt.Errorf("%s %q has surrounding whitespace", f.name, f.value)
		}
	}
	if strings.HasPrefix(rec.Subject, "#") {
		return fmt.Errorf("subject %q would read back as a comment", rec.Subject)
	}
	return nil
}

// Records converts stored quads to file records.
func Records[ID storage.Value](quads iter.Seq[*storage.Quad[ID, string]]) []Record {
	var records []Record
	for q := range quads {
		records = append(records, Record{
			Subject:   q.Subject,
			Predicate: q.Predicate,
			Object:    q.Object,
			Context:   q.Context,
		})
	}
	return records
}

// Adder is the part of a store LoadFiles needs.
type Adder[ID storage.Value] interface {
	AddWith(subject, predicate, object string, opts storage.AddOptions[ID, string]) (*storage.Quad[ID, string], error)
	TransactionFromContext(ctx context.Context) (*storage.Transaction[ID], bool)
	BeginNestedTransaction(ctx context.Context, opts ...storage.TxOption) (*storage.Transaction[ID], context.Context, error)
}

// Result summarizes a LoadFiles call.
type Result struct {
	Files int
	Quads int
}

// LoadFiles parses paths concurrently, then adds their records to store
// one file after another, in the order given, so quad IDs and index order
// follow the file order.
//
// When ctx carries a transaction of store, each file is added in its own
// nested transaction named after the path and committed once the file is
// done; the outer transaction then lists every loaded quad.
//
// Parsing stops at the first bad file; adding stops at the first rejected quad.
func LoadFiles[ID storage.Value](ctx context.Context, store Adder[ID], paths ...string) (Result, error) {
	parsed := make([][]Record, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			records, err := ReadFile(path)
			if err != nil {
				return err
			}
			parsed[i] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	var result Result
	for i, records := range parsed {
		n, err := addRecords(ctx, store, paths[i], records)
		result.Quads += n
		if err != nil {
			return result, err
		}
		result.Files++
	}
	return result, nil
}

func addRecords[ID storage.Value](ctx context.Context, store Adder[ID], path string, records []Record) (int, error) {
	var tx *storage.Transaction[ID]
	if _, ok := store.TransactionFromContext(ctx); ok {
		nested, _, err := store.BeginNestedTransaction(ctx, storage.TxName(path))
		if err != nil {
			return 0, fmt.Errorf("%s: %w", path, err)
		}
		tx = nested
	}

	added := 0
	for j, rec := range records {
		_, err := store.AddWith(rec.Subject, rec.Predicate, rec.Object, storage.AddOptions[ID, string]{
			Context: rec.Context,
			Tx:      tx,
		})
		if err != nil {
			return added, fmt.Errorf("%s: record %d: %w", path, j+1, err)
		}
		added++
	}

	if tx != nil {
		if err := tx.Commit(); err != nil {
			return added, fmt.Errorf("%s: %w", path, err)
		}
	}
	return added, nil
}
