package adsync

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ErrColumnNotFound indicates a field map source column is absent from the roster header.
var ErrColumnNotFound = errors.New("column not found in roster header")

const DefaultDelimiter = ","

// LoadRoster reads the roster file at path. See ReadRoster.
func LoadRoster(path string, delimiter string, fieldMap FieldMap) (records []PersonRecord, err error) {
	var file *os.File
	if file, err = os.Open(filepath.Clean(path)); err != nil {
		err = &SourceReadError{Path: path, Err: err}
		return
	}
	defer func() { _ = file.Close() }()

	if records, err = ReadRoster(file, delimiter, fieldMap); err != nil {
		var sre *SourceReadError
		if errors.As(err, &sre) {
			sre.Path = path
		}
	}
	return
}

// ReadRoster parses delimited text with a header row and projects every data
// row onto the canonical fields of fieldMap. UTF-8 and BOM-marked UTF-16 input
// are accepted.
func ReadRoster(r io.Reader, delimiter string, fieldMap FieldMap) (records []PersonRecord, err error) {
	var comma rune
	if comma, err = parseDelimiter(delimiter); err != nil {
		err = &SourceReadError{Err: err}
		return
	}

	var decoder = unicode.BOMOverride(unicode.UTF8.NewDecoder())
	var reader = csv.NewReader(transform.NewReader(r, decoder))
	reader.Comma = comma
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var header []string
	if header, err = reader.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("no header row found")
		}
		err = &SourceReadError{Err: err}
		return
	}
	var columns = make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if _, ok := columns[h]; !ok {
			columns[h] = i
		}
	}

	var positions = make([]int, len(fieldMap))
	for i, m := range fieldMap {
		var pos, ok = columns[m.Source]
		if !ok {
			err = &SourceReadError{Err: fmt.Errorf("%w: \"%s\"", ErrColumnNotFound, m.Source)}
			return
		}
		positions[i] = pos
	}

	for {
		var row []string
		if row, err = reader.Read(); err != nil {
			if errors.Is(err, io.EOF) {
				err = nil
				return
			}
			err = &SourceReadError{Err: err}
			records = nil
			return
		}
		var record = make(PersonRecord, len(fieldMap))
		for i, m := range fieldMap {
			if positions[i] < len(row) {
				record[m.Canonical] = row[positions[i]]
			} else {
				record[m.Canonical] = ""
			}
		}
		records = append(records, record)
	}
}

func parseDelimiter(delimiter string) (comma rune, err error) {
	switch delimiter {
	case "":
		delimiter = DefaultDelimiter
	case `\t`, "tab":
		delimiter = "\t"
	}
	if utf8.RuneCountInString(delimiter) != 1 {
		err = fmt.Errorf("delimiter \"%s\" must be a single character", delimiter)
		return
	}
	comma, _ = utf8.DecodeRuneInString(delimiter)
	if comma == '"' || comma == '\r' || comma == '\n' || comma == utf8.RuneError {
		err = fmt.Errorf("delimiter \"%s\" is not supported", delimiter)
	}
	return
}
