package harvest

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"go.uber.org/zap"
)

// csvColumns is the fixed tabular schema. Order never changes between runs
// so files can be appended to across executions.
var csvColumns = []string{
	"article_id", "publisher", "source", "category",
	"published_at", "headline", "content", "label",
}

var lineBreaks = regexp.MustCompile(`[\r\n]+`)

// utf8BOM makes spreadsheet tools detect the encoding of the CSV file.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// RecordSink appends every record to a JSONL file and a CSV file sharing a
// basename stem. It never seeks, rewrites, or reads back existing content.
// The two writes are not atomic as a pair: a crash between them can leave a
// JSONL line without its CSV row. That risk is accepted; a failed write is
// immediately fatal so it never goes unnoticed.
type RecordSink struct {
	jsonlPath string
	csvPath   string
	jsonl     *os.File
	csvFile   *os.File
	csvw      *csv.Writer
	logger    *zap.Logger
	appended  int
}

// OpenSink creates dir if needed and opens both output files in append mode.
// Header (and optional BOM) are written only when the CSV file is brand new.
func OpenSink(dir, stem string, bom bool, logger *zap.Logger) (*RecordSink, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create output dir %s: %w", dir, err)
	}

	jsonlPath := filepath.Join(dir, stem+".jsonl")
	csvPath := filepath.Join(dir, stem+".csv")

	jsonl, err := os.OpenFile(jsonlPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", jsonlPath, err)
	}

	csvFile, err := os.OpenFile(csvPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		jsonl.Close()
		return nil, fmt.Errorf("open %s: %w", csvPath, err)
	}

	sink := &RecordSink{
		jsonlPath: jsonlPath,
		csvPath:   csvPath,
		jsonl:     jsonl,
		csvFile:   csvFile,
		csvw:      csv.NewWriter(csvFile),
		logger:    logger,
	}

	if err := sink.writeHeaderIfNew(bom); err != nil {
		sink.Close()
		return nil, err
	}
	return sink, nil
}

func (s *RecordSink) writeHeaderIfNew(bom bool) error {
	info, err := s.csvFile.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", s.csvPath, err)
	}
	if info.Size() > 0 {
		return nil
	}
	if bom {
		if _, err := s.csvFile.Write(utf8BOM); err != nil {
			return &SinkWriteError{Path: s.csvPath, Err: err}
		}
	}
	if err := s.csvw.Write(csvColumns); err != nil {
		return &SinkWriteError{Path: s.csvPath, Err: err}
	}
	s.csvw.Flush()
	if err := s.csvw.Error(); err != nil {
		return &SinkWriteError{Path: s.csvPath, Err: err}
	}
	return nil
}

// Append writes one record to both files. Any failure is returned as a
// *SinkWriteError and the caller must stop the run.
func (s *RecordSink) Append(record ArticleRecord) error {
	line, err := json.Marshal(record)
	if err != nil {
		return &SinkWriteError{Path: s.jsonlPath, Err: err}
	}
	if _, err := s.jsonl.Write(append(line, '\n')); err != nil {
		return &SinkWriteError{Path: s.jsonlPath, Err: err}
	}

	if err := s.csvw.Write(csvRow(record)); err != nil {
		return &SinkWriteError{Path: s.csvPath, Err: err}
	}
	s.csvw.Flush()
	if err := s.csvw.Error(); err != nil {
		return &SinkWriteError{Path: s.csvPath, Err: err}
	}

	s.appended++
	return nil
}

// Appended returns the number of records written through this sink.
func (s *RecordSink) Appended() int { return s.appended }

// Close releases both file handles.
func (s *RecordSink) Close() error {
	var firstErr error
	if err := s.jsonl.Close(); err != nil {
		firstErr = err
	}
	if err := s.csvFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if firstErr != nil {
		return fmt.Errorf("close sink: %w", firstErr)
	}
	return nil
}

// csvRow flattens a record for tabular output. Nil fields become empty
// cells; line breaks inside free-text fields collapse to single spaces (the
// JSONL encoding keeps them verbatim).
func csvRow(r ArticleRecord) []string {
	return []string{
		r.ArticleID,
		r.Publisher,
		r.Source,
		derefField(r.Category, false),
		derefField(r.PublishedAt, false),
		derefField(r.Headline, true),
		derefField(r.Content, true),
		strconv.Itoa(r.Label),
	}
}

func derefField(v *string, collapse bool) string {
	if v == nil {
		return ""
	}
	if collapse {
		return lineBreaks.ReplaceAllString(*v, " ")
	}
	return *v
}
