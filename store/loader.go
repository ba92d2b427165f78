package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/mod/semver"
)

// supportedSchema is the knowledge document schema major version this build
// understands. Documents declaring a newer major version are skipped.
const supportedSchema = "v1"

// knowledgeDocument mirrors the on-disk JSON layout:
//
//	{
//	  "version": "1.0.0",
//	  "subjects": {
//	    "fees": {"questions": [{"patterns": ["fee structure"], "answer": "..."}]}
//	  }
//	}
type knowledgeDocument struct {
	Version  string                    `json:"version"`
	Subjects map[string]subjectSection `json:"subjects"`
}

type subjectSection struct {
	Questions []questionEntry `json:"questions"`
}

type questionEntry struct {
	Patterns []string `json:"patterns"`
	Answer   string   `json:"answer"`
}

// LoadError reports one malformed knowledge document that was skipped.
// Skipping is per-document: a bad file never aborts the whole load.
type LoadError struct {
	File string
	Err  error
}

func (e LoadError) Error() string {
	return fmt.Sprintf("%s: %v", e.File, e.Err)
}

// Loader reads every *.json knowledge document under a directory.
type Loader struct {
	dir    string
	logger *slog.Logger
}

func NewLoader(dir string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{dir: dir, logger: logger}
}

// Dir returns the directory this loader reads from.
func (l *Loader) Dir() string { return l.dir }

// LoadAll reads all knowledge documents and returns the ordered record list.
// Ordering is deterministic: lexicographic by file name, then subject name,
// then question position within the subject. Malformed documents are
// collected as LoadError diagnostics and skipped. The returned error is
// non-nil only when the directory itself cannot be read.
func (l *Loader) LoadAll(ctx context.Context) ([]Record, []LoadError, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "read knowledge directory %s", l.dir)
	}

	var records []Record
	var skipped []LoadError
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		path := filepath.Join(l.dir, entry.Name())
		docRecords, err := l.loadDocument(path)
		if err != nil {
			skipped = append(skipped, LoadError{File: entry.Name(), Err: err})
			l.logger.Warn("skipping malformed knowledge document",
				"file", entry.Name(), "error", err)
			continue
		}
		records = append(records, docRecords...)
	}

	return records, skipped, nil
}

func (l *Loader) loadDocument(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read document")
	}

	var doc knowledgeDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "decode document")
	}
	if doc.Version != "" {
		v := doc.Version
		if !strings.HasPrefix(v, "v") {
			v = "v" + v
		}
		if !semver.IsValid(v) {
			return nil, errors.Errorf("invalid schema version %q", doc.Version)
		}
		if semver.Compare(semver.Major(v), supportedSchema) > 0 {
			return nil, errors.Errorf("unsupported schema version %q (supported: %s)", doc.Version, supportedSchema)
		}
	}
	if len(doc.Subjects) == 0 {
		return nil, errors.New("document has no subjects")
	}

	// Map iteration order is random; sort subject names so rebuilds from an
	// unchanged source always yield the same record order.
	names := make([]string, 0, len(doc.Subjects))
	for name := range doc.Subjects {
		names = append(names, name)
	}
	sort.Strings(names)

	var records []Record
	for _, name := range names {
		for _, q := range doc.Subjects[name].Questions {
			record, ok := NewRecord(q.Patterns, q.Answer)
			if !ok {
				l.logger.Debug("excluding unusable question entry",
					"file", filepath.Base(path), "subject", name)
				continue
			}
			records = append(records, record)
		}
	}
	return records, nil
}
