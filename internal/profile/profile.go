package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Profile is configuration to start the main server.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo".
	Mode string
	// Addr is the binding address for the server.
	Addr string
	// Port is the binding port for the server.
	Port int
	// UNIXSock is the path to the unix socket, overrides Addr and Port.
	UNIXSock string
	// Data is the directory containing the knowledge documents.
	Data string
	// Version is the current version of the server.
	Version string

	// MatchThreshold is the minimum cosine similarity for a query to be
	// answered instead of falling back. Observed useful range is 0.1-0.3.
	MatchThreshold float64
	// SuggestThreshold is the minimum similarity for an entry to appear in
	// autocomplete suggestions. Lower than MatchThreshold on purpose.
	SuggestThreshold float64
	// TopK caps the number of suggestions returned.
	TopK int
	// HistoryWindow is the number of recent history entries folded into the
	// query when context augmentation is enabled.
	HistoryWindow int
	// HistoryCap bounds the per-session history length.
	HistoryCap int
	// NgramMax extends indexing to multi-word phrases up to this length.
	NgramMax int
	// Lemmatize enables suffix-stripping lemmatization in the normalizer.
	Lemmatize bool
	// ContextAugment folds recent session history into each query.
	ContextAugment bool
	// WatchReload rebuilds the index when knowledge files change on disk.
	WatchReload bool

	// EmptyMessage is returned when the user sends an empty question.
	EmptyMessage string
	// FallbackMessage is returned when no known question scores above
	// MatchThreshold.
	FallbackMessage string
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		absDir, err := filepath.Abs(dataDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies.
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

// Validate normalizes and checks the profile, filling defaults for fields
// left at their zero value.
func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Data == "" {
		p.Data = "data"
	}
	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		return err
	}
	p.Data = dataDir

	if p.MatchThreshold < 0 || p.MatchThreshold > 1 {
		return errors.Errorf("match threshold %.2f out of range [0, 1]", p.MatchThreshold)
	}
	if p.SuggestThreshold < 0 || p.SuggestThreshold > 1 {
		return errors.Errorf("suggest threshold %.2f out of range [0, 1]", p.SuggestThreshold)
	}
	if p.MatchThreshold == 0 {
		p.MatchThreshold = 0.3
	}
	if p.SuggestThreshold == 0 {
		p.SuggestThreshold = 0.1
	}
	if p.SuggestThreshold > p.MatchThreshold {
		return errors.Errorf("suggest threshold %.2f must not exceed match threshold %.2f", p.SuggestThreshold, p.MatchThreshold)
	}

	if p.TopK <= 0 {
		p.TopK = 5
	}
	if p.HistoryWindow <= 0 {
		p.HistoryWindow = 6
	}
	if p.HistoryCap <= 0 {
		p.HistoryCap = 20
	}
	if p.HistoryWindow > p.HistoryCap {
		return errors.Errorf("history window %d exceeds history cap %d", p.HistoryWindow, p.HistoryCap)
	}
	if p.NgramMax <= 0 {
		p.NgramMax = 1
	}
	if p.NgramMax > 4 {
		return errors.Errorf("ngram max %d out of range [1, 4]", p.NgramMax)
	}

	if p.EmptyMessage == "" {
		p.EmptyMessage = "Please ask a question."
	}
	if p.FallbackMessage == "" {
		p.FallbackMessage = "Sorry, I don't know the answer to that."
	}

	if p.Port < 0 || p.Port > 65535 {
		return fmt.Errorf("invalid port %d", p.Port)
	}

	return nil
}
