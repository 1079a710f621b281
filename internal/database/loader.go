package database

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"
)

// Loader settings.
const (
	// fetchTimeout bounds the whole XML download. Exports run to a few
	// megabytes on large installations.
	fetchTimeout = 60 * time.Second

	// probeChunkSize is how much is read per iteration while looking for
	// the export timestamp near the top of the document.
	probeChunkSize = 4096

	// probeLimit is how far into the document the timestamp is searched
	// for before giving up and downloading the rest regardless.
	probeLimit = 64 * 1024
)

// ErrNotModified reports that the processor's export is no older than
// what the cache already holds, so no download happened.
var ErrNotModified = errors.New("database: export not modified")

var (
	exportDateRe = regexp.MustCompile(`<DbExportDate>(\d{2}/\d{2}/\d{4})</DbExportDate>`)
	exportTimeRe = regexp.MustCompile(`<DbExportTime>(\d{2}:\d{2}:\d{2})</DbExportTime>`)
)

// Loader fetches the programming database export from the processor's
// built-in HTTP server.
type Loader struct {
	address string
	client  *http.Client
	logger  Logger
}

// NewLoader creates a loader for the processor at address (host or
// host:port; the export lives at /DbXmlInfo.xml).
func NewLoader(address string, logger Logger) *Loader {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Loader{
		address: address,
		client:  &http.Client{Timeout: fetchTimeout},
		logger:  logger,
	}
}

func (l *Loader) url() string {
	return fmt.Sprintf("http://%s/DbXmlInfo.xml", l.address)
}

// Fetch downloads the export. When since is non-zero the export's own
// timestamp (near the top of the document) is checked as bytes arrive,
// and the download aborts with ErrNotModified if the processor has
// nothing newer: exports are megabytes, the timestamp is in the first
// few kilobytes.
func (l *Loader) Fetch(ctx context.Context, since time.Time) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url(), nil)
	if err != nil {
		return nil, fmt.Errorf("database: building export request: %w", err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("database: fetching export from %s: %w", l.url(), err)
	}
	defer resp.Body.Close() //nolint:errcheck // Read-only body

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("database: fetching export from %s: status %d", l.url(), resp.StatusCode)
	}

	var buf []byte
	chunk := make([]byte, probeChunkSize)
	checked := since.IsZero()

	for {
		n, readErr := resp.Body.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)

			if !checked {
				if ts, ok := ParseExportTimestamp(buf); ok {
					if !ts.After(since) {
						l.logger.Debug("export unchanged, aborting download",
							"exported_at", ts.Format(time.RFC3339),
						)
						return nil, ErrNotModified
					}
					checked = true
				} else if len(buf) > probeLimit {
					// No timestamp where it should be; take the export
					// as-is rather than guessing.
					checked = true
				}
			}
		}
		if readErr == io.EOF {
			return buf, nil
		}
		if readErr != nil {
			return nil, fmt.Errorf("database: reading export: %w", readErr)
		}
	}
}

// ParseExportTimestamp extracts the export's DbExportDate/DbExportTime
// stamp. Returns false when either element is missing or malformed.
func ParseExportTimestamp(data []byte) (time.Time, bool) {
	dateMatch := exportDateRe.FindSubmatch(data)
	timeMatch := exportTimeRe.FindSubmatch(data)
	if dateMatch == nil || timeMatch == nil {
		return time.Time{}, false
	}

	ts, err := time.Parse("01/02/2006 15:04:05", string(dateMatch[1])+" "+string(timeMatch[1]))
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
