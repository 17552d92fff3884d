package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/celerix-dev/celerix-market/pkg/schema"
)

// JournalFileName is the name of the file journal inside the data directory.
const JournalFileName = "ledger.jsonl"

const (
	recordWork     = "work"
	recordPurchase = "purchase"
)

type journalRecord struct {
	Type     string                `json:"type"`
	Work     *schema.Work          `json:"work,omitempty"`
	Purchase *schema.Purchase      `json:"purchase,omitempty"`
	Entries  []schema.RevenueEntry `json:"revenue_entries,omitempty"`
}

// FileJournal is an append-only JSON-lines journal on local disk.
// Each record is written with a single write call followed by fsync.
// A failed write is truncated away before the next append.
type FileJournal struct {
	path string
	mu   sync.Mutex // Protects the file handle
	f    *os.File
	log  zerolog.Logger
}

// NewFileJournal opens (or creates) the journal in dir.
func NewFileJournal(dir string, log zerolog.Logger) (*FileJournal, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, JournalFileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return &FileJournal{
		path: path,
		f:    f,
		log:  log.With().Str("component", "file_journal").Logger(),
	}, nil
}

// Path returns the journal file path.
func (j *FileJournal) Path() string { return j.path }

func (j *FileJournal) AppendWork(ctx context.Context, w schema.Work) error {
	return j.append(journalRecord{Type: recordWork, Work: &w})
}

func (j *FileJournal) AppendPurchase(ctx context.Context, p schema.Purchase, entries []schema.RevenueEntry) error {
	return j.append(journalRecord{Type: recordPurchase, Purchase: &p, Entries: entries})
}

func (j *FileJournal) append(rec journalRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.f == nil {
		return errors.New("journal closed")
	}
	return writeRecord(j.f, line)
}

// appendFile is the part of *os.File the journal writes through.
type appendFile interface {
	io.Writer
	io.Seeker
	Sync() error
	Truncate(size int64) error
}

// writeRecord appends line to f and syncs it. If the write fails partway the
// file is cut back to its previous length.
func writeRecord(f appendFile, line []byte) error {
	end, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("journal offset: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		if terr := f.Truncate(end); terr != nil {
			return errors.Join(err, fmt.Errorf("truncate journal to %d: %w", end, terr))
		}
		return err
	}
	return f.Sync()
}

// Load reads every record in the journal. A torn final line, left by a crash
// in the middle of a write, is ignored; corruption anywhere else is an error.
func (j *FileJournal) Load(ctx context.Context) (Snapshot, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var snap Snapshot
	f, err := os.Open(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return snap, nil
		}
		return snap, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for lineNo := 1; ; lineNo++ {
		line, readErr := r.ReadBytes('\n')
		if readErr != nil && readErr != io.EOF {
			return snap, readErr
		}
		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			var rec journalRecord
			if err := json.Unmarshal(line, &rec); err != nil {
				if readErr == io.EOF {
					j.log.Warn().Int("line", lineNo).Err(err).Msg("ignoring torn journal tail")
					break
				}
				return snap, fmt.Errorf("journal line %d: %w", lineNo, err)
			}
			switch {
			case rec.Type == recordWork && rec.Work != nil:
				snap.Works = append(snap.Works, *rec.Work)
			case rec.Type == recordPurchase && rec.Purchase != nil:
				snap.Purchases = append(snap.Purchases, *rec.Purchase)
				snap.Entries = append(snap.Entries, rec.Entries...)
			default:
				return snap, fmt.Errorf("journal line %d: unknown record %q", lineNo, rec.Type)
			}
		}
		if readErr == io.EOF {
			break
		}
	}
	return snap, nil
}

// Compact rewrites the journal from snap atomically, dropping any torn tail.
func (j *FileJournal) Compact(ctx context.Context, snap Snapshot) error {
	byPurchase := make(map[int64][]schema.RevenueEntry)
	for _, e := range snap.Entries {
		byPurchase[e.PurchaseID] = append(byPurchase[e.PurchaseID], e)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range snap.Works {
		if err := enc.Encode(journalRecord{Type: recordWork, Work: &snap.Works[i]}); err != nil {
			return err
		}
	}
	for i := range snap.Purchases {
		p := &snap.Purchases[i]
		if err := enc.Encode(journalRecord{Type: recordPurchase, Purchase: p, Entries: byPurchase[p.ID]}); err != nil {
			return err
		}
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	tempPath := j.path + ".tmp"
	if err := os.WriteFile(tempPath, buf.Bytes(), 0644); err != nil {
		return err
	}
	if err := os.Rename(tempPath, j.path); err != nil {
		return err
	}

	// the old handle points at the replaced inode
	if j.f != nil {
		j.f.Close()
	}
	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		j.f = nil
		return fmt.Errorf("reopen journal: %w", err)
	}
	j.f = f
	return nil
}

func (j *FileJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.f == nil {
		return nil
	}
	err := j.f.Close()
	j.f = nil
	return err
}
