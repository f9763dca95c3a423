package monitor

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zaqqye/seb_proctor/internal/apiclient"
	"github.com/zaqqye/seb_proctor/internal/models"
)

// Entry is an incident that could not be delivered.
type Entry struct {
	SessionID   string              `json:"session_id"`
	IncidentID  string              `json:"incident_id"`
	Kind        models.IncidentKind `json:"kind"`
	ObservedAt  time.Time           `json:"observed_at"`
	Attempts    int                 `json:"attempts"`
	LastError   string              `json:"last_error,omitempty"`
	JournaledAt time.Time           `json:"journaled_at"`
}

// Journal is an append-only JSON-lines file of undelivered incidents.
type Journal struct {
	path string
	mu   sync.Mutex
}

func OpenJournal(path string) *Journal {
	return &Journal{path: path}
}

func (j *Journal) Path() string { return j.path }

func (j *Journal) Append(e Entry) error {
	line, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "encode journal entry")
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return errors.Wrap(err, "open journal")
	}
	defer f.Close()
	_, err = f.Write(append(line, '\n'))
	return errors.Wrap(err, "write journal")
}

// Entries reads the journal. A missing file is an empty journal; lines that
// do not decode are skipped.
func (j *Journal) Entries() ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.read()
}

func (j *Journal) read() ([]Entry, error) {
	data, err := os.ReadFile(j.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read journal")
	}
	var out []Entry
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			log.Warn().Err(err).Str("journal", j.path).Msg("skipping unreadable journal line")
			continue
		}
		out = append(out, e)
	}
	return out, sc.Err()
}

func (j *Journal) rewrite(entries []Entry) error {
	if len(entries) == 0 {
		err := os.Remove(j.path)
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "clear journal")
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return errors.Wrap(err, "encode journal entry")
		}
	}
	tmp := j.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o600); err != nil {
		return errors.Wrap(err, "write journal")
	}
	return errors.Wrap(os.Rename(tmp, j.path), "replace journal")
}

type ReconcileResult struct {
	Replayed  int
	Remaining int
	// Latest holds the last server answer per session.
	Latest map[string]apiclient.LedgerResult
}

// Reconcile replays journaled incidents for the sessions accepted by keep
// (all when keep is nil) with their original incident ids, so the ledger
// drops any that did arrive earlier. Entries that fail transiently stay in
// the journal; entries the server rejected outright are dropped.
func Reconcile(ctx context.Context, r Reporter, j *Journal, keep func(Entry) bool) (*ReconcileResult, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	entries, err := j.read()
	if err != nil {
		return nil, err
	}
	res := &ReconcileResult{Latest: make(map[string]apiclient.LedgerResult)}
	var remaining []Entry
	for _, e := range entries {
		if keep != nil && !keep(e) {
			remaining = append(remaining, e)
			continue
		}
		lr, err := r.ReportIncident(ctx, e.SessionID, apiclient.Incident{
			IncidentID: e.IncidentID,
			Kind:       string(e.Kind),
			ObservedAt: e.ObservedAt,
		})
		switch {
		case err == nil:
			res.Replayed++
			res.Latest[e.SessionID] = *lr
		case apiclient.IsTransient(err) || ctx.Err() != nil:
			e.Attempts++
			e.LastError = err.Error()
			remaining = append(remaining, e)
		default:
			log.Warn().Err(err).
				Str("session_id", e.SessionID).
				Str("incident_id", e.IncidentID).
				Msg("journaled incident rejected, dropping")
		}
	}
	res.Remaining = len(remaining)
	if err := j.rewrite(remaining); err != nil {
		return res, err
	}
	return res, nil
}
