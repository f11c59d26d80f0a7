// Package archive stores conversation transcripts as parquet objects.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/retailsearch/retailsearch/internal/storage"
)

// TurnRecord is one user turn and the reply it produced.
type TurnRecord struct {
	Seq        int64     `json:"seq"`
	SessionID  string    `json:"session_id"`
	UserText   string    `json:"user_text"`
	Reply      string    `json:"reply"`
	UsedTool   bool      `json:"used_tool"`
	ToolStatus string    `json:"tool_status,omitempty"`
	At         time.Time `json:"at"`
}

type transcriptRow struct {
	Seq        int64  `parquet:"seq"`
	SessionID  string `parquet:"session_id"`
	UserText   string `parquet:"user_text"`
	Reply      string `parquet:"reply"`
	UsedTool   bool   `parquet:"used_tool"`
	ToolStatus string `parquet:"tool_status"`
	AtUnixNano int64  `parquet:"at_unix_nano"`
}

func Encode(records []TurnRecord) ([]byte, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("turn records are required")
	}
	rows := make([]transcriptRow, 0, len(records))
	for _, record := range records {
		rows = append(rows, transcriptRow{
			Seq:        record.Seq,
			SessionID:  record.SessionID,
			UserText:   record.UserText,
			Reply:      record.Reply,
			UsedTool:   record.UsedTool,
			ToolStatus: record.ToolStatus,
			AtUnixNano: record.At.UTC().UnixNano(),
		})
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[transcriptRow](buf)
	if _, err := writer.Write(rows); err != nil {
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

func Decode(data []byte) ([]TurnRecord, error) {
	reader := parquet.NewGenericReader[transcriptRow](bytes.NewReader(data))
	defer func() { _ = reader.Close() }()

	out := make([]TurnRecord, 0, reader.NumRows())
	buf := make([]transcriptRow, 64)
	for {
		n, err := reader.Read(buf)
		for _, row := range buf[:n] {
			out = append(out, TurnRecord{
				Seq:        row.Seq,
				SessionID:  row.SessionID,
				UserText:   row.UserText,
				Reply:      row.Reply,
				UsedTool:   row.UsedTool,
				ToolStatus: row.ToolStatus,
				At:         time.Unix(0, row.AtUnixNano).UTC(),
			})
		}
		if errors.Is(err, io.EOF) || (err == nil && n == 0) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read parquet rows: %w", err)
		}
	}
}

type Archiver struct {
	store   storage.ObjectStore
	root    string
	appName string
	now     func() time.Time
}

func NewArchiver(store storage.ObjectStore, root, appName string) (*Archiver, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if strings.TrimSpace(appName) == "" {
		return nil, fmt.Errorf("app name is required")
	}
	return &Archiver{
		store:   store,
		root:    root,
		appName: appName,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// Write stores records as one transcript object and returns its key.
func (a *Archiver) Write(ctx context.Context, sessionID string, records []TurnRecord) (string, error) {
	data, err := Encode(records)
	if err != nil {
		return "", err
	}
	key, err := storage.BuildTranscriptPath(a.root, a.appName, sessionID, a.now())
	if err != nil {
		return "", err
	}
	if _, err := a.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), storage.PutOptions{ContentType: storage.ParquetContentType}); err != nil {
		return "", fmt.Errorf("put transcript: %w", err)
	}
	return key, nil
}

// ReadSession returns every archived turn of a session ordered by sequence.
func (a *Archiver) ReadSession(ctx context.Context, sessionID string) ([]TurnRecord, error) {
	prefix, err := storage.TranscriptPrefix(a.root, a.appName, sessionID)
	if err != nil {
		return nil, err
	}
	infos, err := a.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list transcripts: %w", err)
	}

	out := make([]TurnRecord, 0)
	for _, info := range infos {
		reader, err := a.store.Get(ctx, info.Key)
		if err != nil {
			return nil, fmt.Errorf("get transcript %q: %w", info.Key, err)
		}
		data, err := io.ReadAll(reader)
		_ = reader.Close()
		if err != nil {
			return nil, fmt.Errorf("read transcript %q: %w", info.Key, err)
		}
		records, err := Decode(data)
		if err != nil {
			return nil, fmt.Errorf("decode transcript %q: %w", info.Key, err)
		}
		out = append(out, records...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

// Journal buffers turn records per session until they are archived.
type Journal struct {
	mu      sync.Mutex
	records map[string][]TurnRecord
	seq     map[string]int64
}

func NewJournal() *Journal {
	return &Journal{records: map[string][]TurnRecord{}, seq: map[string]int64{}}
}

// Append assigns the next sequence number of the session and buffers record.
func (j *Journal) Append(record TurnRecord) TurnRecord {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.seq[record.SessionID]++
	record.Seq = j.seq[record.SessionID]
	j.records[record.SessionID] = append(j.records[record.SessionID], record)
	return record
}

// Drain removes and returns the buffered records of a session. Sequence
// numbering continues across drains.
func (j *Journal) Drain(sessionID string) []TurnRecord {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := j.records[sessionID]
	delete(j.records, sessionID)
	return out
}

// Forget drops all journal state of a session.
func (j *Journal) Forget(sessionID string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.records, sessionID)
	delete(j.seq, sessionID)
}

// Flush drains the session and writes it through the archiver. An empty
// journal writes nothing and returns an empty key.
func Flush(ctx context.Context, journal *Journal, archiver *Archiver, sessionID string) (string, error) {
	records := journal.Drain(sessionID)
	if len(records) == 0 {
		return "", nil
	}
	return archiver.Write(ctx, sessionID, records)
}
