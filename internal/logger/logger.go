package logger

import (
	"encoding/json"
	"errors"
	"os"
	"sync"

	"github.com/apex/log"

	"github.com/gzhole/kubeguard/internal/redact"
)

// defaultMaxLogBytes is the size at which the audit log is rotated to <path>.1.
const defaultMaxLogBytes = 10 << 20

// AuditEvent is one scored command line, written as a JSON line.
type AuditEvent struct {
	Timestamp string  `json:"timestamp"`
	Line      string  `json:"line"`
	Score     float64 `json:"score"`
	Alert     bool    `json:"alert"`
	Reason    string  `json:"reason"`
	Source    string  `json:"source"`
	Host      string  `json:"host,omitempty"`
}

type AuditLogger struct {
	path     string
	file     *os.File
	size     int64
	maxBytes int64
	mu       sync.Mutex
}

func New(path string) (*AuditLogger, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, err
	}

	return &AuditLogger{
		path:     path,
		file:     file,
		size:     info.Size(),
		maxBytes: defaultMaxLogBytes,
	}, nil
}

func (l *AuditLogger) Log(event AuditEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Commands may carry inline credentials.
	event.Line = redact.Redact(event.Line)

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if l.file == nil {
		if err := l.reopen(); err != nil {
			return err
		}
	}

	if l.size > 0 && l.size+int64(len(data)) > l.maxBytes {
		if err := l.rotate(); err != nil {
			if l.file == nil {
				return err
			}
			// Keep appending to the oversized file rather than drop events.
			log.WithError(err).WithField("path", l.path).Warn("audit log rotation failed")
		}
	}

	n, err := l.file.Write(data)
	l.size += int64(n)
	return err
}

// rotate moves the current file to <path>.1, replacing any older backup,
// and reopens an empty file. If the move fails the current file is reopened
// so later writes still land somewhere.
func (l *AuditLogger) rotate() error {
	if err := l.file.Close(); err != nil {
		l.file = nil
		return err
	}
	if err := os.Rename(l.path, l.path+".1"); err != nil {
		if rerr := l.reopen(); rerr != nil {
			return errors.Join(err, rerr)
		}
		return err
	}
	return l.reopen()
}

func (l *AuditLogger) reopen() error {
	file, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		l.file = nil
		return err
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		l.file = nil
		return err
	}
	l.file = file
	l.size = info.Size()
	return nil
}

func (l *AuditLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}
