package logger

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/apex/log"
)

// InitLogger installs the line handler on the apex default logger. The level
// comes from the argument, then KUBEGUARD_LOG, then defaults to info.
func InitLogger(level string) {
	if level == "" {
		level = os.Getenv("KUBEGUARD_LOG")
	}
	if level == "" {
		level = "info"
	}
	log.SetHandler(NewLineHandler(os.Stderr))
	lvl, err := log.ParseLevel(strings.ToLower(level))
	if err != nil {
		log.SetLevel(log.InfoLevel)
		log.Warnf("unknown log level %q, using info", level)
		return
	}
	log.SetLevel(lvl)
}

// LineHandler writes "<time> <L> <message> key=value ..." lines.
type LineHandler struct {
	mu  sync.Mutex
	w   io.Writer
	now func() time.Time
}

func NewLineHandler(w io.Writer) *LineHandler {
	return &LineHandler{w: w, now: time.Now}
}

// HandleLog implements log.Handler.
func (h *LineHandler) HandleLog(e *log.Entry) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %.1s %s", h.now().Format("2006-01-02 15:04:05"), strings.ToUpper(e.Level.String()), e.Message)

	names := e.Fields.Names()
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, " %s=%v", name, e.Fields.Get(name))
	}
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}
