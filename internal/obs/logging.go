package obs

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/apex/log"
)

// InitLogger sets up apex with a custom handler and a log level from the
// QUERYCACHE_LOG env variable. Defaults to ERROR so library consumers stay
// quiet unless they opt in.
func InitLogger() {
	level := strings.ToUpper(os.Getenv("QUERYCACHE_LOG"))
	if level == "" {
		level = "ERROR"
	}
	log.SetHandler(&lineHandler{})
	log.SetLevelFromString(level)
}

type lineHandler struct{}

func (h *lineHandler) HandleLog(e *log.Entry) error {
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	level := strings.ToUpper(e.Level.String())
	fields := make([]string, 0, len(e.Fields))
	for _, name := range e.Fields.Names() {
		fields = append(fields, fmt.Sprintf("%s=%v", name, e.Fields.Get(name)))
	}
	line := e.Message
	if len(fields) > 0 {
		line += " " + strings.Join(fields, " ")
	}
	fmt.Fprintf(os.Stderr, "%s %.1s %s\n", timestamp, level, line)
	return nil
}
