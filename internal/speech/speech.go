package speech

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"

	"github.com/zombor/label-scanner/internal/ingredients"
)

// warningPreamble opens every spoken summary
const warningPreamble = "Warning: Inflammatory ingredients detected. "

// Speaker reads an utterance aloud. Calls must not block on playback.
type Speaker interface {
	Speak(utterance string)
}

// Summary builds the utterance announcing matches, one sentence pair per match
func Summary(matches ingredients.MatchResult) string {
	var b strings.Builder
	b.WriteString(warningPreamble)
	for _, m := range matches {
		fmt.Fprintf(&b, "%s. %s. ", m.Phrase, strings.TrimSuffix(m.Explanation, "."))
	}
	return strings.TrimSpace(b.String())
}

// Log writes utterances to the structured log
type Log struct{}

func (Log) Speak(utterance string) {
	slog.Info("Speaking", "utterance", utterance)
}

// Command pipes utterances to a text-to-speech program such as espeak or say
type Command struct {
	name string
	args []string

	mu  sync.Mutex
	cmd *exec.Cmd
}

// NewCommand parses a command line like "espeak -s 150". The utterance is
// appended as the final argument.
func NewCommand(commandLine string) (*Command, error) {
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return nil, fmt.Errorf("speech command is empty")
	}
	if _, err := exec.LookPath(fields[0]); err != nil {
		return nil, fmt.Errorf("finding speech command: %w", err)
	}
	return &Command{name: fields[0], args: fields[1:]}, nil
}

// Speak starts the program and returns immediately. An utterance still
// playing is interrupted.
func (c *Command) Speak(utterance string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cmd != nil && c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
	}

	args := append(append([]string(nil), c.args...), utterance)
	cmd := exec.CommandContext(context.Background(), c.name, args...)
	if err := cmd.Start(); err != nil {
		slog.Error("Failed to start speech command", "command", c.name, "error", err)
		c.cmd = nil
		return
	}
	c.cmd = cmd
	go func() {
		if err := cmd.Wait(); err != nil {
			slog.Debug("Speech command exited", "command", c.name, "error", err)
		}
	}()
}

// Utterance is a spoken message with its position in the broadcast log
type Utterance struct {
	Seq  uint64 `json:"seq"`
	Text string `json:"text"`
}

// Broadcast keeps recent utterances for clients that speak them themselves
// (the browser UI uses SpeechSynthesis)
type Broadcast struct {
	mu    sync.Mutex
	limit int
	seq   uint64
	log   []Utterance
}

// NewBroadcast keeps at most limit utterances
func NewBroadcast(limit int) *Broadcast {
	if limit < 1 {
		limit = 1
	}
	return &Broadcast{limit: limit}
}

// Speak appends the utterance
func (b *Broadcast) Speak(utterance string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	b.log = append(b.log, Utterance{Seq: b.seq, Text: utterance})
	if len(b.log) > b.limit {
		b.log = b.log[len(b.log)-b.limit:]
	}
}

// Since returns utterances with a sequence number greater than seq
func (b *Broadcast) Since(seq uint64) []Utterance {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Utterance, 0)
	for _, u := range b.log {
		if u.Seq > seq {
			out = append(out, u)
		}
	}
	return out
}

// Multi fans an utterance out to several speakers
type Multi []Speaker

func (m Multi) Speak(utterance string) {
	for _, s := range m {
		s.Speak(utterance)
	}
}
