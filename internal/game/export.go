package game

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// FileExporter appends a readable report of each finished game to Path.
type FileExporter struct {
	Path string
}

func (e FileExporter) SaveResults(ctx context.Context, code string, r Results) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return ExportResults(code, r, e.Path)
}

// ExportResults appends the final scores and both prompts of a game to filename.
func ExportResults(code string, r Results, filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	fileExists := false
	if _, err := os.Stat(filename); err == nil {
		fileExists = true
	}

	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var sb strings.Builder
	if fileExists {
		sb.WriteString("\n\n")
	}
	sb.WriteString(fmt.Sprintf("Game Results - Room %s\n", code))
	sb.WriteString(fmt.Sprintf("Finished: %s\n", time.Now().Format("2006-01-02 15:04:05")))
	sb.WriteString(strings.Repeat("=", 50) + "\n\n")

	for i, p := range []*Prompt{r.PromptOne, r.PromptTwo} {
		if p == nil {
			continue
		}
		sb.WriteString(fmt.Sprintf("Prompt %d: %q\n", i+1, p.Value))
		sb.WriteString(strings.Repeat("-", 40) + "\n")
		for _, a := range p.Answers {
			name := "Unknown"
			if a.Player != nil {
				name = a.Player.Name
			}
			sb.WriteString(fmt.Sprintf("- %s: %q (%d vote(s))\n", name, a.Value, a.Votes))
		}
		sb.WriteString("\n")
	}

	players := make([]*Player, len(r.Players))
	copy(players, r.Players)
	sort.SliceStable(players, func(i, j int) bool { return players[i].Points > players[j].Points })
	sb.WriteString("Scores:\n")
	for _, p := range players {
		sb.WriteString(fmt.Sprintf("- %s: %d points\n", p.Name, p.Points))
	}
	sb.WriteString(strings.Repeat("=", 50) + "\n")

	if _, err := file.WriteString(sb.String()); err != nil {
		return fmt.Errorf("failed to write to file: %w", err)
	}
	return nil
}
