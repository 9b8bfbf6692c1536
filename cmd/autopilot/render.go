package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/entrhq/autopilot/pkg/automation"
)

var (
	salmonPink = lipgloss.Color("#FFB3BA")
	mintGreen  = lipgloss.Color("#A8E6CF")
	mutedGray  = lipgloss.Color("#6B7280")
)

var (
	successStyle = lipgloss.NewStyle().
			Foreground(mintGreen).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(salmonPink)

	mutedStyle = lipgloss.NewStyle().
			Foreground(mutedGray)

	payloadStyle = lipgloss.NewStyle().
			PaddingLeft(2)
)

func renderResult(r automation.ActionResult) string {
	var b strings.Builder
	target := ""
	if r.TargetID != "" {
		target = " " + mutedStyle.Render("["+r.TargetID+"]")
	}

	if !r.Success {
		b.WriteString(errorStyle.Render("✗ "+r.Action) + target)
		b.WriteString(" " + errorStyle.Render(string(r.ErrorKind)))
		if r.Step != "" {
			b.WriteString(mutedStyle.Render(" (step " + r.Step + ")"))
		}
		b.WriteString("\n" + payloadStyle.Render(r.Error))
		return b.String()
	}

	b.WriteString(successStyle.Render("✓ "+r.Action) + target)
	b.WriteString(mutedStyle.Render(fmt.Sprintf(" %dms", r.Duration.Milliseconds())))
	if body := renderPayload(r.Payload); body != "" {
		b.WriteString("\n" + payloadStyle.Render(body))
	}
	return b.String()
}

func renderPayload(p automation.Payload) string {
	switch p.Kind {
	case automation.PayloadText:
		return p.Text
	case automation.PayloadBytes:
		return fmt.Sprintf("%d bytes", len(p.Bytes))
	case automation.PayloadStructured:
		switch v := p.Data.(type) {
		case automation.Artifact:
			return fmt.Sprintf("saved %s (%d bytes)", v.Path, v.Size)
		case []string:
			return strings.Join(v, "\n")
		}
		data, err := json.MarshalIndent(p.Data, "", "  ")
		if err != nil {
			return fmt.Sprintf("%v", p.Data)
		}
		return string(data)
	default:
		return ""
	}
}

func renderDiscovery(d automation.Discovery) string {
	var b strings.Builder
	if d.Len() == 0 {
		b.WriteString(errorStyle.Render(fmt.Sprintf("no %s targets found", d.Kind())))
	}
	for i, t := range d.Targets() {
		if i > 0 {
			b.WriteString("\n")
		}
		style := mutedStyle
		if t.Status == automation.StatusReady {
			style = successStyle
		}
		b.WriteString(fmt.Sprintf("%s  %s", t.ID, style.Render(string(t.Status))))
	}
	if d.Skipped() > 0 || d.Filtered() > 0 {
		b.WriteString("\n" + mutedStyle.Render(fmt.Sprintf("%d unparseable, %d filtered", d.Skipped(), d.Filtered())))
	}
	return b.String()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
