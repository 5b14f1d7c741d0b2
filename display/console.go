// Package display renders snapshots to the operator console and plays the
// audible alert.
package display

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aluiziolira/buffwatch/models"
)

const clearScreen = "\x1b[H\x1b[2J"

// ConsoleRenderer repaints the whole terminal on every snapshot. Write
// errors are ignored: a broken display must never interrupt polling.
type ConsoleRenderer struct {
	out io.Writer
	mu  sync.Mutex
}

// NewConsoleRenderer renders to out, typically os.Stdout.
func NewConsoleRenderer(out io.Writer) *ConsoleRenderer {
	return &ConsoleRenderer{out: out}
}

// Render paints the item table and the active-alarm footer.
func (c *ConsoleRenderer) Render(snap models.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var buf bytes.Buffer
	buf.WriteString(clearScreen)
	buf.WriteString("Buff Market Listings\n\n")

	tw := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ITEM\tLOWEST PRICE\tLAST UPDATED")
	for _, row := range snap.Rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\n",
			row.Item.Name,
			formatPrice(row.LowestPrice),
			formatTime(row.LastUpdated),
		)
	}
	tw.Flush()

	buf.WriteString("\nActive Alarms\n")
	if len(snap.ActiveAlarms) == 0 {
		buf.WriteString("  (none)\n")
	} else {
		for _, name := range sortedNames(snap.ActiveAlarms) {
			fmt.Fprintf(&buf, "  - %s: ¥%s\n", name, snap.ActiveAlarms[name].StringFixed(2))
		}
	}

	c.out.Write(buf.Bytes())
}

func formatPrice(p *decimal.Decimal) string {
	if p == nil {
		return "N/A"
	}
	return "¥" + p.StringFixed(2)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "N/A"
	}
	return t.Format("15:04:05")
}

func sortedNames(alarms map[string]decimal.Decimal) []string {
	names := make([]string, 0, len(alarms))
	for name := range alarms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
