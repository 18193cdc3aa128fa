package interpreter

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Helper functions for table formatting. Widths are terminal cells, so
// Hangul and other wide runes count twice.
func calculateColumnWidths(columns []string, rows [][]string) []int {
	colWidths := make([]int, len(columns))
	for i, col := range columns {
		colWidths[i] = lipgloss.Width(col)
		for _, row := range rows {
			if i < len(row) {
				colWidths[i] = max(colWidths[i], lipgloss.Width(row[i]))
			}
		}
	}
	return colWidths
}

func writeTableBorder(sb *strings.Builder, colWidths []int) {
	sb.WriteString("+")
	for _, width := range colWidths {
		sb.WriteString(strings.Repeat("-", width+2))
		sb.WriteString("+")
	}
	sb.WriteString("\n")
}

func writeDataRow(sb *strings.Builder, row []string, colWidths []int) {
	sb.WriteString("|")
	for i, width := range colWidths {
		val := ""
		if i < len(row) {
			val = row[i]
		}
		pad := width - lipgloss.Width(val)
		fmt.Fprintf(sb, " %s%s |", val, strings.Repeat(" ", pad))
	}
	sb.WriteString("\n")
}

func formatTable(columns []string, rows [][]string) string {
	var sb strings.Builder
	colWidths := calculateColumnWidths(columns, rows)

	writeTableBorder(&sb, colWidths)
	writeDataRow(&sb, columns, colWidths)
	writeTableBorder(&sb, colWidths)
	for _, row := range rows {
		writeDataRow(&sb, row, colWidths)
	}
	writeTableBorder(&sb, colWidths)
	fmt.Fprintf(&sb, "%d row(s)\n", len(rows))

	return sb.String()
}

// Repl reads commands from r until exit or end of input. A transaction left
// open when the session ends is rolled back.
func (in *Interpreter) Repl(r io.Reader, w io.Writer) error {
	in.logger.Info("Starting REPL session")
	fmt.Fprintln(w, "Welcome to CatalogTx")
	fmt.Fprintln(w, "Enter commands, 'help' to list them, or 'exit' to quit")

	scanner := bufio.NewScanner(r)
	for {
		fmt.Fprint(w, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(w)
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if strings.EqualFold(input, "exit") {
			in.logger.Info("User requested exit")
			break
		}
		if input == "" {
			continue
		}

		result, err := in.Execute(input)
		if result != "" {
			fmt.Fprintln(w, result)
		}
		if err != nil {
			fmt.Fprintf(w, "Error: %v\n", err)
		}
	}

	if tx := in.store.Active(); tx != nil {
		fmt.Fprintf(w, "rolling back open transaction %s\n", tx.ID)
		if err := in.store.Rollback(); err != nil {
			fmt.Fprintf(w, "Error: %v\n", err)
		}
	}

	in.logger.Info("REPL session ended")
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading input: %w", err)
	}
	return nil
}
