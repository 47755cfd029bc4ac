package cliui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/papercomputeco/canvas/pkg/execution"
	"github.com/papercomputeco/canvas/pkg/llm"
	"github.com/papercomputeco/canvas/pkg/utils"
)

var (
	activeMark    = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true).Render("▶")
	untouchedMark = DimStyle.Render("○")
	activeRow     = lipgloss.NewStyle().Bold(true)
)

// resultWidth bounds the result preview shown next to each step.
const resultWidth = 60

// Timeline renders the cursor's plan as one line per step. Nodes before the
// current step are marked done (or failed), the current step is highlighted,
// and later steps show no result yet.
func Timeline(c *execution.Cursor) string {
	plan := c.Plan()
	if len(plan.Order) == 0 {
		return DimStyle.Render("  no execution loaded") + "\n"
	}

	statuses := c.Statuses()
	stepping := c.State() == execution.StateStepping

	width := 0
	for _, id := range plan.Order {
		width = max(width, len(id))
	}

	var b strings.Builder
	for i, id := range plan.Order {
		status := statuses[id]
		if !stepping {
			// A planned but not yet stepped execution shows every result.
			status = execution.StatusCompleted
		}

		mark := untouchedMark
		switch {
		case status == execution.StatusActive:
			mark = activeMark
		case status == execution.StatusCompleted && plan.Failed(id):
			mark = FailMark
		case status == execution.StatusCompleted:
			mark = SuccessMark
		}

		label := fmt.Sprintf("%2d. %-*s", i+1, width, id)
		result := ""
		if status != execution.StatusUntouched {
			result = utils.Truncate(llm.OneLine(plan.Results[id]), resultWidth)
		}

		switch status {
		case execution.StatusActive:
			fmt.Fprintf(&b, "  %s %s  %s\n", mark, activeRow.Render(label), ValueStyle.Render(result))
		case execution.StatusCompleted:
			fmt.Fprintf(&b, "  %s %s  %s\n", mark, label, StepStyle.Render(result))
		default:
			fmt.Fprintf(&b, "  %s %s\n", mark, DimStyle.Render(label))
		}
	}

	if stepping {
		fmt.Fprintf(&b, "  %s\n", DimStyle.Render(fmt.Sprintf("step %d/%d", c.CurrentIndex()+1, c.TotalSteps())))
	}
	return b.String()
}
