// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// =============================================================================
// Run Report
// =============================================================================

// Row is one decoded family in a run report.
type Row struct {
	Family     string
	Device     string
	Items      int
	Keys       int
	Unconsumed int
	Duration   time.Duration
	Err        error
}

// OK reports whether the family decoded cleanly.
func (r Row) OK() bool {
	return r.Err == nil
}

var reportHeaders = []string{"", "FAMILY", "DEVICE", "ITEMS", "KEYS", "UNCONSUMED", "TIME"}

// Report prints a table of rows followed by a summary line and one
// error line per failed family.
//
// Description:
//
//	ModeRich and ModePlain render a bordered table, colored only in
//	ModeRich. ModeMachine prints one tab-separated line per family:
//
//	  family device items keys unconsumed millis status [error]
//
// Inputs:
//
//	rows - One entry per family, printed in the given order.
func (p *Printer) Report(rows []Row) {
	if p.mode == ModeMachine {
		for _, r := range rows {
			fields := []string{
				r.Family, r.Device,
				strconv.Itoa(r.Items), strconv.Itoa(r.Keys), strconv.Itoa(r.Unconsumed),
				strconv.FormatInt(r.Duration.Milliseconds(), 10),
			}
			if r.OK() {
				fields = append(fields, "ok")
			} else {
				fields = append(fields, "failed", oneLine(r.Err.Error()))
			}
			fmt.Fprintln(p.out, strings.Join(fields, "\t"))
		}
		return
	}

	fmt.Fprintln(p.out, p.reportTable(rows))
	p.summary(rows)
	for _, r := range rows {
		if !r.OK() {
			p.Error(fmt.Sprintf("%s: %v", r.Family, r.Err))
		}
	}
}

func (p *Printer) reportTable(rows []Row) string {
	data := make([][]string, 0, len(rows))
	for _, r := range rows {
		status := IconSuccess
		if !r.OK() {
			status = IconError
		} else if r.Unconsumed > 0 {
			status = IconWarning
		}
		data = append(data, []string{
			string(status), r.Family, r.Device,
			strconv.Itoa(r.Items), strconv.Itoa(r.Keys), strconv.Itoa(r.Unconsumed),
			FormatDuration(r.Duration),
		})
	}

	cell := lipgloss.NewStyle().Padding(0, 1)
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		Headers(reportHeaders...).
		Rows(data...)

	if p.mode != ModeRich {
		return t.StyleFunc(func(row, col int) lipgloss.Style { return cell }).String()
	}

	return t.
		BorderStyle(Styles.Border).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return Styles.Header
			}
			if col == 0 && row >= 0 && row < len(data) {
				switch Icon(data[row][0]) {
				case IconError:
					return cell.Foreground(ColorError)
				case IconWarning:
					return cell.Foreground(ColorWarning)
				default:
					return cell.Foreground(ColorSuccess)
				}
			}
			return cell
		}).
		String()
}

func (p *Printer) summary(rows []Row) {
	var ok, failed, items int
	for _, r := range rows {
		if r.OK() {
			ok++
		} else {
			failed++
		}
		items += r.Items
	}
	fmt.Fprintf(p.out, "%s %s  %s %s  %s %s\n",
		p.style(Styles.Success, strconv.Itoa(ok)), p.style(Styles.Muted, "decoded"),
		p.style(Styles.Error, strconv.Itoa(failed)), p.style(Styles.Muted, "failed"),
		p.style(Styles.Bold, strconv.Itoa(items)), p.style(Styles.Muted, "items"),
	)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// FormatDuration renders d compactly: "850ms", "2.5s", "3m 4s", "1h 2m".
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		mins := int(d.Minutes())
		secs := int(d.Seconds()) % 60
		if secs == 0 {
			return fmt.Sprintf("%dm", mins)
		}
		return fmt.Sprintf("%dm %ds", mins, secs)
	}
	hours := int(d.Hours())
	mins := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh %dm", hours, mins)
}
