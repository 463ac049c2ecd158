/*
Copyright © 2024-2026 CannonJunior

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/apex/log"
	"github.com/spf13/cobra"

	"github.com/CannonJunior/orange/pkg/backup"
	"github.com/CannonJunior/orange/pkg/export"
)

func init() {
	exportCmd.AddCommand(exportMessagesCmd)
	exportCmd.AddCommand(exportContactsCmd)
	exportCmd.AddCommand(exportCalendarCmd)
	exportCmd.AddCommand(exportNotesCmd)

	for _, sub := range exportCmd.Commands() {
		sub.Flags().StringP("format", "f", "json", "output format")
		sub.Flags().StringP("output", "o", "", "output file path")
		sub.Flags().Bool("stats", false, "print statistics instead of exporting")
		sub.Flags().Int("limit", 0, "limit number of records")
	}

	exportMessagesCmd.Flags().String("contact", "", "filter by contact identifier")
	exportMessagesCmd.Flags().String("after", "", "only records on or after this date (YYYY-MM-DD)")
	exportMessagesCmd.Flags().String("before", "", "only records on or before this date (YYYY-MM-DD)")

	exportContactsCmd.Flags().String("search", "", "filter by name or organization")

	exportCalendarCmd.Flags().Int64("calendar", 0, "filter by calendar ID")
	exportCalendarCmd.Flags().String("search", "", "filter by title or location")
	exportCalendarCmd.Flags().String("after", "", "only events starting on or after this date (YYYY-MM-DD)")
	exportCalendarCmd.Flags().String("before", "", "only events starting on or before this date (YYYY-MM-DD)")

	exportNotesCmd.Flags().Int64("folder", 0, "filter by folder ID")
	exportNotesCmd.Flags().String("search", "", "filter by title or snippet")
}

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export message, contact, calendar and notes data from a backup",
}

func openBackup(path string) (*backup.Backup, error) {
	b, err := backup.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open backup: %w", err)
	}
	return b, nil
}

func parseDateFlag(cmd *cobra.Command, name string) (time.Time, error) {
	val, _ := cmd.Flags().GetString(name)
	if val == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", val)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --%s date %q (expected YYYY-MM-DD)", name, val)
	}
	return t, nil
}

func printStats(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func outputPath(cmd *cobra.Command, def string) string {
	out, _ := cmd.Flags().GetString("output")
	if out == "" {
		return def
	}
	return out
}

// exportMessagesCmd represents the export messages command
var exportMessagesCmd = &cobra.Command{
	Use:           "messages <backup>",
	Short:         "Export SMS/iMessage conversations",
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBackup(args[0])
		if err != nil {
			return err
		}
		e := export.NewMessageExtractor(b)
		defer e.Close()

		if stats, _ := cmd.Flags().GetBool("stats"); stats {
			s, err := e.Statistics()
			if err != nil {
				return fmt.Errorf("failed to compute message statistics: %w", err)
			}
			return printStats(s)
		}

		var q export.MessageQuery
		q.Contact, _ = cmd.Flags().GetString("contact")
		q.Limit, _ = cmd.Flags().GetInt("limit")
		if q.After, err = parseDateFlag(cmd, "after"); err != nil {
			return err
		}
		if q.Before, err = parseDateFlag(cmd, "before"); err != nil {
			return err
		}

		messages, err := e.Messages(q)
		if err != nil {
			return fmt.Errorf("failed to extract messages: %w", err)
		}

		format, _ := cmd.Flags().GetString("format")
		switch format {
		case "json":
			err = export.WriteJSON(messages, outputPath(cmd, "messages.json"))
		case "csv":
			err = export.WriteCSV(messages, outputPath(cmd, "messages.csv"))
		case "html":
			err = export.WriteMessagesHTML(messages, outputPath(cmd, "messages.html"), "Messages")
		default:
			return fmt.Errorf("unsupported format %q (expected json, csv or html)", format)
		}
		if err != nil {
			return fmt.Errorf("failed to write export: %w", err)
		}

		log.WithField("count", len(messages)).Info("exported messages")
		return nil
	},
}

// exportContactsCmd represents the export contacts command
var exportContactsCmd = &cobra.Command{
	Use:           "contacts <backup>",
	Short:         "Export the address book",
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBackup(args[0])
		if err != nil {
			return err
		}
		e := export.NewContactExtractor(b)
		defer e.Close()

		if stats, _ := cmd.Flags().GetBool("stats"); stats {
			s, err := e.Statistics()
			if err != nil {
				return fmt.Errorf("failed to compute contact statistics: %w", err)
			}
			return printStats(s)
		}

		var q export.ContactQuery
		q.Search, _ = cmd.Flags().GetString("search")
		q.Limit, _ = cmd.Flags().GetInt("limit")

		contacts, err := e.Contacts(q)
		if err != nil {
			return fmt.Errorf("failed to extract contacts: %w", err)
		}

		format, _ := cmd.Flags().GetString("format")
		switch format {
		case "json":
			err = export.WriteJSON(contacts, outputPath(cmd, "contacts.json"))
		case "csv":
			err = export.WriteCSV(contacts, outputPath(cmd, "contacts.csv"))
		case "vcf":
			err = export.WriteVCF(contacts, outputPath(cmd, "contacts.vcf"))
		default:
			return fmt.Errorf("unsupported format %q (expected json, csv or vcf)", format)
		}
		if err != nil {
			return fmt.Errorf("failed to write export: %w", err)
		}

		log.WithField("count", len(contacts)).Info("exported contacts")
		return nil
	},
}

// exportCalendarCmd represents the export calendar command
var exportCalendarCmd = &cobra.Command{
	Use:           "calendar <backup>",
	Short:         "Export calendar events",
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBackup(args[0])
		if err != nil {
			return err
		}
		e := export.NewCalendarExtractor(b)
		defer e.Close()

		if stats, _ := cmd.Flags().GetBool("stats"); stats {
			s, err := e.Statistics()
			if err != nil {
				return fmt.Errorf("failed to compute calendar statistics: %w", err)
			}
			return printStats(s)
		}

		var q export.EventQuery
		q.CalendarID, _ = cmd.Flags().GetInt64("calendar")
		q.Search, _ = cmd.Flags().GetString("search")
		q.Limit, _ = cmd.Flags().GetInt("limit")
		if q.After, err = parseDateFlag(cmd, "after"); err != nil {
			return err
		}
		if q.Before, err = parseDateFlag(cmd, "before"); err != nil {
			return err
		}

		events, err := e.Events(q)
		if err != nil {
			return fmt.Errorf("failed to extract events: %w", err)
		}

		format, _ := cmd.Flags().GetString("format")
		switch format {
		case "json":
			err = export.WriteJSON(events, outputPath(cmd, "calendar.json"))
		case "csv":
			err = export.WriteCSV(events, outputPath(cmd, "calendar.csv"))
		case "ics":
			err = export.WriteICS(events, outputPath(cmd, "calendar.ics"), "Calendar")
		default:
			return fmt.Errorf("unsupported format %q (expected json, csv or ics)", format)
		}
		if err != nil {
			return fmt.Errorf("failed to write export: %w", err)
		}

		log.WithField("count", len(events)).Info("exported events")
		return nil
	},
}

// exportNotesCmd represents the export notes command
var exportNotesCmd = &cobra.Command{
	Use:           "notes <backup>",
	Short:         "Export notes",
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBackup(args[0])
		if err != nil {
			return err
		}
		e := export.NewNoteExtractor(b)
		defer e.Close()

		if stats, _ := cmd.Flags().GetBool("stats"); stats {
			s, err := e.Statistics()
			if err != nil {
				return fmt.Errorf("failed to compute note statistics: %w", err)
			}
			return printStats(s)
		}

		var q export.NoteQuery
		q.FolderID, _ = cmd.Flags().GetInt64("folder")
		q.Search, _ = cmd.Flags().GetString("search")
		q.Limit, _ = cmd.Flags().GetInt("limit")

		notes, err := e.Notes(q)
		if err != nil {
			return fmt.Errorf("failed to extract notes: %w", err)
		}

		format, _ := cmd.Flags().GetString("format")
		switch format {
		case "json":
			err = export.WriteJSON(notes, outputPath(cmd, "notes.json"))
		case "csv":
			err = export.WriteCSV(notes, outputPath(cmd, "notes.csv"))
		case "html":
			err = export.WriteNotesHTML(notes, outputPath(cmd, "notes.html"), "Notes")
		default:
			return fmt.Errorf("unsupported format %q (expected json, csv or html)", format)
		}
		if err != nil {
			return fmt.Errorf("failed to write export: %w", err)
		}

		log.WithField("count", len(notes)).Info("exported notes")
		return nil
	},
}
