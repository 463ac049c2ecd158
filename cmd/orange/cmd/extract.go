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
	"errors"
	"fmt"

	"github.com/apex/log"
	"github.com/spf13/cobra"

	"github.com/CannonJunior/orange/pkg/backup"
)

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().BoolP("preserve-path", "P", false, "preserve domain/relative path under destination")
}

// extractCmd represents the extract command
var extractCmd = &cobra.Command{
	Use:           "extract <backup> <fileID> <dest>",
	Short:         "Extract a single file from the backup content store",
	Args:          cobra.ExactArgs(3),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		preserve, _ := cmd.Flags().GetBool("preserve-path")

		b, err := backup.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open backup: %w", err)
		}

		out, err := b.Extract(args[1], args[2], preserve)
		if err != nil {
			if errors.Is(err, backup.ErrNotAvailable) {
				log.Warn("file content is not available in this backup")
				return nil
			}
			return fmt.Errorf("failed to extract file: %w", err)
		}

		log.WithField("path", out).Info("extracted")
		return nil
	},
}
