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
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/CannonJunior/orange/pkg/backup"
)

func init() {
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(domainsCmd)

	lsCmd.Flags().StringP("domain", "d", "", "filter by domain")
	lsCmd.Flags().StringP("path", "p", "", "filter by path substring")
}

// lsCmd represents the ls command
var lsCmd = &cobra.Command{
	Use:           "ls <backup>",
	Short:         "List files tracked in a backup's manifest",
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		color.NoColor = viper.GetBool("no-color")

		domain, _ := cmd.Flags().GetString("domain")
		pathFilter, _ := cmd.Flags().GetString("path")

		b, err := backup.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open backup: %w", err)
		}

		faint := color.New(color.Faint).SprintFunc()
		err = b.Walk(domain, pathFilter, func(f *backup.File) error {
			fmt.Printf("%s  %9s  %s\n", faint(f.FileID), humanize.Bytes(uint64(f.Metadata.Size)), f.FullPath())
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to list files: %w", err)
		}
		return nil
	},
}

// domainsCmd represents the domains command
var domainsCmd = &cobra.Command{
	Use:           "domains <backup>",
	Short:         "List the domains present in a backup",
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := backup.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open backup: %w", err)
		}
		domains, err := b.Domains()
		if err != nil {
			return fmt.Errorf("failed to list domains: %w", err)
		}
		for _, d := range domains {
			fmt.Println(d)
		}
		return nil
	},
}
