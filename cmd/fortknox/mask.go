package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/DanielWarg/fortknox/core/sanitize"
	"github.com/DanielWarg/fortknox/core/schema/v1/knox"
)

var maskShowLevelOnly bool

var maskCmd = &cobra.Command{
	Use:   "mask [file]",
	Short: "Sanitize text and print the masked result",
	Long: `Run progressive sanitization on a file (or stdin) and print the
masked text. The level escalates until the result passes the PII gate,
so the output is always safe to share.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var raw []byte
		var err error
		if len(args) == 1 {
			raw, err = os.ReadFile(args[0])
		} else {
			raw, err = io.ReadAll(os.Stdin)
		}
		if err != nil {
			return err
		}

		result, err := sanitize.Progressive(string(raw))
		if err != nil {
			return err
		}

		levelColor := color.New(color.FgGreen).SprintFunc()
		switch result.Level {
		case knox.LevelStrict:
			levelColor = color.New(color.FgYellow).SprintFunc()
		case knox.LevelParanoid:
			levelColor = color.New(color.FgRed).SprintFunc()
		}
		fmt.Fprintf(os.Stderr, "level: %s  ai_allowed: %t  export_allowed: %t\n",
			levelColor(string(result.Level)), result.Restrictions.AIAllowed, result.Restrictions.ExportAllowed)
		if maskShowLevelOnly {
			return nil
		}
		fmt.Println(result.Masked)
		return nil
	},
}

func init() {
	maskCmd.Flags().BoolVar(&maskShowLevelOnly, "level-only", false, "print the chosen level without the masked text")
	rootCmd.AddCommand(maskCmd)
}
