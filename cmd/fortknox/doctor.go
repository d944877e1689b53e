package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/DanielWarg/fortknox/core/doctor"
)

var doctorJSON bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the local environment and configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		result := doctor.Run(cfg)

		if doctorJSON {
			encoded, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(encoded))
		} else {
			green := color.New(color.FgGreen).SprintFunc()
			yellow := color.New(color.FgYellow).SprintFunc()
			red := color.New(color.FgRed).SprintFunc()
			for _, check := range result.Checks {
				label := green("pass")
				switch check.Status {
				case "warn":
					label = yellow("warn")
				case "fail":
					label = red("fail")
				}
				fmt.Printf("[%s] %-10s %s\n", label, check.Name, check.Message)
			}
			fmt.Println(result.Summary)
			for _, fix := range result.FixCommands {
				fmt.Printf("  fix: %s\n", fix)
			}
		}

		if result.Status == "fail" {
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "emit the result as JSON")
	rootCmd.AddCommand(doctorCmd)
}
