package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	coreerrors "github.com/DanielWarg/fortknox/core/errors"
	"github.com/DanielWarg/fortknox/core/schema/v1/knox"
)

var (
	compileProject  string
	compilePolicy   string
	compileTemplate string
	compileOut      string
	compileExclude  []string
)

var compileCmd = &cobra.Command{
	Use:   "compile",
	Short: "Compile one project into a report",
	Long: `Run the full pipeline for a single project: build the input pack,
gate it, compile, gate the output and persist the report. Repeating the
same compile replays the stored report without calling the compiler.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, st, err := buildPipeline(cfg, logger)
		if err != nil {
			return err
		}
		defer st.Close()

		req := knox.CompileRequest{
			ProjectID:  compileProject,
			PolicyID:   compilePolicy,
			TemplateID: compileTemplate,
			Caller:     "cli",
		}
		if len(compileExclude) > 0 {
			sel := &knox.SelectionSet{}
			for _, ref := range compileExclude {
				kind, id, ok := strings.Cut(ref, ":")
				if !ok {
					return fmt.Errorf("invalid --exclude %q (expected kind:id)", ref)
				}
				sel.Exclude = append(sel.Exclude, knox.SelectionRef{Kind: kind, ID: id})
			}
			req.Selection = sel
		}

		report, err := svc.Compile(cmd.Context(), req)
		if err != nil {
			red := color.New(color.FgRed, color.Bold).SprintFunc()
			fmt.Printf("%s %s\n", red("FAIL"), coreerrors.CodeOf(err))
			for _, reason := range coreerrors.ReasonsOf(err) {
				fmt.Printf("  - %s\n", reason)
			}
			return err
		}

		green := color.New(color.FgGreen, color.Bold).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()
		fmt.Printf("%s report %s\n", green("PASS"), report.ID)
		fmt.Printf("  %s %s\n", gray("fingerprint"), report.Fingerprint)
		fmt.Printf("  %s %s v%s (%s)\n", gray("policy"), report.PolicyID, report.PolicyVersion, report.RulesetHash)
		fmt.Printf("  %s %s\n", gray("engine"), report.EngineID)
		fmt.Printf("  %s %dms\n", gray("latency"), report.LatencyMS)

		if compileOut != "" {
			if err := os.WriteFile(compileOut, []byte(report.RenderedMarkdown), 0o644); err != nil {
				return err
			}
			fmt.Printf("  %s %s\n", gray("written"), compileOut)
			return nil
		}
		fmt.Println()
		fmt.Println(report.RenderedMarkdown)
		return nil
	},
}

func init() {
	compileCmd.Flags().StringVar(&compileProject, "project", "", "project id (required)")
	compileCmd.Flags().StringVar(&compilePolicy, "policy", "internal", "policy id")
	compileCmd.Flags().StringVar(&compileTemplate, "template", "standard_v1", "template id")
	compileCmd.Flags().StringVar(&compileOut, "out", "", "write markdown to file instead of stdout")
	compileCmd.Flags().StringSliceVar(&compileExclude, "exclude", nil, "exclude items, kind:id (repeatable)")
	_ = compileCmd.MarkFlagRequired("project")
	rootCmd.AddCommand(compileCmd)
}
