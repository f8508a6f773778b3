package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/relieflabs/firebreak/internal/commander"
	"github.com/relieflabs/firebreak/internal/model"
)

var (
	triageFilename string
	triageImage    string
)

func init() {
	rootCmd.AddCommand(triageCmd)
	triageCmd.Flags().StringVar(&triageFilename, "filename", "", "Dispatch artifact filename (default: generated)")
	triageCmd.Flags().StringVar(&triageImage, "image", "", "Path to a situation photo attached to the report")
}

var triageCmd = &cobra.Command{
	Use:   "triage [report]",
	Short: "Run one emergency report through the mission pipeline",
	Long: "Sanitizes the report, grades severity, evaluates the dispatch intent\n" +
		"against the active policy, and writes the artifact through a scoped\n" +
		"sub-agent when the Shield clears it. Reads the report from stdin when\n" +
		"no argument is given.\n\n" +
		"Exit code 0 when the mission succeeds or routes to the medical\n" +
		"specialist, 1 for blocks, parked approvals, and errors.",
	Args: cobra.MaximumNArgs(1),
	RunE: runTriage,
}

func runTriage(cmd *cobra.Command, args []string) error {
	report, err := readReport(args)
	if err != nil {
		return err
	}

	p, err := buildPipeline(rootLogger)
	if err != nil {
		return err
	}
	defer p.Close()

	req := commander.Request{Report: report, Filename: triageFilename}
	if triageImage != "" {
		data, err := os.ReadFile(triageImage)
		if err != nil {
			return fmt.Errorf("read image: %w", err)
		}
		mime := http.DetectContentType(data)
		if !strings.HasPrefix(mime, "image/") {
			return fmt.Errorf("%s is %s, not an image", triageImage, mime)
		}
		req.Image = data
		req.ImageMIME = mime
	}

	res := p.commander.Run(cmd.Context(), req)

	out, _ := json.MarshalIndent(res, "", "  ")
	fmt.Println(string(out))

	switch res.Status {
	case model.StatusSuccess, model.StatusSuccessAfterReflection, model.StatusRoutedToMedical:
		return nil
	}
	os.Exit(1)
	return nil
}

// readReport returns the report text from the argument or stdin.
func readReport(args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return args[0], nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("read report from stdin: %w", err)
	}
	return string(data), nil
}
