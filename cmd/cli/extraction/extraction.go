package extraction

import (
	"encoding/json"
	"fmt"
	"github.com/myrjola/vera/internal/config"
	"github.com/myrjola/vera/internal/errors"
	"github.com/myrjola/vera/internal/extract"
	"github.com/myrjola/vera/internal/setup"
	"github.com/spf13/cobra"
	"io"
	"os"
)

var Group = &cobra.Group{
	ID:    "extraction",
	Title: "Content extraction",
}

func init() {
	Extract.Flags().Int("max-chars", 0, "limit the extracted text, overrides extractor.max_chars")
	Extract.Flags().Bool("json", false, "print the result as JSON")
}

var Extract = &cobra.Command{
	Use:     "extract [url]",
	GroupID: "extraction",
	Short:   "Extract the readable text of a web page or PDF",
	Long:    `Downloads the URL and prints the text an investigation of the URL would analyse.`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, err := cmd.Flags().GetString("config")
		if err != nil {
			return errors.Wrap(err, "config flag")
		}
		verbose, err := cmd.Flags().GetBool("verbose")
		if err != nil {
			return errors.Wrap(err, "verbose flag")
		}
		maxChars, err := cmd.Flags().GetInt("max-chars")
		if err != nil {
			return errors.Wrap(err, "max-chars flag")
		}
		asJSON, err := cmd.Flags().GetBool("json")
		if err != nil {
			return errors.Wrap(err, "json flag")
		}
		env, cfg, err := config.LoadAll(os.LookupEnv, configPath)
		if err != nil {
			return errors.Wrap(err, "load config")
		}
		logger, err := setup.CommandLogger(cmd.ErrOrStderr(), env, verbose)
		if err != nil {
			return err //nolint:wrapcheck // already wrapped
		}
		if maxChars > 0 {
			cfg.Extractor.MaxChars = maxChars
		}

		result, err := setup.Extractor(cfg, logger).Extract(cmd.Context(), args[0])
		if err != nil {
			return err //nolint:wrapcheck // the message is meant for the user
		}
		if asJSON {
			return printJSON(cmd.OutOrStdout(), result)
		}
		return printResult(cmd.OutOrStdout(), result)
	},
}

func printResult(w io.Writer, result extract.Result) error {
	title := result.Title
	if title == "" {
		title = "(untitled)"
	}
	size := fmt.Sprintf("%d characters", result.OriginalChars)
	if result.Truncated {
		size = fmt.Sprintf("%d characters, truncated to %d", result.OriginalChars, len([]rune(result.Text)))
	}
	_, err := fmt.Fprintf(w, "Title: %s\nURL: %s\nLength: %s\n\n%s\n", title, result.URL, size, result.Text)
	if err != nil {
		return errors.Wrap(err, "print extraction")
	}
	return nil
}

type resultJSON struct {
	URL           string `json:"url"`
	Title         string `json:"title,omitempty"`
	Text          string `json:"text"`
	Truncated     bool   `json:"truncated"`
	OriginalChars int    `json:"originalChars"`
}

func printJSON(w io.Writer, result extract.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(resultJSON(result)); err != nil {
		return errors.Wrap(err, "encode extraction")
	}
	return nil
}
