package investigate

import (
	"fmt"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/myrjola/vera/internal/config"
	"github.com/myrjola/vera/internal/errors"
	"github.com/myrjola/vera/internal/pipeline"
	"github.com/myrjola/vera/internal/setup"
	"github.com/spf13/cobra"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

var Group = &cobra.Group{
	ID:    "investigate",
	Title: "Investigations",
}

func init() {
	Investigate.Flags().String("lang", string(pipeline.LanguageEnglish), "language of the report, en or pl")
	Investigate.Flags().Bool("pretty", false, "render the finished report for the terminal instead of streaming it")
}

// loadConfig reads the environment and the --config file and builds the logger of the command.
func loadConfig(cmd *cobra.Command) (config.Env, *config.Config, *slog.Logger, error) {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return config.Env{}, nil, nil, errors.Wrap(err, "config flag")
	}
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		return config.Env{}, nil, nil, errors.Wrap(err, "verbose flag")
	}
	env, cfg, err := config.LoadAll(os.LookupEnv, configPath)
	if err != nil {
		return config.Env{}, nil, nil, errors.Wrap(err, "load config")
	}
	logger, err := setup.CommandLogger(cmd.ErrOrStderr(), env, verbose)
	if err != nil {
		return config.Env{}, nil, nil, err //nolint:wrapcheck // already wrapped
	}
	return env, cfg, logger, nil
}

// readInput joins the arguments or reads stdin when there are none or the only one is "-".
func readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 && !(len(args) == 1 && args[0] == "-") {
		return strings.Join(args, " "), nil
	}
	b, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", errors.Wrap(err, "read stdin")
	}
	return string(b), nil
}

var Investigate = &cobra.Command{
	Use:     "investigate [text|url|-]",
	GroupID: "investigate",
	Short:   "Investigate a text or the content of a URL",
	Long: `Runs the researcher, librarian, analyst, critic, scoring and reporter stages. Stage progress and the
scores are printed to stderr while the report streams to stdout. Without arguments the text is read from stdin.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		lang, err := cmd.Flags().GetString("lang")
		if err != nil {
			return errors.Wrap(err, "lang flag")
		}
		language, err := pipeline.ParseLanguage(lang)
		if err != nil {
			return err //nolint:wrapcheck // shown to the user
		}
		pretty, err := cmd.Flags().GetBool("pretty")
		if err != nil {
			return errors.Wrap(err, "pretty flag")
		}
		input, err := readInput(cmd, args)
		if err != nil {
			return err
		}
		env, cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		gen, err := setup.Generator(ctx, env, cfg, logger)
		if err != nil {
			return errors.Wrap(err, "configure generator")
		}

		r := runner{
			generator: gen,
			cfg:       cfg,
			extractor: setup.Extractor(cfg, logger),
			logger:    logger,
			stdout:    cmd.OutOrStdout(),
			stderr:    cmd.ErrOrStderr(),
		}
		_, err = r.run(ctx, input, runOptions{language: language, pretty: pretty})
		return err
	},
}

var Stages = &cobra.Command{
	Use:     "stages",
	GroupID: "investigate",
	Short:   "List the pipeline stages",
	Long:    `Lists the stages in execution order with their capabilities and effective timeouts.`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return printStages(cmd.OutOrStdout(), cfg)
	},
}

func printStages(w io.Writer, cfg *config.Config) error {
	t := table.New().
		BorderTop(false).BorderBottom(false).BorderLeft(false).BorderRight(false).
		BorderHeader(false).BorderColumn(false).
		StyleFunc(func(_, _ int) lipgloss.Style {
			return lipgloss.NewStyle().PaddingRight(2) //nolint:mnd // two spaces between columns
		}).
		Headers("#", "STAGE", "CAPABILITIES", "STREAMS", "TIMEOUT")
	for i, s := range setup.Stages(cfg) {
		capabilities := "-"
		if len(s.Capabilities) > 0 {
			capabilities = strings.Join(s.Capabilities, ",")
		}
		timeout := s.Timeout
		if timeout <= 0 {
			timeout = cfg.RunConfiguration().StageTimeout
		}
		if timeout <= 0 {
			timeout = pipeline.DefaultStageTimeout
		}
		t.Row(strconv.Itoa(i+1), s.Name, capabilities, strconv.FormatBool(s.Streams), timeout.String())
	}
	if _, err := fmt.Fprintln(w, t.Render()); err != nil {
		return errors.Wrap(err, "print stages")
	}
	return nil
}

var Config = &cobra.Command{
	Use:     "config",
	GroupID: "investigate",
	Short:   "Print the effective configuration",
	Long:    `Prints the defaults merged with the --config file as YAML.`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		out, err := cfg.YAML()
		if err != nil {
			return err //nolint:wrapcheck // already wrapped
		}
		if _, err = cmd.OutOrStdout().Write(out); err != nil {
			return errors.Wrap(err, "print config")
		}
		if _, err = env.APIKey(cfg.Provider); err != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
		}
		return nil
	},
}
