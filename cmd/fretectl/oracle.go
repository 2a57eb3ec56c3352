package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/arteita/fretebot/cmd/mainconfig"
	"github.com/arteita/fretebot/internal/app/bootstrap"
	"github.com/arteita/fretebot/internal/extraction"
)

var (
	oracleFile     string
	oracleText     string
	oracleKeywords string
	oracleRoutes   string
	oracleMinPrice float64
)

func init() {
	rootCmd.AddCommand(oracleCmd)
	oracleCmd.AddCommand(oracleExtractCmd, oracleClassifyCmd)

	oracleExtractCmd.Flags().StringVar(&oracleFile, "file", "", "ticket image or PDF")
	oracleExtractCmd.Flags().StringVar(&oracleText, "text", "", "ticket described in text")
	oracleClassifyCmd.Flags().StringVar(&oracleText, "text", "", "group message to classify")
	oracleClassifyCmd.Flags().StringVar(&oracleKeywords, "keywords", "", "comma-separated interest keywords")
	oracleClassifyCmd.Flags().StringVar(&oracleRoutes, "routes", "", "comma-separated preferred routes")
	oracleClassifyCmd.Flags().Float64Var(&oracleMinPrice, "min-price", 0, "minimum price per ton")
	_ = oracleClassifyCmd.MarkFlagRequired("text")
}

var oracleCmd = &cobra.Command{
	Use:   "oracle",
	Short: "Run the extraction oracle against sample input",
	Long: `Calls the configured LLM provider (AI_PROVIDER, with AI_FALLBACK_PROVIDER)
exactly as the conversation engine and group monitor do.

Examples:
  fretectl oracle extract --file ticket.jpg
  fretectl oracle classify --text "Carrego soja Sorriso x Santos 37t R$ 280"`,
}

var oracleExtractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract freight fields from a ticket",
	RunE: withOracle(func(ctx context.Context, cmd *cobra.Command, svc extraction.Oracle) error {
		in, err := extractInput(oracleFile, oracleText)
		if err != nil {
			return err
		}
		draft, err := svc.ExtractFreight(ctx, in)
		if err != nil {
			return err
		}
		out := map[string]any{"draft": draft}
		if missing := draft.Missing(); len(missing) > 0 {
			labels := make([]string, 0, len(missing))
			for _, f := range missing {
				labels = append(labels, f.Label())
			}
			out["missing"] = labels
		}
		return printJSON(cmd.OutOrStdout(), out)
	}),
}

var oracleClassifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Classify a group message as a freight opportunity",
	RunE: withOracle(func(ctx context.Context, cmd *cobra.Command, svc extraction.Oracle) error {
		verdict, err := svc.ClassifyOpportunity(ctx, oracleText, extraction.ClassifyOptions{
			Keywords:        splitKeywords(oracleKeywords),
			PreferredRoutes: splitKeywords(oracleRoutes),
			MinPricePerTon:  oracleMinPrice,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), verdict)
	}),
}

type oracleRunner func(ctx context.Context, cmd *cobra.Command, svc extraction.Oracle) error

func withOracle(run oracleRunner) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		cfg := loadConfig()
		logger := cliLogger(cfg)

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		var clients bootstrap.Clients
		if mainconfig.NeedsAWS(cfg) {
			awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
			if err != nil {
				return fmt.Errorf("load AWS config: %w", err)
			}
			clients = mainconfig.BuildClients(awsCfg, cfg)
		}
		svc, err := bootstrap.BuildOracle(ctx, cfg, clients.Bedrock, nil, nil, logger)
		if err != nil {
			return err
		}
		defer func() { _ = svc.Close() }()
		return run(ctx, cmd, svc)
	}
}

// extractInput reads the ticket file, if any, alongside the text.
func extractInput(path, text string) (extraction.Input, error) {
	in := extraction.Input{Text: strings.TrimSpace(text)}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return extraction.Input{}, fmt.Errorf("read ticket: %w", err)
		}
		in.ImageBase64 = base64.StdEncoding.EncodeToString(data)
		in.MediaType = mediaType(data)
	}
	if in.ImageBase64 == "" && in.Text == "" {
		return extraction.Input{}, errors.New("pass --file or --text")
	}
	return in, nil
}

// mediaType sniffs the ticket content, dropping any parameters.
func mediaType(data []byte) string {
	mt := http.DetectContentType(data)
	return strings.TrimSpace(strings.SplitN(mt, ";", 2)[0])
}
