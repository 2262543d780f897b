package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Skufu/RenalRisk/internal/api"
	"github.com/Skufu/RenalRisk/internal/assessment"
	"github.com/Skufu/RenalRisk/internal/clinical"
	"github.com/Skufu/RenalRisk/internal/predictor"
)

func main() {
	if err := newRootCmd(os.Stdin, os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(in io.Reader, out io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "ckdctl",
		Short:        "Offline CKD stage and SR-IRC scoring",
		SilenceUsage: true,
	}
	rootCmd.SetIn(in)
	rootCmd.SetOut(out)
	rootCmd.SetErr(os.Stderr)

	rootCmd.AddCommand(scoreCmd())
	rootCmd.AddCommand(srircCmd())
	return rootCmd
}

func scoreCmd() *cobra.Command {
	var classifierURL string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "score [file]",
		Short: "Assess a JSON clinical record (stdin when no file is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open record: %w", err)
				}
				defer f.Close()
				in = f
			}

			var req api.RecordRequest
			if err := json.NewDecoder(in).Decode(&req); err != nil {
				return fmt.Errorf("decode record: %w", err)
			}
			if req.MissingCreatinine() {
				return clinical.ErrMissingCreatinine
			}
			rec := req.Record()
			if err := rec.Validate(); err != nil {
				return err
			}

			logger := logrus.New()
			logger.SetOutput(cmd.ErrOrStderr())
			logger.SetLevel(logrus.WarnLevel)

			var p predictor.StagePredictor = predictor.EGFRBandPredictor{}
			if classifierURL != "" {
				p = predictor.NewRemoteClient(predictor.RemoteConfig{BaseURL: classifierURL, Timeout: timeout}, logger)
			}
			svc := assessment.NewService(clinical.NewDeriver(clinical.DefaultFeatureConfig()), p, logger)

			var comorbid *assessment.Comorbidities
			if req.HasComorbidities() {
				c := req.Comorbidities()
				comorbid = &c
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout+time.Second)
			defer cancel()

			report, err := svc.Assess(ctx, rec, comorbid)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().StringVar(&classifierURL, "classifier-url", "", "model server base URL (eGFR band fallback when empty)")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "classifier call timeout")
	return cmd
}

func srircCmd() *cobra.Command {
	var (
		age          int
		sex          string
		creatinine   float64
		hemoglobin   float64
		proteinuria  float64
		dipstick     string
		diabetes     bool
		hypertension bool
	)

	cmd := &cobra.Command{
		Use:   "sr-irc",
		Short: "Compute the SR-IRC score and its tier",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := clinical.ParseSex(sex)
			if err != nil {
				return err
			}
			logger := logrus.New()
			logger.SetOutput(cmd.ErrOrStderr())
			svc := assessment.NewService(clinical.NewDeriver(clinical.DefaultFeatureConfig()), predictor.EGFRBandPredictor{}, logger)

			rec := clinical.ClinicalRecord{Age: age, Sex: s, CreatinineMgL: creatinine, HemoglobinGdL: hemoglobin}
			result, err := svc.SRIRC(rec, assessment.Comorbidities{
				Proteinuria24h:      proteinuria,
				ProteinuriaDipstick: dipstick,
				Diabetes:            diabetes,
				Hypertension:        hypertension,
			})
			if err != nil {
				return err
			}
			egfr, _ := clinical.EGFR(age, s, creatinine)
			tier := result.Tier

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "eGFR:        %.2f mL/min/1.73m²\n", egfr)
			fmt.Fprintf(out, "SR-IRC:      %d (%s, %s)\n", result.Score, tier.Level, tier.Marker)
			fmt.Fprintf(out, "Follow-up:   %s\n", tier.FollowUp)
			fmt.Fprintf(out, "Action:      %s\n", tier.Recommendation)
			return nil
		},
	}
	cmd.Flags().IntVar(&age, "age", 0, "age in years")
	cmd.Flags().StringVar(&sex, "sex", "", "M or F")
	cmd.Flags().Float64Var(&creatinine, "creatinine", 0, "serum creatinine (mg/L)")
	cmd.Flags().Float64Var(&hemoglobin, "hb", 0, "hemoglobin (g/dL), 12 when omitted")
	cmd.Flags().Float64Var(&proteinuria, "proteinuria", 0, "24h proteinuria (g/24h)")
	cmd.Flags().StringVar(&dipstick, "dipstick", "", "dipstick proteinuria reading")
	cmd.Flags().BoolVar(&diabetes, "diabetes", false, "diabetic")
	cmd.Flags().BoolVar(&hypertension, "hypertension", false, "hypertensive")
	_ = cmd.MarkFlagRequired("age")
	_ = cmd.MarkFlagRequired("sex")
	_ = cmd.MarkFlagRequired("creatinine")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
