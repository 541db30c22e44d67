package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ehr/infusion/internal/config"
	"github.com/ehr/infusion/internal/domain/infusion"
	"github.com/ehr/infusion/internal/platform/catalog"
	"github.com/ehr/infusion/pkg/pagination"
)

// app bundles what every subcommand needs.
type app struct {
	cfg     *config.Config
	log     zerolog.Logger
	catalog *catalog.Catalog
	svc     *infusion.Service
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	// stdout carries results, so logs go to stderr.
	logger := newLogger(cfg, os.Stderr)

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		logger.Error().Err(err).Str("path", cfg.CatalogPath).Msg("failed to load catalog")
		return nil, err
	}
	logger.Debug().Int("medications", cat.Len()).Msg("catalog loaded")

	return &app{
		cfg:     cfg,
		log:     logger,
		catalog: cat,
		svc:     infusion.NewService(cat.Adapter(), logger),
	}, nil
}

func newLogger(cfg *config.Config, w io.Writer) zerolog.Logger {
	var logger zerolog.Logger
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: w})
	} else {
		logger = zerolog.New(w)
	}
	return logger.Level(cfg.Level()).With().Timestamp().Str("run_id", uuid.NewString()).Logger()
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "infusion-calc",
		Short:        "Infusion dose, vial, bag and pump schedule calculator",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().Bool("json", false, "Print results as JSON")

	rootCmd.AddCommand(catalogCmd())
	rootCmd.AddCommand(vialsCmd())
	rootCmd.AddCommand(prepareCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(batchCmd())
	return rootCmd
}

func catalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the medication catalog",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List medications",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			offset, _ := cmd.Flags().GetInt("offset")
			asJSON, _ := cmd.Flags().GetBool("json")

			a, err := newApp()
			if err != nil {
				return err
			}

			meds := a.catalog.List()
			p := pagination.New(limit, offset)
			page := pagination.Page(meds, p)
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), pagination.NewResponse(page, len(meds), p.Limit, p.Offset))
			}
			printCatalog(cmd.OutOrStdout(), page, a.svc)
			if p.HasPrevious() {
				fmt.Fprintf(cmd.OutOrStdout(), "\nprevious page: --offset %d\n", p.PreviousOffset())
			}
			if p.HasNext(len(meds)) {
				fmt.Fprintf(cmd.OutOrStdout(), "\n%d more, use --offset %d\n", len(meds)-p.NextOffset(), p.NextOffset())
			}
			return nil
		},
	}
	listCmd.Flags().Int("limit", pagination.DefaultLimit, "Maximum medications to list")
	listCmd.Flags().Int("offset", 0, "Medications to skip")

	cmd.AddCommand(listCmd)
	return cmd
}

func vialsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vials",
		Short: "Resolve the vials needed for a dose",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("med")
			weight, _ := cmd.Flags().GetFloat64("weight")
			dose, err := doseFromFlags(cmd)
			if err != nil {
				return err
			}
			asJSON, _ := cmd.Flags().GetBool("json")

			a, err := newApp()
			if err != nil {
				return err
			}
			med, err := a.catalog.Lookup(name)
			if err != nil {
				return err
			}
			if dose.Value == 0 {
				dose = med.StandardDose
			}
			total, err := infusion.TotalDose(dose, weight)
			if err != nil {
				return err
			}
			combos, err := infusion.ResolveVials(total, infusion.BasisMass, med.VialSizes, med.DosageForm)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), combos)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s total\n\n", med.Name, formatDose(total, dose.Unit))
			printVialOptions(cmd.OutOrStdout(), combos)
			return nil
		},
	}
	addOrderFlags(cmd)
	return cmd
}

func prepareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prepare",
		Short: "Calculate vials, bag removal and the pump schedule for an order",
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")

			a, err := newApp()
			if err != nil {
				return err
			}
			order, err := a.orderFromFlags(cmd)
			if err != nil {
				return err
			}
			prep, err := a.svc.Prepare(order)
			if err != nil {
				a.log.Error().Err(err).Msg("preparation failed")
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), prep)
			}
			printPreparation(cmd.OutOrStdout(), prep)
			return nil
		},
	}
	addOrderFlags(cmd)
	cmd.Flags().Float64("bag", 250, fmt.Sprintf("Diluent bag size (mL), one of %v", infusion.BagSizes()))
	cmd.Flags().Float64("prime", 0, "Line prime volume (mL), default from DEFAULT_PRIME_ML")
	cmd.Flags().Float64("flush", 0, "Flush volume (mL), default from DEFAULT_FLUSH_ML")
	cmd.Flags().Float64("time", 0, "Target total infusion time (min), single-rate mode")
	cmd.Flags().Bool("protocol", false, "Use the medication's step protocol")
	return cmd
}

func validateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate an edited pump schedule",
		Long:  "Reads a JSON array of steps (or an object with a \"steps\" array), refreshes derived fields and checks every step and the totals.",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("file")
			volume, _ := cmd.Flags().GetFloat64("volume")
			minutes, _ := cmd.Flags().GetFloat64("time")
			asJSON, _ := cmd.Flags().GetBool("json")
			if path == "" {
				return fmt.Errorf("--file is required")
			}
			if volume <= 0 {
				return fmt.Errorf("--volume is required")
			}

			a, err := newApp()
			if err != nil {
				return err
			}
			steps, err := readSteps(path)
			if err != nil {
				return err
			}

			recalculated, report := a.svc.Validate(steps, infusion.ValidationTarget{VolumeML: volume, DurationMin: minutes})
			if asJSON {
				if err := writeJSON(cmd.OutOrStdout(), map[string]interface{}{
					"steps":      recalculated,
					"validation": report,
				}); err != nil {
					return err
				}
			} else {
				printSteps(cmd.OutOrStdout(), recalculated)
				fmt.Fprintln(cmd.OutOrStdout())
				printReport(cmd.OutOrStdout(), report)
			}
			if !report.Valid {
				return fmt.Errorf("schedule is invalid")
			}
			return nil
		},
	}
	cmd.Flags().String("file", "", "Path to the schedule JSON file")
	cmd.Flags().Float64("volume", 0, "Total infusion volume the steps must add up to (mL, prime excluded)")
	cmd.Flags().Float64("time", 0, "Total infusion time the steps must add up to (min), 0 to skip")
	return cmd
}

func batchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Prepare every order in a YAML orders file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("file")
			asJSON, _ := cmd.Flags().GetBool("json")
			if path == "" {
				return fmt.Errorf("--file is required")
			}

			a, err := newApp()
			if err != nil {
				return err
			}
			orders, err := a.readOrders(path)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a.log.Info().Int("orders", len(orders)).Int("concurrency", a.cfg.BatchConcurrency).Msg("batch started")
			results, err := a.svc.PrepareBatch(ctx, orders, a.cfg.BatchConcurrency)
			if err != nil {
				return fmt.Errorf("batch aborted: %w", err)
			}

			failed := 0
			for _, r := range results {
				if r.Err != nil {
					failed++
				}
			}
			a.log.Info().Int("orders", len(results)).Int("failed", failed).Msg("batch finished")

			if asJSON {
				if err := writeJSON(cmd.OutOrStdout(), results); err != nil {
					return err
				}
			} else {
				printBatch(cmd.OutOrStdout(), results)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d orders failed", failed, len(results))
			}
			return nil
		},
	}
	cmd.Flags().String("file", "", "Path to the YAML orders file")
	return cmd
}

func addOrderFlags(cmd *cobra.Command) {
	cmd.Flags().String("med", "", "Medication name")
	cmd.Flags().Float64("weight", 0, "Patient weight (kg)")
	cmd.Flags().Float64("dose", 0, "Dose value, default the medication's standard dose")
	cmd.Flags().String("dose-unit", "mg", "Dose unit: mg, mg/kg, units, units/kg")
	_ = cmd.MarkFlagRequired("med")
}

func doseFromFlags(cmd *cobra.Command) (infusion.Dose, error) {
	value, _ := cmd.Flags().GetFloat64("dose")
	unit, _ := cmd.Flags().GetString("dose-unit")
	if value < 0 {
		return infusion.Dose{}, fmt.Errorf("--dose must not be negative")
	}
	return infusion.Dose{Value: value, Unit: infusion.DoseUnit(unit)}, nil
}

func (a *app) orderFromFlags(cmd *cobra.Command) (infusion.Order, error) {
	name, _ := cmd.Flags().GetString("med")
	med, err := a.catalog.Lookup(name)
	if err != nil {
		return infusion.Order{}, err
	}
	dose, err := doseFromFlags(cmd)
	if err != nil {
		return infusion.Order{}, err
	}

	o := infusion.Order{
		ID:            uuid.NewString(),
		Medication:    med,
		Dose:          dose,
		PrimeVolumeML: a.cfg.DefaultPrimeML,
		FlushVolumeML: a.cfg.DefaultFlushML,
	}
	o.WeightKg, _ = cmd.Flags().GetFloat64("weight")
	o.BagSizeML, _ = cmd.Flags().GetFloat64("bag")
	o.TotalTimeMin, _ = cmd.Flags().GetFloat64("time")
	o.UseProtocol, _ = cmd.Flags().GetBool("protocol")
	if cmd.Flags().Changed("prime") {
		o.PrimeVolumeML, _ = cmd.Flags().GetFloat64("prime")
	}
	if cmd.Flags().Changed("flush") {
		o.FlushVolumeML, _ = cmd.Flags().GetFloat64("flush")
	}
	if !o.UseProtocol && o.TotalTimeMin <= 0 {
		return infusion.Order{}, fmt.Errorf("--time is required unless --protocol is set")
	}
	return o, nil
}

// batchOrder is one entry of a YAML orders file.
type batchOrder struct {
	infusion.Order `yaml:",inline"`
	Medication     string `yaml:"medication"`
}

func (a *app) readOrders(path string) ([]infusion.Order, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read orders: %w", err)
	}
	var raw []batchOrder
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode orders: %w", err)
	}

	orders := make([]infusion.Order, 0, len(raw))
	for i, r := range raw {
		med, err := a.catalog.Lookup(r.Medication)
		if err != nil {
			return nil, fmt.Errorf("order %d: %w", i+1, err)
		}
		o := r.Order
		o.Medication = med
		if o.ID == "" {
			o.ID = uuid.NewString()
		}
		if o.FlushVolumeML == 0 {
			o.FlushVolumeML = a.cfg.DefaultFlushML
		}
		if o.PrimeVolumeML == 0 {
			o.PrimeVolumeML = a.cfg.DefaultPrimeML
		}
		orders = append(orders, o)
	}
	return orders, nil
}

func readSteps(path string) ([]infusion.InfusionStep, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schedule: %w", err)
	}
	return decodeSteps(data)
}

// decodeSteps accepts either a bare array of steps or {"steps": [...]}.
func decodeSteps(data []byte) ([]infusion.InfusionStep, error) {
	var steps []infusion.InfusionStep
	if err := json.Unmarshal(data, &steps); err == nil {
		return steps, nil
	}
	var wrapped struct {
		Steps []infusion.InfusionStep `json:"steps"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("decode schedule: %w", err)
	}
	return wrapped.Steps, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
