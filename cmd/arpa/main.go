package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"arpa-go/internal/app"
	"arpa-go/internal/config"
	"arpa-go/internal/database"
)

// errNoOp marks a command that finished without doing new work, e.g. a
// toast whose inputs were already cooked. Mapped to exit code 3 so
// batch scripts can tell "already done" from success and failure.
var errNoOp = errors.New("nothing to do")

func main() {
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true

	err := rootCmd.Execute()
	if err == nil {
		return
	}
	if errors.Is(err, errNoOp) {
		os.Exit(3)
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// newApp reads the config and creates an ArpaApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "Toast", "AddPar").
func newApp(cmd *cobra.Command, operation string) (*app.ArpaApp, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewArpaApp(cmd.Context(), cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

var rootCmd = &cobra.Command{
	Use:   "arpa",
	Short: "Pulsar observation archive and TOA pipeline",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:  %s\n", cfg.LogDir)
		fmt.Printf("Database: %s (%s)\n", cfg.Database.Type, cfg.Database.DataDir)
		fmt.Printf("Archive:  %s\n", cfg.Archive.Type)
		fmt.Printf("Operator: %s\n", cfg.Behaviour.Operator)
		return nil
	},
}

var configMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}
		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		db, err := database.NewDatabaseFromConfig(cfg.Database)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer db.Close()

		migrator, ok := db.(interface{ MigrateUp() error })
		if !ok {
			return fmt.Errorf("database type %s does not support migrations", cfg.Database.Type)
		}
		if err := migrator.MigrateUp(); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}

		fmt.Println("Database schema is up to date.")
		return nil
	},
}

// telescope command
var telescopeCmd = &cobra.Command{
	Use:   "telescope",
	Short: "Manage telescopes",
}

var telescopeAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Register a telescope",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		abbreviation, _ := cmd.Flags().GetString("abbreviation")
		code, _ := cmd.Flags().GetString("code")
		x, _ := cmd.Flags().GetFloat64("x")
		y, _ := cmd.Flags().GetFloat64("y")
		z, _ := cmd.Flags().GetFloat64("z")

		a, err := newApp(cmd, "AddTelescope")
		if err != nil {
			return err
		}
		defer a.Close()

		id, err := a.AddTelescope(cmd.Context(), args[0], abbreviation, code, x, y, z)
		if err != nil {
			return err
		}
		fmt.Printf("Telescope %s registered (id %d)\n", args[0], id)
		return nil
	},
}

var telescopeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List telescopes",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "ListTelescopes")
		if err != nil {
			return err
		}
		defer a.Close()

		telescopes, err := a.ListTelescopes(cmd.Context())
		if err != nil {
			return err
		}
		if len(telescopes) == 0 {
			fmt.Println("No telescopes registered.")
			return nil
		}
		for _, t := range telescopes {
			fmt.Printf("%-4d %-20s %-8s %s\n", t.ID, t.Name, t.Abbreviation, t.Code)
		}
		return nil
	},
}

var telescopeRmCmd = &cobra.Command{
	Use:   "rm NAME",
	Short: "Remove an unreferenced telescope",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "DeleteTelescope")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.DeleteTelescope(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Telescope %s removed\n", args[0])
		return nil
	},
}

// obssystem command
var obsSystemCmd = &cobra.Command{
	Use:   "obssystem",
	Short: "Manage observing systems",
}

var obsSystemAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Register a frontend/backend combination at a telescope",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		telescopeName, _ := cmd.Flags().GetString("telescope")
		frontend, _ := cmd.Flags().GetString("frontend")
		backend, _ := cmd.Flags().GetString("backend")
		clockName, _ := cmd.Flags().GetString("clock")
		code, _ := cmd.Flags().GetString("code")

		a, err := newApp(cmd, "AddObsSystem")
		if err != nil {
			return err
		}
		defer a.Close()

		id, err := a.AddObsSystem(cmd.Context(), args[0], telescopeName, frontend, backend, clockName, code)
		if err != nil {
			return err
		}
		fmt.Printf("Observing system %s registered (id %d)\n", args[0], id)
		return nil
	},
}

var obsSystemRmCmd = &cobra.Command{
	Use:   "rm OBS_ID",
	Short: "Remove an unreferenced observing system",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var obsID int64
		if _, err := fmt.Sscanf(args[0], "%d", &obsID); err != nil {
			return fmt.Errorf("invalid observing system id %q", args[0])
		}

		a, err := newApp(cmd, "DeleteObsSystem")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.DeleteObsSystem(cmd.Context(), obsID); err != nil {
			return err
		}
		fmt.Printf("Observing system %d removed\n", obsID)
		return nil
	},
}

// psr command
var psrCmd = &cobra.Command{
	Use:   "psr",
	Short: "Manage pulsars",
}

var psrAddCmd = &cobra.Command{
	Use:   "add ALIAS",
	Short: "Register a pulsar",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jName, _ := cmd.Flags().GetString("jname")
		bName, _ := cmd.Flags().GetString("bname")
		ra, _ := cmd.Flags().GetString("ra")
		dec, _ := cmd.Flags().GetString("dec")

		a, err := newApp(cmd, "AddPulsar")
		if err != nil {
			return err
		}
		defer a.Close()

		id, err := a.AddPulsar(cmd.Context(), args[0], jName, bName, ra, dec)
		if err != nil {
			return err
		}
		fmt.Printf("Pulsar %s registered (id %d)\n", args[0], id)
		return nil
	},
}

var psrListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pulsars",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "ListPulsars")
		if err != nil {
			return err
		}
		defer a.Close()

		pulsars, err := a.ListPulsars(cmd.Context())
		if err != nil {
			return err
		}
		if len(pulsars) == 0 {
			fmt.Println("No pulsars registered.")
			return nil
		}
		for _, p := range pulsars {
			jName := ""
			if p.JName != nil {
				jName = *p.JName
			}
			master := "-"
			if p.MasterEphemerisID != nil {
				master = fmt.Sprintf("par:%d", *p.MasterEphemerisID)
			}
			fmt.Printf("%-4d %-12s %-12s %s\n", p.ID, p.Alias, jName, master)
		}
		return nil
	},
}

var psrRmCmd = &cobra.Command{
	Use:   "rm ALIAS",
	Short: "Remove a pulsar with no recorded files or runs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "DeletePulsar")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.DeletePulsar(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Pulsar %s removed\n", args[0])
		return nil
	},
}

// par command
var parCmd = &cobra.Command{
	Use:   "par",
	Short: "Manage ephemeris (par) files",
}

var parAddCmd = &cobra.Command{
	Use:   "add PULSAR FILE",
	Short: "Register a par file version",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		master, _ := cmd.Flags().GetBool("master")

		a, err := newApp(cmd, "AddPar")
		if err != nil {
			return err
		}
		defer a.Close()

		path, err := filepath.Abs(args[1])
		if err != nil {
			return fmt.Errorf("resolving path: %w", err)
		}

		id, err := a.AddPar(cmd.Context(), args[0], path, master)
		if err != nil {
			return err
		}
		fmt.Printf("Par registered for %s (id %d)\n", args[0], id)
		return nil
	},
}

var parHistoryCmd = &cobra.Command{
	Use:   "history PULSAR",
	Short: "List par versions for a pulsar",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "ParHistory")
		if err != nil {
			return err
		}
		defer a.Close()

		history, masterID, err := a.ParHistory(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if len(history) == 0 {
			fmt.Println("No par files registered.")
			return nil
		}
		for _, e := range history {
			marker := ""
			if masterID != nil && *masterID == e.ID {
				marker = "  [master]"
			}
			fmt.Printf("%-4d %s  %s%s\n",
				e.ID, e.CreatedAt.Format("2006-01-02 15:04:05"), e.Checksum[:12], marker)
		}
		return nil
	},
}

var parSetMasterCmd = &cobra.Command{
	Use:   "set-master PULSAR PAR_ID",
	Short: "Designate an existing par version as the master",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var parID int64
		if _, err := fmt.Sscanf(args[1], "%d", &parID); err != nil {
			return fmt.Errorf("invalid par id %q", args[1])
		}

		a, err := newApp(cmd, "SetMasterPar")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.SetMasterPar(cmd.Context(), args[0], parID); err != nil {
			return err
		}
		fmt.Printf("Master par for %s set to %d\n", args[0], parID)
		return nil
	},
}

var parRmCmd = &cobra.Command{
	Use:   "rm PAR_ID",
	Short: "Remove an unreferenced par version",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var parID int64
		if _, err := fmt.Sscanf(args[0], "%d", &parID); err != nil {
			return fmt.Errorf("invalid par id %q", args[0])
		}

		a, err := newApp(cmd, "DeletePar")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.DeletePar(cmd.Context(), parID); err != nil {
			return err
		}
		fmt.Printf("Par %d removed\n", parID)
		return nil
	},
}

// template command
var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Manage profile templates",
}

var templateAddCmd = &cobra.Command{
	Use:   "add PULSAR FILE",
	Short: "Register a profile template",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "AddTemplate")
		if err != nil {
			return err
		}
		defer a.Close()

		path, err := filepath.Abs(args[1])
		if err != nil {
			return fmt.Errorf("resolving path: %w", err)
		}

		id, err := a.AddTemplate(cmd.Context(), args[0], path)
		if err != nil {
			return err
		}
		fmt.Printf("Template registered for %s (id %d)\n", args[0], id)
		return nil
	},
}

var templateRmCmd = &cobra.Command{
	Use:   "rm TEMPLATE_ID",
	Short: "Remove an unreferenced template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var templateID int64
		if _, err := fmt.Sscanf(args[0], "%d", &templateID); err != nil {
			return fmt.Errorf("invalid template id %q", args[0])
		}

		a, err := newApp(cmd, "DeleteTemplate")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.DeleteTemplate(cmd.Context(), templateID); err != nil {
			return err
		}
		fmt.Printf("Template %d removed\n", templateID)
		return nil
	},
}

// raw command
var rawCmd = &cobra.Command{
	Use:   "raw",
	Short: "Manage ingested raw files",
}

var rawRmCmd = &cobra.Command{
	Use:   "rm RAW_ID",
	Short: "Remove a raw file no run references (archived bytes are kept)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var rawID int64
		if _, err := fmt.Sscanf(args[0], "%d", &rawID); err != nil {
			return fmt.Errorf("invalid raw id %q", args[0])
		}

		a, err := newApp(cmd, "DeleteRawFile")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.DeleteRawFile(cmd.Context(), rawID); err != nil {
			return err
		}
		fmt.Printf("Raw file %d removed\n", rawID)
		return nil
	},
}

// user command
var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage operator accounts",
}

var userAddCmd = &cobra.Command{
	Use:   "add USERNAME",
	Short: "Register an operator account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		realName, _ := cmd.Flags().GetString("name")
		email, _ := cmd.Flags().GetString("email")
		admin, _ := cmd.Flags().GetBool("admin")

		password, err := promptPassword()
		if err != nil {
			return err
		}

		a, err := newApp(cmd, "AddUser")
		if err != nil {
			return err
		}
		defer a.Close()

		id, err := a.AddUser(cmd.Context(), args[0], realName, email, admin, password)
		if err != nil {
			return err
		}
		fmt.Printf("User %s registered (id %d)\n", args[0], id)
		return nil
	},
}

// promptPassword reads the password twice from the terminal without echo.
func promptPassword() (string, error) {
	fmt.Fprint(os.Stderr, "Password: ")
	first, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}

	fmt.Fprint(os.Stderr, "Repeat password: ")
	second, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}

	if string(first) != string(second) {
		return "", fmt.Errorf("passwords do not match")
	}
	if len(first) == 0 {
		return "", fmt.Errorf("password must not be empty")
	}
	return string(first), nil
}

// toast command
var toastCmd = &cobra.Command{
	Use:   "toast [FILE]",
	Short: "Ingest an observation and extract TOAs",
	Long: "Runs the full pipeline for one observation: ingest the raw file\n" +
		"(deduplicated by content), resolve the ephemeris, fit TOAs against\n" +
		"the template, and record the run. If an identical run is already\n" +
		"recorded the pipeline short-circuits and exits with code 3.",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var toastArgs app.ToastArgs
		toastArgs.RawID, _ = cmd.Flags().GetInt64("raw-id")
		toastArgs.PulsarName, _ = cmd.Flags().GetString("psr")
		toastArgs.ObsSystemID, _ = cmd.Flags().GetInt64("obs-system")
		toastArgs.TemplateID, _ = cmd.Flags().GetInt64("template-id")
		toastArgs.TemplatePath, _ = cmd.Flags().GetString("template")
		toastArgs.EphemerisID, _ = cmd.Flags().GetInt64("par-id")
		toastArgs.EphemerisPath, _ = cmd.Flags().GetString("par")
		toastArgs.Method, _ = cmd.Flags().GetString("method")
		toastArgs.NChannels, _ = cmd.Flags().GetInt("nchn")
		toastArgs.NSubints, _ = cmd.Flags().GetInt("nsub")
		toastArgs.Force, _ = cmd.Flags().GetBool("force")

		if len(args) > 0 {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolving path: %w", err)
			}
			toastArgs.Path = path
		}
		if toastArgs.Path == "" && toastArgs.RawID == 0 {
			return fmt.Errorf("pass a raw file path or --raw-id")
		}

		a, err := newApp(cmd, "Toast")
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.Toast(cmd.Context(), toastArgs)
		if err != nil {
			return err
		}

		if result.Deduplicated {
			fmt.Printf("Already cooked: process %d covers these inputs\n", result.ProcessID)
			return errNoOp
		}

		fmt.Printf("Cooked: process %d, %d TOA(s), rms %.3f us\n",
			result.ProcessID, len(result.TOAIDs), result.Residuals.RMS)
		return nil
	},
}

// toas command
var toasCmd = &cobra.Command{
	Use:   "toas PULSAR",
	Short: "Export TOAs as a tempo2 tim file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		var from, to *float64
		if cmd.Flags().Changed("from") {
			v, _ := cmd.Flags().GetFloat64("from")
			from = &v
		}
		if cmd.Flags().Changed("to") {
			v, _ := cmd.Flags().GetFloat64("to")
			to = &v
		}

		a, err := newApp(cmd, "Toas")
		if err != nil {
			return err
		}
		defer a.Close()

		w := os.Stdout
		if output != "" && output != "-" {
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			defer f.Close()
			w = f
		}

		count, err := a.WriteTim(cmd.Context(), w, args[0], from, to)
		if err != nil {
			return err
		}

		if output != "" && output != "-" {
			fmt.Printf("Wrote %d TOA(s) to %s\n", count, output)
		}
		return nil
	},
}

// process command
var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Inspect recorded pipeline runs",
}

var processListCmd = &cobra.Command{
	Use:   "list RAW_ID",
	Short: "List runs recorded for a raw file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var rawID int64
		if _, err := fmt.Sscanf(args[0], "%d", &rawID); err != nil {
			return fmt.Errorf("invalid raw id %q", args[0])
		}

		a, err := newApp(cmd, "ProcessesForRawFile")
		if err != nil {
			return err
		}
		defer a.Close()

		processes, err := a.ProcessesForRawFile(cmd.Context(), rawID)
		if err != nil {
			return err
		}
		if len(processes) == 0 {
			fmt.Println("No runs recorded.")
			return nil
		}
		for _, p := range processes {
			par := "master"
			if p.EphemerisID != nil {
				par = fmt.Sprintf("par:%d", *p.EphemerisID)
			}
			fmt.Printf("%-4d %s  %-6s %-8s nchn=%d nsub=%d\n",
				p.ID, p.CreatedAt.Format("2006-01-02 15:04:05"),
				strings.ToUpper(p.Method), par, p.NChannels, p.NSubints)
		}
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configMigrateCmd)

	// telescope subcommands
	telescopeCmd.AddCommand(telescopeAddCmd)
	telescopeCmd.AddCommand(telescopeListCmd)
	telescopeCmd.AddCommand(telescopeRmCmd)
	telescopeAddCmd.Flags().String("abbreviation", "", "Short name, e.g. pks")
	telescopeAddCmd.Flags().String("code", "", "Site code used in TOA lines")
	telescopeAddCmd.Flags().Float64("x", 0, "ITRF X coordinate in meters")
	telescopeAddCmd.Flags().Float64("y", 0, "ITRF Y coordinate in meters")
	telescopeAddCmd.Flags().Float64("z", 0, "ITRF Z coordinate in meters")

	// obssystem subcommands
	obsSystemCmd.AddCommand(obsSystemAddCmd)
	obsSystemCmd.AddCommand(obsSystemRmCmd)
	obsSystemAddCmd.Flags().String("telescope", "", "Telescope name or abbreviation")
	obsSystemAddCmd.Flags().String("frontend", "", "Receiver name")
	obsSystemAddCmd.Flags().String("backend", "", "Backend instrument name")
	obsSystemAddCmd.Flags().String("clock", "", "Clock file identifier")
	obsSystemAddCmd.Flags().String("code", "", "Short code")

	// psr subcommands
	psrCmd.AddCommand(psrAddCmd)
	psrCmd.AddCommand(psrListCmd)
	psrCmd.AddCommand(psrRmCmd)
	psrAddCmd.Flags().String("jname", "", "J2000 catalog name")
	psrAddCmd.Flags().String("bname", "", "B1950 catalog name")
	psrAddCmd.Flags().String("ra", "", "Right ascension, HH:MM:SS.F")
	psrAddCmd.Flags().String("dec", "", "Declination, +DD:MM:SS.F")

	// par subcommands
	parCmd.AddCommand(parAddCmd)
	parCmd.AddCommand(parHistoryCmd)
	parCmd.AddCommand(parSetMasterCmd)
	parCmd.AddCommand(parRmCmd)
	parAddCmd.Flags().Bool("master", false, "Designate this version as the master")

	// template subcommands
	templateCmd.AddCommand(templateAddCmd)
	templateCmd.AddCommand(templateRmCmd)

	// raw subcommands
	rawCmd.AddCommand(rawRmCmd)

	// user subcommands
	userCmd.AddCommand(userAddCmd)
	userAddCmd.Flags().String("name", "", "Real name")
	userAddCmd.Flags().String("email", "", "Email address")
	userAddCmd.Flags().Bool("admin", false, "Grant admin rights")

	// toast flags
	toastCmd.Flags().Int64("raw-id", 0, "Cook an already-ingested raw file")
	toastCmd.Flags().String("psr", "", "Source pulsar alias or J name")
	toastCmd.Flags().Int64("obs-system", 0, "Observing system id (required when ingesting)")
	toastCmd.Flags().Int64("template-id", 0, "Registered template id")
	toastCmd.Flags().String("template", "", "Template file to register and use")
	toastCmd.Flags().Int64("par-id", 0, "Explicit par version (default: master)")
	toastCmd.Flags().String("par", "", "Par file to register and use")
	toastCmd.Flags().String("method", "", "Fit method, e.g. FDM")
	toastCmd.Flags().Int("nchn", 0, "Frequency channels to scrunch to")
	toastCmd.Flags().Int("nsub", 0, "Subintegrations to scrunch to")
	toastCmd.Flags().Bool("force", false, "Rerun even if an identical run is recorded")

	// toas flags
	toasCmd.Flags().Float64("from", 0, "Lower MJD bound")
	toasCmd.Flags().Float64("to", 0, "Upper MJD bound")
	toasCmd.Flags().StringP("output", "o", "", "Write to a file instead of stdout")

	// process subcommands
	processCmd.AddCommand(processListCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(telescopeCmd)
	rootCmd.AddCommand(obsSystemCmd)
	rootCmd.AddCommand(psrCmd)
	rootCmd.AddCommand(parCmd)
	rootCmd.AddCommand(templateCmd)
	rootCmd.AddCommand(rawCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(toastCmd)
	rootCmd.AddCommand(toasCmd)
	rootCmd.AddCommand(processCmd)
}
