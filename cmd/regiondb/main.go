// Command regiondb inspects and maintains the province/city/county store used
// by the weather lookup.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/banshee-data/coolweather/internal/config"
	"github.com/banshee-data/coolweather/internal/db"
	"github.com/banshee-data/coolweather/internal/fsutil"
	"github.com/banshee-data/coolweather/internal/version"
)

// errUsage marks a malformed command line; main exits 2 for it.
var errUsage = errors.New("usage error")

func main() {
	err := run(os.Args[1:], os.Stdin, os.Stdout)
	switch {
	case err == nil:
	case errors.Is(err, flag.ErrHelp):
	case errors.Is(err, errUsage), errors.Is(err, db.ErrUsage):
		log.Print(err)
		os.Exit(2)
	default:
		log.Print(err)
		os.Exit(1)
	}
}

// options are the global flags.
type options struct {
	dbPath     string
	dataDir    string
	configPath string
	jsonOut    bool
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("regiondb", flag.ContinueOnError)
	fs.SetOutput(stdout)
	var opts options
	fs.StringVar(&opts.dbPath, "db", "", "Path to the region database file (overrides -data-dir)")
	fs.StringVar(&opts.dataDir, "data-dir", "", "Directory holding "+db.DBFileName)
	fs.StringVar(&opts.configPath, "config", "", "Optional JSON config file")
	fs.BoolVar(&opts.jsonOut, "json", false, "Print listings as JSON")
	fs.Usage = func() { printUsage(stdout) }

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		printUsage(stdout)
		return errUsage
	}
	cmd, rest := fs.Arg(0), fs.Args()[1:]

	if cmd == "version" {
		fmt.Fprintln(stdout, version.String())
		return nil
	}

	cfg, err := config.Load(fsutil.OSFileSystem{}, opts.configPath)
	if err != nil {
		return err
	}
	if opts.dbPath != "" {
		cfg.DBPath = &opts.dbPath
	}
	if opts.dataDir != "" {
		cfg.DataDir = &opts.dataDir
		if opts.dbPath == "" {
			cfg.DBPath = nil
		}
	}
	dbOpts := db.Options{BusyTimeout: cfg.GetBusyTimeout()}

	if cmd == "migrate" {
		path, err := storePath(cfg)
		if err != nil {
			return err
		}
		database, err := db.OpenDB(path, dbOpts)
		if err != nil {
			return err
		}
		defer database.Close()
		return db.RunMigrateCommand(database, rest, stdin, stdout)
	}

	database, err := openStore(cfg, dbOpts)
	if err != nil {
		return fmt.Errorf("failed to open region database: %w", err)
	}
	defer database.Close()

	switch cmd {
	case "provinces":
		return printProvinces(stdout, opts.jsonOut, database.LoadProvinces())

	case "cities":
		provinceID, err := intArgs(rest, 1, "cities <provinceID>")
		if err != nil {
			return err
		}
		return printCities(stdout, opts.jsonOut, database.LoadCities(provinceID[0]))

	case "counties":
		cityID, err := intArgs(rest, 1, "counties <cityID>")
		if err != nil {
			return err
		}
		return printCounties(stdout, opts.jsonOut, database.LoadCounties(cityID[0]))

	case "add-province":
		if len(rest) != 2 {
			return fmt.Errorf("%w: regiondb add-province <name> <code>", errUsage)
		}
		p := &db.Province{Name: rest[0], Code: rest[1]}
		if err := database.SaveProvince(p); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "saved province %d\n", p.ID)
		return nil

	case "add-city":
		if len(rest) != 3 {
			return fmt.Errorf("%w: regiondb add-city <provinceID> <name> <code>", errUsage)
		}
		ids, err := intArgs(rest[:1], 1, "add-city <provinceID> <name> <code>")
		if err != nil {
			return err
		}
		c := &db.City{Name: rest[1], Code: rest[2], ProvinceID: ids[0]}
		if err := database.SaveCity(c); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "saved city %d\n", c.ID)
		return nil

	case "add-county":
		if len(rest) != 3 {
			return fmt.Errorf("%w: regiondb add-county <cityID> <name> <code>", errUsage)
		}
		ids, err := intArgs(rest[:1], 1, "add-county <cityID> <name> <code>")
		if err != nil {
			return err
		}
		c := &db.County{Name: rest[1], Code: rest[2], CityID: ids[0]}
		if err := database.SaveCounty(c); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "saved county %d\n", c.ID)
		return nil

	case "serve":
		serveFlags := flag.NewFlagSet("serve", flag.ContinueOnError)
		serveFlags.SetOutput(stdout)
		listen := serveFlags.String("listen", cfg.GetAdminListen(), "Admin listen address")
		if err := serveFlags.Parse(rest); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, database, *listen)

	default:
		printUsage(stdout)
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

// storePath returns the explicit database path when one is configured,
// otherwise the fixed file inside the data directory, which is created if
// missing.
func storePath(cfg *config.StoreConfig) (string, error) {
	if cfg.DBPath != nil && *cfg.DBPath != "" {
		return *cfg.DBPath, nil
	}
	return db.PrepareDataDir(fsutil.OSFileSystem{}, cfg.GetDataDir())
}

func openStore(cfg *config.StoreConfig, opts db.Options) (*db.DB, error) {
	path, err := storePath(cfg)
	if err != nil {
		return nil, err
	}
	return db.OpenWithOptions(path, opts)
}

func intArgs(args []string, n int, usage string) ([]int, error) {
	if len(args) != n {
		return nil, fmt.Errorf("%w: regiondb %s", errUsage, usage)
	}
	out := make([]int, n)
	for i, a := range args {
		v, err := strconv.Atoi(a)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not an id", errUsage, a)
		}
		out[i] = v
	}
	return out, nil
}

// newAdminServer builds the HTTP server exposing the store's debug routes.
func newAdminServer(database *db.DB, listen string) (*http.Server, error) {
	mux := http.NewServeMux()
	if err := database.AttachAdminRoutes(mux); err != nil {
		return nil, err
	}

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("got request %q", r.URL.Path)
		mux.ServeHTTP(w, r)
	})

	return &http.Server{
		Addr:              listen,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}, nil
}

func serve(ctx context.Context, database *db.DB, listen string) error {
	server, err := newAdminServer(database, listen)
	if err != nil {
		return err
	}

	errc := make(chan error, 1)
	go func() {
		log.Printf("admin routes listening on %s", listen)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down admin server: %w", err)
	}
	log.Print("admin server terminated")
	return nil
}

// listingError reports a truncated listing after its rows were printed.
func listingError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("listing incomplete: %w", err)
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printProvinces(out io.Writer, asJSON bool, res db.LoadResult[db.Province]) error {
	if asJSON {
		if err := printJSON(out, res.Items); err != nil {
			return err
		}
		return listingError(res.Err)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCODE")
	for _, p := range res.Items {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", p.ID, p.Name, p.Code)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	return listingError(res.Err)
}

func printCities(out io.Writer, asJSON bool, res db.LoadResult[db.City]) error {
	if asJSON {
		if err := printJSON(out, res.Items); err != nil {
			return err
		}
		return listingError(res.Err)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCODE\tPROVINCE")
	for _, c := range res.Items {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\n", c.ID, c.Name, c.Code, c.ProvinceID)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	return listingError(res.Err)
}

func printCounties(out io.Writer, asJSON bool, res db.LoadResult[db.County]) error {
	if asJSON {
		if err := printJSON(out, res.Items); err != nil {
			return err
		}
		return listingError(res.Err)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCODE\tCITY")
	for _, c := range res.Items {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\n", c.ID, c.Name, c.Code, c.CityID)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	return listingError(res.Err)
}

func printUsage(out io.Writer) {
	fmt.Fprint(out, `Usage: regiondb [-db path | -data-dir dir] [-config file.json] [-json] <command> [args]

Commands:
  provinces                           List all provinces
  cities <provinceID>                 List the cities of a province
  counties <cityID>                   List the counties of a city
  add-province <name> <code>          Save a province
  add-city <provinceID> <name> <code> Save a city
  add-county <cityID> <name> <code>   Save a county
  migrate <action>                    Schema migrations (see 'migrate help')
  serve [-listen addr]                Serve admin debug routes (tailsql, backup)
  version                             Print build information
`)
}
