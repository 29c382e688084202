package db

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrUsage is returned for a malformed migrate command line.
var ErrUsage = errors.New("invalid migrate usage")

// RunMigrateCommand handles the 'migrate' subcommand dispatching. Prompts are
// read from in; status output goes to out.
func RunMigrateCommand(database *DB, args []string, in io.Reader, out io.Writer) error {
	if len(args) < 1 {
		PrintMigrateHelp(out)
		return ErrUsage
	}

	migrationsFS := MigrationsFS()

	switch action := args[0]; action {
	case "up":
		if err := database.MigrateUp(migrationsFS); err != nil {
			return err
		}
		fmt.Fprintln(out, "✓ All migrations applied successfully")
		return printVersion(database, out)

	case "down":
		if err := database.MigrateDown(migrationsFS); err != nil {
			return err
		}
		fmt.Fprintln(out, "✓ Migration rolled back successfully")
		return printVersion(database, out)

	case "status":
		return printMigrateStatus(database, out)

	case "version":
		if len(args) < 2 {
			return fmt.Errorf("%w: regiondb migrate version <version_number>", ErrUsage)
		}
		target, err := strconv.ParseUint(args[1], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid version number: %s", args[1])
		}
		if err := database.MigrateTo(migrationsFS, uint(target)); err != nil {
			return err
		}
		fmt.Fprintf(out, "✓ Migrated to version %d successfully\n", target)
		return nil

	case "force":
		if len(args) < 2 {
			return fmt.Errorf("%w: regiondb migrate force <version_number>", ErrUsage)
		}
		forceVersion, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid version number: %s", args[1])
		}
		fmt.Fprintf(out, "⚠️  WARNING: Forcing migration version to %d\n", forceVersion)
		fmt.Fprintln(out, "This should only be used to recover from a dirty migration state.")
		if !confirm(in, out) {
			fmt.Fprintln(out, "Aborted")
			return nil
		}
		if err := database.MigrateForce(migrationsFS, forceVersion); err != nil {
			return err
		}
		fmt.Fprintf(out, "✓ Migration version forced to %d\n", forceVersion)
		return nil

	case "reset":
		fmt.Fprintln(out, "⚠️  WARNING: This drops the province, city and county tables and all their rows.")
		if !confirm(in, out) {
			fmt.Fprintln(out, "Aborted")
			return nil
		}
		if err := database.Reset(); err != nil {
			return err
		}
		fmt.Fprintln(out, "✓ Region tables recreated")
		return printVersion(database, out)

	case "help":
		PrintMigrateHelp(out)
		return nil

	default:
		fmt.Fprintf(out, "Unknown migrate action: %s\n\n", action)
		PrintMigrateHelp(out)
		return ErrUsage
	}
}

func confirm(in io.Reader, out io.Writer) bool {
	fmt.Fprint(out, "Continue? [y/N]: ")
	line, _ := bufio.NewReader(in).ReadString('\n')
	answer := strings.TrimSpace(line)
	return answer == "y" || answer == "Y"
}

func printVersion(database *DB, out io.Writer) error {
	version, dirty, err := database.MigrateVersion(MigrationsFS())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Current version: %d (dirty: %v)\n", version, dirty)
	return nil
}

func printMigrateStatus(database *DB, out io.Writer) error {
	status, err := database.GetMigrationStatus(MigrationsFS())
	if err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}

	fmt.Fprintln(out, "=== Migration Status ===")
	fmt.Fprintf(out, "Current version: %d\n", status.CurrentVersion)
	fmt.Fprintf(out, "Latest available: %d\n", status.LatestVersion)
	fmt.Fprintf(out, "Dirty: %v\n", status.Dirty)
	fmt.Fprintf(out, "Schema migrations table exists: %v\n", status.SchemaMigrationsExists)

	switch {
	case status.Dirty:
		fmt.Fprintln(out, "\n⚠️  WARNING: Database is in a dirty state!")
		fmt.Fprintln(out, "A migration failed mid-execution. You may need to:")
		fmt.Fprintln(out, "  1. Inspect the database manually")
		fmt.Fprintln(out, "  2. Fix any issues")
		fmt.Fprintln(out, "  3. Run: regiondb migrate force <version>")
	case status.CurrentVersion < status.LatestVersion:
		fmt.Fprintf(out, "\n⚠️  Database is %d version(s) behind. Opening it with regiondb will recreate the region tables.\n",
			status.LatestVersion-status.CurrentVersion)
	case status.UpToDate():
		fmt.Fprintln(out, "\n✓ Database is up to date!")
	}
	return nil
}

// PrintMigrateHelp displays help for migrate commands
func PrintMigrateHelp(out io.Writer) {
	fmt.Fprint(out, `Usage: regiondb migrate <action> [args]

Actions:
  up                 Apply all pending migrations
  down               Roll back the most recent migration
  status             Show current migration status
  version <N>        Migrate to a specific version
  force <N>          Force the recorded version (recovery only, -1 clears it)
  reset              Drop and recreate the region tables (destroys all rows)
  help               Show this help
`)
}
