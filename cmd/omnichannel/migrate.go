package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tbourn/omnichannel-gateway/internal/repo"
)

func migrateCmd(env *runtimeEnv) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Postgres schema migration management",
	}
	for _, sub := range []struct{ use, short string }{
		{"up", "Apply all pending migrations"},
		{"down", "Roll back all migrations"},
		{"version", "Show the current schema version"},
	} {
		command := sub.use
		cmd.AddCommand(&cobra.Command{
			Use:   command,
			Short: sub.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				if env.cfg.DB.Driver != repo.DriverPostgres {
					return errors.New("migrations apply to postgres only; sqlite schemas are created on serve")
				}
				st, err := repo.RunMigrations(env.cfg.DB.URL, command)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version: %d, dirty: %v\n", st.Version, st.Dirty)
				return nil
			},
		})
	}
	return cmd
}
