package main

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ofim/contexto/internal/config"
	"github.com/ofim/contexto/internal/db"
	"github.com/ofim/contexto/internal/persona"
	"github.com/ofim/contexto/internal/soul"
)

func newSoulsCmd(getCfg func() *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "souls",
		Short: "Manage persona soul files",
	}
	cmd.AddCommand(newSoulsSyncCmd(getCfg), newSoulsCheckCmd(getCfg))
	return cmd
}

func newSoulsSyncCmd(getCfg func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Register every soul file under the personas root",
		Long: `sync walks the personas root for <slug>.md files, hashes each one, and
upserts its persona row. Re-syncing an unchanged file is a version no-op;
a changed file bumps soul_version.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), getCfg())
			if err != nil {
				return err
			}
			defer a.close()

			root := getCfg().PersonasRoot
			var synced int
			err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if d.IsDir() || !strings.HasSuffix(d.Name(), ".md") {
					return nil
				}

				slug := strings.TrimSuffix(d.Name(), ".md")
				if err := soul.ValidateSlug(slug); err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "skip %s: %v\n", path, err)
					return nil
				}

				content, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				sum := sha256.Sum256(content)

				doc := soul.Parse(string(content))
				name := doc.Title
				if name == "" {
					name = slug
				}

				p := &persona.Persona{
					Slug:     slug,
					Name:     name,
					SoulPath: path,
					SoulHash: hex.EncodeToString(sum[:]),
				}
				if err := a.personas.Upsert(cmd.Context(), p); err != nil {
					return err
				}
				synced++
				fmt.Fprintf(cmd.OutOrStdout(), "%-16s v%d  %s\n", p.Slug, p.SoulVersion, path)
				return nil
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d soul(s) synced\n", synced)
			return nil
		},
	}
}

func newSoulsCheckCmd(getCfg func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate every registered persona's soul file",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), getCfg())
			if err != nil {
				return err
			}
			defer a.close()

			personas, err := a.personas.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(personas) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no personas registered; run `contexto souls sync` first")
				return nil
			}

			var failed int
			for i := range personas {
				p := &personas[i]
				res := a.validator.Validate(cmd.Context(), p)
				status := "ok"
				if !res.Valid {
					failed++
					status = "FAIL: " + res.Reason
					if len(res.MissingSections) > 0 {
						status += " (" + strings.Join(res.MissingSections, ", ") + ")"
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-16s v%d  %s\n", p.Slug, p.SoulVersion, status)
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d soul(s) failed validation", failed, len(personas))
			}
			return nil
		},
	}
}

func newMigrateCmd(getCfg func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := getCfg()
			pool, err := db.NewPool(cmd.Context(), cfg.DatabaseURL, cfg.PoolMaxConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := db.Migrate(cmd.Context(), pool, cfg.Embeddings.Dimensions); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}
