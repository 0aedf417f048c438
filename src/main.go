package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"placestore/src/config"
	"placestore/src/db"
	"placestore/src/handlers"
)

var rootCmd = &cobra.Command{
	Use:           "places",
	Short:         "Store places, rate them and find the nearest ones",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	config.RegisterFlags(rootCmd.PersistentFlags())
	handleKit(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withStore opens the store described by the flags, runs fn and closes it.
func withStore(cmd *cobra.Command, fn func(store *db.PlaceStore) error) error {
	v, err := config.New(cmd.Flags())
	if err != nil {
		return err
	}
	log, err := config.Logger(v.GetString("log_level"))
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	opts, err := config.Options(v, log)
	if err != nil {
		return err
	}
	store, err := db.NewPlaceStore(opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("closing store", zap.Error(err))
		}
	}()
	return fn(store)
}

// readBody returns the JSON argument, or stdin when it is "-" or missing.
func readBody(cmd *cobra.Command, args []string, i int) ([]byte, error) {
	if len(args) > i && args[i] != "-" {
		return []byte(args[i]), nil
	}
	return io.ReadAll(cmd.InOrStdin())
}

func handleKit(root *cobra.Command) {
	create := &cobra.Command{
		Use:   "create [json|-]",
		Short: "Create a place from a JSON payload",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := readBody(cmd, args, 0)
			if err != nil {
				return err
			}
			return withStore(cmd, func(store *db.PlaceStore) error {
				return handlers.HandleCreate(cmd.OutOrStdout(), store, body)
			})
		},
	}

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Print a place",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(store *db.PlaceStore) error {
				return handlers.HandleGet(cmd.OutOrStdout(), store, args[0])
			})
		},
	}

	update := &cobra.Command{
		Use:   "update <id> [json|-]",
		Short: "Update a place and add ratings from a JSON payload",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := readBody(cmd, args, 1)
			if err != nil {
				return err
			}
			return withStore(cmd, func(store *db.PlaceStore) error {
				return handlers.HandleUpdate(cmd.OutOrStdout(), store, args[0], body)
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a place",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(store *db.PlaceStore) error {
				return handlers.HandleDelete(cmd.OutOrStdout(), store, args[0])
			})
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List places, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			page, _ := cmd.Flags().GetString("page")
			asJSON, _ := cmd.Flags().GetBool("json")
			return withStore(cmd, func(store *db.PlaceStore) error {
				if asJSON {
					return handlers.HandleGetPlacesJSON(cmd.OutOrStdout(), store, page)
				}
				tmpl, err := handlers.LoadTemplate()
				if err != nil {
					return err
				}
				return handlers.HandleGetPlacesText(cmd.OutOrStdout(), store, tmpl, page)
			})
		},
	}
	list.Flags().String("page", "1", "Page to show, starting at 1.")
	list.Flags().Bool("json", false, "Print JSON instead of text.")

	nearest := &cobra.Command{
		Use:   "nearest <[lat,lon]>",
		Short: "Print the places nearest to a coordinate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asGeoJSON, _ := cmd.Flags().GetBool("geojson")
			return withStore(cmd, func(store *db.PlaceStore) error {
				return handlers.HandleRecommend(cmd.OutOrStdout(), store, args[0], asGeoJSON)
			})
		},
	}
	nearest.Flags().Bool("geojson", false, "Print a GeoJSON feature collection.")

	load := &cobra.Command{
		Use:   "import <file.tsv>",
		Short: "Create places from a tab separated file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			return withStore(cmd, func(store *db.PlaceStore) error {
				return handlers.HandleImport(cmd.OutOrStdout(), store, f)
			})
		},
	}

	reindex := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the proximity index from the stored places",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(store *db.PlaceStore) error {
				return handlers.HandleReindex(cmd.OutOrStdout(), store)
			})
		},
	}

	destroy := &cobra.Command{
		Use:   "destroy",
		Short: "Delete the database directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := config.New(cmd.Flags())
			if err != nil {
				return err
			}
			path := v.GetString("db")
			if err := db.Destroy(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted database %s\n", path)
			return nil
		},
	}

	root.AddCommand(create, get, update, del, list, nearest, load, reindex, destroy)
}
