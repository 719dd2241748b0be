// Package cli provides the Cobra-based CLI for productsapi.
package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"productsapi/domain"
	"productsapi/store"
)

var (
	rootCmd = &cobra.Command{
		Use:           "productsapi",
		Short:         "REST API for products and sales",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// IMPORTANT: allow tests to inject store
			if productStore != nil {
				return nil
			}

			if cfg := viper.GetString("config"); cfg != "" {
				viper.SetConfigFile(cfg)
				if err := viper.ReadInConfig(); err != nil {
					return err
				}
			}

			lvl := parseLevel(viper.GetString("log-level"))
			slog.SetDefault(slog.New(
				slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}),
			))

			return openStore(cmd.Context(), lvl == slog.LevelDebug)
		},
	}

	productStore domain.Store
	// ownsStore is set when productStore was opened by the root command
	ownsStore bool
)

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// openStore connects the configured backend and brings its schema up to date
func openStore(ctx context.Context, verbose bool) error {
	kind := viper.GetString("store")
	dsn := viper.GetString("database-url")
	if kind == "sqlite" {
		if err := ensureParentDir(dsn); err != nil {
			return err
		}
	}

	s, err := store.NewStore(kind, dsn, verbose)
	if err != nil {
		return err
	}

	if m, ok := s.(store.Migrator); ok {
		start := time.Now()
		if err := m.Migrate(ctx); err != nil {
			s.Close()
			return err
		}
		slog.Debug("schema migrated", "store", kind, "duration_ms", time.Since(start).Milliseconds())
	}

	slog.Info("database connected", "store", kind)
	productStore, ownsStore = s, true
	return nil
}

func ensureParentDir(dsn string) error {
	path, _, _ := strings.Cut(strings.TrimPrefix(dsn, "file:"), "?")
	if path == "" || path == ":memory:" {
		return nil
	}
	if dir := filepath.Dir(path); dir != "." {
		return os.MkdirAll(dir, 0o755)
	}
	return nil
}

func closeStore() error {
	if !ownsStore || productStore == nil {
		return nil
	}
	err := productStore.Close()
	productStore, ownsStore = nil, false
	return err
}

func init() {
	rootCmd.PersistentFlags().String("store", "sqlite", "store backend: sqlite|mysql|memory")
	rootCmd.PersistentFlags().String("database-url", "data/products.db", "sqlite path or mysql DSN")
	rootCmd.PersistentFlags().String("config", "", "config file")
	rootCmd.PersistentFlags().String("log-level", "info", "log level")

	viper.BindPFlag("store", rootCmd.PersistentFlags().Lookup("store"))
	viper.BindPFlag("database-url", rootCmd.PersistentFlags().Lookup("database-url"))
	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.SetEnvPrefix("PRODUCTS_API")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	viper.BindEnv("database-url", "PRODUCTS_API_DATABASE_URL", "DATABASE_URL")

	rootCmd.AddCommand(newServeCmd())

	// migrate
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, ok := productStore.(store.Migrator); !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "store has no schema")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
	rootCmd.AddCommand(migrateCmd)

	// create
	var name string
	var price float64
	var unavailable bool
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a product",
		RunE: func(cmd *cobra.Command, args []string) error {
			p := domain.Product{Name: name, Price: price, Availability: !unavailable}
			if err := domain.ValidateProduct(p); err != nil {
				return err
			}
			start := time.Now()
			if err := productStore.CreateProduct(cmd.Context(), &p); err != nil {
				slog.Error("create failed", "error", err)
				return err
			}
			slog.Info("product created", "product_id", p.ID, "duration_ms", time.Since(start).Milliseconds())
			return printJSON(cmd.OutOrStdout(), p)
		},
	}
	createCmd.Flags().StringVar(&name, "name", "", "name")
	createCmd.Flags().Float64Var(&price, "price", 0, "price")
	createCmd.Flags().BoolVar(&unavailable, "unavailable", false, "create the product as unavailable")
	rootCmd.AddCommand(createCmd)

	// get
	getCmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Get product by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			p, err := productStore.GetProduct(cmd.Context(), id)
			if err != nil {
				if domain.IsProductNotFoundError(err) {
					fmt.Fprintln(cmd.ErrOrStderr(), err)
					return nil
				}
				return err
			}
			return printJSON(cmd.OutOrStdout(), p)
		},
	}
	rootCmd.AddCommand(getCmd)

	// update
	var uName string
	var uPrice float64
	var uAvailable bool
	updateCmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			p, err := productStore.GetProduct(cmd.Context(), id)
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("name") {
				p.Name = uName
			}
			if cmd.Flags().Changed("price") {
				p.Price = uPrice
			}
			if cmd.Flags().Changed("available") {
				p.Availability = uAvailable
			}

			if err := domain.ValidateProduct(p); err != nil {
				return err
			}

			start := time.Now()
			if err := productStore.UpdateProduct(cmd.Context(), &p); err != nil {
				slog.Error("update failed", "product_id", id, "error", err)
				return err
			}

			slog.Info(
				"product updated",
				"product_id", id,
				"duration_ms", time.Since(start).Milliseconds(),
			)

			return printJSON(cmd.OutOrStdout(), p)
		},
	}
	updateCmd.Flags().StringVar(&uName, "name", "", "name")
	updateCmd.Flags().Float64Var(&uPrice, "price", 0, "price")
	updateCmd.Flags().BoolVar(&uAvailable, "available", true, "availability")
	rootCmd.AddCommand(updateCmd)

	// list
	var lSort, lOrder, lOutput string
	var lMin, lMax float64
	var lAvailable bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List products",
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter domain.ListFilter
			if cmd.Flags().Changed("available") {
				filter.Available = &lAvailable
			}
			if cmd.Flags().Changed("min-price") {
				filter.MinPrice = &lMin
			}
			if cmd.Flags().Changed("max-price") {
				filter.MaxPrice = &lMax
			}
			filter.SortBy, filter.Order = lSort, lOrder

			out, err := productStore.ListProducts(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if lOutput == "json" {
				return printJSON(cmd.OutOrStdout(), out)
			}
			for _, p := range out {
				fmt.Fprintf(cmd.OutOrStdout(), "%d | %s | %.2f | %t\n",
					p.ID, p.Name, p.Price, p.Availability)
			}
			return nil
		},
	}
	listCmd.Flags().BoolVar(&lAvailable, "available", true, "only products with this availability")
	listCmd.Flags().Float64Var(&lMin, "min-price", 0, "min price")
	listCmd.Flags().Float64Var(&lMax, "max-price", 0, "max price")
	listCmd.Flags().StringVar(&lSort, "sort-by", "", "sort field: id|name|price")
	listCmd.Flags().StringVar(&lOrder, "order", "asc", "sort order")
	listCmd.Flags().StringVar(&lOutput, "output", "", "output format")
	rootCmd.AddCommand(listCmd)

	// delete
	var force bool
	deleteCmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if !force {
				fmt.Fprintf(cmd.OutOrStdout(), "Delete %d? (y/N): ", id)
				resp, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if resp = strings.TrimSpace(resp); resp != "y" && resp != "Y" {
					fmt.Fprintln(cmd.OutOrStdout(), "aborted")
					return nil
				}
			}
			if err := productStore.DeleteProduct(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "deleted")
			return nil
		},
	}
	deleteCmd.Flags().BoolVar(&force, "force", false, "skip confirmation")
	rootCmd.AddCommand(deleteCmd)

	// import
	var importFile string
	importCmd := &cobra.Command{
		Use:   "import --file <file>",
		Short: "Import products from a JSON array or NDJSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			if importFile == "" {
				return errors.New("--file required")
			}

			b, err := os.ReadFile(importFile)
			if err != nil {
				return err
			}

			products, err := decodeProducts(b)
			if err != nil {
				return err
			}

			start := time.Now()
			err = productStore.BulkImport(cmd.Context(), products)
			slog.Info("import finished",
				"file", importFile,
				"records", len(products),
				"duration_ms", time.Since(start).Milliseconds(),
			)
			return err
		},
	}
	importCmd.Flags().StringVar(&importFile, "file", "", "input file")
	rootCmd.AddCommand(importCmd)

	// export
	var exportFile string
	var exportAvailable bool
	exportCmd := &cobra.Command{
		Use:   "export --file <file>",
		Short: "Export products to JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			if exportFile == "" {
				return errors.New("--file required")
			}
			var filter domain.ListFilter
			if cmd.Flags().Changed("available") {
				filter.Available = &exportAvailable
			}
			out, err := productStore.ListProducts(cmd.Context(), filter)
			if err != nil {
				return err
			}
			b, _ := json.MarshalIndent(out, "", "  ")
			return os.WriteFile(exportFile, b, 0o644)
		},
	}
	exportCmd.Flags().StringVar(&exportFile, "file", "", "output file")
	exportCmd.Flags().BoolVar(&exportAvailable, "available", true, "only products with this availability")
	rootCmd.AddCommand(exportCmd)

	// sales
	salesCmd := &cobra.Command{
		Use:   "sales",
		Short: "List recorded sales with their products",
		RunE: func(cmd *cobra.Command, args []string) error {
			sales, err := productStore.ListSales(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), sales)
		},
	}
	rootCmd.AddCommand(salesCmd)
}

// productRecord is the import format; a missing availability means available
type productRecord struct {
	Name         string  `json:"name"`
	Price        float64 `json:"price"`
	Availability *bool   `json:"availability"`
}

func (r productRecord) product() domain.Product {
	p := domain.Product{Name: r.Name, Price: r.Price, Availability: true}
	if r.Availability != nil {
		p.Availability = *r.Availability
	}
	return p
}

// decodeProducts accepts a JSON array, NDJSON or a single JSON object
func decodeProducts(b []byte) ([]domain.Product, error) {
	btrim := bytes.TrimSpace(b)
	if len(btrim) == 0 {
		return nil, errors.New("empty file")
	}

	var records []productRecord
	if btrim[0] == '[' {
		if err := json.Unmarshal(btrim, &records); err != nil {
			return nil, err
		}
	} else {
		scanner := bufio.NewScanner(bytes.NewReader(btrim))
		for line := 1; scanner.Scan(); line++ {
			raw := bytes.TrimSpace(scanner.Bytes())
			if len(raw) == 0 {
				continue
			}
			var r productRecord
			if err := json.Unmarshal(raw, &r); err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			records = append(records, r)
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
	}

	products := make([]domain.Product, len(records))
	for i, r := range records {
		products[i] = r.product()
	}
	return products, nil
}

func parseID(s string) (uint, error) {
	id, err := strconv.ParseUint(s, 10, 0)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid product id %q", s)
	}
	return uint(id), nil
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

// Execute runs the root command and releases the store it opened
func Execute() error {
	err := rootCmd.Execute()
	return errors.Join(err, closeStore())
}
