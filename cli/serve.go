package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"productsapi/api"
	"productsapi/events"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the REST API server",
		RunE:  runServe,
	}

	cmd.Flags().String("host", "", "listen host")
	cmd.Flags().String("port", "4000", "listen port")
	cmd.Flags().String("frontend-url", "", "allowed CORS origin, empty allows any")
	cmd.Flags().String("amqp-url", "", "RabbitMQ URL for sale events, empty disables them")
	cmd.Flags().String("amqp-queue", "sales", "RabbitMQ queue for sale events")

	for _, key := range []string{"host", "port", "frontend-url", "amqp-url", "amqp-queue"} {
		viper.BindPFlag(key, cmd.Flags().Lookup(key))
	}
	viper.BindEnv("port", "PRODUCTS_API_PORT", "PORT")
	viper.BindEnv("frontend-url", "PRODUCTS_API_FRONTEND_URL", "FRONTEND_URL")
	viper.BindEnv("amqp-url", "PRODUCTS_API_AMQP_URL", "AMQP_URL")

	return cmd
}

func newPublisher(url, queue string) (events.Publisher, error) {
	if url == "" {
		return events.NopPublisher{}, nil
	}
	p, err := events.NewAMQPPublisher(url, queue)
	if err != nil {
		return nil, err
	}
	slog.Info("sale events enabled", "queue", queue)
	return p, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	if parseLevel(viper.GetString("log-level")) != slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	publisher, err := newPublisher(viper.GetString("amqp-url"), viper.GetString("amqp-queue"))
	if err != nil {
		return err
	}
	defer publisher.Close()

	router, err := api.NewRouter(
		api.NewHandler(productStore, publisher),
		api.Options{FrontendURL: viper.GetString("frontend-url")},
	)
	if err != nil {
		return err
	}

	srv := api.NewServer(router, viper.GetString("host"), viper.GetString("port"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("REST API listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
