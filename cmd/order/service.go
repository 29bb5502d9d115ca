package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"orderservice/pkg/order/domain/service"
	"orderservice/pkg/order/infrastructure/catalog"
	"orderservice/pkg/order/infrastructure/events"
	"orderservice/pkg/order/infrastructure/metrics"
	"orderservice/pkg/order/infrastructure/mysql"
	"orderservice/pkg/order/infrastructure/transport"
)

func runService(ctx context.Context, c *config, logger log.FieldLogger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := mysql.Open(ctx, c.database())
	if err != nil {
		return err
	}
	defer db.Close()

	conn, err := amqp.Dial(c.AMQPURL)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to connect to amqp")
	}
	defer conn.Close()
	connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	dispatcher, err := newDispatcher(conn, c, m, logger)
	if err != nil {
		return err
	}

	orders := service.NewOrderService(
		mysql.NewOrderRepository(db),
		catalog.NewClient(conn, c.CatalogQueue, c.CatalogTimeout, m),
		dispatcher,
		logger,
	)

	httpServer := &http.Server{
		Addr:              c.HTTPAddress,
		Handler:           transport.Router(orders, logger, m, metrics.Handler(reg)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(appID, grpc_health_v1.HealthCheckResponse_SERVING)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("address", c.HTTPAddress).Info("starting http server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return pkgerrors.Wrap(err, "http server failed")
		}
		return nil
	})
	g.Go(func() error {
		lis, err := net.Listen("tcp", c.GRPCAddress)
		if err != nil {
			return pkgerrors.Wrapf(err, "failed to listen on %s", c.GRPCAddress)
		}
		logger.WithField("address", c.GRPCAddress).Info("starting grpc server")
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return pkgerrors.Wrap(err, "grpc server failed")
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case amqpErr := <-connClosed:
			return pkgerrors.Errorf("amqp connection closed: %v", amqpErr)
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		healthServer.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), c.ShutdownTimeout)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		grpcServer.GracefulStop()
		if closer, ok := dispatcher.(*events.Publisher); ok {
			_ = closer.Close()
		}
		return pkgerrors.Wrap(err, "http shutdown failed")
	})

	return g.Wait()
}

func newDispatcher(conn *amqp.Connection, c *config, m *metrics.Metrics, logger log.FieldLogger) (service.EventDispatcher, error) {
	if c.EventsExchange == "" {
		logger.Warn("EVENTS_EXCHANGE is empty, domain events will only be logged")
		return events.LogDispatcher{Logger: logger}, nil
	}
	return events.NewPublisher(conn, c.EventsExchange, m)
}
