package main

import (
	"context"
	"log"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ccielab/enrollment-service/internal/infra/database"
	"github.com/ccielab/enrollment-service/internal/infra/http/handlers"
	appmiddleware "github.com/ccielab/enrollment-service/internal/infra/http/middleware"
	"github.com/ccielab/enrollment-service/internal/infra/integration/hubspot"
	"github.com/ccielab/enrollment-service/internal/infra/integration/mockpay"
	"github.com/ccielab/enrollment-service/internal/infra/integration/paypal"
	"github.com/ccielab/enrollment-service/internal/infra/integration/stripe"
	"github.com/ccielab/enrollment-service/internal/infra/mail"
	"github.com/ccielab/enrollment-service/internal/infra/queue"
	"github.com/ccielab/enrollment-service/internal/infra/worker"
	"github.com/ccielab/enrollment-service/internal/usecase"
)

// baseEnvKeys are always required; gatewayEnvKeys only when real gateways
// are wired. PAYPAL_WEBHOOK_SECRET belongs here: without it the webhook
// handler rejects every PayPal notification.
var (
	baseEnvKeys    = []string{"DATABASE_URL", "HUBSPOT_API_TOKEN", "MAIL_HOST", "MAIL_USER", "MAIL_PASS"}
	gatewayEnvKeys = []string{"STRIPE_SECRET_KEY", "STRIPE_WEBHOOK_SECRET", "PAYPAL_CLIENT_ID", "PAYPAL_SECRET", "PAYPAL_WEBHOOK_SECRET"}
)

func missingEnv(keys ...string) []string {
	missing := []string{}
	for _, k := range keys {
		if os.Getenv(k) == "" {
			missing = append(missing, k)
		}
	}
	return missing
}

func requireEnv(keys ...string) {
	if missing := missingEnv(keys...); len(missing) > 0 {
		log.Fatalf("❌ missing required environment variables: %v", missing)
	}
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	godotenv.Load()

	mockGateways := os.Getenv("GATEWAY_MOCK") == "1"

	requireEnv(baseEnvKeys...)
	if !mockGateways {
		requireEnv(gatewayEnvKeys...)
	}

	db, err := database.NewDBConnection(os.Getenv("DATABASE_URL"))
	if err != nil {
		log.Fatalf("❌ database connection failed: %v", err)
	}
	defer db.Close()

	rabbitMQ, err := queue.NewRabbitMQ(
		env("RABBITMQ_USER", "guest"), env("RABBITMQ_PASS", "guest"),
		env("RABBITMQ_HOST", "localhost"), env("RABBITMQ_PORT", "5672"),
	)
	if err != nil {
		log.Fatalf("❌ rabbitmq connection failed: %v", err)
	}
	defer rabbitMQ.Conn.Close()
	defer rabbitMQ.Ch.Close()

	// 1. Repository
	enrollRepo := database.NewEnrollmentRepository(db)

	// 2. Gateways and adapters
	var gateways []usecase.PaymentGateway
	if mockGateways {
		log.Println("⚠️ GATEWAY_MOCK=1, payments are simulated")
		gateways = []usecase.PaymentGateway{
			mockpay.NewGateway("PAYPAL"),
			mockpay.NewGateway("STRIPE"),
		}
	} else {
		gateways = []usecase.PaymentGateway{
			paypal.NewClient(os.Getenv("PAYPAL_CLIENT_ID"), os.Getenv("PAYPAL_SECRET"), os.Getenv("PAYPAL_API_URL")),
			stripe.NewClient(os.Getenv("STRIPE_SECRET_KEY"), os.Getenv("STRIPE_API_URL")),
		}
	}

	directory := hubspot.NewClient(os.Getenv("HUBSPOT_API_TOKEN"), os.Getenv("HUBSPOT_API_URL"))
	producer := queue.NewProducer(rabbitMQ.Conn, rabbitMQ.Ch)
	mailSender := mail.NewSender(
		os.Getenv("MAIL_HOST"), 587, os.Getenv("MAIL_USER"), os.Getenv("MAIL_PASS"),
		env("MAIL_FROM", os.Getenv("MAIL_USER")),
	)

	// 3. UseCases
	startUC := usecase.NewStartEnrollmentUseCase(enrollRepo, directory, env("CURRENCY", "USD"))
	confirmUC := usecase.NewConfirmEnrollmentUseCase(
		enrollRepo, directory, gateways, mailSender, os.Getenv("STAFF_EMAIL"),
	)
	reconcileUC := usecase.NewReconcileEnrollmentsUseCase(enrollRepo, confirmUC)

	// 4. Workers (queue consumer + reconciliation sweep)
	confirmationWorker := queue.NewWorker(rabbitMQ.Ch, confirmUC)
	go confirmationWorker.Start(queue.QueueName)

	sweep := worker.NewReconciliationWorker(reconcileUC)
	go sweep.Start(context.Background())

	// 5. Handlers
	enrollHandler := handlers.NewEnrollHandler(startUC, confirmUC)
	webhookHandler := handlers.NewWebhookHandler(
		producer, os.Getenv("STRIPE_WEBHOOK_SECRET"), os.Getenv("PAYPAL_WEBHOOK_SECRET"),
	)
	healthHandler := handlers.NewHealthHandler(db, rabbitMQ.Conn)

	// 6. Router
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(appmiddleware.Metrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:5173", "*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
	}))

	r.Post("/enroll/start", enrollHandler.HandleStart)
	r.Post("/enroll/confirm", enrollHandler.HandleConfirm)
	r.Post("/enroll/webhook/{gateway}", webhookHandler.Handle)
	r.Get("/health", healthHandler.Handle)
	r.Handle("/metrics", promhttp.Handler())

	port := ":8080"
	log.Printf("🔥 Enrollment service running on port %s", port)
	http.ListenAndServe(port, r)
}
